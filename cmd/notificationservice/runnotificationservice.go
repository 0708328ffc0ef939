package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"

	firebase "firebase.google.com/go/v4"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-pushhub-service/internal/orchestrator"
	"github.com/tinywideclouds/go-pushhub-service/internal/platform/apns"
	"github.com/tinywideclouds/go-pushhub-service/internal/platform/fcm"
	"github.com/tinywideclouds/go-pushhub-service/internal/relay"
	"github.com/tinywideclouds/go-pushhub-service/internal/schedule"
	"github.com/tinywideclouds/go-pushhub-service/internal/storage/cache"
	fsStore "github.com/tinywideclouds/go-pushhub-service/internal/storage/firestore"
	"github.com/tinywideclouds/go-pushhub-service/pkg/delivery"
	"github.com/tinywideclouds/go-pushhub-service/pkg/push"

	"github.com/tinywideclouds/go-pushhub-service/notificationservice"
	"github.com/tinywideclouds/go-pushhub-service/notificationservice/config"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gopkg.in/yaml.v3"
)

//go:embed local.yaml
var configFile []byte

func main() {
	var logLevel slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "DEBUG":
		logLevel = slog.LevelDebug
	case "info", "INFO":
		logLevel = slog.LevelInfo
	case "warn", "WARN":
		logLevel = slog.LevelWarn
	case "error", "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With("service", "go-pushhub-service")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Config Loading ---
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		logger.Error("Failed to unmarshal embedded yaml config", "err", err)
		os.Exit(1)
	}
	baseCfg, err := config.NewConfigFromYaml(&yamlCfg, logger)
	if err != nil {
		logger.Error("Failed to map yaml config", "err", err)
		os.Exit(1)
	}
	cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
	if err != nil {
		logger.Error("Config failed", "err", err)
		os.Exit(1)
	}

	zone, err := schedule.LoadReferenceZone(cfg.ReferenceZoneIDs...)
	if err != nil {
		logger.Error("Reference time zone unavailable", "err", err)
		os.Exit(1)
	}

	// --- Infrastructure Clients ---
	psClient, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		logger.Error("PubSub client failed", "err", err)
		os.Exit(1)
	}
	defer psClient.Close()

	fsClient, err := firestore.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		logger.Error("Firestore client failed", "err", err)
		os.Exit(1)
	}
	defer fsClient.Close()

	logger.Info("Connecting to Redis...", "addr", cfg.Redis.Addr)
	redisClient, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Error("Failed to connect to Redis", "err", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	// --- Installation Store (Decorated) ---
	var store delivery.InstallationStore = fsStore.NewInstallationStore(fsClient)
	logger.Info("InstallationStore initialized", "type", "firestore")
	if cfg.Redis.CacheEnabled {
		store = cache.NewCachedInstallationStore(store, redisClient, cfg.Redis.CacheTTL, logger)
		logger.Info("InstallationStore upgraded", "type", "redis_cached_firestore", "ttl", cfg.Redis.CacheTTL)
	}

	// --- Relay ---
	queueKey := cfg.Redis.ScheduleKey
	if queueKey == "" {
		queueKey = cache.DefaultScheduleKey
	}
	queue := cache.NewScheduleQueue(redisClient, queueKey)
	publisher := relay.NewPubsubPublisher(psClient, cfg.TopicID)
	defer publisher.Stop()

	scheduler, err := relay.NewScheduler(cfg.SchedulePollSpec, queue, publisher, logger)
	if err != nil {
		logger.Error("Scheduler creation failed", "err", err)
		os.Exit(1)
	}

	notifications := orchestrator.New(relay.New(store, queue, publisher, logger), zone, logger)

	// --- Dispatchers ---
	dispatchers, err := newDispatchers(ctx, cfg, logger)
	if err != nil {
		logger.Error("Dispatcher setup failed", "err", err)
		os.Exit(1)
	}

	// --- Consumer & Service ---
	consumer, err := newDeliveryConsumer(ctx, cfg, psClient, logger)
	if err != nil {
		logger.Error("Consumer setup failed", "err", err)
		os.Exit(1)
	}

	service, err := notificationservice.New(cfg, notificationservice.Dependencies{
		Consumer:      consumer,
		Dispatchers:   dispatchers,
		Store:         store,
		Notifications: notifications,
		ParseTime:     notifications.Validator().Parse,
		Scheduler:     scheduler,
	}, logger)
	if err != nil {
		logger.Error("Service creation failed", "err", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting service...", "addr", cfg.ListenAddr, "zone", zone.String())
		errCh <- service.Start(ctx)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Service shutdown with error", "err", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := service.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", "err", err)
	}
}

// newDispatchers always enables FCM; APNs is enabled only when a key is configured.
func newDispatchers(ctx context.Context, cfg *config.Config, logger *slog.Logger) (map[push.Platform]delivery.Dispatcher, error) {
	fbApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	fcmMessaging, err := fbApp.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create fcm messaging client: %w", err)
	}

	dispatchers := map[push.Platform]delivery.Dispatcher{
		push.PlatformFCMV1: fcm.NewDispatcher(fcmMessaging, logger),
	}

	if !cfg.APNS.Enabled() {
		logger.Warn("APNs key missing in configuration. iOS delivery is disabled.")
		return dispatchers, nil
	}
	apnsDispatcher, err := apns.NewDispatcher(apns.Config{
		KeyID:        cfg.APNS.KeyID,
		TeamID:       cfg.APNS.TeamID,
		BundleID:     cfg.APNS.BundleID,
		P8KeyContent: cfg.APNS.P8KeyContent,
		Sandbox:      cfg.APNS.Sandbox,
	}, logger)
	if err != nil {
		return nil, err
	}
	dispatchers[push.PlatformAPNS] = apnsDispatcher
	logger.Info("APNs Dispatcher enabled", "bundle_id", cfg.APNS.BundleID, "sandbox", cfg.APNS.Sandbox)
	return dispatchers, nil
}

func newDeliveryConsumer(ctx context.Context, cfg *config.Config, psClient *pubsub.Client, logger *slog.Logger) (messagepipeline.MessageConsumer, error) {
	sub := convertPubsub(cfg.ProjectID, cfg.PubsubConsumerConfig.SubscriptionID, "subscriptions")
	topicID := convertPubsub(cfg.ProjectID, cfg.TopicID, "topics")

	subConfig := &pubsubpb.Subscription{
		Name:                  sub,
		Topic:                 topicID,
		AckDeadlineSeconds:    10,
		EnableMessageOrdering: false,
	}
	if cfg.SubscriptionDLQTopicID != "" {
		subConfig.DeadLetterPolicy = &pubsubpb.DeadLetterPolicy{
			DeadLetterTopic:     convertPubsub(cfg.ProjectID, cfg.SubscriptionDLQTopicID, "topics"),
			MaxDeliveryAttempts: 5,
		}
	}
	logger.Debug("Ensuring subscription exists", "sub", subConfig.Name, "topic", subConfig.Topic)
	_, err := psClient.SubscriptionAdminClient.CreateSubscription(ctx, subConfig)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			logger.Debug("Subscription already exists, skipping creation", "sub", subConfig.Name)
		} else {
			logger.Error("Failed to create subscription", "sub", subConfig.Name, "err", err)
			return nil, fmt.Errorf("could not create sub: %s", sub)
		}
	}

	return messagepipeline.NewGooglePubsubConsumer(
		messagepipeline.NewGooglePubsubConsumerDefaults(subConfig.Name), psClient, logger,
	)
}

type PS string

func convertPubsub(project, id string, ps PS) string {
	return fmt.Sprintf("projects/%s/%s/%s", project, ps, id)
}
