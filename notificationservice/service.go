package notificationservice

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"

	"github.com/tinywideclouds/go-pushhub-service/internal/api"
	"github.com/tinywideclouds/go-pushhub-service/internal/pipeline"
	"github.com/tinywideclouds/go-pushhub-service/internal/relay"
	"github.com/tinywideclouds/go-pushhub-service/notificationservice/config"
	"github.com/tinywideclouds/go-pushhub-service/pkg/delivery"
	"github.com/tinywideclouds/go-pushhub-service/pkg/push"
)

// Dependencies are the collaborators New wires together. Scheduler may be nil
// for a delivery-only instance.
type Dependencies struct {
	Consumer      messagepipeline.MessageConsumer
	Dispatchers   map[push.Platform]delivery.Dispatcher
	Store         delivery.InstallationStore
	Notifications api.NotificationService
	ParseTime     api.TimeParser
	Scheduler     *relay.Scheduler
}

type Wrapper struct {
	*microservice.BaseServer
	pipelineService *messagepipeline.StreamingService[delivery.Job]
	scheduler       *relay.Scheduler
	logger          *slog.Logger
}

// New assembles the service.
func New(cfg *config.Config, deps Dependencies, logger *slog.Logger) (*Wrapper, error) {
	if deps.Notifications == nil || deps.ParseTime == nil {
		return nil, fmt.Errorf("notification service and time parser are required")
	}

	// 1. Base Server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Processor
	processor := pipeline.NewProcessor(deps.Dispatchers, deps.Store, logger)

	// 3. Pipeline
	streamingService, err := messagepipeline.NewStreamingService(
		messagepipeline.StreamingServiceConfig{NumWorkers: cfg.NumPipelineWorkers},
		deps.Consumer,
		pipeline.DeliveryJobTransformer,
		processor,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create streaming service: %w", err)
	}

	// 4. API
	notificationAPI := api.NewNotificationAPI(deps.Notifications, deps.ParseTime, logger)

	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)
	authMiddleware := api.NewAPIKeyMiddleware(cfg.APIKey, logger)
	notificationAPI.Routes(baseServer.Mux(), func(h http.Handler) http.Handler {
		return corsMiddleware(authMiddleware(h))
	})

	return &Wrapper{
		BaseServer:      baseServer,
		pipelineService: streamingService,
		scheduler:       deps.Scheduler,
		logger:          logger,
	}, nil
}

func (w *Wrapper) Start(ctx context.Context) error {
	w.logger.Info("Core processing pipeline starting...")
	if err := w.pipelineService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start processing service: %w", err)
	}
	if w.scheduler != nil {
		w.logger.Info("Schedule poller starting...")
		w.scheduler.Start()
	}
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error
	w.SetReady(false)
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	if w.scheduler != nil {
		if err := w.scheduler.Stop(ctx); err != nil {
			w.logger.Error("Schedule poller shutdown failed.", "err", err)
			finalErr = err
		}
	}
	if err := w.pipelineService.Stop(ctx); err != nil {
		w.logger.Error("Processing pipeline shutdown failed.", "err", err)
		finalErr = err
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}
