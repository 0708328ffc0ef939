package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

const (
	defaultListenAddr       = ":8080"
	defaultSchedulePollSpec = "@every 1s"
	defaultCacheTTL         = 24 * time.Hour
)

// RedisConfig backs the schedule queue and, when CacheEnabled, the
// installation read cache.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	CacheEnabled bool
	CacheTTL     time.Duration
	ScheduleKey  string
}

// APNSConfig holds token-based APNs credentials. APNs delivery is disabled
// when P8KeyContent is empty.
type APNSConfig struct {
	KeyID        string
	TeamID       string
	BundleID     string
	P8KeyContent string
	Sandbox      bool
}

// Enabled reports whether enough credentials are present to push to APNs.
func (c APNSConfig) Enabled() bool {
	return c.P8KeyContent != ""
}

// Config defines the *single*, authoritative configuration.
type Config struct {
	ProjectID              string
	ListenAddr             string
	APIKey                 string
	TopicID                string
	SubscriptionID         string
	SubscriptionDLQTopicID string
	NumPipelineWorkers     int

	// ReferenceZoneIDs are tried in order to resolve the scheduling time zone.
	ReferenceZoneIDs []string
	SchedulePollSpec string

	CorsConfig middleware.CorsConfig
	Redis      RedisConfig
	APNS       APNSConfig

	PubsubConsumerConfig *messagepipeline.GooglePubsubConsumerConfig
}

// UpdateConfigWithEnvOverrides applies environment variables and final validation.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	// 1. Apply Environment Overrides
	if val := os.Getenv("PROJECT_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "PROJECT_ID", "source", "env")
		cfg.ProjectID = val
	}
	if val := os.Getenv("PORT"); val != "" {
		logger.Debug("Overriding config value", "key", "PORT", "source", "env")
		cfg.ListenAddr = ":" + val
	}
	if val := os.Getenv("API_KEY"); val != "" {
		logger.Debug("Overriding config value", "key", "API_KEY", "source", "env")
		cfg.APIKey = val
	}
	if val := os.Getenv("DELIVERY_TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "DELIVERY_TOPIC_ID", "source", "env")
		cfg.TopicID = val
	}
	if val := os.Getenv("DELIVERY_SUBSCRIPTION_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "DELIVERY_SUBSCRIPTION_ID", "source", "env")
		cfg.SubscriptionID = val
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(val)
	}
	if val := os.Getenv("SUBSCRIPTION_DLQ_TOPIC_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "SUBSCRIPTION_DLQ_TOPIC_ID", "source", "env")
		cfg.SubscriptionDLQTopicID = val
	}
	if val := os.Getenv("NUM_PIPELINE_WORKERS"); val != "" {
		if workers, err := strconv.Atoi(val); err == nil && workers > 0 {
			logger.Debug("Overriding config value", "key", "NUM_PIPELINE_WORKERS", "source", "env")
			cfg.NumPipelineWorkers = workers
		}
	}
	if val := os.Getenv("SCHEDULE_POLL_SPEC"); val != "" {
		logger.Debug("Overriding config value", "key", "SCHEDULE_POLL_SPEC", "source", "env")
		cfg.SchedulePollSpec = val
	}
	if val := os.Getenv("REFERENCE_ZONE"); val != "" {
		logger.Debug("Overriding config value", "key", "REFERENCE_ZONE", "source", "env")
		cfg.ReferenceZoneIDs = splitList(val)
	}

	// Redis Overrides
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = db
		}
	}
	if val := os.Getenv("REDIS_CACHE_ENABLED"); val != "" {
		enabled, _ := strconv.ParseBool(val)
		cfg.Redis.CacheEnabled = enabled
	}
	if val := os.Getenv("REDIS_CACHE_TTL"); val != "" {
		if ttl, err := time.ParseDuration(val); err == nil {
			cfg.Redis.CacheTTL = ttl
		}
	}

	// APNs Overrides
	if val := os.Getenv("APNS_KEY_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "APNS_KEY_ID", "source", "env")
		cfg.APNS.KeyID = val
	}
	if val := os.Getenv("APNS_TEAM_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "APNS_TEAM_ID", "source", "env")
		cfg.APNS.TeamID = val
	}
	if val := os.Getenv("APNS_BUNDLE_ID"); val != "" {
		logger.Debug("Overriding config value", "key", "APNS_BUNDLE_ID", "source", "env")
		cfg.APNS.BundleID = val
	}
	if val := os.Getenv("APNS_P8_KEY"); val != "" {
		logger.Debug("Overriding config value", "key", "APNS_P8_KEY", "source", "env")
		cfg.APNS.P8KeyContent = val
	}
	if val := os.Getenv("APNS_SANDBOX"); val != "" {
		sandbox, _ := strconv.ParseBool(val)
		cfg.APNS.Sandbox = sandbox
	}

	// CORS Overrides
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		logger.Debug("Overriding config value", "key", "CORS_ALLOWED_ORIGINS", "source", "env")
		cfg.CorsConfig.AllowedOrigins = splitList(corsOrigins)
	}

	// 2. Final Validation
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project_id is required (set via YAML or PROJECT_ID env var)")
	}
	if cfg.TopicID == "" {
		return nil, fmt.Errorf("topic_id is required (set via YAML or DELIVERY_TOPIC_ID env var)")
	}
	if cfg.SubscriptionID == "" {
		return nil, fmt.Errorf("subscription_id is required (set via YAML or DELIVERY_SUBSCRIPTION_ID env var)")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required for the schedule queue (set via YAML or REDIS_ADDR env var)")
	}
	if cfg.APNS.Enabled() && (cfg.APNS.KeyID == "" || cfg.APNS.TeamID == "" || cfg.APNS.BundleID == "") {
		return nil, fmt.Errorf("apns key_id, team_id and bundle_id are required when an apns key is configured")
	}
	if cfg.APIKey == "" {
		logger.Warn("API_KEY is not set; notification endpoints are unauthenticated")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}
	if cfg.NumPipelineWorkers <= 0 {
		cfg.NumPipelineWorkers = 1
	}
	if cfg.SchedulePollSpec == "" {
		cfg.SchedulePollSpec = defaultSchedulePollSpec
	}
	if cfg.Redis.CacheTTL <= 0 {
		cfg.Redis.CacheTTL = defaultCacheTTL
	}

	if cfg.PubsubConsumerConfig == nil {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
