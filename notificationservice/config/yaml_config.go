package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
)

type YamlCorsConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	Role           string   `yaml:"role"`
}

type YamlRedisConfig struct {
	Addr         string `yaml:"addr"`
	Password     string `yaml:"password"`
	DB           int    `yaml:"db"`
	CacheEnabled bool   `yaml:"cache_enabled"`
	CacheTTL     string `yaml:"cache_ttl"`
	ScheduleKey  string `yaml:"schedule_key"`
}

type YamlAPNSConfig struct {
	KeyID    string `yaml:"key_id"`
	TeamID   string `yaml:"team_id"`
	BundleID string `yaml:"bundle_id"`
	Sandbox  bool   `yaml:"sandbox"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
type YamlConfig struct {
	ProjectID              string          `yaml:"project_id"`
	ListenAddr             string          `yaml:"listen_addr"`
	TopicID                string          `yaml:"topic_id"`
	SubscriptionID         string          `yaml:"subscription_id"`
	SubscriptionDLQTopicID string          `yaml:"subscription_dlq_topic_id"`
	ReferenceZones         []string        `yaml:"reference_zones"`
	SchedulePollSpec       string          `yaml:"schedule_poll_spec"`
	CorsConfig             YamlCorsConfig  `yaml:"cors"`
	RedisConfig            YamlRedisConfig `yaml:"redis"`
	APNSConfig             YamlAPNSConfig  `yaml:"apns"`
	NumPipelineWorkers     int             `yaml:"num_pipeline_workers"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
// Secrets (API key, APNs key) are never read from YAML.
func NewConfigFromYaml(baseCfg *YamlConfig, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	var cacheTTL time.Duration
	if baseCfg.RedisConfig.CacheTTL != "" {
		ttl, err := time.ParseDuration(baseCfg.RedisConfig.CacheTTL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis cache_ttl %q: %w", baseCfg.RedisConfig.CacheTTL, err)
		}
		cacheTTL = ttl
	}

	cfg := &Config{
		ProjectID:        baseCfg.ProjectID,
		ListenAddr:       baseCfg.ListenAddr,
		TopicID:          baseCfg.TopicID,
		SubscriptionID:   baseCfg.SubscriptionID,
		ReferenceZoneIDs: baseCfg.ReferenceZones,
		SchedulePollSpec: baseCfg.SchedulePollSpec,
		CorsConfig: middleware.CorsConfig{
			AllowedOrigins: baseCfg.CorsConfig.AllowedOrigins,
			Role:           middleware.CorsRole(baseCfg.CorsConfig.Role),
		},
		Redis: RedisConfig{
			Addr:         baseCfg.RedisConfig.Addr,
			Password:     baseCfg.RedisConfig.Password,
			DB:           baseCfg.RedisConfig.DB,
			CacheEnabled: baseCfg.RedisConfig.CacheEnabled,
			CacheTTL:     cacheTTL,
			ScheduleKey:  baseCfg.RedisConfig.ScheduleKey,
		},
		APNS: APNSConfig{
			KeyID:    baseCfg.APNSConfig.KeyID,
			TeamID:   baseCfg.APNSConfig.TeamID,
			BundleID: baseCfg.APNSConfig.BundleID,
			Sandbox:  baseCfg.APNSConfig.Sandbox,
		},
		SubscriptionDLQTopicID: baseCfg.SubscriptionDLQTopicID,
		NumPipelineWorkers:     baseCfg.NumPipelineWorkers,
	}

	if cfg.SubscriptionID != "" {
		cfg.PubsubConsumerConfig = messagepipeline.NewGooglePubsubConsumerDefaults(cfg.SubscriptionID)
	}

	logger.Debug("YAML config mapping complete",
		"project_id", cfg.ProjectID,
		"listen_addr", cfg.ListenAddr,
		"topic_id", cfg.TopicID,
		"subscription_id", cfg.SubscriptionID,
	)

	return cfg, nil
}
