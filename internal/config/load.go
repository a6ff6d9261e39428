package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g.
// SCRY_TASK_MAX_CONCURRENT_TASKS.
const EnvPrefix = "SCRY"

var defaults = map[string]any{
	"server.port":                        8080,
	"server.log_level":                   "info",
	"server.shutdown_timeout_seconds":    10,
	"server.heartbeat_seconds":           15,
	"llm.model_name":                     "gemini-2.0-flash",
	"task.max_concurrent_tasks":          4,
	"task.min_multi_inputs":              2,
	"task.timeout_seconds":               300,
	"task.retention_minutes":             60,
	"task.reap_interval_seconds":         60,
	"task.correction_max_retries":        3,
	"task.retry_base_delay_ms":           500,
	"task.confidence_threshold":          60.0,
	"task.provider_call_timeout_seconds": 60,
	"cache.ttl_minutes":                  1440,
	"telemetry.service_name":             "scry-notes",
}

// Load configuration from environment variables and optionally a config file.
// Environment variables take precedence over values from the file. When
// configFile is empty, ./config.yaml is read if present.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only resolves keys viper already knows about.
	for _, key := range []string{"database.url", "auth.jwt_secret", "llm.gemini_api_key", "llm.prompt_dir",
		"cache.redis_addr", "telemetry.otlp_endpoint"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the struct tags on cfg.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}
