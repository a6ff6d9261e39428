package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth" validate:"required"`
	LLM       LLMConfig       `mapstructure:"llm" validate:"required"`
	Task      TaskConfig      `mapstructure:"task" validate:"required"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port                   int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel               string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds" validate:"gt=0"`
	HeartbeatSeconds       int    `mapstructure:"heartbeat_seconds" validate:"gt=0"`
}

// DatabaseConfig contains database settings. An empty URL disables
// persistence to Postgres and keeps artifacts in memory.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

// AuthConfig contains the secret used to verify bearer tokens.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key" validate:"required"`
	ModelName    string `mapstructure:"model_name" validate:"required"`
	// PromptDir optionally overrides the embedded prompt templates.
	PromptDir string `mapstructure:"prompt_dir"`
}

// TaskConfig contains the orchestration limits.
type TaskConfig struct {
	MaxConcurrentTasks         int     `mapstructure:"max_concurrent_tasks" validate:"gt=0"`
	MinMultiInputs             int     `mapstructure:"min_multi_inputs" validate:"gte=2"`
	TimeoutSeconds             int     `mapstructure:"timeout_seconds" validate:"gt=0"`
	RetentionMinutes           int     `mapstructure:"retention_minutes" validate:"gt=0"`
	ReapIntervalSeconds        int     `mapstructure:"reap_interval_seconds" validate:"gt=0"`
	CorrectionMaxRetries       int     `mapstructure:"correction_max_retries" validate:"gte=0"`
	RetryBaseDelayMS           int     `mapstructure:"retry_base_delay_ms" validate:"gt=0"`
	ConfidenceThreshold        float64 `mapstructure:"confidence_threshold" validate:"gte=0,lte=100"`
	ProviderCallTimeoutSeconds int     `mapstructure:"provider_call_timeout_seconds" validate:"gt=0"`
}

// Timeout returns the per-task run budget.
func (c TaskConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Retention returns how long a task is kept after creation.
func (c TaskConfig) Retention() time.Duration {
	return time.Duration(c.RetentionMinutes) * time.Minute
}

// ReapInterval returns the reaper tick period.
func (c TaskConfig) ReapInterval() time.Duration {
	return time.Duration(c.ReapIntervalSeconds) * time.Second
}

// RetryBaseDelay returns the first correction retry delay.
func (c TaskConfig) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMS) * time.Millisecond
}

// ProviderCallTimeout bounds a single provider call.
func (c TaskConfig) ProviderCallTimeout() time.Duration {
	return time.Duration(c.ProviderCallTimeoutSeconds) * time.Second
}

// CacheConfig selects the result cache backend. An empty RedisAddr selects
// the in-memory cache.
type CacheConfig struct {
	RedisAddr  string `mapstructure:"redis_addr"`
	TTLMinutes int    `mapstructure:"ttl_minutes" validate:"gte=0"`
}

// TTL returns the Redis entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}

// TelemetryConfig configures tracing export. An empty endpoint disables it.
type TelemetryConfig struct {
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}
