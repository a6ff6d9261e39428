package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "thisisasecretkeythatis32charslong!!"

// setRequiredEnv sets the values that have no defaults.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SCRY_AUTH_JWT_SECRET", testSecret)
	t.Setenv("SCRY_LLM_GEMINI_API_KEY", "test-api-key")
}

func emptyConfigFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o600))
	return path
}

// TestLoadDefaults verifies that defaults are applied when only required
// values are provided.
func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load(emptyConfigFile(t))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Positive(t, cfg.Task.MaxConcurrentTasks)
	assert.GreaterOrEqual(t, cfg.Task.MinMultiInputs, 2)
	assert.Positive(t, cfg.Task.Timeout())
	assert.Positive(t, cfg.Task.Retention())
	assert.Positive(t, cfg.Task.ReapInterval())
	assert.Positive(t, cfg.Task.ProviderCallTimeout())
	assert.Empty(t, cfg.Database.URL)
	assert.Empty(t, cfg.Cache.RedisAddr)
}

// TestLoadEnvOverrides verifies SCRY_ variables take precedence over the file.
func TestLoadEnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SCRY_SERVER_PORT", "9090")
	t.Setenv("SCRY_TASK_MAX_CONCURRENT_TASKS", "7")
	t.Setenv("SCRY_TASK_CONFIDENCE_THRESHOLD", "72.5")
	t.Setenv("SCRY_CACHE_REDIS_ADDR", "localhost:6379")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "server:\n  port: 7070\n  log_level: debug\ntask:\n  max_concurrent_tasks: 2\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, 7, cfg.Task.MaxConcurrentTasks)
	assert.InDelta(t, 72.5, cfg.Task.ConfidenceThreshold, 0.0001)
	assert.Equal(t, "localhost:6379", cfg.Cache.RedisAddr)
}

func TestLoadValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing api key", env: map[string]string{"SCRY_LLM_GEMINI_API_KEY": ""}},
		{name: "short jwt secret", env: map[string]string{"SCRY_AUTH_JWT_SECRET": "short"}},
		{name: "bad log level", env: map[string]string{"SCRY_SERVER_LOG_LEVEL": "verbose"}},
		{name: "zero concurrency", env: map[string]string{"SCRY_TASK_MAX_CONCURRENT_TASKS": "0"}},
		{name: "threshold above 100", env: map[string]string{"SCRY_TASK_CONFIDENCE_THRESHOLD": "150"}},
		{name: "multi input minimum below 2", env: map[string]string{"SCRY_TASK_MIN_MULTI_INPUTS": "1"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			cfg, err := Load(emptyConfigFile(t))
			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	setRequiredEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestTaskConfigDurations(t *testing.T) {
	c := TaskConfig{TimeoutSeconds: 2, RetentionMinutes: 3, ReapIntervalSeconds: 4, RetryBaseDelayMS: 5,
		ProviderCallTimeoutSeconds: 6}

	assert.Equal(t, 2*time.Second, c.Timeout())
	assert.Equal(t, 3*time.Minute, c.Retention())
	assert.Equal(t, 4*time.Second, c.ReapInterval())
	assert.Equal(t, 5*time.Millisecond, c.RetryBaseDelay())
	assert.Equal(t, 6*time.Second, c.ProviderCallTimeout())
}
