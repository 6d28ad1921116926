package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// envPrefix is the prefix for all environment variables, e.g. RELAY_SERVER_PORT.
const envPrefix = "RELAY"

// Load reads configuration from defaults, an optional config.yaml in the
// working directory, and RELAY_-prefixed environment variables, in that
// order of increasing precedence. The result is validated before being
// returned; a service refuses to start on an invalid configuration.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Optional config file: absence is fine, a malformed file is not.
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Configure environment variables
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicitly bind every recognized key so env vars resolve even for keys
	// absent from both defaults and the config file.
	for _, key := range allKeys() {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("error binding environment variable for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	// Status code lists arrive as a space-separated string from the
	// environment; viper only splits them for us via GetStringSlice.
	codes, err := intSlice(v.GetStringSlice("retry.retryable_status_codes"))
	if err != nil {
		return nil, fmt.Errorf("invalid retry.retryable_status_codes: %w", err)
	}
	cfg.Retry.RetryableStatusCodes = codes

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults applies the documented default for every key that has one.
// database.url, crypto.key, crypto.salt and remote.host deliberately have
// no default: they must be supplied per deployment.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("remote.task_path", "/encrypted-task")
	v.SetDefault("remote.callback_path", "/task-results")

	v.SetDefault("pool.max_total", 100)
	v.SetDefault("pool.max_per_route", 20)
	v.SetDefault("pool.connect_timeout_ms", 3000)
	v.SetDefault("pool.socket_timeout_ms", 10000)

	v.SetDefault("rate_limit.max_concurrent", 10)
	v.SetDefault("rate_limit.queue_capacity", 100)
	v.SetDefault("rate_limit.timeout_ms", 500)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_interval_ms", 200)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.max_interval_ms", 5000)
	v.SetDefault("retry.retryable_status_codes", []int{429, 500, 502, 503, 504})

	v.SetDefault("pipeline.worker_count", 4)
	v.SetDefault("pipeline.queue_size", 64)

	v.SetDefault("cleanup.interval_minutes", 60)
	v.SetDefault("cleanup.error_retention_hours", 72)

	v.SetDefault("analysis.provider", "echo")
	v.SetDefault("analysis.gemini_model", "gemini-2.0-flash")
}

// allKeys enumerates every configuration key the application recognizes.
func allKeys() []string {
	return []string{
		"server.port",
		"server.log_level",
		"database.url",
		"database.auto_migrate",
		"crypto.key",
		"crypto.salt",
		"remote.host",
		"remote.port",
		"remote.task_path",
		"remote.callback_path",
		"pool.max_total",
		"pool.max_per_route",
		"pool.connect_timeout_ms",
		"pool.socket_timeout_ms",
		"rate_limit.max_concurrent",
		"rate_limit.queue_capacity",
		"rate_limit.timeout_ms",
		"retry.max_attempts",
		"retry.initial_interval_ms",
		"retry.multiplier",
		"retry.max_interval_ms",
		"retry.retryable_status_codes",
		"pipeline.worker_count",
		"pipeline.queue_size",
		"cleanup.interval_minutes",
		"cleanup.error_retention_hours",
		"analysis.provider",
		"analysis.gemini_api_key",
		"analysis.gemini_model",
		"analysis.prompt_template",
	}
}

// intSlice converts the string form viper hands back for list values.
func intSlice(raw []string) ([]int, error) {
	out := make([]int, 0, len(raw))
	for _, s := range raw {
		var n int
		if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &n); err != nil {
			return nil, fmt.Errorf("%q is not an integer", s)
		}
		out = append(out, n)
	}
	return out, nil
}
