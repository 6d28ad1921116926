package config

import "fmt"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
// Both services (coordinator and executor) share this structure; sections a
// service does not use are loaded with defaults and ignored.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"  validate:"required"`
	Crypto    CryptoConfig    `mapstructure:"crypto"    validate:"required"`
	Remote    RemoteConfig    `mapstructure:"remote"    validate:"required"`
	Pool      PoolConfig      `mapstructure:"pool"      validate:"required"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" validate:"required"`
	Retry     RetryConfig     `mapstructure:"retry"     validate:"required"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"  validate:"required"`
	Cleanup   CleanupConfig   `mapstructure:"cleanup"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`

	// AutoMigrate runs the embedded schema migrations at startup. Disable it
	// when migrations are managed out-of-band.
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// CryptoConfig carries the shared key material for the payload codec.
// Both relay parties must be configured with identical values or neither
// side can read the other's ciphertext. Never logged.
type CryptoConfig struct {
	Key  string `mapstructure:"key"  validate:"required"`
	Salt string `mapstructure:"salt" validate:"required"`
}

// RemoteConfig addresses the peer service: the executor when loaded by the
// coordinator, the coordinator when loaded by the executor.
type RemoteConfig struct {
	Host         string `mapstructure:"host"          validate:"required"`
	Port         int    `mapstructure:"port"          validate:"required,gt=0,lt=65536"`
	TaskPath     string `mapstructure:"task_path"     validate:"required"`
	CallbackPath string `mapstructure:"callback_path" validate:"required"`
}

// TaskURL returns the absolute URL tasks are shipped to.
func (r RemoteConfig) TaskURL() string {
	return fmt.Sprintf("http://%s:%d%s", r.Host, r.Port, r.TaskPath)
}

// CallbackURL returns the absolute URL result callbacks are posted to.
func (r RemoteConfig) CallbackURL() string {
	return fmt.Sprintf("http://%s:%d%s", r.Host, r.Port, r.CallbackPath)
}

// PoolConfig bounds the outbound HTTP connection pool.
type PoolConfig struct {
	MaxTotal         int `mapstructure:"max_total"          validate:"required,gt=0"`
	MaxPerRoute      int `mapstructure:"max_per_route"      validate:"required,gt=0"`
	ConnectTimeoutMs int `mapstructure:"connect_timeout_ms" validate:"required,gt=0"`
	SocketTimeoutMs  int `mapstructure:"socket_timeout_ms"  validate:"required,gt=0"`
}

// RateLimitConfig bounds how many outbound calls may be in flight at once
// and how long a caller may wait for admission.
type RateLimitConfig struct {
	MaxConcurrent int `mapstructure:"max_concurrent" validate:"required,gt=0"`
	QueueCapacity int `mapstructure:"queue_capacity" validate:"gte=0"`
	TimeoutMs     int `mapstructure:"timeout_ms"     validate:"required,gt=0"`
}

// RetryConfig shapes the exponential backoff applied to transient outbound
// failures.
type RetryConfig struct {
	MaxAttempts          int     `mapstructure:"max_attempts"        validate:"required,gt=0"`
	InitialIntervalMs    int     `mapstructure:"initial_interval_ms" validate:"required,gt=0"`
	Multiplier           float64 `mapstructure:"multiplier"          validate:"required,gte=1"`
	MaxIntervalMs        int     `mapstructure:"max_interval_ms"     validate:"required,gt=0"`
	RetryableStatusCodes []int   `mapstructure:"retryable_status_codes" validate:"required,min=1"`
}

// PipelineConfig sizes the executor's background processing pool.
type PipelineConfig struct {
	WorkerCount int `mapstructure:"worker_count" validate:"required,gt=0"`
	QueueSize   int `mapstructure:"queue_size"   validate:"required,gt=0"`
}

// CleanupConfig controls the duplicate sweep and failed-record retention.
// An IntervalMinutes of zero disables the periodic sweep; the on-demand
// admin endpoint stays available either way.
type CleanupConfig struct {
	IntervalMinutes     int `mapstructure:"interval_minutes"      validate:"gte=0"`
	ErrorRetentionHours int `mapstructure:"error_retention_hours" validate:"required,gt=0"`
}

// AnalysisConfig selects and configures the analyzer the executor invokes
// between decryption and re-encryption. The coordinator ignores it.
type AnalysisConfig struct {
	Provider string `mapstructure:"provider" validate:"required,oneof=echo gemini"`

	// GeminiAPIKey authenticates the gemini provider. Required only when
	// that provider is selected. Never logged.
	GeminiAPIKey string `mapstructure:"gemini_api_key" validate:"required_if=Provider gemini"`
	GeminiModel  string `mapstructure:"gemini_model"   validate:"required_if=Provider gemini"`

	// PromptTemplate is an optional instruction prefix prepended to every
	// analysis request.
	PromptTemplate string `mapstructure:"prompt_template"`
}
