// Package config defines the global configuration structure for LotWatch.
// Configuration is loaded once at process initialization and is immutable
// thereafter. It follows 12-Factor App principles by strictly separating
// code from configuration.
//
// Values are resolved from the OS environment, with a .env file as fallback.
// Any missing required value or invalid format causes the application to exit
// immediately on startup (fail fast).
package config

import "time"

// Config is the top-level configuration struct for the LotWatch service.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"lotwatch"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Server    ServerConfig
	Database  DatabaseConfig
	Relay     RelayConfig
	Timelapse TimelapseConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port               string        `envconfig:"PORT" default:"8080"`
	CorsAllowedOrigins []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	RequestTimeout     time.Duration `envconfig:"REQUEST_TIMEOUT" default:"29s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL string `envconfig:"DATABASE_URL" validate:"required"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// RelayConfig holds settings for the external streaming relay that serves the
// live camera feeds and exposes the per-camera source endpoints.
type RelayConfig struct {
	BaseURL string        `envconfig:"RELAY_BASE_URL" validate:"required,url"`
	Timeout time.Duration `envconfig:"RELAY_TIMEOUT" default:"10s"`
}

// TimelapseConfig holds the capture pipeline parameters that are fixed per
// deployment. Operator-editable scheduler settings (capture cadence, bucket
// period, enabled cameras) live in the settings document instead, so they can
// change without a restart.
type TimelapseConfig struct {
	Root           string        `envconfig:"TIMELAPSE_ROOT" default:"storage/timelapse"`
	FFmpegPath     string        `envconfig:"FFMPEG_PATH" default:"ffmpeg"`
	TickInterval   time.Duration `envconfig:"TIMELAPSE_TICK_INTERVAL" default:"5s"`
	CaptureTimeout time.Duration `envconfig:"TIMELAPSE_CAPTURE_TIMEOUT" default:"30s"`
	EncodeTimeout  time.Duration `envconfig:"TIMELAPSE_ENCODE_TIMEOUT" default:"15m"`
	FrameRate      int           `envconfig:"TIMELAPSE_FRAME_RATE" default:"30" validate:"min=1"`
	CleanupGrace   time.Duration `envconfig:"TIMELAPSE_CLEANUP_GRACE" default:"2s"`
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
