// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrInvalidCanvas is returned when the canvas dimensions are not positive.
	ErrInvalidCanvas = errors.New("config: CANVAS_WIDTH and CANVAS_HEIGHT must be positive")
	// ErrS3BucketRequired is returned when S3_REGION is set without S3_BUCKET.
	ErrS3BucketRequired = errors.New("config: S3_BUCKET is required when S3_REGION is set")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Transcoder settings
	FFmpegPath   string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	CanvasWidth  int    `env:"CANVAS_WIDTH, default=1280" json:"canvas_width"`
	CanvasHeight int    `env:"CANVAS_HEIGHT, default=720" json:"canvas_height"`
	PixelFormat  string `env:"PIXEL_FORMAT, default=yuv420p" json:"pixel_format"`

	// Storage settings
	TempDir            string `env:"TEMP_DIR, default=/tmp/slideshow" json:"temp_dir"`
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Webhook settings
	WebhookURL        string `env:"WEBHOOK_URL" json:"webhook_url,omitempty"`
	WebhookMaxRetries int    `env:"WEBHOOK_MAX_RETRIES, default=3" json:"webhook_max_retries"`

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// WebhookEnabled returns true if a webhook URL is configured.
func (c *Config) WebhookEnabled() bool {
	return c.WebhookURL != ""
}

// Load reads configuration from environment variables using go-envconfig.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.CanvasWidth <= 0 || c.CanvasHeight <= 0 {
		return ErrInvalidCanvas
	}
	if c.S3Region != "" && c.S3Bucket == "" {
		return ErrS3BucketRequired
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, FFmpegPath: %s, Canvas: %dx%d, PixelFormat: %s, TempDir: %s, S3Bucket: %s, S3Region: %s, WebhookURL: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.FFmpegPath,
		c.CanvasWidth,
		c.CanvasHeight,
		c.PixelFormat,
		c.TempDir,
		c.S3Bucket,
		c.S3Region,
		c.WebhookURL,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
