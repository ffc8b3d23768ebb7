// Package bootstrap provides dependency initialization for the slideshow API.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/slidekit/slideshow-api/internal/config"
	"github.com/slidekit/slideshow-api/internal/filtergraph"
	"github.com/slidekit/slideshow-api/internal/notify"
	"github.com/slidekit/slideshow-api/internal/pipeline"
	"github.com/slidekit/slideshow-api/internal/slideshow"
	"github.com/slidekit/slideshow-api/internal/storage"
	"github.com/slidekit/slideshow-api/internal/task"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	SlideshowService *slideshow.Service
	Webhook          *notify.Webhook // nil when no webhook is configured
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	var registryOpts []task.RegistryOption
	var webhook *notify.Webhook
	if cfg.WebhookEnabled() {
		webhook, err = notify.NewWebhook(cfg.WebhookURL, logger,
			notify.WithMaxRetries(cfg.WebhookMaxRetries),
		)
		if err != nil {
			return nil, fmt.Errorf("create webhook notifier: %w", err)
		}
		webhook.Start(ctx)
		registryOpts = append(registryOpts, task.WithNotifier(webhook))
		logger.Info("webhook notifier configured",
			slog.String("url", cfg.WebhookURL),
			slog.Int("max_retries", cfg.WebhookMaxRetries),
		)
	}

	registry := task.NewRegistry(logger, registryOpts...)
	runner := pipeline.NewRunner(cfg.FFmpegPath, logger)

	if err := os.MkdirAll(cfg.TempDir, 0750); err != nil {
		return nil, fmt.Errorf("create temp directory: %w", err)
	}

	svc := slideshow.NewService(store, registry, runner, logger,
		slideshow.WithGraphOptions(filtergraph.Options{
			Width:       cfg.CanvasWidth,
			Height:      cfg.CanvasHeight,
			PixelFormat: cfg.PixelFormat,
		}),
		slideshow.WithTempDir(cfg.TempDir),
	)

	return &Dependencies{
		SlideshowService: svc,
		Webhook:          webhook,
	}, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("root_dir", localStore.RootDir()),
	)
	return localStore, nil
}
