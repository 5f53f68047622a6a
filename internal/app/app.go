// Package app builds the object graph shared by the CLI, the Lambda
// function and the HTTP trigger server.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"ata-pipeline/internal/blob"
	"ata-pipeline/internal/config"
	"ata-pipeline/internal/fetch"
	"ata-pipeline/internal/metrics"
	"ata-pipeline/internal/pipeline"
	"ata-pipeline/internal/storage/postgres"

	zlog "github.com/rs/zerolog/log"
)

// Options override how the object store is reached.
type Options struct {
	// SourceDir reads <SourceDir>/<bucket>/<key> from disk instead of S3.
	SourceDir string
}

// App owns long-lived resources: the database pool, the metrics
// registry and the runner built on them.
type App struct {
	Config  config.Config
	Metrics *metrics.Metrics
	Runner  *pipeline.Runner

	db *sql.DB
}

// New
// ---
// 1) stage parameters (PIPELINE_CONFIG overlay on the defaults)
// 2) object store: S3, or a local directory when opts.SourceDir is set
// 3) postgres pool + event writer
// 4) runner
func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	p, err := config.LoadPipeline(cfg.PipelineConfig)
	if err != nil {
		return nil, err
	}
	m := metrics.New()

	var store blob.Store
	if opts.SourceDir != "" {
		store = blob.NewDir(opts.SourceDir)
		zlog.Info().Str("dir", opts.SourceDir).Msg("reading events from local directory")
	} else {
		client, err := blob.NewS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		store = blob.NewS3Store(client, cfg, m)
	}

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	return &App{
		Config:  cfg,
		Metrics: m,
		Runner: pipeline.NewRunner(
			fetch.New(store, m),
			postgres.NewEventWriter(db, cfg.EventsTable, m),
			p,
			cfg.BucketPrefix,
			cfg.Concurrency,
			m,
		),
		db: db,
	}, nil
}

// PushMetrics sends the registry to PUSHGATEWAY_URL, if set. Failures
// are logged, not returned.
func (a *App) PushMetrics(ctx context.Context, job string) {
	if err := a.Metrics.Push(ctx, a.Config.PushgatewayURL, job); err != nil {
		zlog.Warn().Err(err).Msg("metrics push failed")
	}
}

// Close releases the database pool.
func (a *App) Close() error {
	if err := a.db.Close(); err != nil {
		return fmt.Errorf("close postgres: %w", err)
	}
	return nil
}
