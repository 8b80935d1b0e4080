// Package app wires configuration into a ready pipeline for the binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/dharsanguruparan/imagefilter/internal/config"
	"github.com/dharsanguruparan/imagefilter/internal/database"
	"github.com/dharsanguruparan/imagefilter/internal/pipeline"
	"github.com/dharsanguruparan/imagefilter/internal/processing"
	"github.com/dharsanguruparan/imagefilter/internal/queue"
	"github.com/dharsanguruparan/imagefilter/internal/repository"
	"github.com/dharsanguruparan/imagefilter/internal/s3storage"
	"github.com/dharsanguruparan/imagefilter/internal/spreadsheet"
	"github.com/dharsanguruparan/imagefilter/internal/storage"
	"github.com/dharsanguruparan/imagefilter/internal/vision"
)

// App holds the wired pipeline and the resources it owns.
type App struct {
	Config   *config.Config
	Log      zerolog.Logger
	Pipeline *pipeline.Pipeline
	// DB is nil in memory mode.
	DB *pgxpool.Pool
	// Pool is set in inline queue mode and already started.
	Pool *processing.Pool
	// Redis is the queue broker connection used for readiness, nil in inline mode.
	Redis *redis.Client

	closers []func()
}

// Build connects the backing services named by cfg and returns the wired
// pipeline. In inline mode the worker pool runs until ctx is cancelled.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	a := &App{Config: cfg, Log: log}

	store, blobs, err := a.stores(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	schema, err := Schema(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	var submitter pipeline.Submitter
	switch cfg.QueueMode {
	case config.QueueInline:
		a.Pool = processing.New(cfg.WorkerConcurrency, log)
		submitter = a.Pool
	default:
		client := asynq.NewClient(RedisOpt(cfg))
		a.closers = append(a.closers, func() { _ = client.Close() })
		submitter = queue.NewEnqueuer(client)
		a.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		a.closers = append(a.closers, func() { _ = a.Redis.Close() })
	}

	a.Pipeline = pipeline.New(pipeline.Options{
		Store:           store,
		Blobs:           blobs,
		Submitter:       submitter,
		Classifier:      Classifier(cfg),
		Schema:          schema,
		ExcludedLocales: cfg.ExcludedLocales,
		BatchSize:       cfg.BatchSize,
		URLTTL:          cfg.SignedURLTTL,
		Logger:          log,
	})
	if a.Pool != nil {
		a.Pool.Start(ctx, a.Pipeline.Handle)
	}
	return a, nil
}

func (a *App) stores(ctx context.Context) (pipeline.Store, pipeline.Blobs, error) {
	if a.Config.StoreMode == config.StoreMemory {
		a.Log.Warn().Msg("using in-memory stores; nothing survives a restart")
		return storage.NewMemoryStore(), storage.NewMemoryBlobs(), nil
	}
	pool, err := database.Connect(ctx, a.Config.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	a.DB = pool
	a.closers = append(a.closers, pool.Close)

	blobs, err := s3storage.New(a.Config)
	if err != nil {
		return nil, nil, fmt.Errorf("init storage: %w", err)
	}
	if err := blobs.EnsureBuckets(ctx); err != nil {
		return nil, nil, fmt.Errorf("ensure buckets: %w", err)
	}
	return repository.New(pool), blobs, nil
}

// Ready reports whether the database and the queue broker answer. Backends
// that are not configured are skipped.
func (a *App) Ready(ctx context.Context) error {
	if a.DB != nil {
		if err := database.Ping(ctx, a.DB); err != nil {
			return err
		}
	}
	if a.Redis != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := a.Redis.Ping(pingCtx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
	}
	return nil
}

// Close releases everything Build opened, newest first.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// RedisOpt builds the asynq connection options.
func RedisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

// Classifier returns the text-detection client selected by cfg.
func Classifier(cfg *config.Config) vision.Client {
	if cfg.VisionFake {
		return vision.NewFake()
	}
	return vision.NewRESTClient(cfg.VisionEndpoint, cfg.VisionAPIKey, cfg.VisionTimeout)
}

// Schema loads the configured column schema, or the embedded default.
func Schema(cfg *config.Config) (*spreadsheet.Schema, error) {
	if cfg.SchemaPath == "" {
		return spreadsheet.DefaultSchema(), nil
	}
	schema, err := spreadsheet.LoadSchema(cfg.SchemaPath)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	return schema, nil
}
