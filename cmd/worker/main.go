// Command worker executes queued pipeline tasks from Redis.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/imagefilter/internal/app"
	"github.com/dharsanguruparan/imagefilter/internal/config"
	"github.com/dharsanguruparan/imagefilter/internal/database"
	"github.com/dharsanguruparan/imagefilter/internal/logging"
	"github.com/dharsanguruparan/imagefilter/internal/metrics"
	"github.com/dharsanguruparan/imagefilter/internal/queue"
	"github.com/dharsanguruparan/imagefilter/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("info", "json", "worker")
		boot.Fatal().Err(err).Msg("load config")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat, "worker")
	if cfg.QueueMode != config.QueueAsynq || cfg.StoreMode != config.StorePostgres {
		log.Fatal().Str("queue", cfg.QueueMode).Str("store", cfg.StoreMode).
			Msg("the worker needs the asynq queue and the postgres store")
	}

	if err := database.Migrate(cfg.DatabaseURL, log); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}
	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build app")
	}
	defer a.Close()

	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics listener stopped")
		}
	}()

	server := asynq.NewServer(app.RedisOpt(cfg), asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues:      queue.Queues,
		Logger:      logging.Asynq{L: log},
	})
	processor := worker.NewProcessor(a.Pipeline, log)
	mux := processor.Handler()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	log.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("worker starting")
	if err := server.Run(mux); err != nil {
		log.Error().Err(err).Msg("worker stopped")
		a.Close()
		os.Exit(1)
	}
}
