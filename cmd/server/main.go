// Command server runs the HTTP API. With IMAGEFILTER_QUEUE_MODE=inline it also
// executes pipeline tasks in-process.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dharsanguruparan/imagefilter/internal/api"
	"github.com/dharsanguruparan/imagefilter/internal/app"
	"github.com/dharsanguruparan/imagefilter/internal/config"
	"github.com/dharsanguruparan/imagefilter/internal/database"
	"github.com/dharsanguruparan/imagefilter/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("info", "json", "server")
		boot.Fatal().Err(err).Msg("load config")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat, "server")

	if cfg.StoreMode == config.StorePostgres {
		if err := database.Migrate(cfg.DatabaseURL, log); err != nil {
			log.Fatal().Err(err).Msg("migrate database")
		}
	}
	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("build app")
	}
	defer a.Close()

	srv := api.New(cfg, a.Pipeline, a.Ready, log)
	if err := srv.Run(ctx); err != nil {
		log.Error().Err(err).Msg("server stopped")
		a.Close()
		os.Exit(1)
	}
}
