package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/AlexYaroshenko/hades/internal/app"
	"github.com/AlexYaroshenko/hades/internal/config"
	"github.com/AlexYaroshenko/hades/internal/logging"
	"github.com/AlexYaroshenko/hades/internal/metrics"
	"github.com/AlexYaroshenko/hades/internal/sentryutil"
)

func main() {
	configPath := flag.String("config", os.Getenv("HADES_CONFIG"), "path to config yaml (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		boot := logging.New(config.LogConfig{Level: "error"})
		boot.Fatal().Err(err).Msg("config")
	}
	log := logging.New(cfg.Log)

	sentryutil.Init(cfg.Sentry, log)
	defer sentryutil.Flush()
	metrics.MustRegister()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log, defaultHandlers)
	if err != nil {
		sentryutil.CaptureError(err, map[string]string{"component": "startup"})
		log.Error().Err(err).Msg("startup failed")
		sentryutil.Flush()
		os.Exit(1)
	}
	defer a.Close()

	log.Info().Str("mode", cfg.Poll.Mode).Msg("hades started")
	if err := a.Run(ctx); err != nil {
		sentryutil.CaptureError(err, map[string]string{"component": "run"})
		log.Error().Err(err).Msg("stopped with error")
		_ = a.Close()
		sentryutil.Flush()
		os.Exit(1)
	}
	log.Info().Msg("bye")
}
