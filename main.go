package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/soocke/guard-overlay-go/app"
	"github.com/soocke/guard-overlay-go/config"
	"github.com/soocke/guard-overlay-go/debug"
)

func main() {
	cfgPath := flag.String("config", "config.json", "path to the JSON config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	logger := NewLogger(ParseLevel(cfg.LogLevel, cfg.Debug))
	if err != nil {
		logger.Warn("config load failed, using defaults", "path", *cfgPath, "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if cfg.Debug {
		debug.StartGoroutineLogger(ctx, 5*time.Second, logger)
		debug.StartMemLogger(ctx, 10*time.Second, logger)
	}

	c, err := app.BuildContainer(ctx, cfg, *cfgPath, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	if err := app.NewApp(c).Run(ctx); err != nil {
		logger.Error("shutdown", "error", err)
		os.Exit(1)
	}
}
