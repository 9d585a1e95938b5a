package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/atrium/pkg/config"
	"github.com/platinummonkey/atrium/pkg/invites"
	"github.com/platinummonkey/atrium/pkg/observability"
	"github.com/platinummonkey/atrium/pkg/service"
	"github.com/platinummonkey/atrium/pkg/storage"
)

var runOnce = flag.Bool("run-once", false, "Sweep once and exit (for cron jobs and testing)")

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("Invite sweeper exited")
	}
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx := context.Background()

	db, err := storage.Open(ctx, cfg.Storage())
	if err != nil {
		return err
	}
	defer db.Close()

	var leaser storage.Leaser
	if cfg.Redis.URL != "" {
		client, err := storage.NewRedisClient(ctx, cfg.RedisClient())
		if err != nil {
			return err
		}
		defer client.Close()
		leaser = storage.NewRedisLeaser(client, cfg.Redis.KeyPrefix+":lease:")
	}

	svc := service.New(db, service.Options{InviteValidity: cfg.Invites.Validity, Logger: logger})
	sweeper := invites.NewSweeper(svc.Invites(), leaser, cfg.Sweeper(), logger)

	// Run once mode
	if *runOnce {
		expired, ran, err := sweeper.RunOnce(ctx)
		if err != nil {
			return err
		}
		logger.WithFields(logrus.Fields{"expired": expired, "ran": ran}).Info("Sweep finished")
		return nil
	}

	// Scheduled mode
	if err := sweeper.Start(); err != nil {
		return err
	}
	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		sweeper.Stop(ctx)
		return nil
	})
	return shutdown.WaitForShutdown(ctx)
}
