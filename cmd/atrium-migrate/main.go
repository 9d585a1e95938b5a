package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/atrium/pkg/config"
	"github.com/platinummonkey/atrium/pkg/observability"
	"github.com/platinummonkey/atrium/pkg/service"
	"github.com/platinummonkey/atrium/pkg/storage"
)

const usage = `Usage: atrium-migrate [flags] <command>

Commands:
  up               Apply every pending migration
  down <version>   Roll back to version (0 removes everything)
  backfill         Repair canvas invariants: default canvases and orphaned cards
  status           List applied and pending migrations
`

func main() {
	timeout := flag.Duration("timeout", 10*time.Minute, "Overall deadline for the command")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger, err := observability.NewLogger(cfg.Observability.LogLevel, observability.FormatText, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := run(ctx, cfg, logger, flag.Args()); err != nil {
		cancel()
		logger.WithError(err).Fatal("Migration command failed")
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger, args []string) error {
	db, err := storage.Open(ctx, cfg.Storage())
	if err != nil {
		return err
	}
	defer db.Close()

	migrator := storage.NewMigrator(db, logger)

	switch args[0] {
	case "up":
		return migrator.Up(ctx)

	case "down":
		if len(args) < 2 {
			return fmt.Errorf("down requires a target version")
		}
		target, err := strconv.Atoi(args[1])
		if err != nil || target < 0 {
			return fmt.Errorf("invalid target version %q", args[1])
		}
		return migrator.Down(ctx, target)

	case "backfill":
		applied, err := migrator.Applied(ctx)
		if err != nil {
			return err
		}
		if !contains(applied, storage.VersionCanvases) {
			return fmt.Errorf("backfill needs migration %d; run up first", storage.VersionCanvases)
		}
		svc := service.New(db, service.Options{Logger: logger})
		report, err := svc.Backfill(ctx)
		if err != nil {
			return err
		}
		logger.WithFields(logrus.Fields{
			"workspaces_scanned": report.WorkspacesScanned,
			"canvases_created":   report.CanvasesCreated,
			"defaults_promoted":  report.DefaultsPromoted,
			"cards_reassigned":   report.CardsReassigned,
		}).Info("Backfill complete")
		return nil

	case "status":
		applied, err := migrator.Applied(ctx)
		if err != nil {
			return err
		}
		for _, m := range storage.GetMigrations() {
			state := "pending"
			if contains(applied, m.Version) {
				state = "applied"
			}
			fmt.Printf("%3d  %-8s %s\n", m.Version, state, m.Description)
		}
		return nil

	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func contains(versions []int, v int) bool {
	for _, x := range versions {
		if x == v {
			return true
		}
	}
	return false
}
