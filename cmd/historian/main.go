// cmd/historian is an asynchronous historian service that pops room events
// from a Redis queue and persists them to PostgreSQL.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/pricecheck/internal/cache"
	"github.com/jason-s-yu/pricecheck/internal/config"
	"github.com/jason-s-yu/pricecheck/internal/database"
	"github.com/jason-s-yu/pricecheck/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

func main() {
	cfg := &config.Historian{}
	cmd := config.NewHistorianCmd(cfg, version, run)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, cfg *config.Historian) error {
	logger := config.NewLogger(cfg.LogFormat, cfg.Verbose)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer rdb.Close()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, database.RoomEventsSchema); err != nil {
		return err
	}

	svc := historian.New(rdb, database.NewEventArchive(pool), historian.Config{
		Queue:      cfg.EventQueue,
		BatchSize:  cfg.BatchSize,
		FlushEvery: cfg.FlushInterval,
	}, logger)

	if err := svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("historian exited: %w", err)
	}
	return nil
}
