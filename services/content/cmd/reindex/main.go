// Command reindex rebuilds the vector index from processed content records.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"spacey/internal/util"
	"spacey/services/content/internal/app"
	"spacey/services/content/internal/config"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "reindex: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("reindex", flag.ContinueOnError)
	configPath := fs.String("config", config.ConfigPath, "path to the content service config")
	userID := fs.String("user", "", "only reindex records owned by this user")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, cleanup := util.InitLogger(cfg.LogLevel, "reindex", cfg.LogsDir)
	if cleanup != nil {
		defer cleanup()
	}

	// Workers are not started; queued jobs stay with the running service.
	appCore, err := app.Build(cfg, logger)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer appCore.Close()

	report, err := appCore.Reindex(ctx, *userID)
	logger.Info("reindex finished",
		"records", report.Records,
		"chunks", report.Chunks,
		"failed", report.Failed,
	)
	if err != nil {
		return fmt.Errorf("reindex incomplete: %w", err)
	}
	return nil
}
