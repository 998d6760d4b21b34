package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"spacey/internal/util"
	"spacey/services/content/internal/app"
	"spacey/services/content/internal/config"
	"spacey/services/content/internal/server"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, cleanup := util.InitLogger(cfg.LogLevel, "content", cfg.LogsDir)
	if cleanup != nil {
		defer cleanup()
	}

	appCore, err := app.Build(cfg, logger)
	if err != nil {
		util.Fatal("failed to init app", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := appCore.Start(ctx); err != nil {
		util.Fatal("failed to start workers", "err", err)
	}

	httpServer, err := server.New(server.Config{
		App:            appCore,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})
	if err != nil {
		util.Fatal("failed to init server", "err", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", "err", err)
		}
	}()

	slog.Info("content server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "err", err)
	}
	if err := appCore.Close(); err != nil {
		logger.Error("close app", "err", err)
	}
	slog.Info("content server stopped")
}
