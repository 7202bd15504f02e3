package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/dochighlight/internal/api"
	"github.com/dgallion1/dochighlight/internal/config"
	"github.com/dgallion1/dochighlight/internal/taxonomy"
	"github.com/dgallion1/dochighlight/internal/viewer"
)

func main() {
	cfg := config.Load()

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Shared layout state.
	stats := viewer.NewPassStats(cfg.StatsWindow)
	registry := viewer.NewRegistry(cfg.ViewTTL, log)
	registry.Start(ctx, cfg.CleanupInterval)

	// Entity type catalogue is optional.
	var tax api.TaxonomySource
	if cfg.TaxonomyURL != "" {
		client, err := taxonomy.NewClient(taxonomy.Config{
			BaseURL:     cfg.TaxonomyURL,
			IndexPath:   cfg.TaxonomyIndexPath,
			Concurrency: cfg.TaxonomyConcurrency,
			CacheTTL:    cfg.TaxonomyCacheTTL,
			Log:         log,
		})
		if err != nil {
			log.Error("invalid taxonomy configuration", "error", err)
			os.Exit(1)
		}
		tax = client
	}

	// Initialize HTTP server.
	srv := api.NewServer(registry, stats, tax, log, cfg)

	httpServer := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     srv,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 60 * time.Second,
		// No WriteTimeout: stream connections are long lived.
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		registry.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	log.Info("starting dochighlight", "port", cfg.Port, "taxonomy", cfg.TaxonomyURL)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
