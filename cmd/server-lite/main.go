// Package main provides the standalone entry point of the prediction service.
// It needs no Postgres or Redis: feedback lives in SQLite under the data
// directory and explanations are cached in memory.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hear-ci-prediction-service/internal/app"
	"github.com/hear-ci-prediction-service/internal/config"
	"github.com/hear-ci-prediction-service/internal/feedback"
)

func main() {
	cfg := config.LoadLiteConfig()

	log.Printf("Starting HEAR CI prediction service (lite) on %s:%d", cfg.Host, cfg.Port)
	log.Printf("Data directory: %s", cfg.DataDir)

	if err := cfg.EnsureDataDir(); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	store, err := feedback.NewSQLiteStore(cfg.FeedbackDBPath())
	if err != nil {
		log.Fatalf("Failed to open feedback store: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.New(ctx, cfg.DomainConfig(), app.WithoutDatabase(), app.WithFeedbackStore(store))
	if err != nil {
		store.Close()
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer application.Close()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	if err := application.Run(ctx); err != nil {
		log.Printf("Server failed: %v", err)
		return
	}

	log.Println("HEAR CI prediction service (lite) stopped")
}
