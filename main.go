// Licensed under the MIT License

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"gorsstag/internal/api"
	"gorsstag/internal/config"
	"gorsstag/internal/feed"
	"gorsstag/internal/ingest"
	"gorsstag/internal/ogimage"
	"gorsstag/internal/poller"
	"gorsstag/internal/storage"
	"gorsstag/internal/tagger"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env if present; real env vars take precedence
	if err := godotenv.Load(); err == nil {
		log.Printf("Loaded configuration from .env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}
	if len(cfg.Feeds) == 0 {
		log.Fatal("No feeds configured: set FEED_URLS or FEEDS_FILE")
	}

	// Initialize persistent storage
	store, err := storage.NewStorage(cfg.DataDir)
	if err != nil {
		log.Fatal("Failed to initialize storage:", err)
	}
	defer store.Close()

	// Build the ingestion pipeline
	fetcher := feed.NewFetcher(cfg.FetchTimeout, cfg.FetchRetries)
	parser := feed.NewParser(cfg.MaxEntriesPerFeed)
	articleTagger := tagger.New(cfg.Tagger)
	images := ogimage.NewResolver(cfg.EnableOGImage, cfg.OGImageTimeout)
	job := ingest.New(fetcher, parser, articleTagger, images, store, cfg.Feeds)

	// Start background ingestion
	backgroundPoller := poller.New(job, cfg.PollInterval)
	backgroundPoller.Start()

	// Initialize API server
	server := api.NewServer(store, cfg)

	log.Printf("Starting article server on port %d", cfg.Port)
	log.Printf("Data directory: %s", cfg.DataDir)
	log.Printf("Configured feeds: %d", len(cfg.Feeds))
	log.Printf("Ingestion interval: %v", cfg.PollInterval)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		<-sigChan
		log.Println("Received shutdown signal, stopping services...")
		backgroundPoller.Stop()
		if report := backgroundPoller.LastRun(); report != nil {
			log.Printf("Last ingestion run: %d feeds polled, %d articles added, %d duplicates skipped",
				report.FeedsPolled, report.ArticlesAdded, report.Duplicates)
		}
		cancel()
	}()

	if err := server.StartWithContext(ctx); err != nil && err != context.Canceled {
		log.Fatal("Failed to start server:", err)
	}
}
