package poller

import (
	"testing"
	"time"

	"gorsstag/internal/config"
	"gorsstag/internal/feed"
	"gorsstag/internal/ingest"
	"gorsstag/internal/ogimage"
	"gorsstag/internal/storage"
	"gorsstag/internal/tagger"
)

func newTestPoller(t *testing.T, interval time.Duration) *Poller {
	t.Helper()

	store, err := storage.NewStorage(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	// No feeds configured: each run completes immediately without network access
	job := ingest.New(
		feed.NewFetcher(time.Second, 1),
		feed.NewParser(50),
		tagger.New(config.TaggerConfig{MaxTags: 8, MaxTagLength: 40, MaxRetries: 1, Timeout: time.Second}),
		ogimage.NewResolver(false, time.Second),
		store,
		nil,
	)

	return New(job, interval)
}

func TestPoller_StartStop(t *testing.T) {
	p := newTestPoller(t, 10*time.Millisecond)

	p.Start()
	// Starting twice is a no-op
	p.Start()

	deadline := time.Now().Add(2 * time.Second)
	for p.LastRun() == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if p.LastRun() == nil {
		t.Fatal("Expected at least one completed run")
	}

	p.Stop()
	// Stopping twice is a no-op
	p.Stop()
}

func TestPoller_LastRunReport(t *testing.T) {
	p := newTestPoller(t, 10*time.Millisecond)

	p.Start()
	defer p.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for p.LastRun() == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	report := p.LastRun()
	if report == nil {
		t.Fatal("Expected a run report")
	}
	if report.FeedsPolled != 0 || report.ArticlesAdded != 0 {
		t.Errorf("Expected empty run for empty feed list, got %+v", report)
	}
	if report.FinishedAt.Before(report.StartedAt) {
		t.Error("Expected FinishedAt to be at or after StartedAt")
	}
}
