package ingest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gorsstag/internal/feed"
	"gorsstag/internal/models"
	"gorsstag/internal/ogimage"
	"gorsstag/internal/storage"
)

const testFeedDoc = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Test Feed</title>
    <item>
      <title>Linked Article</title>
      <link>https://a.example.com/story</link>
      <description>A story with a link.</description>
      <pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate>
    </item>
    <item>
      <title>Linkless Article</title>
      <description>No link, cannot be stored.</description>
    </item>
  </channel>
</rss>`

// stubTagger returns fixed tags, or an error when failing is set. It stands
// in for a tagging provider whose retries are already exhausted.
type stubTagger struct {
	tags    []string
	failing bool
	calls   int
}

func (s *stubTagger) Name() string { return "stub" }

func (s *stubTagger) Tag(ctx context.Context, title, summary string) ([]string, error) {
	s.calls++
	if s.failing {
		return nil, errors.New("tagging service down")
	}
	return s.tags, nil
}

func newTestJob(t *testing.T, feedURL string, tag *stubTagger) (*Job, storage.Storage) {
	t.Helper()

	store, err := storage.NewStorage(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	fetcher := feed.NewFetcher(5*time.Second, 1)
	parser := feed.NewParser(50)
	images := ogimage.NewResolver(false, time.Second)
	feeds := []models.FeedConfig{{URL: feedURL, Name: "Test Feed"}}

	return New(fetcher, parser, tag, images, store, feeds), store
}

func TestJob_EndToEnd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testFeedDoc))
	}))
	defer server.Close()

	tag := &stubTagger{tags: []string{"politics", "energy"}}
	job, store := newTestJob(t, server.URL, tag)

	report, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// The linkless entry is dropped during parsing, not stored and not fatal
	if report.ArticlesAdded != 1 {
		t.Errorf("Expected 1 article added, got %d", report.ArticlesAdded)
	}
	if report.FeedsFailed != 0 {
		t.Errorf("Expected no failed feeds, got %d", report.FeedsFailed)
	}
	if tag.calls != 1 {
		t.Errorf("Expected exactly one tagging call, got %d", tag.calls)
	}

	articles, err := store.ListAll(10, 0)
	if err != nil {
		t.Fatalf("Failed to list articles: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("Expected 1 stored article, got %d", len(articles))
	}
	if articles[0].Link != "https://a.example.com/story" {
		t.Errorf("Unexpected stored link: %s", articles[0].Link)
	}
	if articles[0].Source != "Test Feed" {
		t.Errorf("Unexpected source: %s", articles[0].Source)
	}
	if len(articles[0].Tags) != 2 {
		t.Errorf("Expected 2 tags, got %v", articles[0].Tags)
	}
}

func TestJob_Idempotence(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testFeedDoc))
	}))
	defer server.Close()

	tag := &stubTagger{tags: []string{"go"}}
	job, store := newTestJob(t, server.URL, tag)

	if _, err := job.Run(context.Background()); err != nil {
		t.Fatalf("First run failed: %v", err)
	}

	report, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}

	if report.ArticlesAdded != 0 {
		t.Errorf("Expected no new articles on second run, got %d", report.ArticlesAdded)
	}
	if report.Duplicates == 0 {
		t.Error("Expected duplicates to be counted on second run")
	}
	if tag.calls != 1 {
		t.Errorf("Expected no re-tagging of stored articles, got %d calls", tag.calls)
	}

	count, err := store.Count()
	if err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 article after two runs, got %d", count)
	}
}

func TestJob_DegradedTagging(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testFeedDoc))
	}))
	defer server.Close()

	tag := &stubTagger{failing: true}
	job, store := newTestJob(t, server.URL, tag)

	report, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// A broken tagging service degrades tags, it does not drop articles
	if report.ArticlesAdded != 1 {
		t.Errorf("Expected article to be stored despite tagging failure, got %d added", report.ArticlesAdded)
	}
	if report.TaggingFailed != 1 {
		t.Errorf("Expected 1 tagging failure recorded, got %d", report.TaggingFailed)
	}

	articles, err := store.ListAll(10, 0)
	if err != nil {
		t.Fatalf("Failed to list articles: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("Expected 1 article, got %d", len(articles))
	}
	if len(articles[0].Tags) != 0 {
		t.Errorf("Expected empty tag set, got %v", articles[0].Tags)
	}
}

// cancellingTagger cancels the run mid-call, as a shutdown signal would.
type cancellingTagger struct {
	cancel context.CancelFunc
	calls  int
}

func (s *cancellingTagger) Name() string { return "cancelling" }

func (s *cancellingTagger) Tag(ctx context.Context, title, summary string) ([]string, error) {
	s.calls++
	s.cancel()
	return nil, ctx.Err()
}

func TestJob_CancelledMidTaggingDoesNotCommit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testFeedDoc))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tag := &cancellingTagger{cancel: cancel}

	store, err := storage.NewStorage(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	fetcher := feed.NewFetcher(5*time.Second, 1)
	parser := feed.NewParser(50)
	images := ogimage.NewResolver(false, time.Second)
	job := New(fetcher, parser, tag, images, store, []models.FeedConfig{{URL: server.URL, Name: "Test Feed"}})

	report, err := job.Run(ctx)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// The article must stay uncommitted so the next run re-discovers it and
	// tags it properly; an empty-tag commit here would be permanent.
	if report.ArticlesAdded != 0 {
		t.Errorf("Expected no articles committed on cancellation, got %d", report.ArticlesAdded)
	}
	if report.TaggingFailed != 0 {
		t.Errorf("Expected cancellation not to count as degraded tagging, got %d", report.TaggingFailed)
	}
	count, err := store.Count()
	if err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected empty store after cancelled run, got %d articles", count)
	}

	// The entry is new again on the next run
	tag2 := &stubTagger{tags: []string{"go"}}
	job2 := New(fetcher, parser, tag2, images, store, []models.FeedConfig{{URL: server.URL, Name: "Test Feed"}})
	report2, err := job2.Run(context.Background())
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if report2.ArticlesAdded != 1 {
		t.Errorf("Expected the article to be re-discovered after cancellation, got %d added", report2.ArticlesAdded)
	}
}

func TestJob_FailedFeedDoesNotBlockOthers(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testFeedDoc))
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()

	tag := &stubTagger{tags: []string{"go"}}
	job, _ := newTestJob(t, good.URL, tag)
	job.feeds = []models.FeedConfig{
		{URL: bad.URL, Name: "Broken Feed"},
		{URL: good.URL, Name: "Test Feed"},
	}

	report, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.FeedsFailed != 1 {
		t.Errorf("Expected 1 failed feed, got %d", report.FeedsFailed)
	}
	if report.ArticlesAdded != 1 {
		t.Errorf("Expected the healthy feed to be processed, got %d added", report.ArticlesAdded)
	}
}
