package ogimage

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"gorsstag/internal/models"
)

func TestResolver_FeedImageWins(t *testing.T) {
	resolver := NewResolver(true, time.Second)

	got := resolver.Resolve(models.Entry{
		Link:     "https://example.com/story",
		ImageURL: "https://example.com/thumb.jpg",
	})
	if got != "https://example.com/thumb.jpg" {
		t.Errorf("Expected feed image to win, got %q", got)
	}
}

func TestResolver_Disabled(t *testing.T) {
	resolver := NewResolver(false, time.Second)

	got := resolver.Resolve(models.Entry{Link: "https://example.com/story"})
	if got != "" {
		t.Errorf("Expected no extraction when disabled, got %q", got)
	}
}

func TestResolver_ExtractsFromPage(t *testing.T) {
	page := `<!DOCTYPE html><html><head>
		<meta property="og:image" content="https://example.com/lead.jpg">
		<title>Story</title></head>
		<body><article><p>Some article text long enough to matter.</p></article></body></html>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(page))
	}))
	defer server.Close()

	resolver := NewResolver(true, 5*time.Second)
	got := resolver.Resolve(models.Entry{Link: server.URL + "/story"})
	if got != "https://example.com/lead.jpg" {
		t.Errorf("Expected og:image from page, got %q", got)
	}
}

func TestResolver_BlocksFailingDomains(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	resolver := NewResolver(true, 5*time.Second)

	if got := resolver.Resolve(models.Entry{Link: server.URL + "/one"}); got != "" {
		t.Errorf("Expected empty result from blocked page, got %q", got)
	}
	if got := resolver.Resolve(models.Entry{Link: server.URL + "/two"}); got != "" {
		t.Errorf("Expected empty result from blocked page, got %q", got)
	}

	// Second article on the same domain must not trigger another fetch
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("Expected 1 fetch for blocked domain, got %d", n)
	}
}
