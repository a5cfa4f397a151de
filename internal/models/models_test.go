package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestArticle_JSONShape(t *testing.T) {
	published := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	article := Article{
		ID:          "abc-123",
		Title:       "Test Article",
		Link:        "https://example.com/test",
		Summary:     "A summary",
		Published:   &published,
		Source:      "Example News",
		OGImage:     "https://example.com/img.jpg",
		Tags:        []string{"go", "news"},
		Fingerprint: "deadbeef",
	}

	data, err := json.Marshal(article)
	if err != nil {
		t.Fatalf("Failed to marshal article: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to unmarshal article: %v", err)
	}

	for _, field := range []string{"id", "title", "link", "summary", "published", "source", "og_image", "tags"} {
		if _, ok := decoded[field]; !ok {
			t.Errorf("Expected field %q in JSON output", field)
		}
	}

	// The fingerprint is internal and must never reach API consumers
	if strings.Contains(string(data), "deadbeef") {
		t.Error("Fingerprint must not be serialized")
	}
}

func TestArticle_OptionalFieldsOmitted(t *testing.T) {
	article := Article{
		ID:     "abc-123",
		Title:  "Bare Article",
		Link:   "https://example.com/bare",
		Source: "Example News",
		Tags:   []string{},
	}

	data, err := json.Marshal(article)
	if err != nil {
		t.Fatalf("Failed to marshal article: %v", err)
	}

	raw := string(data)
	for _, field := range []string{"summary", "published", "og_image"} {
		if strings.Contains(raw, `"`+field+`"`) {
			t.Errorf("Expected optional field %q to be omitted, got %s", field, raw)
		}
	}

	// Empty tag set still serializes as [] rather than null
	if !strings.Contains(raw, `"tags":[]`) {
		t.Errorf("Expected empty tags array, got %s", raw)
	}
}
