package models

import (
	"time"
)

// Article is a normalized, tagged article as persisted and served by the API.
type Article struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Link      string     `json:"link"`
	Summary   string     `json:"summary,omitempty"`
	Published *time.Time `json:"published,omitempty"`
	Source    string     `json:"source"`
	OGImage   string     `json:"og_image,omitempty"`
	Tags      []string   `json:"tags"`

	// Fingerprint is derived from title+summary and is only used for
	// deduplication; it is never exposed through the API.
	Fingerprint string `json:"-"`
}

// Entry is a candidate article produced by the feed parser, before
// deduplication and tagging.
type Entry struct {
	Title     string
	Link      string
	Summary   string
	Published *time.Time
	Source    string
	ImageURL  string
}

// TagCount pairs a tag name with the number of articles carrying it.
type TagCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// FeedConfig describes one configured feed.
type FeedConfig struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name,omitempty"` // optional display name override
}

// RunReport accumulates the outcome of one ingestion run.
type RunReport struct {
	StartedAt     time.Time
	FinishedAt    time.Time
	FeedsPolled   int
	FeedsFailed   int
	EntriesSeen   int
	ArticlesAdded int
	TaggingFailed int
	Duplicates    int
}
