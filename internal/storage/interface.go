package storage

import (
	"errors"

	"gorsstag/internal/models"
)

// ErrConflict is returned by Insert when an article with the same link is
// already stored. The unique constraint on link is enforced by the database,
// not just application code.
var ErrConflict = errors.New("article link already exists")

// Storage defines the interface for article storage backends
type Storage interface {
	// Insert stores one article and its tags in a single transaction and
	// returns the assigned article ID. Returns ErrConflict for duplicate links.
	Insert(article *models.Article) (string, error)
	Exists(link string) (bool, error)

	// ExistingLinks and ExistingFingerprints report which of the given values
	// are already stored, as a single round trip per batch.
	ExistingLinks(links []string) (map[string]struct{}, error)
	ExistingFingerprints(fingerprints []string) (map[string]struct{}, error)

	// ListByTags returns articles carrying every one of the given tags,
	// ordered by published descending (nulls last), ties by insertion order.
	ListByTags(tags []string, limit, offset int) ([]models.Article, error)
	ListAll(limit, offset int) ([]models.Article, error)

	TagCounts() ([]models.TagCount, error)
	Count() (int, error)
	Close() error
}
