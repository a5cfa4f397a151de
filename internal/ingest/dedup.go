package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"gorsstag/internal/feed"
	"gorsstag/internal/models"
	"gorsstag/internal/storage"
)

// Deduplicator filters candidate entries down to the ones not yet stored.
// The link is the primary key; the content fingerprint catches feeds that
// hand out fresh links for content already ingested. One instance covers a
// whole run so entries repeated across feeds are also caught.
type Deduplicator struct {
	store            storage.Storage
	seenLinks        map[string]struct{}
	seenFingerprints map[string]struct{}
}

func NewDeduplicator(store storage.Storage) *Deduplicator {
	return &Deduplicator{
		store:            store,
		seenLinks:        make(map[string]struct{}),
		seenFingerprints: make(map[string]struct{}),
	}
}

// FilterNew returns the subset of entries whose link and fingerprint are
// absent from storage, using one storage round trip per batch.
func (d *Deduplicator) FilterNew(entries []models.Entry) ([]models.Entry, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	links := make([]string, 0, len(entries))
	fingerprints := make([]string, 0, len(entries))
	for _, entry := range entries {
		links = append(links, entry.Link)
		if fp := EntryFingerprint(entry); fp != "" {
			fingerprints = append(fingerprints, fp)
		}
	}

	storedLinks, err := d.store.ExistingLinks(links)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing links: %v", err)
	}
	storedFingerprints, err := d.store.ExistingFingerprints(fingerprints)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing fingerprints: %v", err)
	}

	var fresh []models.Entry
	for _, entry := range entries {
		if _, ok := storedLinks[entry.Link]; ok {
			continue
		}
		if _, ok := d.seenLinks[entry.Link]; ok {
			continue
		}
		if fp := EntryFingerprint(entry); fp != "" {
			if _, ok := storedFingerprints[fp]; ok {
				continue
			}
			if _, ok := d.seenFingerprints[fp]; ok {
				continue
			}
			d.seenFingerprints[fp] = struct{}{}
		}
		d.seenLinks[entry.Link] = struct{}{}
		fresh = append(fresh, entry)
	}

	return fresh, nil
}

// Fingerprint derives a stable content hash from an entry's title and summary.
func Fingerprint(title, summary string) string {
	hash := sha256.Sum256([]byte(title + " " + summary))
	return hex.EncodeToString(hash[:])[:16]
}

// EntryFingerprint returns the content fingerprint for the entry, or "" when
// the entry has no content worth fingerprinting. A defaulted title with an
// empty summary would give every such entry the same hash, collapsing
// distinct articles; those entries are deduplicated by link alone.
func EntryFingerprint(entry models.Entry) string {
	if entry.Summary == "" && (entry.Title == "" || entry.Title == feed.DefaultTitle) {
		return ""
	}
	return Fingerprint(entry.Title, entry.Summary)
}
