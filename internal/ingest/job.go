package ingest

import (
	"context"
	"errors"
	"log"
	"time"

	"gorsstag/internal/feed"
	"gorsstag/internal/models"
	"gorsstag/internal/ogimage"
	"gorsstag/internal/storage"
	"gorsstag/internal/tagger"
)

// State identifies the current phase of processing one feed.
type State string

const (
	StateFetching      State = "fetching"
	StateParsing       State = "parsing"
	StateDeduplicating State = "deduplicating"
	StateTagging       State = "tagging"
	StateCommitting    State = "committing"
	StateDone          State = "done"
	StateFailed        State = "failed"
)

// Job runs one ingestion pass: fetch every configured feed, normalize and
// deduplicate its entries, tag the new ones and commit each article in its
// own transaction. A failed feed never blocks the others; only a storage
// failure aborts the run.
type Job struct {
	fetcher *feed.Fetcher
	parser  *feed.Parser
	tagger  tagger.Tagger
	images  *ogimage.Resolver
	store   storage.Storage
	feeds   []models.FeedConfig
}

func New(fetcher *feed.Fetcher, parser *feed.Parser, tag tagger.Tagger, images *ogimage.Resolver, store storage.Storage, feeds []models.FeedConfig) *Job {
	return &Job{
		fetcher: fetcher,
		parser:  parser,
		tagger:  tag,
		images:  images,
		store:   store,
		feeds:   feeds,
	}
}

// Run executes one ingestion pass. The returned report is valid even when
// err is non-nil; err is only set for storage failures that aborted the run.
func (j *Job) Run(ctx context.Context) (*models.RunReport, error) {
	report := &models.RunReport{StartedAt: time.Now()}

	log.Printf("Starting ingestion run across %d feeds", len(j.feeds))

	// One deduplicator per run so a link or fingerprint seen in an earlier
	// feed is remembered when a later feed repeats it.
	dedup := NewDeduplicator(j.store)

	for _, feedCfg := range j.feeds {
		report.FeedsPolled++
		if err := j.processFeed(ctx, feedCfg, dedup, report); err != nil {
			if isStorageFailure(err) {
				report.FinishedAt = time.Now()
				log.Printf("Ingestion run aborted by storage failure: %v", err)
				return report, err
			}
			report.FeedsFailed++
			log.Printf("Feed %s failed: %v", feedCfg.URL, err)
		}
	}

	report.FinishedAt = time.Now()
	log.Printf("Ingestion run completed: %d articles added, %d duplicates skipped, %d feeds failed",
		report.ArticlesAdded, report.Duplicates, report.FeedsFailed)
	return report, nil
}

// storageFailure marks errors that must abort the whole run rather than
// just the current feed.
type storageFailure struct {
	err error
}

func (e *storageFailure) Error() string { return e.err.Error() }
func (e *storageFailure) Unwrap() error { return e.err }

func isStorageFailure(err error) bool {
	var sf *storageFailure
	return errors.As(err, &sf)
}

func (j *Job) processFeed(ctx context.Context, cfg models.FeedConfig, dedup *Deduplicator, report *models.RunReport) error {
	state := StateFetching
	defer func() {
		if state != StateDone {
			state = StateFailed
		}
		log.Printf("Feed %s finished in state %s", cfg.URL, state)
	}()

	data, err := j.fetcher.Fetch(ctx, cfg.URL)
	if err != nil {
		return err
	}

	state = StateParsing
	entries, err := j.parser.Parse(data, cfg)
	if err != nil {
		return err
	}
	report.EntriesSeen += len(entries)

	state = StateDeduplicating
	fresh, err := dedup.FilterNew(entries)
	if err != nil {
		return &storageFailure{err: err}
	}
	report.Duplicates += len(entries) - len(fresh)

	if len(fresh) == 0 {
		state = StateDone
		return nil
	}
	log.Printf("Feed %s: %d new of %d entries", cfg.URL, len(fresh), len(entries))

	for _, entry := range fresh {
		state = StateTagging
		tags, err := j.tagger.Tag(ctx, entry.Title, entry.Summary)
		if err != nil {
			// A cancelled run must not commit: stored articles are never
			// re-tagged, so committing here would strand the article untagged.
			// Left uncommitted it is re-discovered as new on the next run.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Degraded tagging service: store the article untagged rather
			// than dropping it. This is a different condition from the model
			// legitimately returning no tags.
			log.Printf("Tagging degraded, storing %s untagged: %v", entry.Link, err)
			report.TaggingFailed++
			tags = []string{}
		}

		state = StateCommitting
		article := &models.Article{
			Title:       entry.Title,
			Link:        entry.Link,
			Summary:     entry.Summary,
			Published:   entry.Published,
			Source:      entry.Source,
			OGImage:     j.images.Resolve(entry),
			Tags:        tags,
			Fingerprint: EntryFingerprint(entry),
		}

		if _, err := j.store.Insert(article); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				// A concurrent writer got there first; the link is stored,
				// which is all that matters.
				report.Duplicates++
				continue
			}
			return &storageFailure{err: err}
		}
		report.ArticlesAdded++

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	state = StateDone
	return nil
}
