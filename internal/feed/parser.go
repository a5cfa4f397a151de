package feed

import (
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"gorsstag/internal/models"

	"github.com/mmcdole/gofeed"
)

const (
	maxTitleLength   = 500
	maxSummaryLength = 5000
)

// DefaultTitle stands in for entries whose feed item carries no title.
const DefaultTitle = "Untitled"

// ParseError reports a wholly malformed feed document. Individual malformed
// entries are skipped and logged without failing the document.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse feed %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parser normalizes raw feed documents into candidate entries. Feed libraries
// return loosely populated items with optional fields everywhere; nothing
// untyped leaves this package.
type Parser struct {
	parser     *gofeed.Parser
	maxEntries int
}

func NewParser(maxEntries int) *Parser {
	return &Parser{
		parser:     gofeed.NewParser(),
		maxEntries: maxEntries,
	}
}

// Parse converts one raw feed document into normalized entries. Entries
// without a valid link are dropped: they cannot be deduplicated or displayed.
func (p *Parser) Parse(data []byte, cfg models.FeedConfig) ([]models.Entry, error) {
	parsed, err := p.parser.ParseString(string(data))
	if err != nil {
		return nil, &ParseError{Source: cfg.URL, Err: err}
	}

	source := cfg.Name
	if source == "" {
		source = strings.TrimSpace(parsed.Title)
	}
	if source == "" {
		source = cfg.URL
	}

	var entries []models.Entry
	for i, item := range parsed.Items {
		if len(entries) >= p.maxEntries {
			break
		}
		if item == nil {
			continue
		}

		link := strings.TrimSpace(item.Link)
		if !isValidURL(link) {
			log.Printf("Skipping entry %d of %s: missing or invalid link %q", i, cfg.URL, link)
			continue
		}

		entries = append(entries, models.Entry{
			Title:     entryTitle(item),
			Link:      link,
			Summary:   entrySummary(item),
			Published: entryPublished(item),
			Source:    source,
			ImageURL:  entryImage(item),
		})
	}

	return entries, nil
}

func entryTitle(item *gofeed.Item) string {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		title = DefaultTitle
	}
	return truncate(title, maxTitleLength)
}

func entrySummary(item *gofeed.Item) string {
	summary := strings.TrimSpace(item.Description)
	if summary == "" {
		summary = strings.TrimSpace(item.Content)
	}
	return truncate(summary, maxSummaryLength)
}

func entryPublished(item *gofeed.Item) *time.Time {
	if item.PublishedParsed != nil {
		return item.PublishedParsed
	}
	return item.UpdatedParsed
}

func entryImage(item *gofeed.Item) string {
	if item.Image != nil {
		return item.Image.URL
	}
	return ""
}

// truncate cuts s to at most max bytes without splitting a multi-byte rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func isValidURL(raw string) bool {
	if raw == "" {
		return false
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return parsed.Host != "" && (parsed.Scheme == "http" || parsed.Scheme == "https")
}
