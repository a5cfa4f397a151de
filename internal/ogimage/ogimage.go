package ogimage

import (
	"log"
	"net/url"
	"strings"
	"time"

	"gorsstag/internal/models"

	readability "github.com/go-shiori/go-readability"
	"github.com/patrickmn/go-cache"
)

// How long a domain stays on the do-not-fetch list after a failed extraction.
// News sites that block scraping tend to keep blocking it.
const blockTTL = 6 * time.Hour

// Resolver determines the preview image for an article. The feed entry's own
// image wins; otherwise the article page is fetched and its lead image
// extracted. Domains that fail extraction are cached and skipped so a site
// that blocks scraping is not hammered on every run.
type Resolver struct {
	enabled        bool
	timeout        time.Duration
	blockedDomains *cache.Cache
}

func NewResolver(enabled bool, timeout time.Duration) *Resolver {
	return &Resolver{
		enabled:        enabled,
		timeout:        timeout,
		blockedDomains: cache.New(blockTTL, 30*time.Minute),
	}
}

// Resolve returns the preview image URL for the entry, or "" when none can
// be determined. Extraction failures are never fatal.
func (r *Resolver) Resolve(entry models.Entry) string {
	if entry.ImageURL != "" {
		return entry.ImageURL
	}
	if !r.enabled {
		return ""
	}

	domain := domainOf(entry.Link)
	if domain == "" {
		return ""
	}
	if _, blocked := r.blockedDomains.Get(domain); blocked {
		return ""
	}

	article, err := readability.FromURL(entry.Link, r.timeout)
	if err != nil {
		log.Printf("Could not extract preview image from %s: %v", entry.Link, err)
		r.blockedDomains.Set(domain, true, cache.DefaultExpiration)
		return ""
	}

	return article.Image
}

func domainOf(link string) string {
	parsed, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}
