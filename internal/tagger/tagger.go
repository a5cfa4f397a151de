package tagger

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"gorsstag/internal/config"
)

// TaggingError reports a failed call to the external tagging service.
type TaggingError struct {
	Provider    string
	RateLimited bool
	Err         error
}

func (e *TaggingError) Error() string {
	if e.RateLimited {
		return fmt.Sprintf("%s tagging rate limited: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s tagging failed: %v", e.Provider, e.Err)
}

func (e *TaggingError) Unwrap() error {
	return e.Err
}

// Tagger assigns short topical tags to one article's title+summary text.
type Tagger interface {
	Tag(ctx context.Context, title, summary string) ([]string, error)
	Name() string
}

// New selects a tagging provider. An explicit provider in the config wins;
// otherwise the provider is detected from the environment, preferring Cohere.
// Without any credentials tagging is disabled and every article is stored
// with an empty tag set.
func New(cfg config.TaggerConfig) Tagger {
	var inner Tagger

	switch cfg.Provider {
	case "cohere":
		inner = NewCohereTagger(os.Getenv("COHERE_API_KEY"), cfg)
	case "openai":
		inner = NewOpenAITagger(os.Getenv("OPENAI_API_KEY"), cfg)
	case "":
		if key := os.Getenv("COHERE_API_KEY"); key != "" {
			inner = NewCohereTagger(key, cfg)
		} else if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			inner = NewOpenAITagger(key, cfg)
		}
	default:
		log.Printf("Unknown tagger provider '%s', tagging disabled", cfg.Provider)
	}

	if inner == nil {
		log.Printf("No tagging provider configured, articles will be stored untagged")
		return &disabledTagger{}
	}

	log.Printf("Using %s tagging provider", inner.Name())
	return &retryTagger{
		inner:      inner,
		cfg:        cfg,
		retryDelay: time.Second,
	}
}

// retryTagger retries the wrapped provider with exponential backoff before
// reporting failure to the caller.
type retryTagger struct {
	inner      Tagger
	cfg        config.TaggerConfig
	retryDelay time.Duration
}

func (t *retryTagger) Name() string {
	return t.inner.Name()
}

func (t *retryTagger) Tag(ctx context.Context, title, summary string) ([]string, error) {
	var lastErr error

	for attempt := 0; attempt < t.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := t.retryDelay * time.Duration(1<<(attempt-1))
			log.Printf("Retrying tagging in %v (attempt %d/%d): %v", delay, attempt+1, t.cfg.MaxRetries, lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, &TaggingError{Provider: t.inner.Name(), Err: ctx.Err()}
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
		tags, err := t.inner.Tag(callCtx, title, summary)
		cancel()
		if err == nil {
			return NormalizeTags(tags, t.cfg.MaxTags, t.cfg.MaxTagLength), nil
		}
		lastErr = err
	}

	return nil, lastErr
}

// disabledTagger is used when no provider credentials are configured.
type disabledTagger struct{}

func (t *disabledTagger) Name() string {
	return "disabled"
}

func (t *disabledTagger) Tag(ctx context.Context, title, summary string) ([]string, error) {
	return []string{}, nil
}

// NormalizeTags lowercases, trims and deduplicates tags while preserving
// order, and enforces the per-article tag count and length caps.
func NormalizeTags(raw []string, maxTags, maxLength int) []string {
	tags := []string{}
	seen := make(map[string]struct{})

	for _, tag := range raw {
		if len(tags) >= maxTags {
			break
		}
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if len(tag) > maxLength {
			cut := maxLength
			for cut > 0 && !utf8.RuneStart(tag[cut]) {
				cut--
			}
			tag = strings.TrimSpace(tag[:cut])
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}

	return tags
}

// buildPrompt produces the instruction sent to chat-style models. Both
// providers share it so tag quality does not depend on the provider choice.
func buildPrompt(title, summary string, maxTags int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Assign up to %d short topical tags to the following news article. ", maxTags)
	sb.WriteString("Respond with a JSON array of lowercase strings only, no other text. ")
	sb.WriteString("Example: [\"politics\", \"energy\"]\n\n")
	fmt.Fprintf(&sb, "Title: %s\n", title)
	if summary != "" {
		fmt.Fprintf(&sb, "Summary: %s\n", summary)
	}
	return sb.String()
}

// parseTagResponse extracts the JSON tag array from a model response, which
// may wrap the array in prose or code fences.
func parseTagResponse(text string) ([]string, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON array in response: %q", truncateForLog(text))
	}

	var tags []string
	if err := json.Unmarshal([]byte(text[start:end+1]), &tags); err != nil {
		return nil, fmt.Errorf("invalid tag array: %v", err)
	}
	return tags, nil
}

func truncateForLog(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
