package tagger

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"

	"gorsstag/internal/config"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
)

const defaultCohereModel = "command-r"

// CohereTagger implements Tagger using the Cohere Chat API
// Docs: https://docs.cohere.com/reference/chat
// SDK: github.com/cohere-ai/cohere-go/v2
type CohereTagger struct {
	client  *cohereclient.Client
	model   string
	maxTags int
}

func NewCohereTagger(apiKey string, cfg config.TaggerConfig) Tagger {
	if apiKey == "" {
		return nil
	}

	model := cfg.Model
	if model == "" {
		model = defaultCohereModel
	}

	// Force HTTP/1.1 to avoid HTTP/2 protocol errors against the Cohere API
	httpClient := &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			TLSNextProto:      make(map[string]func(authority string, c *tls.Conn) http.RoundTripper),
			ForceAttemptHTTP2: false,
		},
	}

	client := cohereclient.NewClient(
		cohereclient.WithToken(apiKey),
		cohereclient.WithHTTPClient(httpClient),
	)

	return &CohereTagger{
		client:  client,
		model:   model,
		maxTags: cfg.MaxTags,
	}
}

func (t *CohereTagger) Name() string {
	return "cohere"
}

func (t *CohereTagger) Tag(ctx context.Context, title, summary string) ([]string, error) {
	model := t.model
	temperature := 0.2

	resp, err := t.client.Chat(ctx, &cohere.ChatRequest{
		Model:       &model,
		Message:     buildPrompt(title, summary, t.maxTags),
		Temperature: &temperature,
	})
	if err != nil {
		return nil, &TaggingError{Provider: "cohere", Err: err}
	}

	tags, err := parseTagResponse(resp.Text)
	if err != nil {
		return nil, &TaggingError{Provider: "cohere", Err: err}
	}
	return tags, nil
}
