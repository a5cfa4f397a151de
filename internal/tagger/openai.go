package tagger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"gorsstag/internal/config"
)

const (
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultOpenAIEndpoint = "https://api.openai.com/v1/chat/completions"
)

// OpenAITagger implements Tagger using the OpenAI Chat Completions API
// Docs: https://platform.openai.com/docs/api-reference/chat
// Endpoint: POST https://api.openai.com/v1/chat/completions
type OpenAITagger struct {
	apiKey   string
	model    string
	endpoint string
	maxTags  int
	client   *http.Client
}

func NewOpenAITagger(apiKey string, cfg config.TaggerConfig) Tagger {
	if apiKey == "" {
		return nil
	}

	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	return &OpenAITagger{
		apiKey:   apiKey,
		model:    model,
		endpoint: defaultOpenAIEndpoint,
		maxTags:  cfg.MaxTags,
		client:   &http.Client{},
	}
}

func (t *OpenAITagger) Name() string {
	return "openai"
}

func (t *OpenAITagger) Tag(ctx context.Context, title, summary string) ([]string, error) {
	payload := map[string]interface{}{
		"model": t.model,
		"messages": []map[string]string{
			{"role": "system", "content": "You tag news articles with short topical labels."},
			{"role": "user", "content": buildPrompt(title, summary, t.maxTags)},
		},
		"temperature": 0.2,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &TaggingError{Provider: "openai", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewBuffer(body))
	if err != nil {
		return nil, &TaggingError{Provider: "openai", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", t.apiKey))
	if org := os.Getenv("OPENAI_ORG_ID"); org != "" {
		req.Header.Set("OpenAI-Organization", org)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &TaggingError{Provider: "openai", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errBody map[string]interface{}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return nil, &TaggingError{
			Provider:    "openai",
			RateLimited: resp.StatusCode == http.StatusTooManyRequests,
			Err:         fmt.Errorf("status %d: %v", resp.StatusCode, errBody),
		}
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &TaggingError{Provider: "openai", Err: err}
	}
	if len(parsed.Choices) == 0 {
		return nil, &TaggingError{Provider: "openai", Err: fmt.Errorf("empty choices in response")}
	}

	tags, err := parseTagResponse(parsed.Choices[0].Message.Content)
	if err != nil {
		return nil, &TaggingError{Provider: "openai", Err: err}
	}
	return tags, nil
}
