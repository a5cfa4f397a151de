package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gorsstag/internal/models"

	"gopkg.in/yaml.v3"
)

// SecurityConfig represents security configuration for the API server
type SecurityConfig struct {
	EnableRateLimit       bool
	RateLimitPerSecond    float64
	RateLimitBurst        int
	EnableCORS            bool
	AllowedOrigins        []string
	EnableSecurityHeaders bool
	EnableRequestID       bool
}

// TaggerConfig represents configuration for the AI tagging service
type TaggerConfig struct {
	Provider     string // "cohere", "openai" or "" for auto-detect from env
	Model        string
	MaxTags      int
	MaxTagLength int
	MaxRetries   int
	Timeout      time.Duration
}

type Config struct {
	Port              int
	DataDir           string
	Feeds             []models.FeedConfig
	PollInterval      time.Duration
	FetchTimeout      time.Duration
	FetchRetries      int
	MaxEntriesPerFeed int
	EnableOGImage     bool
	OGImageTimeout    time.Duration
	Tagger            TaggerConfig
	Security          SecurityConfig
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnvAsInt("PORT", 8080),
		DataDir:           getEnv("DATA_DIR", "./data"),
		PollInterval:      getEnvAsDuration("POLL_INTERVAL", 30*time.Minute),
		FetchTimeout:      getEnvAsDuration("FETCH_TIMEOUT", 30*time.Second),
		FetchRetries:      getEnvAsInt("FETCH_RETRIES", 3),
		MaxEntriesPerFeed: getEnvAsInt("MAX_ENTRIES_PER_FEED", 50),
		EnableOGImage:     getEnvAsBool("ENABLE_OG_IMAGE", true),
		OGImageTimeout:    getEnvAsDuration("OG_IMAGE_TIMEOUT", 10*time.Second),
		Tagger:            loadTaggerConfig(),
		Security:          loadSecurityConfig(),
	}

	feeds, err := loadFeeds()
	if err != nil {
		return nil, err
	}
	cfg.Feeds = feeds

	return cfg, nil
}

func loadTaggerConfig() TaggerConfig {
	return TaggerConfig{
		Provider:     getEnv("TAGGER_PROVIDER", ""),
		Model:        getEnv("TAGGER_MODEL", ""),
		MaxTags:      getEnvAsInt("TAGGER_MAX_TAGS", 8),
		MaxTagLength: getEnvAsInt("TAGGER_MAX_TAG_LENGTH", 40),
		MaxRetries:   getEnvAsInt("TAGGER_MAX_RETRIES", 3),
		Timeout:      getEnvAsDuration("TAGGER_TIMEOUT", 30*time.Second),
	}
}

func loadSecurityConfig() SecurityConfig {
	return SecurityConfig{
		EnableRateLimit:       getEnvAsBool("ENABLE_RATE_LIMIT", true),
		RateLimitPerSecond:    getEnvAsFloat("RATE_LIMIT_PER_SECOND", 10.0),
		RateLimitBurst:        getEnvAsInt("RATE_LIMIT_BURST", 20),
		EnableCORS:            getEnvAsBool("ENABLE_CORS", true),
		AllowedOrigins:        getEnvAsStringSlice("ALLOWED_ORIGINS", []string{"*"}),
		EnableSecurityHeaders: getEnvAsBool("ENABLE_SECURITY_HEADERS", true),
		EnableRequestID:       getEnvAsBool("ENABLE_REQUEST_ID", true),
	}
}

// loadFeeds reads the feed list from FEEDS_FILE (YAML) when set, otherwise
// from the FEED_URLS environment variable (comma-separated URLs).
func loadFeeds() ([]models.FeedConfig, error) {
	if path := os.Getenv("FEEDS_FILE"); path != "" {
		return loadFeedsFile(path)
	}

	var feeds []models.FeedConfig
	for _, raw := range strings.Split(os.Getenv("FEED_URLS"), ",") {
		url := strings.TrimSpace(raw)
		if url == "" {
			continue
		}
		feeds = append(feeds, models.FeedConfig{URL: url})
	}
	return feeds, nil
}

func loadFeedsFile(path string) ([]models.FeedConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read feeds file %s: %v", path, err)
	}

	var parsed struct {
		Feeds []models.FeedConfig `yaml:"feeds"`
	}
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse feeds file %s: %v", path, err)
	}

	var feeds []models.FeedConfig
	for _, feed := range parsed.Feeds {
		if strings.TrimSpace(feed.URL) == "" {
			continue
		}
		feed.URL = strings.TrimSpace(feed.URL)
		feeds = append(feeds, feed)
	}
	return feeds, nil
}

func getEnv(key string, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if boolVal, err := strconv.ParseBool(val); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if floatVal, err := strconv.ParseFloat(val, 64); err == nil {
			return floatVal
		}
	}
	return defaultVal
}

func getEnvAsStringSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		parts := strings.Split(val, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultVal
}
