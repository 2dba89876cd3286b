package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

const (
	BackendMemory    = "memory"
	BackendSQLite    = "sqlite"
	BackendMongo     = "mongo"
	BackendFirestore = "firestore"

	SourceModeAPI    = "api"
	SourceModePublic = "public"
	SourceModeMock   = "mock"

	placeholderRedditClientID     = "your_client_id"
	placeholderRedditClientSecret = "your_client_secret"
)

type Config struct {
	Port string

	StoreBackend        string
	MongoURL            string
	MongoDBName         string
	SQLitePath          string
	ProjectID           string
	FirestoreCollection string
	SeedMockDeals       bool

	SourceMode          string
	RedditClientID      string
	RedditClientSecret  string
	RedditUserAgent     string
	RedditUsername      string
	RedditPassword      string
	Subreddit           string
	FetchLimit          int
	ScanComments        bool
	SelectorsConfigPath string
	AllowedDomains      []string

	AmazonAffiliateTag  string
	FlipkartAffiliateID string
	DefaultCategory     string
	CatalogRatePerSec   float64
	GeminiAPIKey        string
	GeminiModel         string

	DiscordWebhookURL string

	SearchLimit     int
	PipelineTimeout time.Duration
}

// RedditConfigured reports whether real forum credentials were supplied.
// The API client authenticates with the password grant, so the account
// username and password are required along with the app credentials.
func (c *Config) RedditConfigured() bool {
	return c.RedditClientID != "" && c.RedditClientID != placeholderRedditClientID &&
		c.RedditClientSecret != "" && c.RedditClientSecret != placeholderRedditClientSecret &&
		c.RedditUsername != "" && c.RedditPassword != ""
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		StoreBackend:        getEnv("STORE_BACKEND", BackendMongo),
		MongoURL:            getEnv("MONGODB_URL", "mongodb://localhost:27017"),
		MongoDBName:         getEnv("MONGODB_DBNAME", "deal_aggregator"),
		SQLitePath:          getEnv("SQLITE_PATH", "deals.db"),
		ProjectID:           os.Getenv("GOOGLE_CLOUD_PROJECT"),
		FirestoreCollection: getEnv("FIRESTORE_COLLECTION", "deals"),
		SourceMode:          getEnv("SOURCE_MODE", SourceModeAPI),
		RedditClientID:      getEnv("REDDIT_CLIENT_ID", placeholderRedditClientID),
		RedditClientSecret:  getEnv("REDDIT_CLIENT_SECRET", placeholderRedditClientSecret),
		RedditUserAgent:     getEnv("REDDIT_USER_AGENT", "your_user_agent"),
		RedditUsername:      os.Getenv("REDDIT_USERNAME"),
		RedditPassword:      os.Getenv("REDDIT_PASSWORD"),
		Subreddit:           getEnv("SUBREDDIT", "dealsforindia"),
		SelectorsConfigPath: getEnv("SELECTORS_CONFIG_PATH", "config/selectors.json"),
		AllowedDomains:      []string{"old.reddit.com", "www.reddit.com", "reddit.com"},
		AmazonAffiliateTag:  getEnv("AMAZON_AFFILIATE_TAG", "yourtag-21"),
		FlipkartAffiliateID: getEnv("FLIPKART_AFFILIATE_ID", "youraffid"),
		DefaultCategory:     getEnv("DEFAULT_CATEGORY", "electronics"),
		GeminiAPIKey:        os.Getenv("GEMINI_API_KEY"),
		GeminiModel:         getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		DiscordWebhookURL:   os.Getenv("DISCORD_WEBHOOK_URL"),
	}

	switch cfg.StoreBackend {
	case BackendMemory, BackendSQLite, BackendMongo:
	case BackendFirestore:
		if cfg.ProjectID == "" {
			return nil, fmt.Errorf("GOOGLE_CLOUD_PROJECT environment variable is required for the firestore backend")
		}
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q (use memory, sqlite, mongo or firestore)", cfg.StoreBackend)
	}

	switch cfg.SourceMode {
	case SourceModeAPI, SourceModePublic, SourceModeMock:
	default:
		return nil, fmt.Errorf("unknown SOURCE_MODE %q (use api, public or mock)", cfg.SourceMode)
	}

	var err error
	if cfg.FetchLimit, err = getInt("FETCH_LIMIT", 25); err != nil {
		return nil, err
	}
	if cfg.SearchLimit, err = getInt("SEARCH_LIMIT", 50); err != nil {
		return nil, err
	}
	if cfg.ScanComments, err = getBool("SCAN_COMMENTS", true); err != nil {
		return nil, err
	}
	if cfg.SeedMockDeals, err = getBool("SEED_MOCK_DEALS", false); err != nil {
		return nil, err
	}

	timeoutStr := getEnv("PIPELINE_TIMEOUT", "4m")
	cfg.PipelineTimeout, err = time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid PIPELINE_TIMEOUT %q: %w", timeoutStr, err)
	}

	cfg.CatalogRatePerSec = 5
	if v := os.Getenv("CATALOG_RATE_PER_SEC"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("invalid CATALOG_RATE_PER_SEC %q", v)
		}
		cfg.CatalogRatePerSec = parsed
	}

	if cfg.SourceMode == SourceModeAPI && !cfg.RedditConfigured() {
		slog.Warn("Reddit API credentials not set, forum ingestion will return no deals")
	}
	if cfg.AmazonAffiliateTag == "yourtag-21" || cfg.FlipkartAffiliateID == "youraffid" {
		slog.Warn("Using placeholder affiliate identifiers")
	}
	if cfg.DiscordWebhookURL == "" {
		slog.Info("DISCORD_WEBHOOK_URL not set, Discord notifications will be skipped")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, v)
	}
	return parsed, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return parsed, nil
}
