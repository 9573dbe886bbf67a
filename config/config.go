package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the newsagent service.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Scrape    ScrapeConfig    `mapstructure:"scrape"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	LogLevel       string        `mapstructure:"log_level"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Addr         string `mapstructure:"addr"`
	ScheduleCron string `mapstructure:"schedule_cron"` // empty disables the ingestion scheduler
}

// LLMConfig contains LLM provider configuration.
type LLMConfig struct {
	Provider LLMProviderConfig   `mapstructure:"provider"`
	Models   map[string]LLMModel `mapstructure:"models"`
	Routing  LLMRoutingConfig    `mapstructure:"routing"`
}

// LLMProviderConfig represents the OpenAI-compatible endpoint settings.
type LLMProviderConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LLMModel represents a specific model configuration with pricing.
type LLMModel struct {
	Name            string  `mapstructure:"name"`
	APIName         string  `mapstructure:"api_name"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature"`
	CostPer1K       float64 `mapstructure:"cost_per_1k_input"`
	CostPer1KOutput float64 `mapstructure:"cost_per_1k_output"`
}

// LLMRoutingConfig maps task kinds to model keys. Analysis and marketing
// run on the cheap tier, reports on the quality tier.
type LLMRoutingConfig struct {
	Analysis  string `mapstructure:"analysis"`
	Marketing string `mapstructure:"marketing"`
	Report    string `mapstructure:"report"`
	Fallback  string `mapstructure:"fallback"`
}

// ScrapeConfig contains fetcher tunables and the source registry.
type ScrapeConfig struct {
	Sources            []SourceConfig `mapstructure:"sources"`
	MaxLinksPerListing int            `mapstructure:"max_links_per_listing"`
	MaxSearchResults   int            `mapstructure:"max_search_results"`
	DetailBatchSize    int            `mapstructure:"detail_batch_size"`
	DetailBatchDelay   time.Duration  `mapstructure:"detail_batch_delay"`
	FeedTimeout        time.Duration  `mapstructure:"feed_timeout"`
	DetailTimeout      time.Duration  `mapstructure:"detail_timeout"`
	MinBodyLength      int            `mapstructure:"min_body_length"`
	UserAgent          string         `mapstructure:"user_agent"`
	MaxConcurrentRuns  int            `mapstructure:"max_concurrent_runs"`
}

// SourceConfig describes one news source. A source may expose any
// combination of feeds, listing pages and a keyword search page.
type SourceConfig struct {
	ID             string            `mapstructure:"id"`
	Name           string            `mapstructure:"name"`
	Enabled        bool              `mapstructure:"enabled"`
	FeedURLs       map[string]string `mapstructure:"feed_urls"`    // category -> feed URL
	ListingURLs    map[string]string `mapstructure:"listing_urls"` // category -> listing URL
	SearchURL      string            `mapstructure:"search_url"`   // %s is replaced by the keyword
	LinkPattern    string            `mapstructure:"link_pattern"` // regex selecting article links on listing pages
	ArticlePattern string            `mapstructure:"article_pattern"`
	BodySelectors  []string          `mapstructure:"body_selectors"`
}

// StorageConfig contains persistence settings.
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains Postgres connection settings.
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig contains Redis connection settings. Redis is optional: it
// backs the cross-run seen-hash cache and the scheduler lock.
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
	SeenTTL  time.Duration `mapstructure:"seen_ttl"`
}

// TelemetryConfig contains telemetry and cost tracking settings.
type TelemetryConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	CostTracking bool `mapstructure:"cost_tracking"`
	PeriodicLogs bool `mapstructure:"periodic_logs"`
}

// DSN assembles a Postgres connection string from the config.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres not configured (storage.postgres.host/dbname or url)")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// Addr returns host:port for the Redis client.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("newsagent")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("NEWSAGENT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	overrideFromEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("general.debug", false)
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("general.default_timeout", "30s")

	viper.SetDefault("server.addr", ":10020")
	viper.SetDefault("server.schedule_cron", "")

	viper.SetDefault("llm.provider.base_url", "https://api.openai.com/v1")
	viper.SetDefault("llm.provider.timeout", "60s")
	viper.SetDefault("llm.routing.analysis", "fast")
	viper.SetDefault("llm.routing.marketing", "fast")
	viper.SetDefault("llm.routing.report", "quality")
	viper.SetDefault("llm.routing.fallback", "fast")
	viper.SetDefault("llm.models", map[string]interface{}{
		"fast": map[string]interface{}{
			"name":               "gpt-4o-mini",
			"api_name":           "gpt-4o-mini",
			"max_tokens":         4096,
			"temperature":        0.3,
			"cost_per_1k_input":  0.00015,
			"cost_per_1k_output": 0.0006,
		},
		"quality": map[string]interface{}{
			"name":               "gpt-4o",
			"api_name":           "gpt-4o",
			"max_tokens":         8192,
			"temperature":        0.4,
			"cost_per_1k_input":  0.0025,
			"cost_per_1k_output": 0.01,
		},
	})

	viper.SetDefault("scrape.max_links_per_listing", 20)
	viper.SetDefault("scrape.max_search_results", 10)
	viper.SetDefault("scrape.detail_batch_size", 5)
	viper.SetDefault("scrape.detail_batch_delay", "1s")
	viper.SetDefault("scrape.feed_timeout", "15s")
	viper.SetDefault("scrape.detail_timeout", "8s")
	viper.SetDefault("scrape.min_body_length", 50)
	viper.SetDefault("scrape.user_agent", "newsagent/1.0 (+https://github.com/joonhok/newsagent)")
	viper.SetDefault("scrape.max_concurrent_runs", 5)

	viper.SetDefault("storage.postgres.host", "")
	viper.SetDefault("storage.postgres.port", "5432")
	viper.SetDefault("storage.postgres.sslmode", "disable")
	viper.SetDefault("storage.redis.enabled", false)
	viper.SetDefault("storage.redis.host", "localhost")
	viper.SetDefault("storage.redis.port", 6379)
	viper.SetDefault("storage.redis.db", 0)
	viper.SetDefault("storage.redis.timeout", "5s")
	viper.SetDefault("storage.redis.seen_ttl", "72h")

	viper.SetDefault("telemetry.enabled", true)
	viper.SetDefault("telemetry.cost_tracking", true)
	viper.SetDefault("telemetry.periodic_logs", false)
}

// overrideFromEnv overrides sensitive values from well-known env vars.
func overrideFromEnv() {
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		viper.Set("llm.provider.api_key", apiKey)
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		viper.Set("storage.postgres.url", url)
	}
	if host := os.Getenv("POSTGRES_HOST"); host != "" {
		viper.Set("storage.postgres.host", host)
	}
	if port := os.Getenv("POSTGRES_PORT"); port != "" {
		viper.Set("storage.postgres.port", port)
	}
	if user := os.Getenv("POSTGRES_USER"); user != "" {
		viper.Set("storage.postgres.user", user)
	}
	if pass := os.Getenv("POSTGRES_PASSWORD"); pass != "" {
		viper.Set("storage.postgres.password", pass)
	}
	if db := os.Getenv("POSTGRES_DB"); db != "" {
		viper.Set("storage.postgres.dbname", db)
	}
	if host := os.Getenv("REDIS_HOST"); host != "" {
		viper.Set("storage.redis.enabled", true)
		viper.Set("storage.redis.host", host)
	}
	if port := os.Getenv("REDIS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			viper.Set("storage.redis.port", p)
		}
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		viper.Set("storage.redis.password", password)
	}
}

func validateConfig(cfg *Config) error {
	routing := map[string]string{
		"analysis":  cfg.LLM.Routing.Analysis,
		"marketing": cfg.LLM.Routing.Marketing,
		"report":    cfg.LLM.Routing.Report,
		"fallback":  cfg.LLM.Routing.Fallback,
	}
	for task, key := range routing {
		if key == "" {
			continue
		}
		if _, ok := cfg.LLM.Models[key]; !ok {
			return fmt.Errorf("routing model %q for %s not found in llm.models", key, task)
		}
	}
	seen := map[string]struct{}{}
	for _, src := range cfg.Scrape.Sources {
		if src.ID == "" {
			return fmt.Errorf("scrape source with empty id")
		}
		if _, dup := seen[src.ID]; dup {
			return fmt.Errorf("duplicate scrape source id %q", src.ID)
		}
		seen[src.ID] = struct{}{}
	}
	if cfg.Scrape.DetailBatchSize <= 0 {
		cfg.Scrape.DetailBatchSize = 5
	}
	if cfg.Scrape.MinBodyLength <= 0 {
		cfg.Scrape.MinBodyLength = 50
	}
	return nil
}
