// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Google     GoogleConfig     `yaml:"google" mapstructure:"google"`
	OpenData   OpenDataConfig   `yaml:"opendata" mapstructure:"opendata"`
	Carto      CartoConfig      `yaml:"carto" mapstructure:"carto"`
	GeoSearch  GeoSearchConfig  `yaml:"geosearch" mapstructure:"geosearch"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Vendor     VendorConfig     `yaml:"vendor" mapstructure:"vendor"`
	Compliance ComplianceConfig `yaml:"compliance" mapstructure:"compliance"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "postgres" or "sqlite"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// GoogleConfig holds Google Maps Platform credentials and endpoints.
type GoogleConfig struct {
	APIKey         string  `yaml:"api_key" mapstructure:"api_key"`
	PlacesBaseURL  string  `yaml:"places_base_url" mapstructure:"places_base_url"`
	GeocodeBaseURL string  `yaml:"geocode_base_url" mapstructure:"geocode_base_url"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
}

// OpenDataConfig holds NYC Open Data (Socrata) settings.
type OpenDataConfig struct {
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	AppToken     string  `yaml:"app_token" mapstructure:"app_token"`
	AppSecret    string  `yaml:"app_secret" mapstructure:"app_secret"`
	FetchLimit   int     `yaml:"fetch_limit" mapstructure:"fetch_limit"`
	RateLimitRPS float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
}

// CartoConfig holds Philadelphia L&I (Carto SQL) settings.
type CartoConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// GeoSearchConfig holds NYC Planning GeoSearch settings.
type GeoSearchConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// AnthropicConfig holds settings for the optional AI report summary.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// VendorConfig configures vendor search behavior.
type VendorConfig struct {
	RadiusMiles         float64 `yaml:"radius_miles" mapstructure:"radius_miles"`
	MaxPerCategory      int     `yaml:"max_per_category" mapstructure:"max_per_category"`
	EnhanceTopN         int     `yaml:"enhance_top_n" mapstructure:"enhance_top_n"`
	CategoryConcurrency int     `yaml:"category_concurrency" mapstructure:"category_concurrency"`
	TermConcurrency     int     `yaml:"term_concurrency" mapstructure:"term_concurrency"`
	CacheTTLHours       int     `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	CatalogPath         string  `yaml:"catalog_path" mapstructure:"catalog_path"`
}

// ComplianceConfig configures report generation.
type ComplianceConfig struct {
	MaxRowsPerDataset int `yaml:"max_rows_per_dataset" mapstructure:"max_rows_per_dataset"`
	FetchLimit        int `yaml:"fetch_limit" mapstructure:"fetch_limit"`
}

// RetryConfig configures retry behavior for open-data fetches.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PROPPLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("google.api_key", "")
	v.SetDefault("opendata.app_token", "")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("store.sqlite_path", "compliance.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("google.places_base_url", "https://maps.googleapis.com/maps/api/place")
	v.SetDefault("google.geocode_base_url", "https://maps.googleapis.com/maps/api/geocode")
	v.SetDefault("google.rate_limit_rps", 10)
	v.SetDefault("opendata.base_url", "https://data.cityofnewyork.us/resource")
	v.SetDefault("opendata.fetch_limit", 500)
	v.SetDefault("opendata.rate_limit_rps", 5)
	v.SetDefault("carto.base_url", "https://phl.carto.com/api/v2/sql")
	v.SetDefault("geosearch.base_url", "https://geosearch.planninglabs.nyc/v2")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("vendor.radius_miles", 10.0)
	v.SetDefault("vendor.max_per_category", 10)
	v.SetDefault("vendor.enhance_top_n", 5)
	v.SetDefault("vendor.category_concurrency", 3)
	v.SetDefault("vendor.term_concurrency", 5)
	v.SetDefault("vendor.cache_ttl_hours", 24)
	v.SetDefault("compliance.max_rows_per_dataset", 50)
	v.SetDefault("compliance.fetch_limit", 500)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 10000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
