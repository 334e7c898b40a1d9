package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Environment string           `mapstructure:"environment"`
	Server      ServerConfig     `mapstructure:"server"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Cache       CacheConfig      `mapstructure:"cache"`
	Logging     LoggingConfig    `mapstructure:"logging"`
	Model       ModelConfig      `mapstructure:"model"`
	Explainer   ExplainerConfig  `mapstructure:"explainer"`
	Prediction  PredictionConfig `mapstructure:"prediction"`
	Catalog     CatalogConfig    `mapstructure:"catalog"`
	ModelCard   ModelCardConfig  `mapstructure:"model_card"`
	Sentry      SentryConfig     `mapstructure:"sentry"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string          `mapstructure:"host"`
	Port         int             `mapstructure:"port"`
	APIPrefix    string          `mapstructure:"api_prefix"`
	ProjectName  string          `mapstructure:"project_name"`
	ReadTimeout  time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout time.Duration   `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration   `mapstructure:"idle_timeout"`
	CORSOrigins  []string        `mapstructure:"cors_origins"`
	FrontendHost string          `mapstructure:"frontend_host"`
	RateLimit    RateLimitConfig `mapstructure:"rate_limit"`
	MaxUploadMB  int             `mapstructure:"max_upload_mb"`
}

// AllCORSOrigins returns the configured origins plus the frontend host.
func (s ServerConfig) AllCORSOrigins() []string {
	origins := make([]string, 0, len(s.CORSOrigins)+1)
	for _, o := range s.CORSOrigins {
		if o == "" {
			continue
		}
		origins = append(origins, trimTrailingSlash(o))
	}
	if s.FrontendHost != "" {
		origins = append(origins, trimTrailingSlash(s.FrontendHost))
	}
	return origins
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// RateLimitConfig configures per-client request throttling
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// CacheConfig represents explanation cache configuration
type CacheConfig struct {
	RedisURL    string        `mapstructure:"redis_url"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
	MemorySize  int           `mapstructure:"memory_size"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ModelConfig describes the model artifact and how inputs reach it
type ModelConfig struct {
	Path           string `mapstructure:"path"`
	Name           string `mapstructure:"name"`
	Version        string `mapstructure:"version"`
	DatasetAdapter string `mapstructure:"dataset_adapter"` // "ci", "config", "generic"
	FeatureConfig  string `mapstructure:"feature_config"`
	ConfigDir      string `mapstructure:"config_dir"`
}

// ExplainerConfig configures the explanation layer
type ExplainerConfig struct {
	Method             string `mapstructure:"method"`
	BackgroundFile     string `mapstructure:"background_file"`
	BackgroundSamples  int    `mapstructure:"background_samples"`
	KernelPermutations int    `mapstructure:"kernel_permutations"`
	LimeEnabled        bool   `mapstructure:"lime_enabled"`
	LimeSamples        int    `mapstructure:"lime_samples"`
	TopFeatures        int    `mapstructure:"top_features"`
}

// PredictionConfig holds prediction related settings exposed to clients
type PredictionConfig struct {
	Threshold float64 `mapstructure:"threshold"`
	Clip      bool    `mapstructure:"clip"`
}

// CatalogConfig locates feature definitions and locale files
type CatalogConfig struct {
	Dir       string `mapstructure:"dir"`
	CacheSize int    `mapstructure:"cache_size"`
}

// ModelCardConfig points at a directory of versioned model cards. When Dir
// is empty the card is generated from the loaded model.
type ModelCardConfig struct {
	Dir string `mapstructure:"dir"`
}

// SentryConfig configures error reporting
type SentryConfig struct {
	DSN string `mapstructure:"dsn"`
}
