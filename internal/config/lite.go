// Package config provides configuration management for the prediction service.
// This file contains the lightweight configuration for standalone operation.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hear-ci-prediction-service/internal/domain"
)

// LiteConfig is a simplified configuration for standalone operation.
// It requires no PostgreSQL or Redis and keeps feedback in SQLite.
type LiteConfig struct {
	DataDir string // Base directory for data files

	CacheMaxItems int           // Maximum explanations kept in memory
	CacheTTL      time.Duration // Default cache TTL

	ModelPath       string // JSON model artifact
	ConfigDir       string // Feature catalog and adapter configs
	ExplainerMethod string

	Host string
	Port int

	PredictionThreshold float64

	LogLevel  string // debug, info, warn, error
	LogFormat string // json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".hear-ci")

	return &LiteConfig{
		DataDir:             dataDir,
		CacheMaxItems:       256,
		CacheTTL:            time.Hour,
		ModelPath:           "models/logreg_best_model.json",
		ConfigDir:           "config",
		ExplainerMethod:     "shap",
		Host:                "127.0.0.1",
		Port:                8000,
		PredictionThreshold: 0.5,
		LogLevel:            "info",
		LogFormat:           "text",
	}
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv("HEAR_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	if v := os.Getenv("HEAR_CACHE_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheMaxItems = n
		}
	}
	if v := os.Getenv("HEAR_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CacheTTL = d
		}
	}

	if v := firstEnv("HEAR_MODEL_PATH", "MODEL_PATH"); v != "" {
		cfg.ModelPath = v
	}
	if v := os.Getenv("HEAR_CONFIG_DIR"); v != "" {
		cfg.ConfigDir = v
	}
	if v := os.Getenv("HEAR_EXPLAINER_METHOD"); v != "" {
		cfg.ExplainerMethod = v
	}

	if v := os.Getenv("HEAR_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("HEAR_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Port = n
		}
	}

	if v := firstEnv("HEAR_PREDICTION_THRESHOLD", "PREDICTION_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			cfg.PredictionThreshold = f
		}
	}

	if v := os.Getenv("HEAR_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("HEAR_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// FeedbackDBPath returns the path to the feedback SQLite database.
func (c *LiteConfig) FeedbackDBPath() string {
	return filepath.Join(c.DataDir, "feedback.db")
}

// ExportDir returns the directory for JSON exports.
func (c *LiteConfig) ExportDir() string {
	return filepath.Join(c.DataDir, "exports")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.ExportDir(), 0755)
}

// DomainConfig expands the lite settings into a full configuration with the
// same defaults the viper manager applies.
func (c *LiteConfig) DomainConfig() *domain.Config {
	return &domain.Config{
		Environment: "lite",
		Server: domain.ServerConfig{
			Host:         c.Host,
			Port:         c.Port,
			APIPrefix:    "/api/v1",
			ProjectName:  "Hear-UI",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
			FrontendHost: "http://localhost:5173",
			MaxUploadMB:  10,
		},
		Cache: domain.CacheConfig{
			DefaultTTL: c.CacheTTL,
			MemorySize: c.CacheMaxItems,
		},
		Logging: domain.LoggingConfig{
			Level:  c.LogLevel,
			Format: c.LogFormat,
		},
		Model: domain.ModelConfig{
			Path:           c.ModelPath,
			Name:           "HEAR CI Prediction Model",
			Version:        "v1 (draft)",
			DatasetAdapter: "ci",
			ConfigDir:      c.ConfigDir,
		},
		Explainer: domain.ExplainerConfig{
			Method:             c.ExplainerMethod,
			BackgroundSamples:  50,
			KernelPermutations: 64,
			LimeEnabled:        true,
			LimeSamples:        500,
			TopFeatures:        5,
		},
		Prediction: domain.PredictionConfig{
			Threshold: c.PredictionThreshold,
			Clip:      true,
		},
		Catalog: domain.CatalogConfig{
			Dir:       c.ConfigDir,
			CacheSize: 16,
		},
	}
}
