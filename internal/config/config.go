package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/hear-ci-prediction-service/internal/database"
	"github.com/hear-ci-prediction-service/internal/domain"
)

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v      *viper.Viper
	config *domain.Config
}

// NewManager creates a new configuration manager
func NewManager() (*Manager, error) {
	m := &Manager{}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/hear-ci/")

	v.SetEnvPrefix("HEAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return err
	}

	// Config file is optional; defaults and environment variables cover everything
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.v = v
	m.config = config
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "local")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.api_prefix", "/api/v1")
	v.SetDefault("server.project_name", "Hear-UI")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.frontend_host", "http://localhost:5173")
	v.SetDefault("server.rate_limit.enabled", true)
	v.SetDefault("server.rate_limit.requests_per_second", 20.0)
	v.SetDefault("server.rate_limit.burst", 40)
	v.SetDefault("server.max_upload_mb", 10)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "app")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.conn_max_idle_time", "30m")
	v.SetDefault("database.migrations_path", "migrations")
	v.SetDefault("database.auto_migrate", false)

	// Cache defaults; an empty Redis URL keeps explanations in memory only
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.default_ttl", "1h")
	v.SetDefault("cache.max_retries", 3)
	v.SetDefault("cache.pool_size", 10)
	v.SetDefault("cache.pool_timeout", "4s")
	v.SetDefault("cache.memory_size", 512)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Model defaults
	v.SetDefault("model.path", "models/logreg_best_model.json")
	v.SetDefault("model.name", "HEAR CI Prediction Model")
	v.SetDefault("model.version", "v1 (draft)")
	v.SetDefault("model.dataset_adapter", "ci")
	v.SetDefault("model.feature_config", "")
	v.SetDefault("model.config_dir", "config")

	// Explainer defaults
	v.SetDefault("explainer.method", "shap")
	v.SetDefault("explainer.background_file", "")
	v.SetDefault("explainer.background_samples", 50)
	v.SetDefault("explainer.kernel_permutations", 64)
	v.SetDefault("explainer.lime_enabled", true)
	v.SetDefault("explainer.lime_samples", 500)
	v.SetDefault("explainer.top_features", 5)

	// Prediction defaults
	v.SetDefault("prediction.threshold", 0.5)
	v.SetDefault("prediction.clip", true)

	// Catalog defaults
	v.SetDefault("catalog.dir", "config")
	v.SetDefault("catalog.cache_size", 16)

	v.SetDefault("model_card.dir", "")

	v.SetDefault("sentry.dsn", "")
}

// bindLegacyEnv keeps the unprefixed variable names deployments already use.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"model.path":           {"HEAR_MODEL_PATH", "MODEL_PATH"},
		"sentry.dsn":           {"HEAR_SENTRY_DSN", "SENTRY_DSN"},
		"environment":          {"HEAR_ENVIRONMENT", "ENVIRONMENT"},
		"prediction.threshold": {"HEAR_PREDICTION_THRESHOLD", "PREDICTION_THRESHOLD"},
		"database.host":        {"HEAR_DATABASE_HOST", "POSTGRES_SERVER"},
		"database.port":        {"HEAR_DATABASE_PORT", "POSTGRES_PORT"},
		"database.username":    {"HEAR_DATABASE_USERNAME", "POSTGRES_USER"},
		"database.password":    {"HEAR_DATABASE_PASSWORD", "POSTGRES_PASSWORD"},
		"database.database":    {"HEAR_DATABASE_DATABASE", "POSTGRES_DB"},
		"server.frontend_host": {"HEAR_SERVER_FRONTEND_HOST", "FRONTEND_HOST"},
		"server.cors_origins":  {"HEAR_SERVER_CORS_ORIGINS", "BACKEND_CORS_ORIGINS"},
		"explainer.background_file": {
			"HEAR_EXPLAINER_BACKGROUND_FILE", "SHAP_BACKGROUND_FILE",
		},
	}
	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("binding env for %s: %w", key, err)
		}
	}
	return nil
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetDatabaseConfig returns database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}
	if !strings.HasPrefix(config.Server.APIPrefix, "/") {
		return fmt.Errorf("api prefix must start with '/': %q", config.Server.APIPrefix)
	}

	if config.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if config.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if config.Database.Username == "" {
		return fmt.Errorf("database username is required")
	}

	if config.Model.Path == "" {
		return fmt.Errorf("model path is required")
	}
	switch config.Model.DatasetAdapter {
	case "ci", "config", "generic":
	default:
		return fmt.Errorf("invalid dataset adapter: %s", config.Model.DatasetAdapter)
	}
	if config.Model.DatasetAdapter == "config" && config.Model.FeatureConfig == "" {
		return fmt.Errorf("feature config is required for the config dataset adapter")
	}

	if config.Prediction.Threshold < 0 || config.Prediction.Threshold > 1 {
		return fmt.Errorf("prediction threshold must be within [0, 1]: %v", config.Prediction.Threshold)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// GetDatabaseConnectionString returns a formatted database connection string
func (m *Manager) GetDatabaseConnectionString() string {
	db := m.config.Database
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		db.Host, db.Port, db.Username, db.Password, db.Database, db.SSLMode)
}

// GetDatabaseURL returns the database settings as a postgres:// URL, the
// form expected by golang-migrate and lib/pq.
func (m *Manager) GetDatabaseURL() string {
	return database.URL(m.config.Database)
}

// GetRedisConnectionString returns the Redis connection string
func (m *Manager) GetRedisConnectionString() string {
	return m.config.Cache.RedisURL
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.config.Environment) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.config.Environment)
	return env == "development" || env == "dev" || env == "local" || env == ""
}
