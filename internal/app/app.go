// Package app assembles the prediction service from configuration: storage,
// model, explainers, caches, health checks and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/hear-ci-prediction-service/internal/api"
	"github.com/hear-ci-prediction-service/internal/cache"
	"github.com/hear-ci-prediction-service/internal/catalog"
	"github.com/hear-ci-prediction-service/internal/database"
	"github.com/hear-ci-prediction-service/internal/dataset"
	"github.com/hear-ci-prediction-service/internal/domain"
	"github.com/hear-ci-prediction-service/internal/explainer"
	"github.com/hear-ci-prediction-service/internal/feedback"
	"github.com/hear-ci-prediction-service/internal/health"
	"github.com/hear-ci-prediction-service/internal/middleware"
	"github.com/hear-ci-prediction-service/internal/model"
	"github.com/hear-ci-prediction-service/internal/modelcard"
	"github.com/hear-ci-prediction-service/internal/repository"
	"github.com/hear-ci-prediction-service/internal/service"
)

// Version is reported by /health and attached to Sentry events.
var Version = "v0.1.0"

const (
	backgroundSeed   = 42
	rateLimitClients = 10000
)

// Application owns every long-lived resource of a running server.
type Application struct {
	config *domain.Config
	logger *logrus.Logger

	lite          bool
	db            *database.DB
	redis         *redis.Client
	redisCheck    *health.RedisCheck
	feedbackStore feedback.Store
	sentry        bool

	Service *service.PredictionService
	Server  *api.Server
}

// Option customizes an Application before it is assembled.
type Option func(*Application) error

// WithLogger replaces the logger built from the logging config.
func WithLogger(logger *logrus.Logger) Option {
	return func(a *Application) error {
		a.logger = logger
		return nil
	}
}

// WithFeedbackStore sets the feedback store instead of opening one.
func WithFeedbackStore(store feedback.Store) Option {
	return func(a *Application) error {
		a.feedbackStore = store
		return nil
	}
}

// WithoutDatabase runs without Postgres: patient and prediction routes answer
// 503 and Redis is never contacted.
func WithoutDatabase() Option {
	return func(a *Application) error {
		a.lite = true
		return nil
	}
}

// NewLogger builds a logrus logger from the logging section.
func NewLogger(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// New wires the application. Resources opened before a failure are released.
func New(ctx context.Context, cfg *domain.Config, opts ...Option) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	a := &Application{config: cfg}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	if a.logger == nil {
		a.logger = NewLogger(cfg.Logging)
	}

	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *Application) build(ctx context.Context) error {
	cfg := a.config

	if cfg.Sentry.DSN != "" {
		enabled, err := middleware.InitSentry(cfg.Sentry.DSN, cfg.Environment, Version)
		if err != nil {
			a.logger.WithError(err).Warn("Sentry initialization failed")
		}
		a.sentry = enabled
	}

	checker := health.NewChecker(health.Config{Timeout: 5 * time.Second, CacheTTL: 5 * time.Second, Version: Version}, a.logger)

	var patients domain.PatientRepository
	var predictions domain.PredictionRepository
	if !a.lite {
		if err := a.openDatabase(ctx); err != nil {
			return err
		}
		patients = repository.NewPatientRepository(a.db.Pool, a.logger)
		predictions = repository.NewPredictionRepository(a.db.Pool, a.logger)
		checker.Register(&health.DatabaseCheck{DB: a.db})
	}

	if a.feedbackStore == nil && !a.lite {
		store, err := feedback.NewPostgresStoreFromURL(database.URL(cfg.Database))
		if err != nil {
			return fmt.Errorf("failed to create feedback store: %w", err)
		}
		a.feedbackStore = store
	}

	explanationCache, err := a.openCache(ctx, checker)
	if err != nil {
		return err
	}

	adapter, err := dataset.New(cfg.Model, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create dataset adapter: %w", err)
	}

	wrapper := model.NewWrapper(cfg.Model.Path, adapter, a.logger)
	if err := wrapper.Load(); err != nil {
		a.logger.WithError(err).WithField("path", cfg.Model.Path).Error("Model could not be loaded; prediction routes will answer 503")
	}
	checker.Register(&health.ModelCheck{Model: wrapper})

	background, err := explainer.LoadBackground(adapter, cfg.Explainer.BackgroundFile, cfg.Explainer.BackgroundSamples, backgroundSeed, a.logger)
	if err != nil {
		a.logger.WithError(err).Warn("No SHAP background data; kernel SHAP will use a zero baseline")
	}

	metrics := middleware.NewMetrics()
	svc, err := service.NewPredictionService(service.Config{
		Wrapper: wrapper,
		Dataset: adapter,
		Factory: explainer.DefaultFactory(),
		Options: explainer.Options{
			Background:   background,
			Permutations: cfg.Explainer.KernelPermutations,
			Seed:         backgroundSeed,
			LimeEnabled:  cfg.Explainer.LimeEnabled,
			LimeSamples:  cfg.Explainer.LimeSamples,
			Logger:       a.logger,
		},
		Cache:         explanationCache,
		Predictions:   predictions,
		DefaultMethod: cfg.Explainer.Method,
		TopFeatures:   cfg.Explainer.TopFeatures,
		Clip:          cfg.Prediction.Clip,
		Recorder:      metrics,
		Logger:        a.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create prediction service: %w", err)
	}
	a.Service = svc

	cat, err := catalog.New(cfg.Catalog.Dir, cfg.Catalog.CacheSize, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create feature catalog: %w", err)
	}

	features, err := dataset.LoadFeatureConfig(filepath.Join(cfg.Catalog.Dir, "features.yaml"))
	if err != nil {
		a.logger.WithError(err).Warn("Feature categories unavailable")
		features = nil
	}

	var cards *modelcard.Registry
	if cfg.ModelCard.Dir != "" {
		cards, err = modelcard.NewRegistry(cfg.ModelCard.Dir, a.logger)
		if err != nil {
			return fmt.Errorf("failed to open model card registry: %w", err)
		}
	}

	var limiter *middleware.RateLimiter
	if cfg.Server.RateLimit.Enabled {
		limiter, err = middleware.NewRateLimiter(cfg.Server.RateLimit.RequestsPerSecond, cfg.Server.RateLimit.Burst, rateLimitClients)
		if err != nil {
			return fmt.Errorf("failed to create rate limiter: %w", err)
		}
	}

	server, err := api.NewServer(cfg, api.Deps{
		Predictor:   svc,
		Patients:    patients,
		Predictions: predictions,
		Feedback:    a.feedbackStore,
		Catalog:     cat,
		Features:    features,
		ModelCards:  cards,
		Health:      checker,
		Metrics:     metrics,
		RateLimiter: limiter,
		Sentry:      a.sentry,
		Logger:      a.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}
	a.Server = server

	a.logger.WithFields(logrus.Fields{
		"environment":  cfg.Environment,
		"lite":         a.lite,
		"model_loaded": wrapper.IsLoaded(),
		"explainer":    cfg.Explainer.Method,
		"methods":      explainer.DefaultFactory().Available(),
	}).Info("Application initialized")
	return nil
}

func (a *Application) openDatabase(ctx context.Context) error {
	cfg := a.config.Database
	db, err := database.NewConnection(ctx, cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.db = db

	if !cfg.AutoMigrate {
		return nil
	}
	runner, err := database.NewMigrationRunner(database.URL(cfg), cfg.MigrationsPath, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create migration runner: %w", err)
	}
	defer runner.Close()
	if err := runner.Up(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// openCache builds the explanation cache. Redis is optional: an unreachable
// instance leaves the cache memory-only and the health check reports a
// warning.
func (a *Application) openCache(ctx context.Context, checker *health.Checker) (*cache.ExplanationCache, error) {
	cfg := a.config.Cache
	if !a.lite && cfg.RedisURL != "" {
		client, err := cache.NewRedisClient(ctx, cfg)
		if err != nil {
			a.logger.WithError(err).Warn("Redis unavailable, explanations cached in memory only")
		} else {
			a.redis = client
		}

		check, err := health.NewRedisCheck(cfg.RedisURL)
		if err != nil {
			a.logger.WithError(err).Warn("Redis health check disabled")
		} else {
			a.redisCheck = check
			checker.Register(check)
		}
	}

	c, err := cache.New(cache.Config{
		MemorySize: cfg.MemorySize,
		MemoryTTL:  cfg.DefaultTTL,
		RedisTTL:   cfg.DefaultTTL,
	}, a.redis, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create explanation cache: %w", err)
	}
	return c, nil
}

// Run serves HTTP until ctx is cancelled.
func (a *Application) Run(ctx context.Context) error {
	return a.Server.Start(ctx)
}

// Close releases every resource the application opened.
func (a *Application) Close() {
	if a.feedbackStore != nil {
		if err := a.feedbackStore.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close feedback store")
		}
	}
	if a.redisCheck != nil {
		a.redisCheck.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.sentry {
		middleware.FlushSentry(2 * time.Second)
	}
}
