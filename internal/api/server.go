// Package api exposes the prediction service over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/hear-ci-prediction-service/internal/catalog"
	"github.com/hear-ci-prediction-service/internal/dataset"
	"github.com/hear-ci-prediction-service/internal/domain"
	"github.com/hear-ci-prediction-service/internal/feedback"
	"github.com/hear-ci-prediction-service/internal/health"
	"github.com/hear-ci-prediction-service/internal/middleware"
	"github.com/hear-ci-prediction-service/internal/modelcard"
	"github.com/hear-ci-prediction-service/internal/service"
)

// ShutdownTimeout bounds graceful shutdown.
const ShutdownTimeout = 30 * time.Second

// Deps are the collaborators injected by main. Patients, Predictions and
// Feedback may be nil; their routes then answer 503.
type Deps struct {
	Predictor   *service.PredictionService
	Patients    domain.PatientRepository
	Predictions domain.PredictionRepository
	Feedback    feedback.Store
	Catalog     *catalog.Catalog
	Features    *dataset.FeatureConfig
	ModelCards  *modelcard.Registry
	Health      *health.Checker
	Metrics     *middleware.Metrics
	RateLimiter *middleware.RateLimiter
	Sentry      bool
	Logger      *logrus.Logger

	// Now stamps the model card; defaults to time.Now
	Now func() time.Time
}

// Server represents the HTTP server
type Server struct {
	config *domain.Config
	deps   Deps
	logger *logrus.Logger
	router *gin.Engine
	server *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(cfg *domain.Config, deps Deps) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if deps.Predictor == nil {
		return nil, errors.New("prediction service is required")
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.Recovery(deps.Logger, deps.Sentry))
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(cfg.Server.AllCORSOrigins()))
	if deps.Metrics != nil {
		router.Use(deps.Metrics.Middleware())
	}
	if cfg.Server.MaxUploadMB > 0 {
		router.MaxMultipartMemory = int64(cfg.Server.MaxUploadMB) << 20
	}

	s := &Server{
		config: cfg,
		deps:   deps,
		logger: deps.Logger,
		router: router,
	}
	s.setupRoutes()
	return s, nil
}

// Handler returns the routed engine, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.config.Server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	if s.deps.Metrics != nil {
		s.router.GET("/metrics", s.deps.Metrics.Handler())
	}

	prefix := s.config.Server.APIPrefix
	if prefix == "" {
		prefix = "/api/v1"
	}
	v1 := s.router.Group(prefix)
	if s.deps.RateLimiter != nil {
		v1.Use(s.deps.RateLimiter.Middleware())
	}
	v1.Use(middleware.RequestTimeout(s.config.Server.WriteTimeout))

	{
		v1.POST("/predict", s.handlePredict)
		v1.POST("/predict/upload", s.handleUpload)
		v1.POST("/explainer/explain", s.handleExplain)
	}

	patients := v1.Group("/patients")
	{
		patients.GET("", s.handleListPatients)
		patients.GET("/", s.handleListPatients)
		patients.POST("", s.handleCreatePatient)
		patients.POST("/", s.handleCreatePatient)
		patients.GET("/search", s.handleSearchPatients)
		patients.POST("/upload", s.handleUpload)
		patients.GET("/:id", s.handleGetPatient)
		patients.PUT("/:id", s.handleUpdatePatient)
		patients.DELETE("/:id", s.handleDeletePatient)
		patients.GET("/:id/predict", s.handlePredictPatient)
		patients.GET("/:id/explainer", s.handleExplainPatient)
		patients.GET("/:id/validate", s.handleValidatePatient)
	}

	predictions := v1.Group("/predictions")
	{
		predictions.GET("", s.handleListPredictions)
		predictions.GET("/", s.handleListPredictions)
		predictions.GET("/:id", s.handleGetPrediction)
	}

	fb := v1.Group("/feedback")
	{
		fb.POST("", s.handleCreateFeedback)
		fb.POST("/", s.handleCreateFeedback)
		fb.GET("", s.handleListFeedback)
		fb.GET("/", s.handleListFeedback)
		fb.GET("/:id", s.handleGetFeedback)
	}

	utils := v1.Group("/utils")
	{
		utils.GET("/health-check", s.handleHealthCheck)
		utils.GET("/model-info", s.handleModelInfo)
		utils.GET("/feature-categories", s.handleFeatureCategories)
		utils.GET("/feature-names", s.handleFeatureNames)
	}

	v1.GET("/config/prediction-threshold", s.handlePredictionThreshold)

	features := v1.Group("/features")
	{
		features.GET("/definitions", s.handleFeatureDefinitions)
		features.GET("/locales/:locale", s.handleFeatureLocales)
		features.GET("/labels", s.handleFeatureLabels)
	}

	v1.GET("/model-card", s.handleModelCard)
	v1.GET("/model-card/markdown", s.handleModelCardMarkdown)
	v1.GET("/model-card/versions", s.handleModelCardVersions)
	v1.GET("/model-card/versions/:version", s.handleModelCardVersion)
}
