// Package service orchestrates input preparation, prediction, explanation
// and persistence for the HTTP layer and the admin CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hear-ci-prediction-service/internal/cache"
	"github.com/hear-ci-prediction-service/internal/dataset"
	"github.com/hear-ci-prediction-service/internal/domain"
	"github.com/hear-ci-prediction-service/internal/explainer"
	"github.com/hear-ci-prediction-service/internal/model"
)

const defaultTopFeatures = 5

// Recorder receives prediction and explanation measurements.
type Recorder interface {
	ObservePrediction(d time.Duration, err error)
	ObserveExplanation(method string, d time.Duration, degraded, cached bool, err error)
}

type nopRecorder struct{}

func (nopRecorder) ObservePrediction(time.Duration, error) {}
func (nopRecorder) ObserveExplanation(string, time.Duration, bool, bool, error) {}

// Config collects the collaborators of a PredictionService. Only Wrapper and
// Dataset are required.
type Config struct {
	Wrapper     *model.Wrapper
	Dataset     dataset.Adapter
	Factory     *explainer.Factory
	Options     explainer.Options
	Cache       *cache.ExplanationCache
	Predictions domain.PredictionRepository

	DefaultMethod string
	TopFeatures   int
	Clip          bool

	Recorder Recorder
	Logger   *logrus.Logger
}

// PredictionService serves predictions and explanations for raw patient
// records. /predict and /explainer/explain share one code path for the
// probability, so both report the same value for the same input.
type PredictionService struct {
	wrapper     *model.Wrapper
	dataset     dataset.Adapter
	factory     *explainer.Factory
	opts        explainer.Options
	cache       *cache.ExplanationCache
	predictions domain.PredictionRepository

	method string
	topK   int
	clip   bool

	recorder Recorder
	logger   *logrus.Logger
}

// PredictResponse is the /predict payload.
type PredictResponse struct {
	Prediction   float64                `json:"prediction"`
	Explanation  map[string]interface{} `json:"explanation"`
	Persisted    *bool                  `json:"persisted,omitempty"`
	PredictionID string                 `json:"prediction_id,omitempty"`
	PersistError string                 `json:"persist_error,omitempty"`
}

// ExplainResponse is the /explainer/explain payload.
type ExplainResponse struct {
	Prediction        float64                         `json:"prediction"`
	FeatureImportance map[string]float64              `json:"feature_importance"`
	ShapValues        []float64                       `json:"shap_values"`
	BaseValue         float64                         `json:"base_value"`
	PlotBase64        *string                         `json:"plot_base64"`
	TopFeatures       []explainer.FeatureContribution `json:"top_features"`
	Method            string                          `json:"method"`
	Degraded          bool                            `json:"degraded"`
	FallbackReason    string                          `json:"fallback_reason,omitempty"`
}

// BatchResult is one row of a batch prediction.
type BatchResult struct {
	Row         int                    `json:"row"`
	Prediction  *float64               `json:"prediction"`
	Explanation map[string]interface{} `json:"explanation"`
	Error       *string                `json:"error"`
}

// ValidationReport summarizes whether stored features carry the essentials.
type ValidationReport struct {
	OK              bool     `json:"ok"`
	MissingFeatures []string `json:"missing_features"`
	FeaturesCount   int      `json:"features_count"`
}

// NewPredictionService validates cfg and fills defaults.
func NewPredictionService(cfg Config) (*PredictionService, error) {
	if cfg.Wrapper == nil {
		return nil, fmt.Errorf("model wrapper is required")
	}
	if cfg.Dataset == nil {
		return nil, fmt.Errorf("dataset adapter is required")
	}
	if cfg.Factory == nil {
		cfg.Factory = explainer.DefaultFactory()
	}
	if cfg.DefaultMethod == "" {
		cfg.DefaultMethod = explainer.MethodShap
	}
	if cfg.TopFeatures <= 0 {
		cfg.TopFeatures = defaultTopFeatures
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Options.Logger == nil {
		cfg.Options.Logger = cfg.Logger
	}

	return &PredictionService{
		wrapper:     cfg.Wrapper,
		dataset:     cfg.Dataset,
		factory:     cfg.Factory,
		opts:        cfg.Options,
		cache:       cfg.Cache,
		predictions: cfg.Predictions,
		method:      cfg.DefaultMethod,
		topK:        cfg.TopFeatures,
		clip:        cfg.Clip,
		recorder:    cfg.Recorder,
		logger:      cfg.Logger,
	}, nil
}

// ModelLoaded reports whether predictions can be served.
func (s *PredictionService) ModelLoaded() bool {
	return s.wrapper.IsLoaded()
}

// ModelInfo returns metadata of the loaded model.
func (s *PredictionService) ModelInfo() model.Info {
	return s.wrapper.Info()
}

// FeatureNames returns the prepared vector's column names.
func (s *PredictionService) FeatureNames() []string {
	return s.wrapper.FeatureNames()
}

// FeatureSchema returns the dataset adapter's schema.
func (s *PredictionService) FeatureSchema() dataset.Schema {
	return s.dataset.FeatureSchema()
}

// Predict returns the (optionally clipped) probability for a raw record.
func (s *PredictionService) Predict(ctx context.Context, raw map[string]interface{}) (float64, error) {
	x, err := s.prepare(ctx, raw)
	if err != nil {
		return 0, err
	}
	return s.predictVector(x)
}

// PredictAndPersist serves /predict. Persistence failures are reported in the
// response and never fail the request.
func (s *PredictionService) PredictAndPersist(ctx context.Context, raw map[string]interface{}, persist bool) (*PredictResponse, error) {
	p, err := s.Predict(ctx, raw)
	if err != nil {
		return nil, err
	}

	resp := &PredictResponse{Prediction: p, Explanation: map[string]interface{}{}}
	if !persist {
		return resp, nil
	}

	id, err := s.persist(ctx, raw, p, resp.Explanation)
	ok := err == nil
	resp.Persisted = &ok
	if err != nil {
		resp.PersistError = err.Error()
	} else {
		resp.PredictionID = id
	}
	return resp, nil
}

// PredictBatch predicts every row independently. Row failures are recorded
// on the row; persistence failures are logged and skipped.
func (s *PredictionService) PredictBatch(ctx context.Context, rows []map[string]interface{}, rowIndex []int, persist bool) ([]BatchResult, error) {
	if !s.wrapper.IsLoaded() {
		return nil, domain.ErrModelNotLoaded
	}

	results := make([]BatchResult, 0, len(rows))
	for i, raw := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row := i
		if i < len(rowIndex) {
			row = rowIndex[i]
		}
		res := BatchResult{Row: row, Explanation: map[string]interface{}{}}

		p, err := s.Predict(ctx, raw)
		if err != nil {
			msg := err.Error()
			res.Error = &msg
			results = append(results, res)
			continue
		}
		res.Prediction = &p

		if persist {
			if _, err := s.persist(ctx, raw, p, res.Explanation); err != nil {
				s.logger.WithError(err).WithField("row", row).Warn("Failed to persist batch prediction")
			}
		}
		results = append(results, res)
	}
	return results, nil
}

// Explain serves /explainer/explain. An empty method selects the configured
// default. The reported prediction is computed exactly as in Predict.
func (s *PredictionService) Explain(ctx context.Context, raw map[string]interface{}, method string) (*ExplainResponse, error) {
	if method == "" {
		method = s.method
	}
	method = strings.ToLower(method)

	x, err := s.prepare(ctx, raw)
	if err != nil {
		return nil, err
	}
	prediction, err := s.predictVector(x)
	if err != nil {
		return nil, err
	}

	exp, err := s.explainVector(ctx, x, method)
	if err != nil {
		return nil, err
	}

	values := exp.Values
	if values == nil {
		values = []float64{}
	}
	return &ExplainResponse{
		Prediction:        prediction,
		FeatureImportance: exp.FeatureImportance,
		ShapValues:        values,
		BaseValue:         exp.BaseValue,
		TopFeatures:       exp.TopFeatures(s.topK),
		Method:            exp.Method,
		Degraded:          exp.Degraded,
		FallbackReason:    exp.FallbackReason,
	}, nil
}

// ExplainVector returns the raw explanation for a prepared vector.
func (s *PredictionService) ExplainVector(ctx context.Context, x []float64, method string) (*explainer.Explanation, error) {
	if method == "" {
		method = s.method
	}
	return s.explainVector(ctx, x, strings.ToLower(method))
}

// ValidateFeatures checks stored features for age and gender.
func (s *PredictionService) ValidateFeatures(features map[string]interface{}) ValidationReport {
	missing := []string{}
	if !hasAny(features, "Alter [J]", "alter", "age") {
		missing = append(missing, "Alter [J] (age)")
	}
	if !hasAny(features, "Geschlecht", "geschlecht", "gender") {
		missing = append(missing, "Geschlecht (gender)")
	}
	return ValidationReport{
		OK:              len(missing) == 0,
		MissingFeatures: missing,
		FeaturesCount:   len(features),
	}
}

func (s *PredictionService) prepare(ctx context.Context, raw map[string]interface{}) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.wrapper.IsLoaded() {
		return nil, domain.ErrModelNotLoaded
	}
	if ok, msg := s.dataset.ValidateInput(raw); !ok {
		return nil, domain.NewValidationError("", msg, nil)
	}
	return s.wrapper.PrepareInput(raw)
}

func (s *PredictionService) predictVector(x []float64) (float64, error) {
	start := time.Now()
	p, err := s.wrapper.PredictVector(x, s.clip)
	s.recorder.ObservePrediction(time.Since(start), err)
	return p, err
}

func (s *PredictionService) explainVector(ctx context.Context, x []float64, method string) (*explainer.Explanation, error) {
	adapter, err := s.wrapper.Adapter()
	if err != nil {
		return nil, err
	}

	key := cache.Key(method, adapter.Version()+"|"+adapter.ModelType(), x)
	if s.cache != nil {
		if exp, ok := s.cache.Get(ctx, key); ok {
			s.recorder.ObserveExplanation(method, 0, exp.Degraded, true, nil)
			return exp, nil
		}
	}

	start := time.Now()
	ex, err := s.factory.Create(method, s.opts)
	if err != nil {
		s.recorder.ObserveExplanation(method, time.Since(start), false, false, err)
		return nil, err
	}
	exp, err := ex.Explain(ctx, adapter, x, s.wrapper.FeatureNames())
	if err != nil {
		s.recorder.ObserveExplanation(method, time.Since(start), false, false, err)
		return nil, err
	}
	s.recorder.ObserveExplanation(method, time.Since(start), exp.Degraded, false, nil)

	if exp.Degraded {
		s.logger.WithFields(logrus.Fields{
			"method":          method,
			"returned_method": exp.Method,
			"reason":          exp.FallbackReason,
		}).Warn("Explanation degraded")
	} else if s.cache != nil {
		s.cache.Set(ctx, key, exp)
	}
	return exp, nil
}

func (s *PredictionService) persist(ctx context.Context, raw map[string]interface{}, p float64, explanation map[string]interface{}) (string, error) {
	if s.predictions == nil {
		return "", domain.ErrStoreUnavailable
	}
	rec := &domain.Prediction{
		InputFeatures: domain.Features(raw),
		Prediction:    p,
		Explanation:   explanation,
	}
	if err := s.predictions.Create(ctx, rec); err != nil {
		s.logger.WithError(err).Warn("Failed to persist prediction")
		return "", fmt.Errorf("failed to persist prediction: %w", err)
	}
	return rec.ID.String(), nil
}

func hasAny(m map[string]interface{}, keys ...string) bool {
	for _, k := range keys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

// IsClientError reports whether err stems from invalid input rather than a
// server fault.
func IsClientError(err error) bool {
	var verr *domain.ValidationError
	return errors.As(err, &verr)
}
