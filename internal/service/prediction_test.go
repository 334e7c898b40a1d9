package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hear-ci-prediction-service/internal/cache"
	"github.com/hear-ci-prediction-service/internal/dataset"
	"github.com/hear-ci-prediction-service/internal/domain"
	"github.com/hear-ci-prediction-service/internal/explainer"
	"github.com/hear-ci-prediction-service/internal/model"
	"github.com/hear-ci-prediction-service/internal/preprocess"
)

type memPredictions struct {
	mu    sync.Mutex
	items []*domain.Prediction
	err   error
}

func (m *memPredictions) Create(_ context.Context, p *domain.Prediction) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	m.items = append(m.items, p)
	return nil
}

func (m *memPredictions) GetByID(_ context.Context, id uuid.UUID) (*domain.Prediction, error) {
	for _, p := range m.items {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memPredictions) List(_ context.Context, limit, offset int) ([]*domain.Prediction, error) {
	return m.items, nil
}

type countingRecorder struct {
	predictions  int
	explanations int
	cached       int
}

func (r *countingRecorder) ObservePrediction(time.Duration, error) { r.predictions++ }
func (r *countingRecorder) ObserveExplanation(_ string, _ time.Duration, _, cached bool, _ error) {
	r.explanations++
	if cached {
		r.cached++
	}
}

func quietLogger() *logrus.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

// ciModel is a 68-wide logistic regression weighting age and tinnitus.
func ciModel() *model.Adapter {
	coef := make([]float64, preprocess.NumFeatures)
	coef[preprocess.FeatureIndex(preprocess.FieldAge)] = -0.02
	coef[preprocess.FeatureIndex(preprocess.FieldTinnitus)] = 0.4
	coef[preprocess.FeatureIndex("Geschlecht_m")] = 0.1
	return model.NewAdapter(model.NewLogisticRegression(coef, 0.9), nil, preprocess.FeatureNames())
}

func newService(t *testing.T, mutate func(*Config)) *PredictionService {
	t.Helper()
	ci := dataset.NewCochlearImplantAdapter()
	cfg := Config{
		Wrapper: model.NewLoadedWrapper(ciModel(), ci, quietLogger()),
		Dataset: ci,
		Options: explainer.Options{LimeEnabled: true, LimeSamples: 200, Seed: 1},
		Clip:    true,
		Logger:  quietLogger(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	svc, err := NewPredictionService(cfg)
	require.NoError(t, err)
	return svc
}

func TestNewPredictionService_Required(t *testing.T) {
	_, err := NewPredictionService(Config{})
	assert.Error(t, err)

	_, err = NewPredictionService(Config{Wrapper: model.NewWrapper("x.json", nil, quietLogger())})
	assert.Error(t, err)
}

func TestPredict_ModelNotLoaded(t *testing.T) {
	ci := dataset.NewCochlearImplantAdapter()
	svc := newService(t, func(c *Config) {
		c.Wrapper = model.NewWrapper("missing.json", ci, quietLogger())
	})

	_, err := svc.Predict(context.Background(), map[string]interface{}{})
	assert.ErrorIs(t, err, domain.ErrModelNotLoaded)
	_, err = svc.Explain(context.Background(), map[string]interface{}{}, "")
	assert.ErrorIs(t, err, domain.ErrModelNotLoaded)
	_, err = svc.PredictBatch(context.Background(), nil, nil, false)
	assert.ErrorIs(t, err, domain.ErrModelNotLoaded)
	assert.False(t, svc.ModelLoaded())
}

func TestPredict_DeterministicAndClipped(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()
	raw := map[string]interface{}{"Alter [J]": 45, "Geschlecht": "m", "Symptome präoperativ.Tinnitus...": "ja"}

	first, err := svc.Predict(ctx, raw)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := svc.Predict(ctx, raw)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.GreaterOrEqual(t, first, model.ClipMin)
	assert.LessOrEqual(t, first, model.ClipMax)

	withExtra := map[string]interface{}{"unrelated": "value", "another": 12}
	for k, v := range raw {
		withExtra[k] = v
	}
	extra, err := svc.Predict(ctx, withExtra)
	require.NoError(t, err)
	assert.Equal(t, first, extra)
}

func TestPredict_EmptyInputUsesDefaults(t *testing.T) {
	svc := newService(t, nil)

	p, err := svc.Predict(context.Background(), map[string]interface{}{})
	require.NoError(t, err)
	// default age 50 and gender w
	assert.InDelta(t, model.Sigmoid(0.9-0.02*50), p, 1e-12)
}

func TestPredict_ValidationError(t *testing.T) {
	svc := newService(t, nil)

	_, err := svc.Predict(context.Background(), map[string]interface{}{"age": 150})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "Age must be between 0 and 120 years", verr.Error())
	assert.True(t, IsClientError(err))
}

func TestPredictAndExplain_Consistent(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()
	inputs := []map[string]interface{}{
		{},
		{"Alter [J]": 70, "Geschlecht": "w"},
		{"age": 30, "gender": "male", "tinnitus": "ja", "extra": true},
	}

	for _, raw := range inputs {
		p, err := svc.Predict(ctx, raw)
		require.NoError(t, err)
		for _, method := range []string{"shap", "coefficient", "lime"} {
			exp, err := svc.Explain(ctx, raw, method)
			require.NoError(t, err, method)
			assert.Equal(t, p, exp.Prediction, method)
			assert.Len(t, exp.ShapValues, preprocess.NumFeatures)
			assert.LessOrEqual(t, len(exp.TopFeatures), 5)
			assert.Nil(t, exp.PlotBase64)
		}
	}
}

func TestExplainVector_LogitInvariant(t *testing.T) {
	svc := newService(t, func(c *Config) { c.Clip = false })
	ctx := context.Background()
	raw := map[string]interface{}{"Alter [J]": 64, "Geschlecht": "m", "tinnitus": "ja"}

	x, err := svc.prepare(ctx, raw)
	require.NoError(t, err)
	p, err := svc.Predict(ctx, raw)
	require.NoError(t, err)

	exp, err := svc.ExplainVector(ctx, x, "coefficient")
	require.NoError(t, err)
	assert.InDelta(t, model.Logit(p), exp.BaseValue+exp.Sum(), 1e-9)
	assert.InDelta(t, 0.4, exp.FeatureImportance[preprocess.FieldTinnitus], 1e-12)
}

func TestExplain_Methods(t *testing.T) {
	svc := newService(t, nil)
	ctx := context.Background()

	exp, err := svc.Explain(ctx, map[string]interface{}{}, "")
	require.NoError(t, err)
	assert.Equal(t, explainer.MethodShap, exp.Method)
	assert.False(t, exp.Degraded)

	_, err = svc.Explain(ctx, map[string]interface{}{}, "anchors")
	assert.True(t, IsClientError(err))

	noLime := newService(t, func(c *Config) { c.Options.LimeEnabled = false })
	_, err = noLime.Explain(ctx, map[string]interface{}{}, "lime")
	assert.ErrorIs(t, err, domain.ErrMethodUnavailable)
}

func TestExplain_Cache(t *testing.T) {
	rec := &countingRecorder{}
	c, err := cache.New(cache.Config{MemorySize: 16}, nil, quietLogger())
	require.NoError(t, err)
	svc := newService(t, func(cfg *Config) {
		cfg.Cache = c
		cfg.Recorder = rec
	})
	ctx := context.Background()
	raw := map[string]interface{}{"age": 40}

	a, err := svc.Explain(ctx, raw, "shap")
	require.NoError(t, err)
	b, err := svc.Explain(ctx, raw, "SHAP")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, 2, rec.explanations)
	assert.Equal(t, 1, rec.cached)
	assert.Equal(t, 2, rec.predictions)
	assert.Equal(t, int64(1), c.Stats().MemoryHits)
}

func TestPredictAndPersist(t *testing.T) {
	ctx := context.Background()
	raw := map[string]interface{}{"age": 40}

	t.Run("no persist", func(t *testing.T) {
		resp, err := newService(t, nil).PredictAndPersist(ctx, raw, false)
		require.NoError(t, err)
		assert.Nil(t, resp.Persisted)
		assert.Empty(t, resp.Explanation)
	})

	t.Run("store not configured", func(t *testing.T) {
		resp, err := newService(t, nil).PredictAndPersist(ctx, raw, true)
		require.NoError(t, err)
		require.NotNil(t, resp.Persisted)
		assert.False(t, *resp.Persisted)
		assert.Equal(t, domain.ErrStoreUnavailable.Error(), resp.PersistError)
	})

	t.Run("persisted", func(t *testing.T) {
		repo := &memPredictions{}
		resp, err := newService(t, func(c *Config) { c.Predictions = repo }).PredictAndPersist(ctx, raw, true)
		require.NoError(t, err)
		assert.True(t, *resp.Persisted)
		require.Len(t, repo.items, 1)
		assert.Equal(t, repo.items[0].ID.String(), resp.PredictionID)
		assert.Equal(t, resp.Prediction, repo.items[0].Prediction)
	})

	t.Run("store failure does not fail request", func(t *testing.T) {
		repo := &memPredictions{err: errors.New("connection reset")}
		resp, err := newService(t, func(c *Config) { c.Predictions = repo }).PredictAndPersist(ctx, raw, true)
		require.NoError(t, err)
		assert.False(t, *resp.Persisted)
		assert.Contains(t, resp.PersistError, "connection reset")
		assert.Empty(t, resp.PredictionID)
	})
}

func TestPredictBatch(t *testing.T) {
	repo := &memPredictions{}
	svc := newService(t, func(c *Config) { c.Predictions = repo })

	rows := []map[string]interface{}{
		{"Alter [J]": "55"},
		{"Alter [J]": "300"},
		{"Geschlecht": "m"},
	}
	results, err := svc.PredictBatch(context.Background(), rows, []int{0, 2, 3}, true)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, 0, results[0].Row)
	require.NotNil(t, results[0].Prediction)
	assert.Nil(t, results[0].Error)

	assert.Equal(t, 2, results[1].Row)
	assert.Nil(t, results[1].Prediction)
	require.NotNil(t, results[1].Error)
	assert.Contains(t, *results[1].Error, "Age must be between")

	assert.Equal(t, 3, results[2].Row)
	assert.Len(t, repo.items, 2)
	assert.False(t, math.IsNaN(*results[2].Prediction))
}

func TestValidateFeatures(t *testing.T) {
	svc := newService(t, nil)

	r := svc.ValidateFeatures(map[string]interface{}{"age": 40, "gender": "w", "x": 1})
	assert.True(t, r.OK)
	assert.Empty(t, r.MissingFeatures)
	assert.Equal(t, 3, r.FeaturesCount)

	r = svc.ValidateFeatures(map[string]interface{}{})
	assert.False(t, r.OK)
	assert.Equal(t, []string{"Alter [J] (age)", "Geschlecht (gender)"}, r.MissingFeatures)
}
