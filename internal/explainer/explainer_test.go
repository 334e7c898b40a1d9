package explainer

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hear-ci-prediction-service/internal/dataset"
	"github.com/hear-ci-prediction-service/internal/domain"
	"github.com/hear-ci-prediction-service/internal/model"
	"github.com/hear-ci-prediction-service/internal/preprocess"
)

// interaction is a non-linear probabilistic model used to drive the
// sampling estimator.
type interaction struct{}

func (interaction) Name() string { return "Interaction" }
func (interaction) Kind() model.Kind { return model.KindGeneric }
func (interaction) NumFeatures() int { return 3 }
func (m interaction) Predict(x []float64) float64 { return math.Round(m.PredictProba(x)[1]) }
func (interaction) PredictProba(x []float64) []float64 {
	p := model.Sigmoid(x[0]*x[1] + 0.5*x[2])
	return []float64{1 - p, p}
}

func quietLogger() *logrus.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

func linearModel() *model.Adapter {
	lr := model.NewLogisticRegression([]float64{0.8, -1.2, 0.3}, -0.25)
	scaler := &model.StandardScaler{Mean: []float64{1, 2, 0}, Scale: []float64{2, 0.5, 1}}
	return model.NewAdapter(lr, scaler, []string{"a", "b", "c"})
}

// forest builds a two-tree ensemble over two features.
func forest(t *testing.T) *model.Adapter {
	t.Helper()
	deep := &model.Tree{Nodes: []model.Node{
		{Feature: 0, Threshold: 0.5, Left: 1, Right: 2, Value: []float64{4, 6}},
		{Left: -1, Right: -1, Value: []float64{3, 1}},
		{Feature: 1, Threshold: 0.5, Left: 3, Right: 4, Value: []float64{1, 5}},
		{Left: -1, Right: -1, Value: []float64{1, 1}},
		{Left: -1, Right: -1, Value: []float64{0, 4}},
	}}
	stump := &model.Tree{Nodes: []model.Node{
		{Feature: 1, Threshold: 0.5, Left: 1, Right: 2, Value: []float64{5, 5}},
		{Left: -1, Right: -1, Value: []float64{4, 1}},
		{Left: -1, Right: -1, Value: []float64{1, 4}},
	}}
	rf, err := model.NewRandomForestClassifier([]*model.Tree{deep, stump}, []float64{0, 1}, []float64{0.5, 0.5}, 2)
	require.NoError(t, err)
	return model.NewAdapter(rf, nil, []string{"x0", "x1"})
}

func TestFactory(t *testing.T) {
	f := DefaultFactory()
	assert.Equal(t, []string{"shap", "coefficient", "lime", "coef", "linear"}, f.Available())

	for _, name := range []string{"coefficient", "COEF", "Linear"} {
		e, err := f.Create(name, Options{})
		require.NoError(t, err, name)
		assert.Equal(t, MethodCoefficient, e.MethodName())
		assert.False(t, e.SupportsVisualization())
	}

	e, err := f.Create("shap", Options{})
	require.NoError(t, err)
	assert.Equal(t, MethodShap, e.MethodName())
	assert.True(t, e.SupportsVisualization())

	_, err = f.Create("anchor", Options{})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "method", verr.Field)
	assert.Equal(t, "Unknown explainer method: anchor. Available methods: shap, coefficient, lime, coef, linear", verr.Message)

	_, err = f.Create("lime", Options{})
	assert.True(t, errors.Is(err, domain.ErrMethodUnavailable))

	e, err = f.Create("lime", Options{LimeEnabled: true})
	require.NoError(t, err)
	assert.Equal(t, MethodLime, e.MethodName())
}

func TestFactory_Register(t *testing.T) {
	f := NewFactory()
	f.Register("Custom", NewCoefficientExplainer)
	f.Register("custom", NewShapExplainer)

	assert.Equal(t, []string{"custom"}, f.Available())
	e, err := f.Create("CUSTOM", Options{})
	require.NoError(t, err)
	assert.Equal(t, MethodShap, e.MethodName())
}

func TestCoefficientExplainer_LogitInvariant(t *testing.T) {
	m := linearModel()
	x := []float64{3, 1.5, -2}

	e, err := NewCoefficientExplainer(Options{})
	require.NoError(t, err)
	exp, err := e.Explain(context.Background(), m, x, []string{"a", "b"})
	require.NoError(t, err)

	assert.Equal(t, MethodCoefficient, exp.Method)
	assert.InDelta(t, model.Logit(exp.Prediction), exp.BaseValue+exp.Sum(), 1e-9)
	assert.Equal(t, -0.25, exp.BaseValue)
	assert.Equal(t, []string{"a", "b", "feature_2"}, exp.FeatureNames)
	assert.Equal(t, 3.0, exp.FeatureValues["a"])
	assert.Equal(t, "logit", exp.Metadata["output_space"])
	assert.False(t, exp.Degraded)
}

func TestCoefficientExplainer_Errors(t *testing.T) {
	e, _ := NewCoefficientExplainer(Options{})

	_, err := e.Explain(context.Background(), forest(t), []float64{1, 1}, nil)
	assert.ErrorContains(t, err, "only works with linear models")

	_, err = e.Explain(context.Background(), linearModel(), []float64{1, 2}, nil)
	assert.ErrorContains(t, err, "does not match feature count")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Explain(ctx, linearModel(), []float64{1, 2, 3}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestShapExplainer_Linear(t *testing.T) {
	m := linearModel()
	x := []float64{0.5, 2.5, 1}

	for _, bg := range [][][]float64{nil, {{1, 2, 0}, {3, 1, 1}, {-1, 4, 2}}} {
		e, err := NewShapExplainer(Options{Background: bg, Logger: quietLogger()})
		require.NoError(t, err)
		exp, err := e.Explain(context.Background(), m, x, nil)
		require.NoError(t, err)

		assert.Equal(t, MethodShap, exp.Method)
		assert.False(t, exp.Degraded)
		assert.Equal(t, "linear", exp.Metadata["algorithm"])
		assert.InDelta(t, model.Logit(exp.Prediction), exp.BaseValue+exp.Sum(), 1e-9)
	}
}

func TestShapExplainer_LinearMatchesCoefficientWithoutBackground(t *testing.T) {
	m := linearModel()
	x := []float64{2, 2, 2}

	shap, _ := NewShapExplainer(Options{Logger: quietLogger()})
	coef, _ := NewCoefficientExplainer(Options{})
	a, err := shap.Explain(context.Background(), m, x, nil)
	require.NoError(t, err)
	b, err := coef.Explain(context.Background(), m, x, nil)
	require.NoError(t, err)

	assert.InDeltaSlice(t, b.Values, a.Values, 1e-12)
	assert.Equal(t, b.BaseValue, a.BaseValue)
}

func TestShapExplainer_Tree(t *testing.T) {
	m := forest(t)
	e, _ := NewShapExplainer(Options{Logger: quietLogger()})

	for _, x := range [][]float64{{1, 1}, {0, 0}, {1, 0}, {0, 1}} {
		exp, err := e.Explain(context.Background(), m, x, nil)
		require.NoError(t, err)
		assert.Equal(t, "tree_path", exp.Metadata["algorithm"])
		assert.InDelta(t, 0.55, exp.BaseValue, 1e-12)
		assert.InDelta(t, exp.Prediction, exp.BaseValue+exp.Sum(), 1e-12, "x=%v", x)
	}

	exp, err := e.Explain(context.Background(), m, []float64{1, 1}, []string{"x0", "x1"})
	require.NoError(t, err)
	// deep tree: x0 moves 0.6 -> 5/6, x1 moves 5/6 -> 1; stump: x1 moves 0.5 -> 0.8
	assert.InDelta(t, (5.0/6-0.6)/2, exp.FeatureImportance["x0"], 1e-12)
	assert.InDelta(t, ((1-5.0/6)+0.3)/2, exp.FeatureImportance["x1"], 1e-12)
}

func TestShapExplainer_Sampling(t *testing.T) {
	m := model.NewAdapter(interaction{}, nil, nil)
	bg := [][]float64{{0, 0, 0}, {1, -1, 2}, {0.5, 0.5, -1}}
	x := []float64{2, 1, 1}

	e, _ := NewShapExplainer(Options{Background: bg, Permutations: 30, Seed: 7, Logger: quietLogger()})
	first, err := e.Explain(context.Background(), m, x, nil)
	require.NoError(t, err)
	second, err := e.Explain(context.Background(), m, x, nil)
	require.NoError(t, err)

	assert.Equal(t, "permutation", first.Metadata["algorithm"])
	assert.False(t, first.Degraded)
	assert.Equal(t, first.Values, second.Values)
	assert.InDelta(t, first.Prediction, first.BaseValue+first.Sum(), 1e-9)
	assert.Equal(t, 30, first.Metadata["permutations"])
}

func TestShapExplainer_SamplingFromArtifact(t *testing.T) {
	m, err := model.ParseArtifact([]byte(`{"model_type":"MLPClassifier","activation":"tanh",
		"coefs":[[[0.8,-0.3],[0.2,0.9],[-0.5,0.4]],[[1.5],[-1.2]]],"intercepts":[[0.1,-0.1],[0.2]]}`))
	require.NoError(t, err)
	require.Equal(t, model.KindGeneric, m.Kind())

	bg := [][]float64{{0, 0, 0}, {1, 0, 1}, {-1, 2, 0.5}}
	e, _ := NewShapExplainer(Options{Background: bg, Permutations: 12, Seed: 42, Logger: quietLogger()})
	exp, err := e.Explain(context.Background(), m, []float64{1.5, -0.5, 2}, []string{"a", "b", "c"})
	require.NoError(t, err)

	assert.Equal(t, MethodShap, exp.Method)
	assert.False(t, exp.Degraded)
	assert.Equal(t, "permutation", exp.Metadata["algorithm"])
	assert.Equal(t, string(model.KindGeneric), exp.Metadata["model_kind"])
	assert.InDelta(t, exp.Prediction, exp.BaseValue+exp.Sum(), 1e-9)
}

func TestShapExplainer_Fallback(t *testing.T) {
	logger, hook := test.NewNullLogger()

	t.Run("generic model without background", func(t *testing.T) {
		m := model.NewAdapter(interaction{}, nil, nil)
		e, _ := NewShapExplainer(Options{Logger: logger})
		exp, err := e.Explain(context.Background(), m, []float64{1, 1, 1}, nil)
		require.NoError(t, err)

		assert.Equal(t, MethodShapFallback, exp.Method)
		assert.True(t, exp.Degraded)
		assert.Contains(t, exp.FallbackReason, "background")
		assert.Equal(t, []float64{0, 0, 0}, exp.Values)
	})

	t.Run("linear model with mismatched background", func(t *testing.T) {
		e, _ := NewShapExplainer(Options{Background: [][]float64{{1, 2}}, Logger: logger})
		exp, err := e.Explain(context.Background(), linearModel(), []float64{1, 2, 3}, nil)
		require.NoError(t, err)

		assert.Equal(t, MethodCoefficientBased, exp.Method)
		assert.True(t, exp.Degraded)
		assert.NotEmpty(t, exp.FallbackReason)
		assert.InDelta(t, model.Logit(exp.Prediction), exp.BaseValue+exp.Sum(), 1e-9)
	})

	require.NotEmpty(t, hook.AllEntries())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestShapExplainer_WidthMismatch(t *testing.T) {
	e, _ := NewShapExplainer(Options{Logger: quietLogger()})
	_, err := e.Explain(context.Background(), linearModel(), []float64{1}, nil)
	var mismatch *domain.FeatureMismatchError
	assert.ErrorAs(t, err, &mismatch)
}

func TestLimeExplainer(t *testing.T) {
	lr := model.NewLogisticRegression([]float64{2, -2, 0}, 0)
	m := model.NewAdapter(lr, nil, nil)
	x := []float64{0, 0, 0}

	e, err := NewLimeExplainer(Options{LimeEnabled: true, LimeSamples: 500, Seed: 3})
	require.NoError(t, err)
	exp, err := e.Explain(context.Background(), m, x, []string{"up", "down", "flat"})
	require.NoError(t, err)

	assert.Equal(t, MethodLime, exp.Method)
	assert.Greater(t, exp.FeatureImportance["up"], 0.0)
	assert.Less(t, exp.FeatureImportance["down"], 0.0)
	assert.Less(t, math.Abs(exp.FeatureImportance["flat"]), math.Abs(exp.FeatureImportance["up"]))
	assert.InDelta(t, 0.5, exp.BaseValue, 0.05)

	again, err := e.Explain(context.Background(), m, x, nil)
	require.NoError(t, err)
	assert.Equal(t, exp.Values, again.Values)
}

func TestTopFeatures(t *testing.T) {
	exp := newExplanation([]string{"a", "b", "c", "d"}, []float64{1, 2, 3, 4}, []float64{0.1, -0.5, 0.5, 0.2}, 0, 0.5, MethodShap)

	top := exp.TopFeatures(3)
	require.Len(t, top, 3)
	assert.Equal(t, "b", top[0].Feature)
	assert.Equal(t, "c", top[1].Feature)
	assert.Equal(t, "d", top[2].Feature)
	assert.Equal(t, 2.0, top[0].Value)

	assert.Len(t, exp.TopFeatures(0), 4)
	assert.Len(t, exp.TopFeatures(10), 4)
}

func TestSyntheticBackground(t *testing.T) {
	a := SyntheticRecords(DefaultBackgroundSamples, DefaultBackgroundSeed)
	b := SyntheticRecords(DefaultBackgroundSamples, DefaultBackgroundSeed)
	require.Len(t, a, 50)
	assert.Equal(t, a, b)

	for _, rec := range a {
		age := rec[preprocess.FieldAge].(int)
		assert.GreaterOrEqual(t, age, 18)
		assert.LessOrEqual(t, age, 90)
		assert.Contains(t, []string{"m", "w"}, rec[preprocess.FieldGender])
	}

	vectors, err := BuildBackground(dataset.NewCochlearImplantAdapter(), a)
	require.NoError(t, err)
	require.Len(t, vectors, 50)
	for _, v := range vectors {
		assert.Len(t, v, preprocess.NumFeatures)
	}
}

func TestLoadBackgroundCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "background.csv")
	content := "\ufeffAlter [J],Geschlecht\n45,m\n,\n60,\n70,w\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	records, err := LoadBackgroundCSV(path, 10, 42)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "45", records[0]["Alter [J]"])
	assert.NotContains(t, records[1], "Geschlecht")

	sampled, err := LoadBackgroundCSV(path, 2, 42)
	require.NoError(t, err)
	assert.Len(t, sampled, 2)

	vectors, err := LoadBackground(dataset.NewCochlearImplantAdapter(), filepath.Join(t.TempDir(), "missing.csv"), 5, 42, quietLogger())
	require.NoError(t, err)
	assert.Len(t, vectors, 5)
}
