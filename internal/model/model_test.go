package model

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hear-ci-prediction-service/internal/domain"
	"github.com/hear-ci-prediction-service/internal/preprocess"
)

// labelOnly exposes nothing but Predict, exercising the last step of the
// probability chain.
type labelOnly struct{ n int }

func (l labelOnly) Name() string { return "LabelOnly" }
func (l labelOnly) Kind() Kind { return KindGeneric }
func (l labelOnly) NumFeatures() int { return l.n }
func (l labelOnly) Predict(x []float64) float64 {
	if x[0] > 0 {
		return 1
	}
	return 0
}

type ciPreparer struct{}

func (ciPreparer) Preprocess(raw map[string]interface{}) ([]float64, error) {
	return preprocess.PreprocessPatientData(raw), nil
}

func (ciPreparer) FeatureNames() []string { return preprocess.FeatureNames() }

type fixedPreparer struct{ width int }

func (f fixedPreparer) Preprocess(map[string]interface{}) ([]float64, error) {
	return make([]float64, f.width), nil
}

func (f fixedPreparer) FeatureNames() []string { return make([]string, f.width) }

func quietLogger() *logrus.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

func stump() *Tree {
	return &Tree{Nodes: []Node{
		{Feature: 0, Threshold: 0.5, Left: 1, Right: 2, Value: []float64{5, 5}},
		{Left: -1, Right: -1, Value: []float64{4, 1}},
		{Left: -1, Right: -1, Value: []float64{1, 4}},
	}}
}

func TestAdapter_ProbabilityChain(t *testing.T) {
	tests := []struct {
		name   string
		est    Estimator
		x      []float64
		want   float64
		source Source
	}{
		{
			name:   "predict_proba",
			est:    NewLogisticRegression([]float64{1, -1}, 0.5),
			x:      []float64{1, 0},
			want:   Sigmoid(1.5),
			source: SourceProba,
		},
		{
			name:   "sigmoid of decision function",
			est:    NewLinearSVC([]float64{2, 0}, -1),
			x:      []float64{1, 3},
			want:   Sigmoid(1),
			source: SourceDecision,
		},
		{
			name:   "regressor output",
			est:    NewLinearRegression([]float64{0.1, 0.2}, 0.3),
			x:      []float64{1, 1},
			want:   0.6,
			source: SourceRegression,
		},
		{
			name:   "thresholded label",
			est:    labelOnly{n: 1},
			x:      []float64{2},
			want:   1,
			source: SourceLabel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAdapter(tt.est, nil, nil)
			p, src, err := a.Probability(tt.x)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, p, 1e-9)
			assert.Equal(t, tt.source, src)
		})
	}
}

func TestAdapter_WidthMismatch(t *testing.T) {
	a := NewAdapter(NewLogisticRegression([]float64{1, 2, 3}, 0), nil, nil)

	_, _, err := a.Probability([]float64{1})

	var mm *domain.FeatureMismatchError
	require.True(t, errors.As(err, &mm))
	assert.Equal(t, 3, mm.Expected)
	assert.Equal(t, 1, mm.Got)
}

func TestAdapter_ScalerAndCapabilities(t *testing.T) {
	scaler := &StandardScaler{Mean: []float64{10, 0}, Scale: []float64{2, 0}}
	a := NewAdapter(NewLogisticRegression([]float64{1, 1}, 0), scaler, []string{"a", "b"})

	assert.Equal(t, []float64{1, 3}, a.Transform([]float64{12, 3}))

	p, _, err := a.Probability([]float64{12, 3})
	require.NoError(t, err)
	assert.InDelta(t, Sigmoid(4), p, 1e-9)

	assert.Equal(t, KindLinear, a.Kind())
	assert.Equal(t, "LogisticRegression", a.ModelType())
	assert.Equal(t, []float64{1, 1}, a.Coefficients())
	assert.True(t, a.LogitOutput())
	assert.Nil(t, a.FeatureImportance())

	labels, err := a.Predict([][]float64{{12, 3}, {0, -10}})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0}, labels)
}

func TestTreeClassifier(t *testing.T) {
	forest, err := NewRandomForestClassifier([]*Tree{stump(), stump()}, []float64{0, 1}, []float64{1}, 1)
	require.NoError(t, err)

	a := NewAdapter(forest, nil, nil)
	assert.Equal(t, KindTree, a.Kind())
	assert.Nil(t, a.Coefficients())
	assert.Equal(t, []float64{1}, a.FeatureImportance())

	probs, err := a.PredictProba([][]float64{{0}, {1}})
	require.NoError(t, err)
	assert.InDelta(t, 0.2, probs[0], 1e-9)
	assert.InDelta(t, 0.8, probs[1], 1e-9)

	path := stump().DecisionPath([]float64{1})
	assert.Equal(t, []int{0, 2}, path)
	assert.InDelta(t, 0.5, stump().NodeProba(0, 1), 1e-9)
}

func TestTreeClassifier_RejectsBrokenTrees(t *testing.T) {
	broken := &Tree{Nodes: []Node{{Feature: 3, Left: 1, Right: 2, Value: []float64{1, 1}}}}

	_, err := NewDecisionTreeClassifier(broken, nil, nil, 1)

	assert.Error(t, err)
}

func TestParseArtifact(t *testing.T) {
	tests := []struct {
		name    string
		json    string
		wantErr string
		check   func(t *testing.T, a *Adapter)
	}{
		{
			name: "matrix coefficients and list intercept",
			json: `{"format_version":1,"model_type":"LogisticRegression","feature_names_in":["a","b"],
				"coef":[[0.5,-0.25]],"intercept":[0.1],"version":"v1"}`,
			check: func(t *testing.T, a *Adapter) {
				assert.Equal(t, []float64{0.5, -0.25}, a.Coefficients())
				b, ok := a.Intercept()
				assert.True(t, ok)
				assert.InDelta(t, 0.1, b, 1e-12)
				assert.Equal(t, "v1", a.Version())
				assert.Equal(t, []string{"a", "b"}, a.FeatureNames())
			},
		},
		{
			name: "random forest",
			json: `{"model_type":"RandomForestClassifier","n_features_in":1,"classes":[0,1],
				"trees":[{"nodes":[{"feature":0,"threshold":0.5,"left":1,"right":2,"value":[5,5]},
				{"feature":-2,"left":-1,"right":-1,"value":[4,1]},{"feature":-2,"left":-1,"right":-1,"value":[1,4]}]}]}`,
			check: func(t *testing.T, a *Adapter) {
				assert.Equal(t, "RandomForestClassifier", a.ModelType())
				assert.Equal(t, 1, a.NumFeatures())
			},
		},
		{
			name: "multi-layer perceptron",
			json: `{"model_type":"MLPClassifier","feature_names_in":["a","b"],"activation":"relu",
				"coefs":[[[1,-1],[0,1]],[[2],[-1]]],"intercepts":[[0,0],[-0.5]]}`,
			check: func(t *testing.T, a *Adapter) {
				assert.Equal(t, "MLPClassifier", a.ModelType())
				assert.Equal(t, KindGeneric, a.Kind())
				assert.Equal(t, 2, a.NumFeatures())
				assert.Nil(t, a.Coefficients())

				// hidden relu([1, 1]) -> 2 - 1 - 0.5
				p, src, err := a.Probability([]float64{1, 2})
				require.NoError(t, err)
				assert.Equal(t, SourceProba, src)
				assert.InDelta(t, Sigmoid(0.5), p, 1e-12)

				labels, err := a.Predict([][]float64{{1, 2}, {0, 0}})
				require.NoError(t, err)
				assert.Equal(t, []float64{1, 0}, labels)
			},
		},
		{
			name:    "perceptron with two outputs",
			json:    `{"model_type":"MLPClassifier","coefs":[[[1,1]]],"intercepts":[[0,0]]}`,
			wantErr: "needs 1",
		},
		{
			name:    "perceptron with broken layer chain",
			json:    `{"model_type":"MLPClassifier","coefs":[[[1,1]],[[1],[1],[1]]],"intercepts":[[0,0],[0]]}`,
			wantErr: "expects 3 inputs",
		},
		{
			name:    "perceptron activation",
			json:    `{"model_type":"MLPClassifier","activation":"softplus","coefs":[[[1]]],"intercepts":[[0]]}`,
			wantErr: "unsupported MLP activation",
		},
		{
			name:    "unknown model type",
			json:    `{"model_type":"XGBClassifier","coef":[1]}`,
			wantErr: "unsupported model type",
		},
		{
			name:    "missing coefficients",
			json:    `{"model_type":"LogisticRegression","n_features_in":2}`,
			wantErr: "no coefficients",
		},
		{
			name:    "feature names disagree with coefficients",
			json:    `{"model_type":"LogisticRegression","feature_names_in":["a"],"coef":[1,2]}`,
			wantErr: "2 coefficients for 1 features",
		},
		{
			name:    "scaler width",
			json:    `{"model_type":"LogisticRegression","coef":[1,2],"scaler":{"mean":[0],"scale":[1]}}`,
			wantErr: "scaler has 1 means",
		},
		{
			name:    "future format",
			json:    `{"format_version":9,"model_type":"LogisticRegression","coef":[1]}`,
			wantErr: "unsupported artifact format version",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := ParseArtifact([]byte(tt.json))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, a)
		})
	}
}

func TestWrapper_NotLoaded(t *testing.T) {
	w := NewWrapper(filepath.Join(t.TempDir(), "missing.json"), ciPreparer{}, quietLogger())

	assert.False(t, w.IsLoaded())
	err := w.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found")

	_, err = w.Predict(map[string]interface{}{}, true)
	assert.ErrorIs(t, err, domain.ErrModelNotLoaded)
	assert.False(t, w.Info().Loaded)
}

func TestWrapper_LoadFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"model_type":"LogisticRegression","coef":[0.5,0.5],"intercept":0}`), 0o644))

	w := NewWrapper(path, fixedPreparer{width: 2}, quietLogger())
	require.NoError(t, w.Load())

	info := w.Info()
	assert.True(t, info.Loaded)
	assert.Equal(t, "LogisticRegression", info.ModelType)
	assert.Equal(t, 2, info.NFeaturesIn)
	assert.Equal(t, path, info.Path)
}

func TestWrapper_EmptyInputUsesIntercept(t *testing.T) {
	coef := make([]float64, preprocess.NumFeatures)
	w := NewLoadedWrapper(NewAdapter(NewLogisticRegression(coef, -0.4), nil, nil), ciPreparer{}, quietLogger())

	p, err := w.Predict(map[string]interface{}{}, true)
	require.NoError(t, err)
	assert.InDelta(t, Sigmoid(-0.4), p, 1e-12)

	// A strongly positive intercept is clipped.
	w = NewLoadedWrapper(NewAdapter(NewLogisticRegression(coef, 12), nil, nil), ciPreparer{}, quietLogger())
	p, err = w.Predict(map[string]interface{}{}, true)
	require.NoError(t, err)
	assert.Equal(t, ClipMax, p)

	p, err = w.Predict(map[string]interface{}{}, false)
	require.NoError(t, err)
	assert.Greater(t, p, ClipMax)
}

func TestWrapper_DeterministicAndClipped(t *testing.T) {
	coef := make([]float64, preprocess.NumFeatures)
	for i := range coef {
		coef[i] = float64(i%7-3) * 0.4
	}
	w := NewLoadedWrapper(NewAdapter(NewLogisticRegression(coef, 0.2), nil, nil), ciPreparer{}, quietLogger())

	inputs := []map[string]interface{}{
		{},
		{"age": 90, "gender": "m", "tinnitus": "ja", "abstand": 5000},
		{"Alter [J]": 3, "cause": "Syndromal", "implant_type": "MED-EL"},
	}
	for _, raw := range inputs {
		first, err := w.Predict(raw, true)
		require.NoError(t, err)
		for i := 0; i < 5; i++ {
			again, err := w.Predict(raw, true)
			require.NoError(t, err)
			assert.Equal(t, first, again)
		}
		assert.GreaterOrEqual(t, first, ClipMin)
		assert.LessOrEqual(t, first, ClipMax)
	}
}

func TestWrapper_FeatureMismatchHints(t *testing.T) {
	a := NewAdapter(NewLogisticRegression([]float64{1, 2, 3}, 0), nil, []string{"x1", "x2", "x3"})
	w := NewLoadedWrapper(a, ciPreparer{}, quietLogger())

	_, err := w.Predict(map[string]interface{}{"age": 40}, true)

	var mm *domain.FeatureMismatchError
	require.True(t, errors.As(err, &mm))
	assert.Equal(t, 3, mm.Expected)
	assert.Equal(t, preprocess.NumFeatures, mm.Got)
	assert.NotEmpty(t, mm.Hints)
	assert.Contains(t, err.Error(), "x1, x2, x3")
}

func TestWrapper_FeatureNamesPreferArtifact(t *testing.T) {
	w := NewLoadedWrapper(NewAdapter(NewLogisticRegression([]float64{1}, 0), nil, []string{"only"}), fixedPreparer{width: 1}, quietLogger())
	assert.Equal(t, []string{"only"}, w.FeatureNames())

	w = NewLoadedWrapper(NewAdapter(NewLogisticRegression(make([]float64, 68), 0), nil, nil), ciPreparer{}, quietLogger())
	assert.Equal(t, preprocess.ExpectedFeatures, w.FeatureNames())
}
