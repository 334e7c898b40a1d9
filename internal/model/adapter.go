package model

import (
	"github.com/hear-ci-prediction-service/internal/domain"
)

// Source records which estimator capability produced a probability.
type Source string

const (
	SourceProba      Source = "predict_proba"
	SourceDecision   Source = "decision_function"
	SourceRegression Source = "predict"
	SourceLabel      Source = "label"
)

// Adapter is the framework-neutral view of a loaded pipeline. It is
// immutable after construction and safe for concurrent use.
type Adapter struct {
	pipeline     Pipeline
	featureNames []string
	version      string
}

// NewAdapter wraps an estimator with an optional scaler. featureNames may be
// nil when the artifact did not record them.
func NewAdapter(est Estimator, scaler *StandardScaler, featureNames []string) *Adapter {
	return &Adapter{
		pipeline:     Pipeline{Scaler: scaler, Estimator: est},
		featureNames: append([]string(nil), featureNames...),
	}
}

// Estimator returns the final pipeline step.
func (a *Adapter) Estimator() Estimator { return a.pipeline.Estimator }

// Kind returns the structural family of the final estimator.
func (a *Adapter) Kind() Kind { return a.pipeline.Estimator.Kind() }

// ModelType returns the estimator type name.
func (a *Adapter) ModelType() string { return a.pipeline.Estimator.Name() }

// NumFeatures returns the expected input width.
func (a *Adapter) NumFeatures() int { return a.pipeline.Estimator.NumFeatures() }

// FeatureNames returns the training column names, or nil.
func (a *Adapter) FeatureNames() []string {
	if len(a.featureNames) == 0 {
		return nil
	}
	return append([]string(nil), a.featureNames...)
}

// Version returns the artifact version string.
func (a *Adapter) Version() string { return a.version }

// Transform applies the pre-estimator pipeline steps to x.
func (a *Adapter) Transform(x []float64) []float64 {
	return a.pipeline.Transform(x)
}

// CheckWidth returns a FeatureMismatchError when x has the wrong width.
func (a *Adapter) CheckWidth(x []float64) error {
	if want := a.NumFeatures(); len(x) != want {
		return &domain.FeatureMismatchError{Expected: want, Got: len(x)}
	}
	return nil
}

// Probability returns the positive-class probability of a raw vector using
// the first available capability: predict_proba, sigmoid of the decision
// function, regressor output, or the thresholded label.
func (a *Adapter) Probability(x []float64) (float64, Source, error) {
	if err := a.CheckWidth(x); err != nil {
		return 0, "", err
	}
	z := a.Transform(x)
	est := a.pipeline.Estimator

	if pe, ok := est.(ProbabilityEstimator); ok {
		proba := pe.PredictProba(z)
		if len(proba) > 1 {
			return proba[1], SourceProba, nil
		}
		return proba[0], SourceProba, nil
	}
	if de, ok := est.(DecisionEstimator); ok {
		return Sigmoid(de.DecisionFunction(z)), SourceDecision, nil
	}
	if r, ok := est.(Regressor); ok && r.IsRegressor() {
		return est.Predict(z), SourceRegression, nil
	}
	if est.Predict(z) >= 0.5 {
		return 1, SourceLabel, nil
	}
	return 0, SourceLabel, nil
}

// Predict returns the raw estimator output (class label or regression value)
// for each row of X.
func (a *Adapter) Predict(X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for i, x := range X {
		if err := a.CheckWidth(x); err != nil {
			return nil, err
		}
		out[i] = a.pipeline.Estimator.Predict(a.Transform(x))
	}
	return out, nil
}

// PredictProba returns the positive-class probability for each row of X.
func (a *Adapter) PredictProba(X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for i, x := range X {
		p, _, err := a.Probability(x)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

// Coefficients returns the linear weights in transformed space, or nil for
// non-linear estimators.
func (a *Adapter) Coefficients() []float64 {
	if le, ok := a.pipeline.Estimator.(LinearEstimator); ok {
		return le.Coefficients()
	}
	return nil
}

// Intercept returns the linear bias and whether the estimator has one.
func (a *Adapter) Intercept() (float64, bool) {
	if le, ok := a.pipeline.Estimator.(LinearEstimator); ok {
		return le.Intercept(), true
	}
	return 0, false
}

// FeatureImportance returns impurity importances for tree models, or nil.
func (a *Adapter) FeatureImportance() []float64 {
	if ie, ok := a.pipeline.Estimator.(ImportanceEstimator); ok {
		return ie.FeatureImportances()
	}
	return nil
}

// LogitOutput reports whether Probability is the sigmoid of a linear score,
// which makes coefficient attributions additive in logit space.
func (a *Adapter) LogitOutput() bool {
	est := a.pipeline.Estimator
	if _, ok := est.(LinearEstimator); !ok {
		return false
	}
	switch est.(type) {
	case *LogisticRegression, *LinearSVC:
		return true
	}
	return false
}
