// Package model loads exported estimator artifacts and serves outcome
// probabilities through a process-wide ModelWrapper.
package model

import "math"

// Kind tags the structural family of an estimator. Explainers dispatch on it
// instead of probing for optional attributes.
type Kind string

const (
	KindLinear  Kind = "linear"
	KindTree    Kind = "tree"
	KindGeneric Kind = "generic"
)

// Estimator is the minimal contract every loaded model fulfils.
type Estimator interface {
	// Name returns the estimator type, e.g. "LogisticRegression"
	Name() string

	// Kind returns the structural family used for explainer dispatch
	Kind() Kind

	// NumFeatures returns the input width the estimator was fitted on
	NumFeatures() int

	// Predict returns the class label for classifiers or the value for regressors
	Predict(x []float64) float64
}

// ProbabilityEstimator is implemented by classifiers that expose class probabilities.
type ProbabilityEstimator interface {
	PredictProba(x []float64) []float64
}

// DecisionEstimator is implemented by margin classifiers.
type DecisionEstimator interface {
	DecisionFunction(x []float64) float64
}

// LinearEstimator exposes the weights of a linear model.
type LinearEstimator interface {
	Coefficients() []float64
	Intercept() float64
}

// ImportanceEstimator exposes impurity based feature importances.
type ImportanceEstimator interface {
	FeatureImportances() []float64
}

// Regressor marks estimators whose Predict output is a continuous score.
type Regressor interface {
	IsRegressor() bool
}

// TreeEnsemble gives explainers access to the fitted trees.
type TreeEnsemble interface {
	Trees() []*Tree
	// PositiveClass is the column of Node.Value holding the positive class
	PositiveClass() int
}

// Sigmoid maps a logit onto (0, 1).
func Sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// Logit is the inverse of Sigmoid. p is clamped away from 0 and 1.
func Logit(p float64) float64 {
	const eps = 1e-12
	p = math.Max(eps, math.Min(1-eps, p))
	return math.Log(p / (1 - p))
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func copyFloats(in []float64) []float64 {
	if in == nil {
		return nil
	}
	out := make([]float64, len(in))
	copy(out, in)
	return out
}
