package explainer

import (
	"context"
	"fmt"

	"github.com/hear-ci-prediction-service/internal/model"
)

// CoefficientExplainer attributes a linear model output as coefficient times
// (transformed) feature value, with the intercept as base value. For logistic
// models base plus contributions equals the logit of the prediction.
type CoefficientExplainer struct{}

// NewCoefficientExplainer is the factory constructor.
func NewCoefficientExplainer(Options) (Explainer, error) {
	return &CoefficientExplainer{}, nil
}

func (e *CoefficientExplainer) MethodName() string { return MethodCoefficient }
func (e *CoefficientExplainer) SupportsVisualization() bool { return false }

func (e *CoefficientExplainer) Explain(ctx context.Context, m *model.Adapter, x []float64, featureNames []string) (*Explanation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	coef := m.Coefficients()
	if coef == nil {
		return nil, fmt.Errorf("model %s does not have coefficients. CoefficientExplainer only works with linear models", m.ModelType())
	}
	if len(coef) != len(x) {
		return nil, fmt.Errorf("coefficient count (%d) does not match feature count (%d)", len(coef), len(x))
	}

	prediction, _, err := m.Probability(x)
	if err != nil {
		return nil, err
	}
	contributions := linearContributions(m, x, nil)
	intercept, _ := m.Intercept()

	exp := newExplanation(featureNames, x, contributions, intercept, prediction, MethodCoefficient)
	exp.Metadata["coefficients"] = coef
	exp.Metadata["note"] = "Importance = coefficient × feature_value"
	exp.Metadata["output_space"] = outputSpace(m)
	return exp, nil
}

// linearContributions returns coef_i * (z_i - ref_i) in the transformed space,
// where z is the transformed input and ref defaults to zero.
func linearContributions(m *model.Adapter, x []float64, ref []float64) []float64 {
	coef := m.Coefficients()
	z := m.Transform(x)
	out := make([]float64, len(coef))
	for i := range coef {
		r := 0.0
		if ref != nil {
			r = ref[i]
		}
		out[i] = coef[i] * (z[i] - r)
	}
	return out
}

func outputSpace(m *model.Adapter) string {
	if m.LogitOutput() {
		return "logit"
	}
	return "raw"
}
