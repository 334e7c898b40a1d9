package explainer

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/hear-ci-prediction-service/internal/domain"
	"github.com/hear-ci-prediction-service/internal/model"
)

const defaultPermutations = 64

// ShapExplainer computes Shapley attributions with the estimator that fits
// the model kind:
//
//	linear  exact linear SHAP in the model's output space (logit for classifiers)
//	tree    path attribution over every tree, in probability space
//	generic permutation sampling against the background, in probability space
//
// When the chosen estimator fails the result degrades to coefficient times
// value, or zero importance for non-linear models, and is flagged Degraded.
type ShapExplainer struct {
	background   [][]float64
	permutations int
	seed         int64
	logger       *logrus.Logger
}

// NewShapExplainer is the factory constructor.
func NewShapExplainer(opts Options) (Explainer, error) {
	perms := opts.Permutations
	if perms <= 0 {
		perms = defaultPermutations
	}
	return &ShapExplainer{
		background:   opts.Background,
		permutations: perms,
		seed:         opts.Seed,
		logger:       opts.logger(),
	}, nil
}

func (e *ShapExplainer) MethodName() string { return MethodShap }
func (e *ShapExplainer) SupportsVisualization() bool { return true }

func (e *ShapExplainer) Explain(ctx context.Context, m *model.Adapter, x []float64, featureNames []string) (*Explanation, error) {
	prediction, _, err := m.Probability(x)
	if err != nil {
		return nil, err
	}

	var (
		phi  []float64
		base float64
		meta map[string]interface{}
	)
	switch m.Kind() {
	case model.KindLinear:
		phi, base, meta, err = e.linear(m, x)
	case model.KindTree:
		phi, base, meta, err = e.tree(m, x)
	default:
		phi, base, meta, err = e.sampling(ctx, m, x)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return e.fallback(m, x, featureNames, prediction, err), nil
	}

	exp := newExplanation(featureNames, x, phi, base, prediction, MethodShap)
	for k, v := range meta {
		exp.Metadata[k] = v
	}
	exp.Metadata["shap_values"] = phi
	exp.Metadata["model_kind"] = string(m.Kind())
	return exp, nil
}

// linear: phi_i = coef_i * (z_i - mean_i) with base = intercept + coef . mean,
// where mean is the transformed background mean (zero without background).
func (e *ShapExplainer) linear(m *model.Adapter, x []float64) ([]float64, float64, map[string]interface{}, error) {
	coef := m.Coefficients()
	if coef == nil {
		return nil, 0, nil, fmt.Errorf("linear model exposes no coefficients")
	}

	var mean []float64
	if len(e.background) > 0 {
		var err error
		mean, err = transformedMean(m, e.background)
		if err != nil {
			return nil, 0, nil, err
		}
	}

	phi := linearContributions(m, x, mean)
	base, _ := m.Intercept()
	for i := range mean {
		base += coef[i] * mean[i]
	}
	return phi, base, map[string]interface{}{
		"algorithm":       "linear",
		"output_space":    outputSpace(m),
		"background_size": len(e.background),
	}, nil
}

// tree attributes each split's change in positive-class share to the split
// feature, averaged over the ensemble. base + sum(phi) equals the predicted
// probability.
func (e *ShapExplainer) tree(m *model.Adapter, x []float64) ([]float64, float64, map[string]interface{}, error) {
	ens, ok := m.Estimator().(model.TreeEnsemble)
	if !ok {
		return nil, 0, nil, fmt.Errorf("%s does not expose its trees", m.ModelType())
	}
	trees := ens.Trees()
	if len(trees) == 0 {
		return nil, 0, nil, fmt.Errorf("tree ensemble is empty")
	}

	z := m.Transform(x)
	cls := ens.PositiveClass()
	phi := make([]float64, len(z))
	var base float64

	for _, t := range trees {
		path := t.DecisionPath(z)
		base += t.NodeProba(path[0], cls)
		for i := 0; i+1 < len(path); i++ {
			parent, child := path[i], path[i+1]
			feature := t.Nodes[parent].Feature
			phi[feature] += t.NodeProba(child, cls) - t.NodeProba(parent, cls)
		}
	}

	n := float64(len(trees))
	base /= n
	for i := range phi {
		phi[i] /= n
	}
	return phi, base, map[string]interface{}{
		"algorithm":    "tree_path",
		"output_space": "probability",
		"n_trees":      len(trees),
	}, nil
}

// sampling estimates Shapley values by walking random feature orderings from
// a background sample to x. Each ordering's steps sum to f(x) - f(b), so the
// estimate is exactly additive around the mean sampled background output.
func (e *ShapExplainer) sampling(ctx context.Context, m *model.Adapter, x []float64) ([]float64, float64, map[string]interface{}, error) {
	if len(e.background) == 0 {
		return nil, 0, nil, fmt.Errorf("sampling SHAP requires background data")
	}
	for _, b := range e.background {
		if len(b) != len(x) {
			return nil, 0, nil, fmt.Errorf("background width %d does not match input width %d", len(b), len(x))
		}
	}

	rng := rand.New(rand.NewSource(e.seed))
	n := len(x)
	phi := make([]float64, n)
	var base float64
	v := make([]float64, n)

	for p := 0; p < e.permutations; p++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, nil, err
		}
		b := e.background[p%len(e.background)]
		copy(v, b)
		prev, _, err := m.Probability(v)
		if err != nil {
			return nil, 0, nil, err
		}
		base += prev
		for _, j := range rng.Perm(n) {
			v[j] = x[j]
			cur, _, err := m.Probability(v)
			if err != nil {
				return nil, 0, nil, err
			}
			phi[j] += cur - prev
			prev = cur
		}
	}

	k := float64(e.permutations)
	base /= k
	for i := range phi {
		phi[i] /= k
	}
	return phi, base, map[string]interface{}{
		"algorithm":       "permutation",
		"output_space":    "probability",
		"permutations":    e.permutations,
		"background_size": len(e.background),
	}, nil
}

func (e *ShapExplainer) fallback(m *model.Adapter, x []float64, names []string, prediction float64, cause error) *Explanation {
	e.logger.WithError(cause).WithField("model_type", m.ModelType()).Warn("SHAP explanation failed, using fallback")

	var exp *Explanation
	if coef := m.Coefficients(); coef != nil && len(coef) == len(x) {
		intercept, _ := m.Intercept()
		exp = newExplanation(names, x, linearContributions(m, x, nil), intercept, prediction, MethodCoefficientBased)
		exp.Metadata["note"] = "Using coefficient * value as SHAP approximation"
	} else {
		exp = newExplanation(names, x, make([]float64, len(x)), 0, prediction, MethodShapFallback)
		exp.Metadata["note"] = "No coefficients available, returning zero importance"
	}
	exp.Degraded = true
	exp.FallbackReason = cause.Error()
	return exp
}

func transformedMean(m *model.Adapter, background [][]float64) ([]float64, error) {
	width := m.NumFeatures()
	rows := make([][]float64, len(background))
	for i, row := range background {
		if len(row) != width {
			return nil, &domain.FeatureMismatchError{Expected: width, Got: len(row)}
		}
		rows[i] = m.Transform(row)
	}
	return columnMean(rows), nil
}
