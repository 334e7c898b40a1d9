package explainer

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/hear-ci-prediction-service/internal/domain"
	"github.com/hear-ci-prediction-service/internal/model"
)

const (
	defaultLimeSamples = 1000
	limeRidgeAlpha     = 1.0
)

// LimeExplainer fits a locally weighted linear surrogate around x. Samples
// are drawn from a Gaussian centred on x with per-feature spread taken from
// the background, weighted by an exponential kernel on the standardized
// distance. Importance is the surrogate slope per standard deviation.
type LimeExplainer struct {
	scale   []float64
	samples int
	seed    int64
}

// NewLimeExplainer is the factory constructor. It fails with
// ErrMethodUnavailable when LIME is disabled.
func NewLimeExplainer(opts Options) (Explainer, error) {
	if !opts.LimeEnabled {
		return nil, fmt.Errorf("%w: LIME is disabled; set explainer.lime_enabled to use it", domain.ErrMethodUnavailable)
	}
	n := opts.LimeSamples
	if n <= 0 {
		n = defaultLimeSamples
	}
	return &LimeExplainer{
		scale:   columnStd(opts.Background),
		samples: n,
		seed:    opts.Seed,
	}, nil
}

func (e *LimeExplainer) MethodName() string { return MethodLime }
func (e *LimeExplainer) SupportsVisualization() bool { return false }

func (e *LimeExplainer) Explain(ctx context.Context, m *model.Adapter, x []float64, featureNames []string) (*Explanation, error) {
	prediction, _, err := m.Probability(x)
	if err != nil {
		return nil, err
	}

	d := len(x)
	scale := make([]float64, d)
	for j := range scale {
		scale[j] = 1
		if j < len(e.scale) && e.scale[j] > 0 {
			scale[j] = e.scale[j]
		}
	}

	rng := rand.New(rand.NewSource(e.seed))
	width := 0.75 * math.Sqrt(float64(d))
	offsets := make([][]float64, e.samples)
	targets := make([]float64, e.samples)
	weights := make([]float64, e.samples)
	sample := make([]float64, d)

	for i := 0; i < e.samples; i++ {
		if i%100 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		off := make([]float64, d)
		var dist2 float64
		// the first sample is x itself
		if i > 0 {
			for j := range off {
				off[j] = rng.NormFloat64()
				dist2 += off[j] * off[j]
			}
		}
		for j := range sample {
			sample[j] = x[j] + off[j]*scale[j]
		}
		p, _, err := m.Probability(sample)
		if err != nil {
			return nil, err
		}
		offsets[i] = off
		targets[i] = p
		weights[i] = math.Exp(-dist2 / (width * width))
	}

	beta, intercept, err := weightedRidge(offsets, targets, weights, limeRidgeAlpha)
	if err != nil {
		return nil, fmt.Errorf("fit local surrogate: %w", err)
	}

	exp := newExplanation(featureNames, x, beta, intercept, prediction, MethodLime)
	exp.Metadata["num_samples"] = e.samples
	exp.Metadata["kernel_width"] = width
	exp.Metadata["local_prediction"] = intercept
	exp.Metadata["output_space"] = "probability"
	return exp, nil
}
