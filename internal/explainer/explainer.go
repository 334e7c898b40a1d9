package explainer

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/hear-ci-prediction-service/internal/domain"
	"github.com/hear-ci-prediction-service/internal/model"
)

// Method names returned in Explanation.Method.
const (
	MethodShap             = "shap"
	MethodCoefficient      = "coefficient"
	MethodCoefficientBased = "coefficient_based"
	MethodShapFallback     = "shap_fallback"
	MethodLime             = "lime"
)

// Explainer produces an Explanation for one prepared input vector.
type Explainer interface {
	// Explain attributes the model output for x. featureNames may be shorter
	// than x; missing names become feature_<i>.
	Explain(ctx context.Context, m *model.Adapter, x []float64, featureNames []string) (*Explanation, error)

	// MethodName returns the registry name of the explainer
	MethodName() string

	// SupportsVisualization reports whether plots can be rendered
	SupportsVisualization() bool
}

// Options configures explainers at construction time.
type Options struct {
	// Background holds prepared reference vectors for SHAP and LIME
	Background [][]float64

	// Permutations bounds the sampling SHAP estimator
	Permutations int

	// Seed makes sampling explainers deterministic
	Seed int64

	LimeEnabled bool
	LimeSamples int

	Logger *logrus.Logger
}

func (o Options) logger() *logrus.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return logrus.StandardLogger()
}

// Constructor builds an explainer from options.
type Constructor func(opts Options) (Explainer, error)

// Factory is a string keyed explainer registry. Names are case-insensitive.
type Factory struct {
	mu       sync.RWMutex
	registry map[string]Constructor
	order    []string
}

// NewFactory returns an empty registry.
func NewFactory() *Factory {
	return &Factory{registry: make(map[string]Constructor)}
}

// DefaultFactory returns a registry with every built-in method and its aliases.
func DefaultFactory() *Factory {
	f := NewFactory()
	f.Register(MethodShap, NewShapExplainer)
	f.Register(MethodCoefficient, NewCoefficientExplainer)
	f.Register(MethodLime, NewLimeExplainer)
	f.Register("coef", NewCoefficientExplainer)
	f.Register("linear", NewCoefficientExplainer)
	return f
}

// Register adds or replaces a constructor.
func (f *Factory) Register(name string, ctor Constructor) {
	key := strings.ToLower(name)
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.registry[key]; !exists {
		f.order = append(f.order, key)
	}
	f.registry[key] = ctor
}

// Create builds the explainer registered under method.
func (f *Factory) Create(method string, opts Options) (Explainer, error) {
	f.mu.RLock()
	ctor, ok := f.registry[strings.ToLower(method)]
	f.mu.RUnlock()
	if !ok {
		return nil, &domain.ValidationError{
			Field:   "method",
			Message: fmt.Sprintf("Unknown explainer method: %s. Available methods: %s", method, strings.Join(f.Available(), ", ")),
			Value:   method,
		}
	}
	return ctor(opts)
}

// Available lists registered names in registration order.
func (f *Factory) Available() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]string(nil), f.order...)
}
