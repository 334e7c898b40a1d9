package model

import (
	"fmt"
	"math"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/hear-ci-prediction-service/internal/domain"
)

// Probabilities are clipped into this range so callers never report
// absolute certainty.
const (
	ClipMin = 0.01
	ClipMax = 0.99
)

// InputPreparer turns a raw patient record into a model input vector.
// Dataset adapters implement it.
type InputPreparer interface {
	Preprocess(raw map[string]interface{}) ([]float64, error)
	FeatureNames() []string
}

// Info describes the loaded model for the model-info endpoint.
type Info struct {
	Loaded         bool     `json:"loaded"`
	ModelType      string   `json:"model_type,omitempty"`
	Kind           Kind     `json:"kind,omitempty"`
	Version        string   `json:"version,omitempty"`
	Path           string   `json:"path"`
	FeatureNamesIn []string `json:"feature_names_in_,omitempty"`
	NFeaturesIn    int      `json:"n_features_in_,omitempty"`
}

// Wrapper owns the process-wide model. It is built once in main and injected
// into handlers; reads are lock-free.
type Wrapper struct {
	path     string
	preparer InputPreparer
	adapter  atomic.Pointer[Adapter]
	logger   *logrus.Logger
}

// NewWrapper creates an unloaded wrapper for the artifact at path.
func NewWrapper(path string, preparer InputPreparer, logger *logrus.Logger) *Wrapper {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Wrapper{path: path, preparer: preparer, logger: logger}
}

// NewLoadedWrapper creates a wrapper around an already built adapter.
func NewLoadedWrapper(adapter *Adapter, preparer InputPreparer, logger *logrus.Logger) *Wrapper {
	w := NewWrapper("", preparer, logger)
	w.adapter.Store(adapter)
	return w
}

// Load reads the artifact from disk and swaps it in. On failure the
// previously loaded model, if any, stays active.
func (w *Wrapper) Load() error {
	adapter, err := LoadArtifact(w.path)
	if err != nil {
		w.logger.WithError(err).WithField("path", w.path).Error("Failed to load model")
		return err
	}
	w.adapter.Store(adapter)

	w.logger.WithFields(logrus.Fields{
		"path":       w.path,
		"model_type": adapter.ModelType(),
		"kind":       adapter.Kind(),
		"features":   adapter.NumFeatures(),
	}).Info("Model loaded")
	return nil
}

// IsLoaded reports whether a model is available.
func (w *Wrapper) IsLoaded() bool {
	return w.adapter.Load() != nil
}

// Adapter returns the loaded model adapter or ErrModelNotLoaded.
func (w *Wrapper) Adapter() (*Adapter, error) {
	a := w.adapter.Load()
	if a == nil {
		return nil, domain.ErrModelNotLoaded
	}
	return a, nil
}

// Preparer returns the dataset adapter used by PrepareInput.
func (w *Wrapper) Preparer() InputPreparer {
	return w.preparer
}

// Path returns the artifact location.
func (w *Wrapper) Path() string {
	return w.path
}

// FeatureNames returns the names of the prepared input columns, preferring
// the names recorded in the artifact.
func (w *Wrapper) FeatureNames() []string {
	if a := w.adapter.Load(); a != nil {
		if names := a.FeatureNames(); len(names) > 0 {
			return names
		}
	}
	if w.preparer != nil {
		return w.preparer.FeatureNames()
	}
	return nil
}

// PrepareInput converts a raw record into a vector of the width the loaded
// model expects.
func (w *Wrapper) PrepareInput(raw map[string]interface{}) ([]float64, error) {
	a, err := w.Adapter()
	if err != nil {
		return nil, err
	}
	if w.preparer == nil {
		return nil, fmt.Errorf("no dataset adapter configured")
	}
	x, err := w.preparer.Preprocess(raw)
	if err != nil {
		return nil, err
	}
	if err := a.CheckWidth(x); err != nil {
		return nil, w.enrichMismatch(err, a)
	}
	return x, nil
}

// Predict prepares raw and returns the positive-class probability.
func (w *Wrapper) Predict(raw map[string]interface{}, clip bool) (float64, error) {
	x, err := w.PrepareInput(raw)
	if err != nil {
		return 0, err
	}
	return w.PredictVector(x, clip)
}

// PredictVector returns the probability for an already prepared vector.
func (w *Wrapper) PredictVector(x []float64, clip bool) (float64, error) {
	a, err := w.Adapter()
	if err != nil {
		return 0, err
	}
	p, _, err := a.Probability(x)
	if err != nil {
		return 0, w.enrichMismatch(err, a)
	}
	if math.IsNaN(p) {
		return 0, fmt.Errorf("model returned NaN")
	}
	if clip {
		p = Clip(p)
	}
	return p, nil
}

// Info returns metadata about the loaded model.
func (w *Wrapper) Info() Info {
	info := Info{Path: w.path}
	a := w.adapter.Load()
	if a == nil {
		return info
	}
	info.Loaded = true
	info.ModelType = a.ModelType()
	info.Kind = a.Kind()
	info.Version = a.Version()
	info.FeatureNamesIn = a.FeatureNames()
	info.NFeaturesIn = a.NumFeatures()
	return info
}

// Clip bounds p to [ClipMin, ClipMax].
func Clip(p float64) float64 {
	return math.Max(ClipMin, math.Min(ClipMax, p))
}

func (w *Wrapper) enrichMismatch(err error, a *Adapter) error {
	mm, ok := err.(*domain.FeatureMismatchError)
	if !ok {
		return err
	}
	hints := []string{
		"check that the model artifact was exported for the configured dataset adapter",
	}
	if w.preparer != nil {
		if n := len(w.preparer.FeatureNames()); n != mm.Expected {
			hints = append(hints, fmt.Sprintf(
				"the dataset adapter produces %d columns; select an adapter or feature config with %d columns", n, mm.Expected))
		}
	}
	if names := a.FeatureNames(); len(names) > 0 {
		preview := names
		if len(preview) > 3 {
			preview = preview[:3]
		}
		hints = append(hints, "model feature names start with: "+strings.Join(preview, ", "))
	}
	hints = append(hints, "re-export the model with format_version 1 and feature_names_in matching the preprocessor")

	return &domain.FeatureMismatchError{Expected: mm.Expected, Got: mm.Got, Hints: hints}
}
