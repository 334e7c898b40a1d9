// Package explainer attributes a model prediction to its input features.
// SHAP, coefficient and LIME explainers share one interface and are created
// by name through a Factory.
package explainer

import (
	"fmt"
	"math"
	"sort"
)

// Explanation is the method-neutral result of an explainer.
type Explanation struct {
	FeatureImportance map[string]float64     `json:"feature_importance"`
	FeatureValues     map[string]float64     `json:"feature_values"`
	FeatureNames      []string               `json:"feature_names"`
	Values            []float64              `json:"values"`
	BaseValue         float64                `json:"base_value"`
	Prediction        float64                `json:"prediction"`
	Method            string                 `json:"method"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`

	// Degraded is set when the requested method failed and a cheaper
	// approximation was returned instead.
	Degraded       bool   `json:"degraded"`
	FallbackReason string `json:"fallback_reason,omitempty"`
}

// FeatureContribution is one row of a ranked explanation.
type FeatureContribution struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
	Value      float64 `json:"value"`
}

func newExplanation(names []string, x, importance []float64, base, prediction float64, method string) *Explanation {
	e := &Explanation{
		FeatureImportance: make(map[string]float64, len(importance)),
		FeatureValues:     make(map[string]float64, len(x)),
		FeatureNames:      make([]string, len(importance)),
		Values:            append([]float64(nil), importance...),
		BaseValue:         base,
		Prediction:        prediction,
		Method:            method,
		Metadata:          map[string]interface{}{},
	}
	for i := range importance {
		name := featureName(names, i)
		e.FeatureNames[i] = name
		e.FeatureImportance[name] = importance[i]
		if i < len(x) {
			e.FeatureValues[name] = x[i]
		}
	}
	return e
}

func featureName(names []string, i int) string {
	if i < len(names) && names[i] != "" {
		return names[i]
	}
	return fmt.Sprintf("feature_%d", i)
}

// Sum returns the total attribution.
func (e *Explanation) Sum() float64 {
	var s float64
	for _, v := range e.Values {
		s += v
	}
	return s
}

// TopFeatures returns the k contributions with the largest absolute
// importance. Ties keep feature order. k <= 0 returns all.
func (e *Explanation) TopFeatures(k int) []FeatureContribution {
	out := make([]FeatureContribution, len(e.FeatureNames))
	for i, name := range e.FeatureNames {
		out[i] = FeatureContribution{
			Feature:    name,
			Importance: e.Values[i],
			Value:      e.FeatureValues[name],
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].Importance) > math.Abs(out[j].Importance)
	})
	if k > 0 && k < len(out) {
		out = out[:k]
	}
	return out
}
