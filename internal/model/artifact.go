package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// ArtifactFormatVersion is the current export schema version.
const ArtifactFormatVersion = 1

// Artifact is the JSON export of a fitted estimator or pipeline.
type Artifact struct {
	FormatVersion      int             `json:"format_version"`
	ModelType          string          `json:"model_type"`
	Version            string          `json:"version,omitempty"`
	FeatureNamesIn     []string        `json:"feature_names_in,omitempty"`
	NFeaturesIn        int             `json:"n_features_in,omitempty"`
	Classes            []float64       `json:"classes,omitempty"`
	Coef               weightVector    `json:"coef,omitempty"`
	Intercept          weightScalar    `json:"intercept"`
	Scaler             *StandardScaler `json:"scaler,omitempty"`
	Trees              []*Tree         `json:"trees,omitempty"`
	FeatureImportances []float64       `json:"feature_importances,omitempty"`
	Coefs              [][][]float64   `json:"coefs,omitempty"`
	Intercepts         [][]float64     `json:"intercepts,omitempty"`
	Activation         string          `json:"activation,omitempty"`
}

// weightVector accepts a flat coefficient list or the (n_classes, n_features)
// matrix form. For two rows the positive class row is used.
type weightVector []float64

func (w *weightVector) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*w = nil
		return nil
	}
	var flat []float64
	if err := json.Unmarshal(data, &flat); err == nil {
		*w = flat
		return nil
	}
	var matrix [][]float64
	if err := json.Unmarshal(data, &matrix); err != nil {
		return fmt.Errorf("coef must be a list or a list of lists: %w", err)
	}
	switch len(matrix) {
	case 0:
		*w = nil
	case 2:
		*w = matrix[1]
	default:
		*w = matrix[0]
	}
	return nil
}

// weightScalar accepts a number or a one-element list.
type weightScalar float64

func (w *weightScalar) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*w = 0
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*w = weightScalar(f)
		return nil
	}
	var list []float64
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("intercept must be a number or a list: %w", err)
	}
	if len(list) > 0 {
		*w = weightScalar(list[len(list)-1])
	}
	return nil
}

// LoadArtifact reads and builds the adapter stored at path.
func LoadArtifact(path string) (*Adapter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("model not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read model %s: %w", path, err)
	}
	return ParseArtifact(data)
}

// ParseArtifact decodes and builds an adapter from JSON bytes.
func ParseArtifact(data []byte) (*Adapter, error) {
	var art Artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, fmt.Errorf("failed to decode model artifact: %w", err)
	}
	return art.Build()
}

// Build validates the artifact and constructs the matching estimator.
func (a *Artifact) Build() (*Adapter, error) {
	if a.FormatVersion > ArtifactFormatVersion {
		return nil, fmt.Errorf("unsupported artifact format version %d", a.FormatVersion)
	}

	nFeatures := a.NFeaturesIn
	if nFeatures == 0 {
		nFeatures = len(a.FeatureNamesIn)
	}
	if nFeatures == 0 {
		nFeatures = len(a.Coef)
	}
	if nFeatures == 0 && len(a.Coefs) > 0 {
		nFeatures = len(a.Coefs[0])
	}

	var est Estimator
	switch a.ModelType {
	case "LogisticRegression", "LinearSVC", "LinearRegression":
		if len(a.Coef) == 0 {
			return nil, fmt.Errorf("%s artifact has no coefficients", a.ModelType)
		}
		if len(a.Coef) != nFeatures {
			return nil, fmt.Errorf("%s artifact has %d coefficients for %d features", a.ModelType, len(a.Coef), nFeatures)
		}
		est = a.linearEstimator()
	case "DecisionTreeClassifier":
		if len(a.Trees) != 1 {
			return nil, fmt.Errorf("DecisionTreeClassifier artifact must contain exactly one tree, got %d", len(a.Trees))
		}
		tc, err := NewDecisionTreeClassifier(a.Trees[0], a.Classes, a.FeatureImportances, nFeatures)
		if err != nil {
			return nil, err
		}
		est = tc
	case "RandomForestClassifier":
		tc, err := NewRandomForestClassifier(a.Trees, a.Classes, a.FeatureImportances, nFeatures)
		if err != nil {
			return nil, err
		}
		est = tc
	case "MLPClassifier":
		mlp, err := NewMLPClassifier(a.Coefs, a.Intercepts, a.Activation, a.Classes)
		if err != nil {
			return nil, err
		}
		if mlp.NumFeatures() != nFeatures {
			return nil, fmt.Errorf("MLPClassifier artifact has %d inputs for %d features", mlp.NumFeatures(), nFeatures)
		}
		est = mlp
	case "":
		return nil, fmt.Errorf("artifact is missing model_type")
	default:
		return nil, fmt.Errorf("unsupported model type: %s", a.ModelType)
	}

	if len(a.FeatureNamesIn) > 0 && len(a.FeatureNamesIn) != nFeatures {
		return nil, fmt.Errorf("artifact lists %d feature names for %d features", len(a.FeatureNamesIn), nFeatures)
	}
	if a.Scaler != nil {
		if err := a.Scaler.validate(nFeatures); err != nil {
			return nil, err
		}
	}

	adapter := NewAdapter(est, a.Scaler, a.FeatureNamesIn)
	adapter.version = a.Version
	return adapter, nil
}

func (a *Artifact) linearEstimator() Estimator {
	switch a.ModelType {
	case "LogisticRegression":
		m := NewLogisticRegression(a.Coef, float64(a.Intercept))
		if len(a.Classes) >= 2 {
			m.ClassTags = copyFloats(a.Classes)
		}
		return m
	case "LinearSVC":
		m := NewLinearSVC(a.Coef, float64(a.Intercept))
		if len(a.Classes) >= 2 {
			m.ClassTags = copyFloats(a.Classes)
		}
		return m
	default:
		return NewLinearRegression(a.Coef, float64(a.Intercept))
	}
}
