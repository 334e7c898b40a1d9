// Package dataset translates raw clinical records into model input vectors.
// Each adapter owns one input schema; the server picks one at startup.
package dataset

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/hear-ci-prediction-service/internal/domain"
)

// Adapter is the dataset side of the model pipeline.
type Adapter interface {
	// Preprocess converts a raw record into the ordered feature vector
	Preprocess(raw map[string]interface{}) ([]float64, error)

	// FeatureNames lists the vector columns in model input order
	FeatureNames() []string

	// FeatureSchema describes the accepted raw inputs
	FeatureSchema() Schema

	// ValidateInput reports whether raw is acceptable and why not
	ValidateInput(raw map[string]interface{}) (bool, string)
}

// Feature types understood by the config driven adapters.
const (
	TypeNumeric     = "numeric"
	TypeBinary      = "binary"
	TypeCategorical = "categorical"
)

// FeatureSpec describes one input feature of a schema.
type FeatureSpec struct {
	Name           string             `json:"name"`
	Type           string             `json:"type"`
	Aliases        []string           `json:"aliases,omitempty"`
	Default        interface{}        `json:"default,omitempty"`
	Min            *float64           `json:"min,omitempty"`
	Max            *float64           `json:"max,omitempty"`
	PositiveValues []string           `json:"positive_values,omitempty"`
	Encoding       string             `json:"encoding,omitempty"`
	Mapping        map[string]float64 `json:"mapping,omitempty"`
	Values         []string           `json:"values,omitempty"`
	Description    string             `json:"description,omitempty"`
}

// Schema is the self-description returned by FeatureSchema.
type Schema struct {
	DatasetName string        `json:"dataset_name,omitempty"`
	Description string        `json:"description,omitempty"`
	NFeatures   int           `json:"n_features,omitempty"`
	Features    []FeatureSpec `json:"features"`
}

// New selects the adapter named by cfg.DatasetAdapter.
func New(cfg domain.ModelConfig, logger *logrus.Logger) (Adapter, error) {
	switch strings.ToLower(cfg.DatasetAdapter) {
	case "", "ci":
		return NewCochlearImplantAdapter(), nil
	case "config":
		if cfg.FeatureConfig != "" {
			return LoadConfigAdapter(cfg.FeatureConfig, logger)
		}
		return LoadConfigAdapterForModel(cfg.ConfigDir, cfg.Name, logger)
	case "generic":
		if cfg.FeatureConfig == "" {
			return nil, fmt.Errorf("generic dataset adapter requires a feature config")
		}
		schema, err := readSchema(cfg.FeatureConfig)
		if err != nil {
			return nil, err
		}
		return NewGenericAdapter(*schema), nil
	default:
		return nil, fmt.Errorf("unknown dataset adapter: %s", cfg.DatasetAdapter)
	}
}

// resolve returns the value for spec: the canonical key when set, otherwise
// the first alias present in raw.
func resolve(raw map[string]interface{}, spec FeatureSpec) interface{} {
	if v := raw[spec.Name]; v != nil {
		return v
	}
	for _, alias := range spec.Aliases {
		if v, ok := raw[alias]; ok {
			return v
		}
	}
	return nil
}

// truthy mirrors the usual dynamic-language truthiness for decoded JSON values.
func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case []interface{}:
		return len(t) > 0
	case map[string]interface{}:
		return len(t) > 0
	}
	f, err := cast.ToFloat64E(v)
	return err == nil && f != 0
}

// toFloat parses v, trimming strings. nil is an error.
func toFloat(v interface{}) (float64, error) {
	if v == nil {
		return 0, fmt.Errorf("value is missing")
	}
	if s, ok := v.(string); ok {
		return cast.ToFloat64E(strings.TrimSpace(s))
	}
	if b, ok := v.(bool); ok {
		if b {
			return 1, nil
		}
		return 0, nil
	}
	return cast.ToFloat64E(v)
}
