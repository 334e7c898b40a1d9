package dataset

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

// GenericAdapter resolves names, aliases and defaults from a schema and
// converts values to numbers without domain specific encoding.
type GenericAdapter struct {
	schema Schema
}

// NewGenericAdapter wraps schema.
func NewGenericAdapter(schema Schema) *GenericAdapter {
	return &GenericAdapter{schema: schema}
}

// Preprocess fails when a value cannot be represented as a number.
func (a *GenericAdapter) Preprocess(raw map[string]interface{}) ([]float64, error) {
	out := make([]float64, len(a.schema.Features))
	for i, spec := range a.schema.Features {
		value := resolve(raw, spec)
		if value == nil {
			value = spec.Default
		}
		if value == nil {
			value = 0.0
		}

		if spec.Type == TypeCategorical && len(spec.Mapping) > 0 {
			key := strings.TrimSpace(cast.ToString(value))
			encoded, ok := spec.Mapping[key]
			if !ok {
				return nil, fmt.Errorf("feature %s: unknown category %q", spec.Name, key)
			}
			out[i] = encoded
			continue
		}

		v, err := toFloat(value)
		if err != nil {
			return nil, fmt.Errorf("feature %s: cannot convert %v to a number: %w", spec.Name, value, err)
		}
		out[i] = v
	}
	return out, nil
}

func (a *GenericAdapter) FeatureNames() []string {
	names := make([]string, len(a.schema.Features))
	for i, f := range a.schema.Features {
		names[i] = f.Name
	}
	return names
}

func (a *GenericAdapter) FeatureSchema() Schema {
	return a.schema
}

// ValidateInput accepts everything; conversion errors surface from Preprocess.
func (a *GenericAdapter) ValidateInput(map[string]interface{}) (bool, string) {
	return true, ""
}
