package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
)

var defaultPositiveValues = []string{"ja", "yes", "1", "true"}

// ConfigBasedAdapter is driven entirely by a JSON feature configuration, so a
// new model only needs a new config file.
type ConfigBasedAdapter struct {
	schema   Schema
	names    []string
	aliasMap map[string]string
	logger   *logrus.Logger
}

// NewConfigBasedAdapter builds an adapter from an already decoded schema.
func NewConfigBasedAdapter(schema Schema, logger *logrus.Logger) *ConfigBasedAdapter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	a := &ConfigBasedAdapter{
		schema:   schema,
		names:    make([]string, 0, len(schema.Features)),
		aliasMap: make(map[string]string),
		logger:   logger,
	}
	for _, f := range schema.Features {
		a.names = append(a.names, f.Name)
		a.aliasMap[f.Name] = f.Name
		for _, alias := range f.Aliases {
			a.aliasMap[alias] = f.Name
		}
	}

	logger.WithFields(logrus.Fields{
		"features": len(schema.Features),
		"aliases":  len(a.aliasMap),
	}).Info("Initialized config based dataset adapter")
	return a
}

// LoadConfigAdapter reads a JSON feature configuration from path.
func LoadConfigAdapter(path string, logger *logrus.Logger) (*ConfigBasedAdapter, error) {
	schema, err := readSchema(path)
	if err != nil {
		return nil, err
	}
	return NewConfigBasedAdapter(*schema, logger), nil
}

// LoadConfigAdapterForModel looks up {dir}/{modelName}_features.json.
func LoadConfigAdapterForModel(dir, modelName string, logger *logrus.Logger) (*ConfigBasedAdapter, error) {
	return LoadConfigAdapter(filepath.Join(dir, modelName+"_features.json"), logger)
}

func readSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("configuration file not found: %s", path)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("invalid JSON in %s: %w", path, err)
	}
	if _, ok := probe["features"]; !ok {
		return nil, fmt.Errorf("configuration must contain 'features' key: %s", path)
	}

	var schema Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("invalid feature configuration in %s: %w", path, err)
	}
	for i, f := range schema.Features {
		if f.Name == "" {
			return nil, fmt.Errorf("feature %d in %s has no name", i, path)
		}
	}
	return &schema, nil
}

// Preprocess encodes every configured feature in order.
func (a *ConfigBasedAdapter) Preprocess(raw map[string]interface{}) ([]float64, error) {
	out := make([]float64, len(a.schema.Features))
	for i, spec := range a.schema.Features {
		value := resolve(raw, spec)
		if value == nil {
			value = spec.Default
		}

		switch spec.Type {
		case TypeNumeric:
			out[i] = a.numeric(value, spec)
		case TypeBinary:
			out[i] = binary(value, spec)
		case TypeCategorical:
			out[i] = a.categorical(value, spec)
		default:
			a.logger.WithFields(logrus.Fields{
				"feature": spec.Name,
				"type":    spec.Type,
			}).Warn("Unknown feature type")
			out[i], _ = toFloat(value)
		}
	}
	return out, nil
}

func (a *ConfigBasedAdapter) numeric(value interface{}, spec FeatureSpec) float64 {
	v, err := toFloat(value)
	if err != nil {
		def := cast.ToFloat64(spec.Default)
		a.logger.WithFields(logrus.Fields{
			"feature": spec.Name,
			"value":   value,
			"default": def,
		}).Warn("Invalid numeric value, using default")
		return def
	}
	if spec.Min != nil {
		v = math.Max(v, *spec.Min)
	}
	if spec.Max != nil {
		v = math.Min(v, *spec.Max)
	}
	return v
}

func binary(value interface{}, spec FeatureSpec) float64 {
	if value == nil {
		return cast.ToFloat64(spec.Default)
	}
	positives := spec.PositiveValues
	if len(positives) == 0 {
		positives = defaultPositiveValues
	}
	if s, ok := value.(string); ok {
		s = strings.ToLower(strings.TrimSpace(s))
		for _, p := range positives {
			if s == strings.ToLower(p) {
				return 1
			}
		}
		return 0
	}
	if truthy(value) {
		return 1
	}
	return 0
}

func (a *ConfigBasedAdapter) categorical(value interface{}, spec FeatureSpec) float64 {
	def := cast.ToFloat64(spec.Default)
	switch spec.Encoding {
	case "", "label":
	case "onehot":
		a.logger.WithField("feature", spec.Name).Warn("One-hot encoding not supported for config features, using label encoding")
	default:
		a.logger.WithFields(logrus.Fields{
			"feature":  spec.Name,
			"encoding": spec.Encoding,
		}).Warn("Unknown encoding")
		return def
	}

	if value == nil {
		return def
	}
	key := strings.TrimSpace(cast.ToString(value))
	if encoded, ok := spec.Mapping[key]; ok {
		return encoded
	}
	return def
}

func (a *ConfigBasedAdapter) FeatureNames() []string {
	return append([]string(nil), a.names...)
}

func (a *ConfigBasedAdapter) FeatureSchema() Schema {
	return a.schema
}

// ValidateInput accepts input carrying at least one recognized key.
func (a *ConfigBasedAdapter) ValidateInput(raw map[string]interface{}) (bool, string) {
	for k := range raw {
		if _, ok := a.aliasMap[k]; ok {
			return true, ""
		}
	}

	known := make([]string, 0, len(a.aliasMap))
	for k := range a.aliasMap {
		known = append(known, k)
	}
	sort.Strings(known)
	if len(known) > 10 {
		known = known[:10]
	}
	return false, fmt.Sprintf("No recognized features found. Expected one of: [%s]...", strings.Join(known, ", "))
}
