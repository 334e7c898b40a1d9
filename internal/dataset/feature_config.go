package dataset

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const uncategorized = "Uncategorized"

// FeatureConfig is the normalized form of features.yaml.
type FeatureConfig struct {
	// Mapping is technical name to display label
	Mapping map[string]string `json:"mapping"`

	// Categories is category label to technical names, in file order
	Categories map[string][]string `json:"categories"`

	// CategoryOrder lists category labels in first-seen order
	CategoryOrder []string `json:"category_order"`

	// Metadata holds every entry's remaining keys
	Metadata map[string]map[string]interface{} `json:"metadata"`
}

type featureFile struct {
	Features []map[string]interface{} `yaml:"features"`
}

// LoadFeatureConfig reads and normalizes a features.yaml file. Entries
// without a name are skipped; a missing label falls back to the name and a
// missing category to "Uncategorized".
func LoadFeatureConfig(path string) (*FeatureConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading feature config: %w", err)
	}
	return ParseFeatureConfig(data)
}

// ParseFeatureConfig normalizes YAML bytes.
func ParseFeatureConfig(data []byte) (*FeatureConfig, error) {
	var file featureFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing feature config: %w", err)
	}
	if len(file.Features) == 0 {
		return nil, fmt.Errorf("feature config has no features")
	}

	cfg := &FeatureConfig{
		Mapping:    make(map[string]string),
		Categories: make(map[string][]string),
		Metadata:   make(map[string]map[string]interface{}),
	}
	for _, entry := range file.Features {
		name, _ := entry["name"].(string)
		if name == "" {
			continue
		}
		label, _ := entry["label"].(string)
		if label == "" {
			label = name
		}
		category, _ := entry["category"].(string)
		if category == "" {
			category = uncategorized
		}

		cfg.Mapping[name] = label
		meta := make(map[string]interface{}, len(entry))
		for k, v := range entry {
			if k != "name" {
				meta[k] = v
			}
		}
		cfg.Metadata[name] = meta

		if _, seen := cfg.Categories[category]; !seen {
			cfg.CategoryOrder = append(cfg.CategoryOrder, category)
		}
		cfg.Categories[category] = append(cfg.Categories[category], name)
	}
	return cfg, nil
}
