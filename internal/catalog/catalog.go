// Package catalog serves feature definitions and localized labels for the
// patient form. Files are read lazily and cached.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
)

// DefaultSection groups definitions that declare no section.
const DefaultSection = "Weitere"

// FeatureDefinition describes one form field.
type FeatureDefinition struct {
	Raw         string        `json:"raw"`
	Normalized  string        `json:"normalized"`
	Description string        `json:"description"`
	Options     []interface{} `json:"options,omitempty"`
	Section     string        `json:"section,omitempty"`
	InputType   string        `json:"input_type,omitempty"`
	Type        string        `json:"type,omitempty"`
	Multiple    *bool         `json:"multiple,omitempty"`
	OtherField  string        `json:"other_field,omitempty"`
	UIOnly      *bool         `json:"ui_only,omitempty"`
}

// Catalog reads definitions from {dir}/feature_definitions.json and locales
// from {dir}/feature_locales/{lang}.json and {dir}/section_locales/{lang}.json.
type Catalog struct {
	dir    string
	logger *logrus.Logger

	once        sync.Once
	definitions []FeatureDefinition

	locales *lru.Cache[string, map[string]string]
}

// New creates a catalog rooted at dir. cacheSize bounds the number of cached
// locale files.
func New(dir string, cacheSize int, logger *logrus.Logger) (*Catalog, error) {
	if cacheSize <= 0 {
		cacheSize = 16
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	cache, err := lru.New[string, map[string]string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create locale cache: %w", err)
	}
	return &Catalog{dir: dir, logger: logger, locales: cache}, nil
}

// NormalizeLocale reduces "de-AT" to "de" and defaults to "en".
func NormalizeLocale(locale string) string {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return "en"
	}
	return strings.ToLower(strings.SplitN(locale, "-", 2)[0])
}

// Definitions returns the cleaned feature definitions. Entries without raw
// or normalized name are dropped; a missing description defaults to the
// normalized name. A missing or malformed file yields an empty list.
func (c *Catalog) Definitions() []FeatureDefinition {
	c.once.Do(func() {
		c.definitions = c.loadDefinitions()
	})
	return c.definitions
}

// SectionOrder lists sections in order of first appearance.
func (c *Catalog) SectionOrder() []string {
	seen := make(map[string]bool)
	order := []string{}
	for _, d := range c.Definitions() {
		section := d.Section
		if section == "" {
			section = DefaultSection
		}
		if seen[section] {
			continue
		}
		seen[section] = true
		order = append(order, section)
	}
	return order
}

// FeatureLocales returns labels keyed by normalized name, falling back to
// English when the language file is missing.
func (c *Catalog) FeatureLocales(locale string) map[string]string {
	return c.loadLocale("feature_locales", NormalizeLocale(locale))
}

// SectionLocales returns localized section titles.
func (c *Catalog) SectionLocales(locale string) map[string]string {
	return c.loadLocale("section_locales", NormalizeLocale(locale))
}

// RawLabels maps each raw feature name to its localized label, falling back
// to the description and then the normalized name.
func (c *Catalog) RawLabels(locale string) map[string]string {
	labels := c.FeatureLocales(locale)
	out := make(map[string]string)
	for _, d := range c.Definitions() {
		if label, ok := labels[d.Normalized]; ok {
			out[d.Raw] = label
			continue
		}
		if d.Description != "" {
			out[d.Raw] = d.Description
		} else {
			out[d.Raw] = d.Normalized
		}
	}
	return out
}

func (c *Catalog) loadDefinitions() []FeatureDefinition {
	path := filepath.Join(c.dir, "feature_definitions.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.logger.WithError(err).WithField("path", path).Warn("Failed to read feature definitions")
		}
		return []FeatureDefinition{}
	}

	var doc struct {
		Features []json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		c.logger.WithError(err).WithField("path", path).Warn("Invalid feature definitions")
		return []FeatureDefinition{}
	}

	defs := make([]FeatureDefinition, 0, len(doc.Features))
	for _, raw := range doc.Features {
		var d FeatureDefinition
		if err := json.Unmarshal(raw, &d); err != nil {
			continue
		}
		if d.Raw == "" || d.Normalized == "" {
			continue
		}
		if d.Description == "" {
			d.Description = d.Normalized
		}
		defs = append(defs, d)
	}
	return defs
}

func (c *Catalog) loadLocale(kind, lang string) map[string]string {
	key := kind + "/" + lang
	if m, ok := c.locales.Get(key); ok {
		return m
	}

	path := filepath.Join(c.dir, kind, lang+".json")
	if _, err := os.Stat(path); err != nil && lang != "en" {
		path = filepath.Join(c.dir, kind, "en.json")
	}

	out := map[string]string{}
	data, err := os.ReadFile(path)
	if err == nil {
		var raw map[string]interface{}
		if err := json.Unmarshal(data, &raw); err != nil {
			c.logger.WithError(err).WithField("path", path).Warn("Invalid locale file")
		} else {
			for k, v := range raw {
				out[k] = fmt.Sprint(v)
			}
		}
	}
	c.locales.Add(key, out)
	return out
}
