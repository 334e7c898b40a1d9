// Package modelcard describes the deployed model for clinicians: purpose,
// inputs, metrics and limits.
package modelcard

import (
	"fmt"
	"strings"
	"time"

	"github.com/hear-ci-prediction-service/internal/model"
)

// Metrics are the reported validation results. Unknown values stay nil.
type Metrics struct {
	Accuracy  *float64 `json:"accuracy"`
	Precision *float64 `json:"precision"`
	Recall    *float64 `json:"recall"`
	F1Score   *float64 `json:"f1_score"`
	ROCAUC    *float64 `json:"roc_auc"`
}

// Feature is one model input.
type Feature struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Card is the model card document.
type Card struct {
	Name            string                 `json:"name"`
	Version         string                 `json:"version"`
	LastUpdated     string                 `json:"last_updated"`
	ModelType       string                 `json:"model_type"`
	ModelPath       string                 `json:"model_path,omitempty"`
	Features        []Feature              `json:"features"`
	Metrics         *Metrics               `json:"metrics,omitempty"`
	IntendedUse     []string               `json:"intended_use"`
	NotIntendedFor  []string               `json:"not_intended_for"`
	Limitations     []string               `json:"limitations"`
	Recommendations []string               `json:"recommendations"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`

	// Set on cards kept in a Registry.
	Status         string           `json:"status,omitempty"`
	DeploymentDate string           `json:"deployment_date,omitempty"`
	RetiredDate    string           `json:"retired_date,omitempty"`
	Changelog      []ChangelogEntry `json:"changelog,omitempty"`
}

// ChangelogEntry records one change to a versioned card.
type ChangelogEntry struct {
	Date    string `json:"date"`
	Version string `json:"version"`
	Changes string `json:"changes"`
}

func f64(v float64) *float64 { return &v }

// Build assembles the card from the model info and the prepared feature
// names. now stamps last_updated.
func Build(info model.Info, featureNames []string, now time.Time) *Card {
	modelType := info.ModelType
	if !info.Loaded || modelType == "" {
		modelType = "LogisticRegression"
	}
	version := info.Version
	if version == "" {
		version = "v1 (draft)"
	}

	features := make([]Feature, len(featureNames))
	for i, name := range featureNames {
		features[i] = Feature{Name: name}
	}

	meta := map[string]interface{}{
		"is_loaded":                    info.Loaded,
		"n_features_from_preprocessor": len(featureNames),
	}
	if info.Loaded {
		meta["n_features"] = info.NFeaturesIn
		meta["model_kind"] = string(info.Kind)
	}

	return &Card{
		Name:        "HEAR CI Prediction Model",
		Version:     version,
		LastUpdated: now.Format("2006-01-02"),
		ModelType:   modelType,
		ModelPath:   info.Path,
		Features:    features,
		Metrics:     &Metrics{Accuracy: f64(0.68), F1Score: f64(0.61)},
		IntendedUse: []string{
			"Support clinicians estimating outcome probability",
			"Decision support tool for cochlear implant planning",
		},
		NotIntendedFor: []string{
			"Autonomous clinical decisions",
			"Use outside validated populations",
			"Legal or administrative decisions",
		},
		Limitations: []string{
			"Performance depends on background dataset used for SHAP",
			"Bias possible due to preprocessing defaults",
			"Not validated outside training population",
		},
		Recommendations: []string{
			"Use only as support tool",
			"Human medical judgment has priority",
			"Regular evaluation recommended",
		},
		Metadata: meta,
	}
}

// Markdown renders the card for display or export.
func (c *Card) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", c.Name)
	fmt.Fprintf(&b, "- **Version:** %s\n", c.Version)
	fmt.Fprintf(&b, "- **Last updated:** %s\n", c.LastUpdated)
	fmt.Fprintf(&b, "- **Model type:** %s\n", c.ModelType)
	if c.ModelPath != "" {
		fmt.Fprintf(&b, "- **Model path:** `%s`\n", c.ModelPath)
	}

	if c.Metrics != nil {
		b.WriteString("\n## Metrics\n\n| Metric | Value |\n|---|---|\n")
		rows := []struct {
			name string
			v    *float64
		}{
			{"Accuracy", c.Metrics.Accuracy},
			{"Precision", c.Metrics.Precision},
			{"Recall", c.Metrics.Recall},
			{"F1 score", c.Metrics.F1Score},
			{"ROC AUC", c.Metrics.ROCAUC},
		}
		for _, r := range rows {
			val := "n/a"
			if r.v != nil {
				val = fmt.Sprintf("%.2f", *r.v)
			}
			fmt.Fprintf(&b, "| %s | %s |\n", r.name, val)
		}
	}

	section := func(title string, items []string) {
		fmt.Fprintf(&b, "\n## %s\n\n", title)
		for _, it := range items {
			fmt.Fprintf(&b, "- %s\n", it)
		}
	}
	section("Intended use", c.IntendedUse)
	section("Not intended for", c.NotIntendedFor)
	section("Limitations", c.Limitations)
	section("Recommendations", c.Recommendations)

	fmt.Fprintf(&b, "\n## Features (%d)\n\n", len(c.Features))
	for _, f := range c.Features {
		if f.Description != "" {
			fmt.Fprintf(&b, "- `%s`: %s\n", f.Name, f.Description)
		} else {
			fmt.Fprintf(&b, "- `%s`\n", f.Name)
		}
	}
	return b.String()
}
