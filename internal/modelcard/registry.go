package modelcard

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Card statuses.
const (
	StatusActive  = "active"
	StatusTesting = "testing"
	StatusRetired = "retired"
)

const activeVersionFile = "active_version.txt"

var (
	// ErrNoCards is returned when the registry directory holds no card.
	ErrNoCards = errors.New("no model cards found")
	// ErrVersionNotFound is returned for a version without a card file.
	ErrVersionNotFound = errors.New("model card version not found")
	// ErrInvalidVersion is returned for names that cannot be a card file.
	ErrInvalidVersion = errors.New("invalid model card version")
)

// VersionSummary is one row of List.
type VersionSummary struct {
	Version        string   `json:"version"`
	File           string   `json:"file"`
	DeploymentDate string   `json:"deployment_date,omitempty"`
	RetiredDate    string   `json:"retired_date,omitempty"`
	Status         string   `json:"status"`
	ModelType      string   `json:"model_type"`
	Accuracy       *float64 `json:"accuracy,omitempty"`
	Active         bool     `json:"active"`
}

// Registry keeps versioned cards as {dir}/{version}.json. The active version
// is named in {dir}/active_version.txt; without that file the newest v*.json
// is active.
type Registry struct {
	dir    string
	logger *logrus.Logger
	mu     sync.Mutex
}

// NewRegistry opens the card directory, creating it when missing.
func NewRegistry(dir string, logger *logrus.Logger) (*Registry, error) {
	if dir == "" {
		return nil, fmt.Errorf("model card directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create model card directory: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Registry{dir: dir, logger: logger}, nil
}

func validVersion(version string) error {
	if version == "" || strings.ContainsAny(version, `/\`) || strings.HasPrefix(version, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidVersion, version)
	}
	return nil
}

func (r *Registry) path(version string) string {
	return filepath.Join(r.dir, version+".json")
}

// ActiveVersion returns the configured version, or the newest card by file
// name when none is configured.
func (r *Registry) ActiveVersion() (string, error) {
	data, err := os.ReadFile(filepath.Join(r.dir, activeVersionFile))
	switch {
	case err == nil:
		if v := strings.TrimSpace(string(data)); v != "" {
			return v, nil
		}
	case !errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("failed to read active version: %w", err)
	}

	files, err := filepath.Glob(filepath.Join(r.dir, "v*.json"))
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", ErrNoCards
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))
	return strings.TrimSuffix(filepath.Base(files[0]), ".json"), nil
}

// SetActiveVersion marks an existing version as active.
func (r *Registry) SetActiveVersion(version string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	card, err := r.Load(version)
	if err != nil {
		return err
	}
	if card.Status != StatusActive {
		card.Status = StatusActive
		if err := r.write(card); err != nil {
			return err
		}
	}
	if err := os.WriteFile(filepath.Join(r.dir, activeVersionFile), []byte(version), 0o644); err != nil {
		return fmt.Errorf("failed to write active version: %w", err)
	}
	r.logger.WithField("version", version).Info("Model card version activated")
	return nil
}

// Load reads one version.
func (r *Registry) Load(version string) (*Card, error) {
	if err := validVersion(version); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(r.path(version))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrVersionNotFound, version)
		}
		return nil, err
	}
	var card Card
	if err := json.Unmarshal(data, &card); err != nil {
		return nil, fmt.Errorf("invalid model card %s: %w", version, err)
	}
	if card.Version == "" {
		card.Version = version
	}
	return &card, nil
}

// Active loads the active version.
func (r *Registry) Active() (*Card, error) {
	version, err := r.ActiveVersion()
	if err != nil {
		return nil, err
	}
	return r.Load(version)
}

// List summarizes every readable card, newest deployment first. Unreadable
// files are skipped.
func (r *Registry) List() ([]VersionSummary, error) {
	files, err := filepath.Glob(filepath.Join(r.dir, "*.json"))
	if err != nil {
		return nil, err
	}
	active, _ := r.ActiveVersion()

	out := make([]VersionSummary, 0, len(files))
	for _, file := range files {
		version := strings.TrimSuffix(filepath.Base(file), ".json")
		card, err := r.Load(version)
		if err != nil {
			r.logger.WithError(err).WithField("file", file).Warn("Skipping model card")
			continue
		}
		status := card.Status
		if status == "" {
			status = "unknown"
		}
		s := VersionSummary{
			Version:        version,
			File:           filepath.Base(file),
			DeploymentDate: card.DeploymentDate,
			RetiredDate:    card.RetiredDate,
			Status:         status,
			ModelType:      card.ModelType,
			Active:         version == active,
		}
		if card.Metrics != nil {
			s.Accuracy = card.Metrics.Accuracy
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DeploymentDate > out[j].DeploymentDate
	})
	return out, nil
}

// Create stores a new version in testing status. An existing version is
// not overwritten.
func (r *Registry) Create(card *Card, now time.Time) error {
	if card == nil {
		return fmt.Errorf("model card is required")
	}
	if err := validVersion(card.Version); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := os.Stat(r.path(card.Version)); err == nil {
		return fmt.Errorf("model card version already exists: %s", card.Version)
	}
	stored := *card
	date := now.Format("2006-01-02")
	if stored.Status == "" {
		stored.Status = StatusTesting
	}
	if stored.DeploymentDate == "" {
		stored.DeploymentDate = date
	}
	stored.LastUpdated = date
	if len(stored.Changelog) == 0 {
		stored.Changelog = []ChangelogEntry{{Date: date, Version: stored.Version, Changes: "Initial version"}}
	}
	if err := r.write(&stored); err != nil {
		return err
	}
	r.logger.WithField("version", stored.Version).Info("Model card version created")
	return nil
}

// Retire marks a version as retired and records it in the changelog.
func (r *Registry) Retire(version string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	card, err := r.Load(version)
	if err != nil {
		return err
	}
	date := now.Format("2006-01-02")
	card.Status = StatusRetired
	card.RetiredDate = date
	card.Changelog = append(card.Changelog, ChangelogEntry{
		Date:    date,
		Version: version,
		Changes: "Version retired",
	})
	if err := r.write(card); err != nil {
		return err
	}
	r.logger.WithField("version", version).Info("Model card version retired")
	return nil
}

func (r *Registry) write(card *Card) error {
	data, err := json.MarshalIndent(card, "", "  ")
	if err != nil {
		return err
	}
	tmp := r.path(card.Version) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write model card: %w", err)
	}
	return os.Rename(tmp, r.path(card.Version))
}
