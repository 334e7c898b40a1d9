package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hear-ci-prediction-service/internal/domain"
	"github.com/hear-ci-prediction-service/internal/feedback"
	"github.com/hear-ci-prediction-service/internal/model"
	"github.com/hear-ci-prediction-service/internal/modelcard"
)

// Migrator applies schema migrations.
type Migrator interface {
	Up() error
	Down(steps int) error
	Version() (uint, bool, error)
	Close() error
}

// Backend opens the resources a command needs. Each opener returns a
// release function that the caller invokes when done.
type Backend struct {
	Patients       func(ctx context.Context) (domain.PatientRepository, func(), error)
	Feedback       func(ctx context.Context) (feedback.Store, error)
	Migrator       func() (Migrator, error)
	ValidateConfig func() error
	ModelInfo      func() (model.Info, error)
	ModelCards     func() (*modelcard.Registry, error)
}

// CLI runs hearctl commands.
type CLI struct {
	backend Backend
	out     io.Writer
	logger  *logrus.Logger
}

// NewCLI creates a CLI writing human readable output to out.
func NewCLI(backend Backend, out io.Writer, logger *logrus.Logger) *CLI {
	if out == nil {
		out = os.Stdout
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CLI{backend: backend, out: out, logger: logger}
}

// Run executes the command named by args[0].
func (c *CLI) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return c.showHelp()
	}

	switch args[0] {
	case "import-patients":
		return c.importPatients(ctx, args[1:])
	case "import-feedback":
		return c.importFeedback(ctx, args[1:])
	case "export-feedback":
		return c.exportFeedback(ctx, args[1:])
	case "migrate":
		return c.migrate(args[1:])
	case "validate-config":
		return c.validateConfig()
	case "model-info":
		return c.modelInfo()
	case "model-cards":
		return c.modelCards(args[1:])
	case "help", "--help", "-h":
		return c.showHelp()
	default:
		fmt.Fprintf(c.out, "Unknown command: %s\n\n", args[0])
		c.showHelp()
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func (c *CLI) showHelp() error {
	fmt.Fprint(c.out, `
HEAR CI prediction service administration

Usage:
  hearctl <command> [options]

Commands:
  import-patients <file.csv> [--pseudonyms]  Create patients from a CSV export
  import-feedback <file.csv|file.json>       Import feedback rows or a JSON export
  export-feedback <file.json|->              Write all feedback as JSON
  migrate up|down [steps]|version            Manage the database schema
  validate-config                            Check configuration
  model-info                                 Load the model and print its metadata
  model-cards list|activate <v>|retire <v>   Manage versioned model cards

Examples:
  hearctl import-patients data/patients.csv --pseudonyms
  hearctl export-feedback - > feedback.json
  hearctl migrate down 1
  hearctl model-cards activate v1.1
`)
	return nil
}

func (c *CLI) importPatients(ctx context.Context, args []string) error {
	var path string
	opts := PatientImportOptions{}
	for _, a := range args {
		switch a {
		case "--pseudonyms", "-p":
			opts.Pseudonyms = true
		default:
			if path == "" {
				path = a
			}
		}
	}
	if path == "" {
		return fmt.Errorf("usage: hearctl import-patients <file.csv> [--pseudonyms]")
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("file not found: %s", path)
	}
	defer f.Close()

	repo, release, err := c.backend.Patients(ctx)
	if err != nil {
		return err
	}
	defer release()

	res, err := ImportPatients(ctx, repo, f, opts, c.logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Imported %d patients\n", res.Imported)
	if res.Failed > 0 {
		fmt.Fprintf(c.out, "Failed rows: %d\n", res.Failed)
	}
	return nil
}

func (c *CLI) importFeedback(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: hearctl import-feedback <file.csv|file.json>")
	}
	path := args[0]
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("file not found: %s", path)
	}
	defer f.Close()

	store, err := c.backend.Feedback(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	if strings.EqualFold(filepath.Ext(path), ".json") {
		imported, skipped, err := store.ImportJSON(ctx, f)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Imported %d feedback entries (%d skipped)\n", imported, skipped)
		return nil
	}

	res, err := ImportFeedback(ctx, store, f, c.logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Import complete: %d imported, %d failed\n", res.Imported, res.Failed)
	return nil
}

func (c *CLI) exportFeedback(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: hearctl export-feedback <file.json|->")
	}

	store, err := c.backend.Feedback(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	if args[0] == "-" {
		return store.ExportJSON(ctx, c.out)
	}

	if err := os.MkdirAll(filepath.Dir(args[0]), 0o755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}
	f, err := os.Create(args[0])
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	if err := store.ExportJSON(ctx, f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Exported feedback to %s\n", args[0])
	return nil
}

func (c *CLI) migrate(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: hearctl migrate up|down [steps]|version")
	}

	m, err := c.backend.Migrator()
	if err != nil {
		return err
	}
	defer m.Close()

	switch args[0] {
	case "up":
		if err := m.Up(); err != nil {
			return err
		}
	case "down":
		steps := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				return fmt.Errorf("invalid step count: %s", args[1])
			}
			steps = n
		}
		if err := m.Down(steps); err != nil {
			return err
		}
	case "version":
	default:
		return fmt.Errorf("unknown migrate command: %s", args[0])
	}

	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Schema version: %d", version)
	if dirty {
		fmt.Fprint(c.out, " (dirty)")
	}
	fmt.Fprintln(c.out)
	return nil
}

func (c *CLI) validateConfig() error {
	fmt.Fprintln(c.out, "Validating configuration...")
	if err := c.backend.ValidateConfig(); err != nil {
		fmt.Fprintf(c.out, "✗ %v\n", err)
		return err
	}
	fmt.Fprintln(c.out, "✓ Configuration is valid")
	return nil
}

func (c *CLI) modelInfo() error {
	info, err := c.backend.ModelInfo()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}

func (c *CLI) modelCards(args []string) error {
	usage := fmt.Errorf("usage: hearctl model-cards list|activate <version>|retire <version>")
	if len(args) == 0 {
		return usage
	}
	if c.backend.ModelCards == nil {
		return fmt.Errorf("model card directory not configured")
	}
	reg, err := c.backend.ModelCards()
	if err != nil {
		return err
	}

	switch args[0] {
	case "list":
		versions, err := reg.List()
		if err != nil {
			return err
		}
		if len(versions) == 0 {
			fmt.Fprintln(c.out, "No model cards")
			return nil
		}
		for _, v := range versions {
			marker := " "
			if v.Active {
				marker = "*"
			}
			fmt.Fprintf(c.out, "%s %-10s %-8s %-10s %s\n", marker, v.Version, v.Status, v.DeploymentDate, v.ModelType)
		}
		return nil
	case "activate", "retire":
		if len(args) < 2 {
			return usage
		}
		if args[0] == "activate" {
			err = reg.SetActiveVersion(args[1])
		} else {
			err = reg.Retire(args[1], time.Now())
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "Model card %s: %sd\n", args[1], args[0])
		return nil
	default:
		return usage
	}
}
