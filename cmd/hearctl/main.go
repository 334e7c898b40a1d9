// Package main provides hearctl, the administrative CLI: CSV imports,
// feedback export, schema migrations, configuration checks and versioned
// model cards.
//
// A leading --lite flag points feedback commands at the SQLite store of the
// standalone server instead of Postgres.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hear-ci-prediction-service/internal/admin"
	"github.com/hear-ci-prediction-service/internal/app"
	"github.com/hear-ci-prediction-service/internal/config"
	"github.com/hear-ci-prediction-service/internal/database"
	"github.com/hear-ci-prediction-service/internal/dataset"
	"github.com/hear-ci-prediction-service/internal/domain"
	"github.com/hear-ci-prediction-service/internal/feedback"
	"github.com/hear-ci-prediction-service/internal/model"
	"github.com/hear-ci-prediction-service/internal/modelcard"
	"github.com/hear-ci-prediction-service/internal/repository"
)

func main() {
	args := os.Args[1:]
	lite := len(args) > 0 && args[0] == "--lite"
	if lite {
		args = args[1:]
	}

	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cfg := configManager.GetConfig()
	logger := app.NewLogger(domain.LoggingConfig{Level: cfg.Logging.Level, Format: "text"})

	backend := admin.Backend{
		Patients: func(ctx context.Context) (domain.PatientRepository, func(), error) {
			db, err := database.NewConnection(ctx, cfg.Database, logger)
			if err != nil {
				return nil, nil, err
			}
			return repository.NewPatientRepository(db.Pool, logger), db.Close, nil
		},
		Feedback: func(ctx context.Context) (feedback.Store, error) {
			if lite {
				liteCfg := config.LoadLiteConfig()
				if err := liteCfg.EnsureDataDir(); err != nil {
					return nil, err
				}
				store, err := feedback.NewSQLiteStore(liteCfg.FeedbackDBPath())
				if err != nil {
					return nil, err
				}
				return store, nil
			}
			store, err := feedback.NewPostgresStoreFromURL(configManager.GetDatabaseURL())
			if err != nil {
				return nil, err
			}
			return store, nil
		},
		Migrator: func() (admin.Migrator, error) {
			runner, err := database.NewMigrationRunner(configManager.GetDatabaseURL(), cfg.Database.MigrationsPath, logger)
			if err != nil {
				return nil, err
			}
			return runner, nil
		},
		ValidateConfig: configManager.Validate,
		ModelInfo: func() (model.Info, error) {
			adapter, err := dataset.New(cfg.Model, logger)
			if err != nil {
				return model.Info{}, err
			}
			wrapper := model.NewWrapper(cfg.Model.Path, adapter, logger)
			if err := wrapper.Load(); err != nil {
				return wrapper.Info(), fmt.Errorf("failed to load model: %w", err)
			}
			return wrapper.Info(), nil
		},
		ModelCards: func() (*modelcard.Registry, error) {
			if cfg.ModelCard.Dir == "" {
				return nil, fmt.Errorf("model_card.dir is not set")
			}
			return modelcard.NewRegistry(cfg.ModelCard.Dir, logger)
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cli := admin.NewCLI(backend, os.Stdout, logger)
	if err := cli.Run(ctx, args); err != nil {
		cancel()
		log.Fatalf("hearctl: %v", err)
	}
}
