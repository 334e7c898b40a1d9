package domain

import (
	"context"

	"github.com/google/uuid"
)

// PatientRepository defines persistence for patient records
type PatientRepository interface {
	Create(ctx context.Context, in *PatientCreate) (*Patient, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	List(ctx context.Context, limit, offset int) ([]*Patient, error)
	SearchByName(ctx context.Context, query string, limit int) ([]*Patient, error)
	Count(ctx context.Context) (int64, error)
	Update(ctx context.Context, id uuid.UUID, in *PatientUpdate) (*Patient, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// PredictionRepository defines persistence for served predictions
type PredictionRepository interface {
	Create(ctx context.Context, p *Prediction) error
	GetByID(ctx context.Context, id uuid.UUID) (*Prediction, error)
	List(ctx context.Context, limit, offset int) ([]*Prediction, error)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetServerConfig() *ServerConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetDatabaseURL() string
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
