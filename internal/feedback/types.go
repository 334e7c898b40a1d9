// Package feedback stores clinician feedback on served predictions. Entries
// are write-once; export and import move them between deployments.
package feedback

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/hear-ci-prediction-service/internal/domain"
)

// Store defines the feedback storage operations.
type Store interface {
	// Create stores a new entry and returns it with ID and timestamp set.
	Create(ctx context.Context, in *domain.FeedbackCreate) (*domain.Feedback, error)

	// GetByID returns domain.ErrNotFound for unknown IDs.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Feedback, error)

	// List returns entries newest first.
	List(ctx context.Context, limit, offset int) ([]*domain.Feedback, error)

	Count(ctx context.Context) (int64, error)

	// ExportJSON writes every entry in the export envelope.
	ExportJSON(ctx context.Context, writer io.Writer) error

	// ImportJSON reads an export envelope. Entries whose ID already exists
	// are skipped; entries without an ID get a fresh one.
	ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error)

	Close() error
}

// ExportVersion identifies the export envelope format.
const ExportVersion = "1.0"

// Export is the JSON export envelope.
type Export struct {
	Version    string             `json:"version"`
	ExportedAt time.Time          `json:"exported_at"`
	Count      int                `json:"count"`
	Feedback   []*domain.Feedback `json:"feedback"`
}

// Listing bounds
const (
	DefaultLimit   = 100
	MaxLimit       = 1000
	maxExportLimit = 1000000
)
