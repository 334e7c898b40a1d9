package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/hear-ci-prediction-service/internal/domain"
)

// PredictionRepository stores served predictions. Rows are write-once.
type PredictionRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewPredictionRepository creates a new prediction repository
func NewPredictionRepository(db *pgxpool.Pool, logger *logrus.Logger) *PredictionRepository {
	return &PredictionRepository{db: db, log: logger}
}

var _ domain.PredictionRepository = (*PredictionRepository)(nil)

// Create assigns the ID and creation time and inserts the row
func (r *PredictionRepository) Create(ctx context.Context, p *domain.Prediction) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	features := p.InputFeatures
	if features == nil {
		features = domain.Features{}
	}
	explanation := p.Explanation
	if explanation == nil {
		explanation = map[string]interface{}{}
	}

	query := `
		INSERT INTO predictions (id, input_features, prediction, explanation)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`

	if err := r.db.QueryRow(ctx, query, p.ID, features, p.Prediction, explanation).Scan(&p.CreatedAt); err != nil {
		r.log.WithFields(logrus.Fields{
			"prediction_id": p.ID,
			"error":         err,
		}).Error("Failed to store prediction")
		return fmt.Errorf("creating prediction: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"prediction_id": p.ID,
		"prediction":    p.Prediction,
	}).Debug("Prediction stored")
	return nil
}

// GetByID returns domain.ErrNotFound when no row matches
func (r *PredictionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Prediction, error) {
	query := `
		SELECT id, input_features, prediction, explanation, created_at
		FROM predictions WHERE id = $1`

	p, err := scanPrediction(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("prediction %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting prediction: %w", err)
	}
	return p, nil
}

// List returns predictions newest first
func (r *PredictionRepository) List(ctx context.Context, limit, offset int) ([]*domain.Prediction, error) {
	limit, offset = clampPage(limit, offset)
	query := `
		SELECT id, input_features, prediction, explanation, created_at
		FROM predictions
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing predictions: %w", err)
	}
	defer rows.Close()

	predictions := []*domain.Prediction{}
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning prediction: %w", err)
		}
		predictions = append(predictions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating predictions: %w", err)
	}
	return predictions, nil
}

func scanPrediction(row pgx.Row) (*domain.Prediction, error) {
	var p domain.Prediction
	if err := row.Scan(&p.ID, &p.InputFeatures, &p.Prediction, &p.Explanation, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
