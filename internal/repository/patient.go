package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/hear-ci-prediction-service/internal/domain"
)

// Listing bounds shared by the repositories
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

const patientColumns = `id, input_features, display_name, created_at, updated_at`

// PatientRepository persists patients in Postgres
type PatientRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewPatientRepository creates a new patient repository
func NewPatientRepository(db *pgxpool.Pool, logger *logrus.Logger) *PatientRepository {
	return &PatientRepository{db: db, log: logger}
}

var _ domain.PatientRepository = (*PatientRepository)(nil)

// Create inserts a patient and returns the stored row
func (r *PatientRepository) Create(ctx context.Context, in *domain.PatientCreate) (*domain.Patient, error) {
	features := in.InputFeatures
	if features == nil {
		features = domain.Features{}
	}

	query := `
		INSERT INTO patients (id, input_features, display_name)
		VALUES ($1, $2, $3)
		RETURNING ` + patientColumns

	p, err := scanPatient(r.db.QueryRow(ctx, query, uuid.New(), features, cleanName(in.DisplayName)))
	if err != nil {
		r.log.WithError(err).Error("Failed to create patient")
		return nil, fmt.Errorf("creating patient: %w", err)
	}

	r.log.WithField("patient_id", p.ID).Info("Patient created")
	return p, nil
}

// GetByID returns domain.ErrNotFound when no row matches
func (r *PatientRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients WHERE id = $1`

	p, err := scanPatient(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("patient %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("getting patient: %w", err)
	}
	return p, nil
}

// List returns patients newest first
func (r *PatientRepository) List(ctx context.Context, limit, offset int) ([]*domain.Patient, error) {
	limit, offset = clampPage(limit, offset)
	query := `
		SELECT ` + patientColumns + `
		FROM patients
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing patients: %w", err)
	}
	return collectPatients(rows)
}

// SearchByName matches display_name case-insensitively as a substring.
// The trigram index on display_name serves the ILIKE pattern.
func (r *PatientRepository) SearchByName(ctx context.Context, q string, limit int) ([]*domain.Patient, error) {
	limit, _ = clampPage(limit, 0)
	q = strings.TrimSpace(q)
	if q == "" {
		return []*domain.Patient{}, nil
	}

	query := `
		SELECT ` + patientColumns + `
		FROM patients
		WHERE display_name ILIKE $1
		ORDER BY display_name, created_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, "%"+escapeLike(q)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("searching patients: %w", err)
	}
	return collectPatients(rows)
}

// Count returns the total number of patients
func (r *PatientRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM patients`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting patients: %w", err)
	}
	return n, nil
}

// Update applies the non-nil fields of in and stamps updated_at. A blank
// display name clears the stored one.
func (r *PatientRepository) Update(ctx context.Context, id uuid.UUID, in *domain.PatientUpdate) (*domain.Patient, error) {
	query := `
		UPDATE patients SET
			input_features = COALESCE($2, input_features),
			display_name = CASE WHEN $4::boolean THEN $3 ELSE display_name END,
			updated_at = now()
		WHERE id = $1
		RETURNING ` + patientColumns

	var features interface{}
	if in.InputFeatures != nil {
		features = in.InputFeatures
	}

	p, err := scanPatient(r.db.QueryRow(ctx, query, id, features, cleanName(in.DisplayName), in.DisplayName != nil))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("patient %s: %w", id, domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{"patient_id": id, "error": err}).Error("Failed to update patient")
		return nil, fmt.Errorf("updating patient: %w", err)
	}

	r.log.WithField("patient_id", id).Info("Patient updated")
	return p, nil
}

// Delete hard-deletes a patient
func (r *PatientRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("patient %s: %w", id, domain.ErrNotFound)
	}
	r.log.WithField("patient_id", id).Info("Patient deleted")
	return nil
}

func scanPatient(row pgx.Row) (*domain.Patient, error) {
	var p domain.Patient
	if err := row.Scan(&p.ID, &p.InputFeatures, &p.DisplayName, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if p.InputFeatures == nil {
		p.InputFeatures = domain.Features{}
	}
	return &p, nil
}

func collectPatients(rows pgx.Rows) ([]*domain.Patient, error) {
	defer rows.Close()
	patients := []*domain.Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning patient: %w", err)
		}
		patients = append(patients, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating patients: %w", err)
	}
	return patients, nil
}

// cleanName trims a display name; blank names are stored as NULL
func cleanName(name *string) *string {
	if name == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*name)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
