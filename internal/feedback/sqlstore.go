package feedback

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hear-ci-prediction-service/internal/domain"
)

// sqlStore holds the database/sql logic shared by the Postgres and SQLite
// stores. bind rewrites "?" placeholders for the driver.
type sqlStore struct {
	db   *sql.DB
	bind func(query string) string
}

const feedbackColumns = `id, input_features, prediction, explanation, accepted, comment, user_email, rating, created_at`

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func questionMarks(query string) string { return query }

// dollarPlaceholders turns "?" into "$1", "$2", ... for lib/pq.
func dollarPlaceholders(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) Create(ctx context.Context, in *domain.FeedbackCreate) (*domain.Feedback, error) {
	fb := &domain.Feedback{
		ID:            uuid.New(),
		InputFeatures: in.InputFeatures,
		Prediction:    in.Prediction,
		Explanation:   in.Explanation,
		Accepted:      in.Accepted,
		Comment:       in.Comment,
		UserEmail:     in.UserEmail,
		Rating:        in.Rating,
		CreatedAt:     time.Now().UTC(),
	}
	if fb.InputFeatures == nil {
		fb.InputFeatures = domain.Features{}
	}
	if err := s.insert(ctx, fb); err != nil {
		return nil, err
	}
	return fb, nil
}

func (s *sqlStore) insert(ctx context.Context, fb *domain.Feedback) error {
	features, err := json.Marshal(fb.InputFeatures)
	if err != nil {
		return fmt.Errorf("failed to encode input features: %w", err)
	}
	var explanation interface{}
	if fb.Explanation != nil {
		raw, err := json.Marshal(fb.Explanation)
		if err != nil {
			return fmt.Errorf("failed to encode explanation: %w", err)
		}
		explanation = string(raw)
	}
	var rating interface{}
	if fb.Rating != nil {
		rating = int64(*fb.Rating)
	}

	_, err = s.db.ExecContext(ctx, s.bind(`
		INSERT INTO feedback (`+feedbackColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		fb.ID.String(),
		string(features),
		nullFloat(fb.Prediction),
		explanation,
		nullBool(fb.Accepted),
		nullString(fb.Comment),
		nullString(fb.UserEmail),
		rating,
		fb.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert feedback: %w", err)
	}
	return nil
}

func (s *sqlStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Feedback, error) {
	row := s.db.QueryRowContext(ctx, s.bind(`SELECT `+feedbackColumns+` FROM feedback WHERE id = ?`), id.String())
	fb, err := scanFeedback(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("feedback %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feedback: %w", err)
	}
	return fb, nil
}

func (s *sqlStore) List(ctx context.Context, limit, offset int) ([]*domain.Feedback, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx, s.bind(`
		SELECT `+feedbackColumns+`
		FROM feedback
		ORDER BY created_at DESC, id
		LIMIT ? OFFSET ?
	`), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	result := []*domain.Feedback{}
	for rows.Next() {
		fb, err := scanFeedback(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, fb)
	}
	return result, rows.Err()
}

func (s *sqlStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM feedback").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count feedback: %w", err)
	}
	return count, nil
}

func (s *sqlStore) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := s.List(ctx, maxExportLimit, 0)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(&Export{
		Version:    ExportVersion,
		ExportedAt: time.Now().UTC(),
		Count:      len(all),
		Feedback:   all,
	})
}

func (s *sqlStore) ImportJSON(ctx context.Context, reader io.Reader) (imported int, skipped int, err error) {
	var export Export
	if err := json.NewDecoder(reader).Decode(&export); err != nil {
		return 0, 0, fmt.Errorf("failed to decode JSON: %w", err)
	}

	for _, fb := range export.Feedback {
		if fb == nil {
			continue
		}
		if fb.ID == uuid.Nil {
			fb.ID = uuid.New()
		} else {
			_, err := s.GetByID(ctx, fb.ID)
			if err == nil {
				skipped++
				continue
			}
			if !errors.Is(err, domain.ErrNotFound) {
				return imported, skipped, fmt.Errorf("failed to check existing: %w", err)
			}
		}
		if fb.CreatedAt.IsZero() {
			fb.CreatedAt = time.Now().UTC()
		}
		if fb.InputFeatures == nil {
			fb.InputFeatures = domain.Features{}
		}
		if err := s.insert(ctx, fb); err != nil {
			return imported, skipped, err
		}
		imported++
	}
	return imported, skipped, nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

func scanFeedback(row scanner) (*domain.Feedback, error) {
	var (
		id          string
		features    []byte
		prediction  sql.NullFloat64
		explanation []byte
		accepted    sql.NullBool
		comment     sql.NullString
		email       sql.NullString
		rating      sql.NullInt64
		fb          domain.Feedback
	)
	if err := row.Scan(&id, &features, &prediction, &explanation, &accepted, &comment, &email, &rating, &fb.CreatedAt); err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid feedback id %q: %w", id, err)
	}
	fb.ID = parsed

	fb.InputFeatures = domain.Features{}
	if len(features) > 0 {
		if err := json.Unmarshal(features, &fb.InputFeatures); err != nil {
			return nil, fmt.Errorf("invalid input_features: %w", err)
		}
	}
	if len(explanation) > 0 {
		if err := json.Unmarshal(explanation, &fb.Explanation); err != nil {
			return nil, fmt.Errorf("invalid explanation: %w", err)
		}
	}
	if prediction.Valid {
		fb.Prediction = &prediction.Float64
	}
	if accepted.Valid {
		fb.Accepted = &accepted.Bool
	}
	if comment.Valid {
		fb.Comment = &comment.String
	}
	if email.Valid {
		fb.UserEmail = &email.String
	}
	if rating.Valid {
		r := int(rating.Int64)
		fb.Rating = &r
	}
	fb.CreatedAt = fb.CreatedAt.UTC()
	return &fb, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullBool(v *bool) sql.NullBool {
	if v == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
