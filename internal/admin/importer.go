package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/hear-ci-prediction-service/internal/domain"
	"github.com/hear-ci-prediction-service/internal/feedback"
)

var (
	femaleFirstNames = []string{"Anna", "Maria", "Lena", "Sofia", "Lea", "Mia", "Emilia", "Hannah", "Johanna", "Laura", "Sarah", "Julia"}
	maleFirstNames   = []string{"Max", "Paul", "Leon", "Jonas", "Lukas", "Noah", "Ben", "Finn", "Elias", "Felix", "Julian", "Tim"}
	lastNames        = []string{"Muster", "Schmidt", "Meyer", "Schneider", "Fischer", "Weber", "Wagner", "Becker", "Hoffmann", "Schulz", "Koch", "Bauer"}
)

// knownFeedbackColumns are read into feedback fields; every other column
// lands in input_features.
var knownFeedbackColumns = map[string]bool{
	"prediction":  true,
	"explanation": true,
	"accepted":    true,
	"comment":     true,
	"user_email":  true,
	"rating":      true,
}

// ImportResult counts the outcome of an import.
type ImportResult struct {
	Imported int
	Skipped  int
	Failed   int
}

// PatientImportOptions tunes ImportPatients.
type PatientImportOptions struct {
	// Pseudonyms assigns deterministic placeholder display names
	Pseudonyms bool
}

// PseudonymName returns "Last, First" for the idx-th imported patient,
// choosing the first name list by gender.
func PseudonymName(idx int, gender string) string {
	var first []string
	switch strings.ToLower(strings.TrimSpace(gender)) {
	case "w", "f", "female":
		first = femaleFirstNames
	case "m", "male":
		first = maleFirstNames
	default:
		first = append(append([]string{}, femaleFirstNames...), maleFirstNames...)
	}
	return fmt.Sprintf("%s, %s", lastNames[idx%len(lastNames)], first[idx%len(first)])
}

// ImportPatients creates one patient per non-empty CSV row. Insert failures
// are logged and counted; they do not stop the import.
func ImportPatients(ctx context.Context, repo domain.PatientRepository, r io.Reader, opts PatientImportOptions, logger *logrus.Logger) (*ImportResult, error) {
	if repo == nil {
		return nil, domain.ErrStoreUnavailable
	}
	table, err := ReadTable(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}

	res := &ImportResult{}
	for i, row := range table.Rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		features := PatientFeatures(row)
		if len(features) == 0 {
			res.Skipped++
			continue
		}

		in := &domain.PatientCreate{InputFeatures: features}
		if opts.Pseudonyms {
			gender, _ := features["gender"].(string)
			name := PseudonymName(i, gender)
			in.DisplayName = &name
		}
		if _, err := repo.Create(ctx, in); err != nil {
			res.Failed++
			logger.WithError(err).WithField("row", row.Index).Warn("Failed to insert patient row")
			continue
		}
		res.Imported++
	}
	return res, nil
}

// FeedbackFromRow maps known columns to feedback fields and collects the
// rest as input features. An unparsable explanation is kept under "raw".
func FeedbackFromRow(row Row) *domain.FeedbackCreate {
	fb := &domain.FeedbackCreate{InputFeatures: domain.Features{}}
	for h, v := range row.Cells {
		if !knownFeedbackColumns[strings.ToLower(h)] {
			fb.InputFeatures[h] = v
		}
	}

	if v, ok := cell(row, "prediction"); ok {
		if f, ok := ParseNumber(v); ok {
			fb.Prediction = &f
		}
	}
	if v, ok := cell(row, "explanation"); ok {
		var exp map[string]interface{}
		if err := json.Unmarshal([]byte(v), &exp); err != nil {
			exp = map[string]interface{}{"raw": v}
		}
		fb.Explanation = exp
	}
	if v, ok := cell(row, "accepted"); ok {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "y", "t", "ja":
			b := true
			fb.Accepted = &b
		default:
			b := false
			fb.Accepted = &b
		}
	}
	if v, ok := cell(row, "comment"); ok {
		fb.Comment = &v
	}
	if v, ok := cell(row, "user_email"); ok {
		fb.UserEmail = &v
	}
	if v, ok := cell(row, "rating"); ok {
		if f, ok := ParseNumber(v); ok {
			n := int(f)
			fb.Rating = &n
		}
	}
	return fb
}

func cell(row Row, name string) (string, bool) {
	for h, v := range row.Cells {
		if strings.EqualFold(h, name) {
			return v, true
		}
	}
	return "", false
}

// ImportFeedback stores one feedback entry per CSV row.
func ImportFeedback(ctx context.Context, store feedback.Store, r io.Reader, logger *logrus.Logger) (*ImportResult, error) {
	if store == nil {
		return nil, domain.ErrStoreUnavailable
	}
	table, err := ReadTable(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}

	res := &ImportResult{}
	for _, row := range table.Rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if _, err := store.Create(ctx, FeedbackFromRow(row)); err != nil {
			res.Failed++
			logger.WithError(err).WithField("row", row.Index).Warn("Failed to insert feedback row")
			continue
		}
		res.Imported++
	}
	return res, nil
}
