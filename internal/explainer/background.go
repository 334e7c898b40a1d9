package explainer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/hear-ci-prediction-service/internal/model"
	"github.com/hear-ci-prediction-service/internal/preprocess"
)

// Background defaults for the synthetic reference population.
const (
	DefaultBackgroundSamples       = 50
	DefaultBackgroundSeed    int64 = 42
)

type weighted struct {
	values []string
	probs  []float64
}

func (w weighted) pick(rng *rand.Rand) string {
	u := rng.Float64()
	var acc float64
	for i, p := range w.probs {
		acc += p
		if u < acc {
			return w.values[i]
		}
	}
	return w.values[len(w.values)-1]
}

var (
	bgGender   = weighted{[]string{"m", "w"}, []float64{0.45, 0.55}}
	bgLanguage = weighted{[]string{"Deutsch", "Englisch", "Andere"}, []float64{0.7, 0.2, 0.1}}
	bgOnset    = weighted{[]string{"postlingual", "praelingual", "perilingual"}, []float64{0.6, 0.3, 0.1}}
	bgCause    = weighted{[]string{"Unbekannt", "Genetisch", "Lärm", "Meningitis"}, []float64{0.5, 0.25, 0.15, 0.1}}
	bgTinnitus = weighted{[]string{"ja", "nein"}, []float64{0.4, 0.6}}
	bgImplant  = weighted{[]string{"Cochlear", "Advanced Bionics", "Med-El"}, []float64{0.5, 0.3, 0.2}}
)

// SyntheticRecords draws n raw patient records from a fixed population
// model. The same seed always yields the same records.
func SyntheticRecords(n int, seed int64) []map[string]interface{} {
	if n <= 0 {
		n = DefaultBackgroundSamples
	}
	rng := rand.New(rand.NewSource(seed))
	records := make([]map[string]interface{}, n)
	for i := range records {
		age := 50 + 15*rng.NormFloat64()
		if age < 18 {
			age = 18
		} else if age > 90 {
			age = 90
		}
		records[i] = map[string]interface{}{
			preprocess.FieldAge:       int(age),
			preprocess.FieldGender:    bgGender.pick(rng),
			"Primäre Sprache":         bgLanguage.pick(rng),
			preprocess.FieldLossOnset: bgOnset.pick(rng),
			preprocess.FieldCause:     bgCause.pick(rng),
			preprocess.FieldTinnitus:  bgTinnitus.pick(rng),
			preprocess.FieldImplant:   bgImplant.pick(rng),
		}
	}
	return records
}

// LoadBackgroundCSV reads raw records from a CSV export. Rows without any
// value are dropped and empty cells are omitted so the adapter applies its
// defaults. When the file holds more than n rows a seeded sample of n is kept.
func LoadBackgroundCSV(path string, n int, seed int64) ([]map[string]interface{}, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read background header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	var records []map[string]interface{}
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read background row: %w", err)
		}
		rec := make(map[string]interface{})
		for i, cell := range row {
			cell = strings.TrimSpace(cell)
			if i >= len(header) || header[i] == "" || cell == "" {
				continue
			}
			rec[header[i]] = cell
		}
		if len(rec) > 0 {
			records = append(records, rec)
		}
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("background file %s has no rows", path)
	}

	if n > 0 && len(records) > n {
		rng := rand.New(rand.NewSource(seed))
		idx := rng.Perm(len(records))[:n]
		sampled := make([]map[string]interface{}, n)
		for i, j := range idx {
			sampled[i] = records[j]
		}
		records = sampled
	}
	return records, nil
}

// BuildBackground prepares raw records into model input vectors. Records the
// preparer rejects are skipped.
func BuildBackground(p model.InputPreparer, records []map[string]interface{}) ([][]float64, error) {
	out := make([][]float64, 0, len(records))
	var lastErr error
	for _, rec := range records {
		x, err := p.Preprocess(rec)
		if err != nil {
			lastErr = err
			continue
		}
		out = append(out, x)
	}
	if len(out) == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("no usable background rows: %w", lastErr)
		}
		return nil, errors.New("no usable background rows")
	}
	return out, nil
}

// LoadBackground returns prepared background vectors, preferring the CSV at
// path and falling back to the synthetic population when it is unset or
// unreadable.
func LoadBackground(p model.InputPreparer, path string, n int, seed int64, logger *logrus.Logger) ([][]float64, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if path != "" {
		records, err := LoadBackgroundCSV(path, n, seed)
		if err == nil {
			logger.WithFields(logrus.Fields{"path": path, "rows": len(records)}).Info("Loaded SHAP background samples")
			return BuildBackground(p, records)
		}
		if !errors.Is(err, os.ErrNotExist) {
			logger.WithError(err).WithField("path", path).Warn("Failed to load background CSV, falling back to synthetic")
		}
	}
	return BuildBackground(p, SyntheticRecords(n, seed))
}
