package admin

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hear-ci-prediction-service/internal/domain"
	"github.com/hear-ci-prediction-service/internal/feedback"
)

// memPatients is an in-memory PatientRepository. failOn makes Create fail
// for the n-th call (1-based).
type memPatients struct {
	mu       sync.Mutex
	patients []*domain.Patient
	calls    int
	failOn   int
}

func (m *memPatients) Create(_ context.Context, in *domain.PatientCreate) (*domain.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.calls == m.failOn {
		return nil, errors.New("insert failed")
	}
	p := &domain.Patient{ID: uuid.New(), InputFeatures: in.InputFeatures, DisplayName: in.DisplayName, CreatedAt: time.Now()}
	m.patients = append(m.patients, p)
	return p, nil
}

func (m *memPatients) GetByID(_ context.Context, id uuid.UUID) (*domain.Patient, error) {
	for _, p := range m.patients {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memPatients) List(context.Context, int, int) ([]*domain.Patient, error) {
	return m.patients, nil
}

func (m *memPatients) SearchByName(context.Context, string, int) ([]*domain.Patient, error) {
	return nil, nil
}

func (m *memPatients) Count(context.Context) (int64, error) {
	return int64(len(m.patients)), nil
}

func (m *memPatients) Update(context.Context, uuid.UUID, *domain.PatientUpdate) (*domain.Patient, error) {
	return nil, domain.ErrNotFound
}

func (m *memPatients) Delete(context.Context, uuid.UUID) error {
	return domain.ErrNotFound
}

func quietLogger() *logrus.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

func newFeedbackStore(t *testing.T) *feedback.SQLiteStore {
	t.Helper()
	store, err := feedback.NewSQLiteStore(filepath.Join(t.TempDir(), "feedback.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

const patientsCSV = `Alter,Geschlecht,Tinnitus,Beginn der Hörminderung (OP-Ohr)
45,m,ja,< 1 y
,,,
70,w,nein,unbekannt
`

func TestPseudonymName(t *testing.T) {
	assert.Equal(t, "Muster, Anna", PseudonymName(0, "w"))
	assert.Equal(t, "Schmidt, Paul", PseudonymName(1, "M"))
	assert.Equal(t, "Muster, Max", PseudonymName(12, ""))
}

func TestImportPatients(t *testing.T) {
	repo := &memPatients{}
	logger, hook := test.NewNullLogger()

	res, err := ImportPatients(context.Background(), repo, strings.NewReader(patientsCSV), PatientImportOptions{}, logger)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)
	assert.Zero(t, res.Failed)
	assert.Empty(t, hook.AllEntries())

	require.Len(t, repo.patients, 2)
	assert.Equal(t, domain.Features{
		"age":            45.0,
		"gender":         "m",
		"tinnitus":       true,
		"onset_interval": 0.5,
	}, repo.patients[0].InputFeatures)
	assert.Equal(t, "unbekannt", repo.patients[1].InputFeatures["onset_interval"])
	assert.Nil(t, repo.patients[0].DisplayName)
}

func TestImportPatients_PseudonymsAndFailures(t *testing.T) {
	repo := &memPatients{failOn: 1}
	logger, hook := test.NewNullLogger()

	res, err := ImportPatients(context.Background(), repo, strings.NewReader(patientsCSV), PatientImportOptions{Pseudonyms: true}, logger)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)

	require.Len(t, repo.patients, 1)
	require.NotNil(t, repo.patients[0].DisplayName)
	assert.Equal(t, "Schmidt, Maria", *repo.patients[0].DisplayName)
}

func TestImportPatients_NoStore(t *testing.T) {
	_, err := ImportPatients(context.Background(), nil, strings.NewReader(patientsCSV), PatientImportOptions{}, quietLogger())
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestFeedbackFromRow(t *testing.T) {
	fb := FeedbackFromRow(Row{Cells: map[string]string{
		"Alter":       "45",
		"prediction":  "0.82",
		"explanation": `{"age": 0.1}`,
		"accepted":    "Yes",
		"comment":     "plausible",
		"user_email":  "doc@example.org",
		"rating":      "4",
	}})

	assert.Equal(t, domain.Features{"Alter": "45"}, fb.InputFeatures)
	require.NotNil(t, fb.Prediction)
	assert.Equal(t, 0.82, *fb.Prediction)
	assert.Equal(t, map[string]interface{}{"age": 0.1}, fb.Explanation)
	assert.True(t, *fb.Accepted)
	assert.Equal(t, "plausible", *fb.Comment)
	assert.Equal(t, "doc@example.org", *fb.UserEmail)
	assert.Equal(t, 4, *fb.Rating)

	fb = FeedbackFromRow(Row{Cells: map[string]string{
		"prediction":  "high",
		"explanation": "not json",
		"accepted":    "nope",
	}})
	assert.Nil(t, fb.Prediction)
	assert.Equal(t, map[string]interface{}{"raw": "not json"}, fb.Explanation)
	assert.False(t, *fb.Accepted)
	assert.Empty(t, fb.InputFeatures)
}

func TestImportFeedback(t *testing.T) {
	store := newFeedbackStore(t)
	ctx := context.Background()
	data := "Alter,prediction,accepted,comment\n45,0.7,true,ok\n60,0.4,false,\n"

	res, err := ImportFeedback(ctx, store, strings.NewReader(data), quietLogger())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
