package feedback

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hear-ci-prediction-service/internal/domain"
)

func ptr[T any](v T) *T { return &v }

func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "feedback.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewSQLiteStore(t *testing.T) {
	store := createTestStore(t)
	assert.FileExists(t, store.Path())

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSQLiteStore_CreateAndGet(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, &domain.FeedbackCreate{
		InputFeatures: domain.Features{"Alter [J]": 61.0, "Geschlecht": "m"},
		Prediction:    ptr(0.72),
		Explanation:   map[string]interface{}{"method": "shap"},
		Accepted:      ptr(false),
		Comment:       ptr("Tinnitus weight looks too high"),
		UserEmail:     ptr("hno@example.org"),
		Rating:        ptr(2),
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := store.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "m", got.InputFeatures["Geschlecht"])
	assert.InDelta(t, 0.72, *got.Prediction, 1e-12)
	assert.Equal(t, "shap", got.Explanation["method"])
	require.NotNil(t, got.Accepted)
	assert.False(t, *got.Accepted)
	assert.Equal(t, "Tinnitus weight looks too high", *got.Comment)
	assert.Equal(t, "hno@example.org", *got.UserEmail)
	assert.Equal(t, 2, *got.Rating)
	assert.WithinDuration(t, created.CreatedAt, got.CreatedAt, time.Millisecond)
}

func TestSQLiteStore_OptionalFieldsStayNil(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	created, err := store.Create(ctx, &domain.FeedbackCreate{})
	require.NoError(t, err)

	got, err := store.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Features{}, got.InputFeatures)
	assert.Nil(t, got.Prediction)
	assert.Nil(t, got.Explanation)
	assert.Nil(t, got.Accepted)
	assert.Nil(t, got.Comment)
	assert.Nil(t, got.Rating)
}

func TestSQLiteStore_GetByID_NotFound(t *testing.T) {
	store := createTestStore(t)

	_, err := store.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLiteStore_ListAndCount(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.Create(ctx, &domain.FeedbackCreate{Rating: ptr(i + 1)})
		require.NoError(t, err)
	}

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)

	page1, err := store.List(ctx, 2, 0)
	require.NoError(t, err)
	assert.Len(t, page1, 2)

	page3, err := store.List(ctx, 2, 4)
	require.NoError(t, err)
	assert.Len(t, page3, 1)

	all, err := store.List(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].CreatedAt.After(all[i-1].CreatedAt), "newest first")
	}
}

func TestSQLiteStore_ExportImport(t *testing.T) {
	src := createTestStore(t)
	ctx := context.Background()

	_, err := src.Create(ctx, &domain.FeedbackCreate{Accepted: ptr(true), Comment: ptr("plausible")})
	require.NoError(t, err)
	_, err = src.Create(ctx, &domain.FeedbackCreate{Rating: ptr(4)})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, src.ExportJSON(ctx, &buf))
	assert.Contains(t, buf.String(), `"version": "1.0"`)
	assert.Contains(t, buf.String(), `"count": 2`)
	assert.Contains(t, buf.String(), "plausible")

	dst := createTestStore(t)
	imported, skipped, err := dst.ImportJSON(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 2, imported)
	assert.Equal(t, 0, skipped)

	// same IDs again are skipped
	imported, skipped, err = dst.ImportJSON(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 0, imported)
	assert.Equal(t, 2, skipped)

	count, _ := dst.Count(ctx)
	assert.Equal(t, int64(2), count)
}

func TestSQLiteStore_ImportJSON_AssignsIDs(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	data := `{
		"version": "1.0",
		"count": 2,
		"feedback": [
			{"input_features": {"age": 40}, "accepted": true},
			{"comment": "no id either", "created_at": "2024-05-01T08:00:00Z"}
		]
	}`
	imported, skipped, err := store.ImportJSON(ctx, bytes.NewReader([]byte(data)))
	require.NoError(t, err)
	assert.Equal(t, 2, imported)
	assert.Equal(t, 0, skipped)

	all, err := store.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	// the entry with an explicit timestamp is older
	assert.Equal(t, "no id either", *all[1].Comment)
	assert.Equal(t, 2024, all[1].CreatedAt.Year())
}

func TestSQLiteStore_ImportJSON_Invalid(t *testing.T) {
	store := createTestStore(t)

	_, _, err := store.ImportJSON(context.Background(), bytes.NewReader([]byte("{not json")))
	assert.Error(t, err)
}
