package feedback

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hear-ci-prediction-service/internal/database/dbtest"
	"github.com/hear-ci-prediction-service/internal/domain"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	store, err := NewPostgresStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return store, mock
}

func TestDollarPlaceholders(t *testing.T) {
	assert.Equal(t, "a = $1 AND b = $2 LIMIT $3", dollarPlaceholders("a = ? AND b = ? LIMIT ?"))
	assert.Equal(t, "SELECT 1", dollarPlaceholders("SELECT 1"))
}

func TestNewPostgresStore_NilDB(t *testing.T) {
	_, err := NewPostgresStore(nil)
	assert.Error(t, err)
}

func TestPostgresStore_Create(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO feedback (" + feedbackColumns + ")")).
		WithArgs(sqlmock.AnyArg(), `{"age":50}`, 0.4, nil, true, nil, nil, int64(5), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	fb, err := store.Create(context.Background(), &domain.FeedbackCreate{
		InputFeatures: domain.Features{"age": 50},
		Prediction:    ptr(0.4),
		Accepted:      ptr(true),
		Rating:        ptr(5),
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, fb.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Create_Error(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO feedback").WillReturnError(errors.New("connection refused"))

	_, err := store.Create(context.Background(), &domain.FeedbackCreate{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestPostgresStore_GetByID(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()
	created := time.Date(2024, 2, 1, 9, 30, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"id", "input_features", "prediction", "explanation", "accepted", "comment", "user_email", "rating", "created_at"}).
		AddRow(id.String(), []byte(`{"Geschlecht":"w"}`), 0.61, []byte(`{"method":"coefficient"}`), false, "check onset", nil, nil, created)
	mock.ExpectQuery(regexp.QuoteMeta("FROM feedback WHERE id = $1")).
		WithArgs(id.String()).
		WillReturnRows(rows)

	fb, err := store.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, fb.ID)
	assert.Equal(t, "w", fb.InputFeatures["Geschlecht"])
	assert.Equal(t, "coefficient", fb.Explanation["method"])
	assert.False(t, *fb.Accepted)
	assert.Equal(t, "check onset", *fb.Comment)
	assert.Nil(t, fb.UserEmail)
	assert.Nil(t, fb.Rating)
	assert.Equal(t, created, fb.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetByID_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("FROM feedback WHERE id").WillReturnError(sql.ErrNoRows)

	_, err := store.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPostgresStore_ListAndCount(t *testing.T) {
	store, mock := newMockStore(t)

	cols := []string{"id", "input_features", "prediction", "explanation", "accepted", "comment", "user_email", "rating", "created_at"}
	mock.ExpectQuery(regexp.QuoteMeta("LIMIT $1 OFFSET $2")).
		WithArgs(DefaultLimit, 0).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(uuid.NewString(), []byte(`{}`), nil, nil, nil, nil, nil, int64(3), time.Now()).
			AddRow(uuid.NewString(), []byte(`{}`), nil, nil, true, nil, nil, nil, time.Now()))
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	list, err := store.List(context.Background(), 0, -1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 3, *list[0].Rating)
	assert.True(t, *list[1].Accepted)

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Integration(t *testing.T) {
	pg := dbtest.Start(t)

	store, err := NewPostgresStoreFromURL(pg.URL)
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	created, err := store.Create(ctx, &domain.FeedbackCreate{
		InputFeatures: domain.Features{"age": 70.0},
		Explanation:   map[string]interface{}{"base_value": 0.1},
		UserEmail:     ptr("a@b.c"),
	})
	require.NoError(t, err)

	got, err := store.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 70.0, got.InputFeatures["age"])
	assert.Equal(t, 0.1, got.Explanation["base_value"])
	assert.Equal(t, "a@b.c", *got.UserEmail)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
