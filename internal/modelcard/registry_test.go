package modelcard

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hear-ci-prediction-service/internal/model"
)

func modelInfoFixture(modelType string) model.Info {
	return model.Info{Loaded: true, ModelType: modelType, Kind: model.KindLinear, NFeaturesIn: 1}
}

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "model_cards")
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	reg, err := NewRegistry(dir, logger)
	require.NoError(t, err)
	return reg, dir
}

func writeCard(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestRegistry_ActiveVersionFallsBackToNewest(t *testing.T) {
	reg, dir := newTestRegistry(t)

	_, err := reg.ActiveVersion()
	assert.ErrorIs(t, err, ErrNoCards)
	_, err = reg.Active()
	assert.ErrorIs(t, err, ErrNoCards)

	writeCard(t, dir, "v1.0.json", `{"name":"m","model_type":"LogisticRegression"}`)
	writeCard(t, dir, "v1.1.json", `{"name":"m","model_type":"RandomForestClassifier"}`)

	version, err := reg.ActiveVersion()
	require.NoError(t, err)
	assert.Equal(t, "v1.1", version)

	card, err := reg.Active()
	require.NoError(t, err)
	assert.Equal(t, "v1.1", card.Version)
	assert.Equal(t, "RandomForestClassifier", card.ModelType)

	require.NoError(t, reg.SetActiveVersion("v1.0"))
	version, err = reg.ActiveVersion()
	require.NoError(t, err)
	assert.Equal(t, "v1.0", version)

	data, err := os.ReadFile(filepath.Join(dir, "active_version.txt"))
	require.NoError(t, err)
	assert.Equal(t, "v1.0", string(data))

	card, err = reg.Load("v1.0")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, card.Status)
}

func TestRegistry_SetActiveVersionErrors(t *testing.T) {
	reg, _ := newTestRegistry(t)

	assert.ErrorIs(t, reg.SetActiveVersion("v9"), ErrVersionNotFound)
	assert.ErrorIs(t, reg.SetActiveVersion("../etc/passwd"), ErrInvalidVersion)
	assert.ErrorIs(t, reg.SetActiveVersion(""), ErrInvalidVersion)
}

func TestRegistry_CreateListRetire(t *testing.T) {
	reg, dir := newTestRegistry(t)
	day1 := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	first := Build(modelInfoFixture("LogisticRegression"), []string{"a"}, day1)
	first.Version = "v1.0"
	require.NoError(t, reg.Create(first, day1))

	second := Build(modelInfoFixture("RandomForestClassifier"), []string{"a"}, day2)
	second.Version = "v2.0"
	second.Metrics = &Metrics{Accuracy: f64(0.74)}
	require.NoError(t, reg.Create(second, day2))

	assert.Error(t, reg.Create(second, day2), "existing versions are not overwritten")

	writeCard(t, dir, "broken.json", `{not json`)

	versions, err := reg.List()
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "v2.0", versions[0].Version)
	assert.Equal(t, "2024-06-01", versions[0].DeploymentDate)
	assert.Equal(t, StatusTesting, versions[0].Status)
	assert.True(t, versions[0].Active)
	require.NotNil(t, versions[0].Accuracy)
	assert.Equal(t, 0.74, *versions[0].Accuracy)
	assert.Equal(t, "v1.0", versions[1].Version)
	assert.False(t, versions[1].Active)

	retiredOn := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, reg.Retire("v1.0", retiredOn))
	card, err := reg.Load("v1.0")
	require.NoError(t, err)
	assert.Equal(t, StatusRetired, card.Status)
	assert.Equal(t, "2024-07-01", card.RetiredDate)
	require.Len(t, card.Changelog, 2)
	assert.Equal(t, "Version retired", card.Changelog[1].Changes)

	assert.ErrorIs(t, reg.Retire("v3.0", retiredOn), ErrVersionNotFound)
}
