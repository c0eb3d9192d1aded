package database

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexmx/avotex/internal/models"
)

func newTestDB(t *testing.T) *SQLDB {
	t.Helper()
	db, err := NewSQLiteDB(filepath.Join(t.TempDir(), "avotex.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSaveAndListScans(t *testing.T) {
	db := newTestDB(t)
	ctx := testContext(t)

	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	labels := []string{"Saludable", "Antracnosis", "Costra"}
	for i, label := range labels {
		rec := &models.ScanRecord{
			UserID:    "grower-1",
			UserEmail: "grower@example.com",
			Label:     label,
			Score:     0.5 + float64(i)/10,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		require.NoError(t, db.SaveScan(ctx, rec))
		assert.NotZero(t, rec.ID)
	}
	require.NoError(t, db.SaveScan(ctx, &models.ScanRecord{UserID: "someone-else", Label: "Roya", Score: 0.4}))

	scans, err := db.ListScans(ctx, "grower-1")
	require.NoError(t, err)
	require.Len(t, scans, 3)

	assert.Equal(t, "Costra", scans[0].Label)
	assert.Equal(t, "Saludable", scans[2].Label)
	assert.Equal(t, "grower@example.com", scans[0].UserEmail)
	assert.InDelta(t, 0.7, scans[0].Score, 1e-9)
	assert.True(t, scans[0].CreatedAt.Equal(base.Add(2*time.Hour)), "created_at = %s", scans[0].CreatedAt)
}

func TestSaveScanAssignsCreatedAt(t *testing.T) {
	db := newTestDB(t)
	fixed := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	db.now = func() time.Time { return fixed }

	rec := &models.ScanRecord{UserID: "u", Label: "Saludable", Score: 1}
	require.NoError(t, db.SaveScan(testContext(t), rec))
	assert.Equal(t, fixed, rec.CreatedAt)
}

func TestSaveScanRejectsNotAvocado(t *testing.T) {
	db := newTestDB(t)

	err := db.SaveScan(testContext(t), &models.ScanRecord{UserID: "u", Label: models.LabelNotAvocado, Score: 0.99})
	require.ErrorIs(t, err, ErrNotApplicable)

	scans, err := db.ListScans(testContext(t), "u")
	require.NoError(t, err)
	assert.Empty(t, scans)
}

func TestSaveScanRequiresUser(t *testing.T) {
	db := newTestDB(t)
	require.Error(t, db.SaveScan(testContext(t), &models.ScanRecord{Label: "Saludable", Score: 1}))
}

func TestScanLabelsProjection(t *testing.T) {
	db := newTestDB(t)
	ctx := testContext(t)
	require.NoError(t, db.SaveScan(ctx, &models.ScanRecord{UserID: "u", Label: "Roya", Score: 0.3}))
	require.NoError(t, db.SaveScan(ctx, &models.ScanRecord{UserID: "u", Label: "Saludable", Score: 0.9}))

	labels, err := db.ScanLabels(ctx, "u")
	require.NoError(t, err)
	require.Len(t, labels, 2)
	for _, rec := range labels {
		assert.Zero(t, rec.ID)
		assert.NotEmpty(t, rec.Label)
	}
}

func TestTaskLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := testContext(t)

	first := &models.Task{UserID: "u", Title: "Riego", Detail: "Zona norte", CreatedAt: time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)}
	second := &models.Task{UserID: "u", Title: "  Poda sanitaria  ", CreatedAt: time.Date(2025, 5, 2, 8, 0, 0, 0, time.UTC)}
	require.NoError(t, db.AddTask(ctx, first))
	require.NoError(t, db.AddTask(ctx, second))
	assert.Equal(t, "Poda sanitaria", second.Title)

	tasks, err := db.ListTasks(ctx, "u")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, second.ID, tasks[0].ID)
	assert.False(t, tasks[0].Completed)

	completed, err := db.ToggleTask(ctx, "u", first.ID)
	require.NoError(t, err)
	assert.True(t, completed)

	completed, err = db.ToggleTask(ctx, "u", first.ID)
	require.NoError(t, err)
	assert.False(t, completed)

	_, err = db.ToggleTask(ctx, "intruder", first.ID)
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, db.DeleteTask(ctx, "intruder", first.ID), ErrNotFound)
	require.NoError(t, db.DeleteTask(ctx, "u", first.ID))
	require.ErrorIs(t, db.DeleteTask(ctx, "u", first.ID), ErrNotFound)

	tasks, err = db.ListTasks(ctx, "u")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
}

func TestAddTaskRequiresTitle(t *testing.T) {
	db := newTestDB(t)
	require.Error(t, db.AddTask(testContext(t), &models.Task{UserID: "u", Title: "   "}))
}

func TestRebind(t *testing.T) {
	pg := &SQLDB{dialect: dialectPostgres}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))

	lite := &SQLDB{dialect: dialectSQLite}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("oracle", "", nil)
	require.Error(t, err)
}
