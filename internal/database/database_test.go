package database_test

import (
	"audio-tagging/internal/database"
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) (*gorm.DB, string) {
	path := filepath.Join(t.TempDir(), "db", "ledger.db")
	db, err := database.NewDatabase("sqlite://" + path)
	require.NoError(t, err)
	return db, path
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDB(t)

	run := database.BatchRun{InputDir: "/data/in", OutputPath: "/data/out.csv", ClassifierType: "energy"}
	require.NoError(t, database.CreateBatchRun(ctx, db, &run))
	assert.NotEqual(t, uuid.Nil, run.Id)
	assert.Equal(t, database.JobQueued, run.Status)

	require.NoError(t, database.UpdateRunStatus(ctx, db, run.Id, database.JobRunning))
	require.NoError(t, database.SetRunTotals(ctx, db, run.Id, 3, 2))

	require.NoError(t, database.SaveFileResult(ctx, db, database.FileResult{
		RunId: run.Id, Path: "/data/in/a.wav", Status: "Success", Payload: "Speech:0.900",
	}, true))
	require.NoError(t, database.SaveFileResult(ctx, db, database.FileResult{
		RunId: run.Id, Path: "/data/in/b.wav", Status: "Success", Payload: "Music:0.800",
	}, true))
	require.NoError(t, database.SaveFileResult(ctx, db, database.FileResult{
		RunId: run.Id, Path: "/data/in/c.wav", Status: "Failed", Payload: "invalid audio input",
	}, false))

	database.SaveRunError(ctx, db, run.Id, "c.wav could not be decoded")
	require.NoError(t, database.SetRunLogKey(ctx, db, run.Id, run.Id.String()+"/results.csv"))
	require.NoError(t, database.UpdateRunStatus(ctx, db, run.Id, database.JobCompleted))

	got, err := database.GetRun(ctx, db, run.Id)
	require.NoError(t, err)
	assert.Equal(t, database.JobCompleted, got.Status)
	assert.True(t, got.StartTime.Valid)
	assert.True(t, got.CompletionTime.Valid)
	assert.Equal(t, 3, got.TotalFileCount)
	assert.Equal(t, 2, got.Workers)
	assert.Equal(t, 2, got.SucceededFileCount)
	assert.Equal(t, 1, got.FailedFileCount)
	assert.Equal(t, run.Id.String()+"/results.csv", got.LogKey)
	require.Len(t, got.Errors, 1)
	assert.Equal(t, "c.wav could not be decoded", got.Errors[0].Error)

	all, err := database.ListResults(ctx, db, run.Id, database.ResultQuery{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "/data/in/a.wav", all[0].Path)

	failed, err := database.ListResults(ctx, db, run.Id, database.ResultQuery{Status: "Failed"})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "/data/in/c.wav", failed[0].Path)

	page, err := database.ListResults(ctx, db, run.Id, database.ResultQuery{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "/data/in/b.wav", page[0].Path)
}

func TestDuplicateFileResultRejected(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDB(t)

	run := database.BatchRun{InputDir: "in", ClassifierType: "energy"}
	require.NoError(t, database.CreateBatchRun(ctx, db, &run))

	result := database.FileResult{RunId: run.Id, Path: "in/a.wav", Status: "Success"}
	require.NoError(t, database.SaveFileResult(ctx, db, result, true))
	assert.Error(t, database.SaveFileResult(ctx, db, result, true))

	// the failed transaction must not bump the counter
	got, err := database.GetRun(ctx, db, run.Id)
	require.NoError(t, err)
	assert.Equal(t, 1, got.SucceededFileCount)
}

func TestGetMissingRun(t *testing.T) {
	db, _ := newTestDB(t)
	_, err := database.GetRun(context.Background(), db, uuid.New())
	assert.ErrorIs(t, err, database.ErrRunNotFound)
}

func TestListRunsWithStatus(t *testing.T) {
	ctx := context.Background()
	db, _ := newTestDB(t)

	queued := database.BatchRun{InputDir: "a", ClassifierType: "energy"}
	running := database.BatchRun{InputDir: "b", ClassifierType: "energy", Status: database.JobRunning}
	require.NoError(t, database.CreateBatchRun(ctx, db, &queued))
	require.NoError(t, database.CreateBatchRun(ctx, db, &running))

	runs, err := database.ListRunsWithStatus(ctx, db, database.JobQueued)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, queued.Id, runs[0].Id)

	all, err := database.ListRuns(ctx, db)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	db, path := newTestDB(t)

	run := database.BatchRun{InputDir: "in", ClassifierType: "energy"}
	require.NoError(t, database.CreateBatchRun(ctx, db, &run))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	reopened, err := database.NewDatabase(path)
	require.NoError(t, err)

	got, err := database.GetRun(ctx, reopened, run.Id)
	require.NoError(t, err)
	assert.Equal(t, "in", got.InputDir)
}

func TestForeignKeysEnforced(t *testing.T) {
	db, _ := newTestDB(t)
	err := database.SaveFileResult(context.Background(), db, database.FileResult{
		RunId: uuid.New(), Path: "orphan.wav", Status: "Success",
	}, true)
	assert.Error(t, err)
}
