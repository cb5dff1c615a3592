//go:build integration

package integrationtests

import (
	backend "audio-tagging/internal/api"
	"audio-tagging/internal/core"
	"audio-tagging/internal/core/types"
	"audio-tagging/internal/database"
	"audio-tagging/pkg/api"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	corpusBucket = "corpus"
	resultBucket = "results"
)

func TestBatchWorkflow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db := createDB(t)
	store := setupS3ObjectStore(t, ctx)
	publisher, receiver := setupRabbitMQContainer(t, ctx)

	require.NoError(t, store.CreateBucket(ctx, corpusBucket))
	require.NoError(t, store.CreateBucket(ctx, resultBucket))

	src := t.TempDir()
	for _, name := range []string{"a.wav", "b.wav"} {
		f, err := os.Open(writeTone(t, src, name))
		require.NoError(t, err)
		require.NoError(t, store.PutObject(ctx, corpusBucket, "clips/"+name, f))
		f.Close()
	}
	require.NoError(t, store.PutObject(ctx, corpusBucket, "clips/broken.wav", strings.NewReader("not audio")))

	runner := &core.BatchRunner{
		Template: types.DefaultClassifierConfig(),
		Loader:   func() (core.Classifier, error) { return core.NewEnergyClassifier(), nil },
		Workers:  2,
	}
	worker := core.NewTaskProcessor(db, store, publisher, receiver, runner, t.TempDir(), resultBucket)
	go worker.Start()
	defer worker.Stop()

	service := backend.NewBackendService(db, store, publisher, resultBucket, string(core.ClassifierTypeEnergy))
	router := chi.NewRouter()
	service.AddRoutes(router)

	var created api.CreateRunResponse
	require.NoError(t, httpRequest(router, "POST", "/runs", api.CreateRunRequest{InputDir: "s3://" + corpusBucket + "/clips"}, &created))

	var run api.Run
	require.Eventually(t, func() bool {
		if err := httpRequest(router, "GET", "/runs/"+created.RunId.String(), nil, &run); err != nil {
			return false
		}
		return run.Status == database.JobCompleted || run.Status == database.JobFailed
	}, 2*time.Minute, 500*time.Millisecond)

	require.Equal(t, database.JobCompleted, run.Status, "run errors: %v", run.Errors)
	assert.Equal(t, 3, run.TotalFileCount)
	assert.Equal(t, 2, run.SucceededFileCount)
	assert.Equal(t, 1, run.FailedFileCount)
	assert.Equal(t, created.RunId.String()+"/results.csv", run.LogKey)

	var results api.ResultsResponse
	require.NoError(t, httpRequest(router, "GET", "/runs/"+created.RunId.String()+"/results?status=Failed", nil, &results))
	require.Equal(t, 1, results.Total)
	assert.Equal(t, "broken.wav", filepath.Base(results.Results[0].Path))

	req := httptest.NewRequest("GET", "/runs/"+created.RunId.String()+"/log", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	assert.Equal(t, "File Path,Status,Result", lines[0])
	assert.Len(t, lines, 4)
}
