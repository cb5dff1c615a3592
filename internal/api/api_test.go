package api_test

import (
	backend "audio-tagging/internal/api"
	"audio-tagging/internal/database"
	"audio-tagging/internal/messaging"
	"audio-tagging/internal/storage"
	"audio-tagging/pkg/api"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func createDB(t *testing.T, create ...any) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	// every new connection would open a fresh in-memory database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.GetMigrator(db).Migrate())

	for _, c := range create {
		require.NoError(t, db.Create(c).Error)
	}

	return db
}

type failingPublisher struct {
	messaging.Publisher
}

func (p *failingPublisher) PublishBatchTask(ctx context.Context, payload messaging.BatchTaskPayload) error {
	return messaging.ErrQueueClosed
}

func newRouter(db *gorm.DB, store storage.ObjectStore, pub messaging.Publisher) chi.Router {
	service := backend.NewBackendService(db, store, pub, "results", "energy")
	router := chi.NewRouter()
	service.AddRoutes(router)
	return router
}

func doRequest(router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func tagsJSON(t *testing.T, tags ...api.Tag) datatypes.JSON {
	type tag struct {
		Label       string  `json:"label"`
		Probability float32 `json:"probability"`
	}
	out := make([]tag, 0, len(tags))
	for _, tg := range tags {
		out = append(out, tag{Label: tg.Label, Probability: tg.Probability})
	}
	data, err := json.Marshal(out)
	require.NoError(t, err)
	return datatypes.JSON(data)
}

func seededRun(t *testing.T) (uuid.UUID, *gorm.DB) {
	runId := uuid.New()
	db := createDB(t,
		&database.BatchRun{
			Id: runId, InputDir: "/data/clips", ClassifierType: "energy", Status: database.JobCompleted,
			CreationTime: time.Now(), TotalFileCount: 4, SucceededFileCount: 3, FailedFileCount: 1,
		},
		&database.FileResult{RunId: runId, Path: "/data/clips/dogs/bark.wav", Status: "Success", Payload: "Dog:0.900; Speech:0.100",
			Tags: tagsJSON(t, api.Tag{Label: "Dog", Probability: 0.9}, api.Tag{Label: "Speech", Probability: 0.1})},
		&database.FileResult{RunId: runId, Path: "/data/clips/talk.wav", Status: "Success", Payload: "Speech:0.800",
			Tags: tagsJSON(t, api.Tag{Label: "Speech", Probability: 0.8})},
		&database.FileResult{RunId: runId, Path: "/data/clips/song.wav", Status: "Success", Payload: "Music:0.700; Speech:0.600",
			Tags: tagsJSON(t, api.Tag{Label: "Music", Probability: 0.7}, api.Tag{Label: "Speech", Probability: 0.6})},
		&database.FileResult{RunId: runId, Path: "/data/clips/broken.wav", Status: "Failed", Payload: "invalid audio input",
			Tags: tagsJSON(t)},
	)
	return runId, db
}

func TestHealth(t *testing.T) {
	router := newRouter(createDB(t), nil, messaging.NewInMemoryQueue())
	rec := doRequest(router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateRun(t *testing.T) {
	db := createDB(t)
	queue := messaging.NewInMemoryQueue()
	defer queue.Close()
	router := newRouter(db, nil, queue)

	rec := doRequest(router, http.MethodPost, "/runs", api.CreateRunRequest{InputDir: "/data/clips", Workers: 4})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var response api.CreateRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))

	run, err := database.GetRun(context.Background(), db, response.RunId)
	require.NoError(t, err)
	assert.Equal(t, database.JobQueued, run.Status)
	assert.Equal(t, "/data/clips", run.InputDir)
	assert.Equal(t, "energy", run.ClassifierType)
	assert.Equal(t, 4, run.Workers)

	task := <-queue.Tasks()
	assert.Equal(t, messaging.BatchQueue, task.Type())
	var payload messaging.BatchTaskPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, response.RunId, payload.RunId)
}

func TestCreateRunValidation(t *testing.T) {
	router := newRouter(createDB(t), nil, messaging.NewInMemoryQueue())

	cases := map[string]api.CreateRunRequest{
		"missing input":    {},
		"relative input":   {InputDir: "clips"},
		"bad s3 uri":       {InputDir: "s3://"},
		"negative workers": {InputDir: "/data", Workers: -1},
		"relative output":  {InputDir: "/data", OutputPath: "out.csv"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			rec := doRequest(router, http.MethodPost, "/runs", req)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/runs", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRunPublishFailure(t *testing.T) {
	db := createDB(t)
	router := newRouter(db, nil, &failingPublisher{})

	rec := doRequest(router, http.MethodPost, "/runs", api.CreateRunRequest{InputDir: "s3://bucket/clips"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	runs, err := database.ListRuns(context.Background(), db)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, database.JobFailed, runs[0].Status)
}

func TestListAndGetRuns(t *testing.T) {
	runId, db := seededRun(t)
	router := newRouter(db, nil, messaging.NewInMemoryQueue())

	rec := doRequest(router, http.MethodGet, "/runs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []api.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, runId, runs[0].Id)

	rec = doRequest(router, http.MethodGet, "/runs/"+runId.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var run api.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, 4, run.TotalFileCount)
	assert.Equal(t, 3, run.SucceededFileCount)
	assert.Equal(t, 1, run.FailedFileCount)
	assert.Nil(t, run.CompletionTime)

	rec = doRequest(router, http.MethodGet, "/runs/"+uuid.New().String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(router, http.MethodGet, "/runs/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func getResults(t *testing.T, router http.Handler, runId uuid.UUID, params url.Values) api.ResultsResponse {
	rec := doRequest(router, http.MethodGet, "/runs/"+runId.String()+"/results?"+params.Encode(), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var response api.ResultsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	return response
}

func paths(results []api.FileResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, filepath.Base(r.Path))
	}
	return out
}

func TestGetResults(t *testing.T) {
	runId, db := seededRun(t)
	router := newRouter(db, nil, messaging.NewInMemoryQueue())

	all := getResults(t, router, runId, url.Values{})
	assert.Equal(t, 4, all.Total)

	failed := getResults(t, router, runId, url.Values{"status": {"Failed"}})
	assert.Equal(t, []string{"broken.wav"}, paths(failed.Results))

	speech := getResults(t, router, runId, url.Values{"query": {`SCORE "Speech" > 0.5`}})
	assert.ElementsMatch(t, []string{"talk.wav", "song.wav"}, paths(speech.Results))

	top := getResults(t, router, runId, url.Values{"query": {`TOP = "Dog" OR PATH CONTAINS "song"`}})
	assert.ElementsMatch(t, []string{"bark.wav", "song.wav"}, paths(top.Results))

	labels := getResults(t, router, runId, url.Values{"query": {`LABEL = "Speech" AND NOT TOP = "Speech"`}})
	assert.ElementsMatch(t, []string{"bark.wav", "song.wav"}, paths(labels.Results))

	page := getResults(t, router, runId, url.Values{"limit": {"2"}, "offset": {"3"}})
	assert.Equal(t, 4, page.Total)
	assert.Len(t, page.Results, 1)

	rec := doRequest(router, http.MethodGet, "/runs/"+runId.String()+"/results?query="+url.QueryEscape("SCORE = 1"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(router, http.MethodGet, "/runs/"+runId.String()+"/results?status=Pending", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(router, http.MethodGet, "/runs/"+runId.String()+"/results?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDownloadLog(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := storage.NewLocalObjectStore(filepath.Join(dir, "objects"))
	require.NoError(t, err)
	require.NoError(t, store.CreateBucket(ctx, "results"))

	content := "File Path,Status,Result\n/a.wav,Success,Speech:0.900\n"
	uploaded, local, missing := uuid.New(), uuid.New(), uuid.New()
	require.NoError(t, store.PutObject(ctx, "results", uploaded.String()+"/results.csv", strings.NewReader(content)))

	localPath := filepath.Join(dir, "local.csv")
	require.NoError(t, os.WriteFile(localPath, []byte(content), 0o644))

	db := createDB(t,
		&database.BatchRun{Id: uploaded, InputDir: "/in", ClassifierType: "energy", Status: database.JobCompleted, LogKey: uploaded.String() + "/results.csv"},
		&database.BatchRun{Id: local, InputDir: "/in", ClassifierType: "energy", Status: database.JobCompleted, OutputPath: localPath},
		&database.BatchRun{Id: missing, InputDir: "/in", ClassifierType: "energy", Status: database.JobQueued},
	)
	router := newRouter(db, store, messaging.NewInMemoryQueue())

	for _, id := range []uuid.UUID{uploaded, local} {
		rec := doRequest(router, http.MethodGet, "/runs/"+id.String()+"/log", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
		assert.Equal(t, content, rec.Body.String())
	}

	rec := doRequest(router, http.MethodGet, "/runs/"+missing.String()+"/log", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
