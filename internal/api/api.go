package api

import (
	"audio-tagging/internal/core"
	"audio-tagging/internal/core/types"
	"audio-tagging/internal/database"
	"audio-tagging/internal/messaging"
	"audio-tagging/internal/storage"
	"audio-tagging/pkg/api"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

const maxResultsPage = 1000

type BackendService struct {
	db             *gorm.DB
	storage        storage.ObjectStore
	publisher      messaging.Publisher
	resultBucket   string
	classifierType string
}

// NewBackendService serves the run ledger. storage may be nil, in which case
// logs are only served from the worker's local output path.
func NewBackendService(db *gorm.DB, storage storage.ObjectStore, pub messaging.Publisher, resultBucket, classifierType string) *BackendService {
	return &BackendService{
		db:             db,
		storage:        storage,
		publisher:      pub,
		resultBucket:   resultBucket,
		classifierType: classifierType,
	}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))
	r.Route("/runs", func(r chi.Router) {
		r.Post("/", RestHandler(s.CreateRun))
		r.Get("/", RestHandler(s.ListRuns))
		r.Get("/{run_id}", RestHandler(s.GetRun))
		r.Get("/{run_id}/results", RestHandler(s.GetResults))
		r.Get("/{run_id}/log", s.DownloadLog)
	})
}

func (s *BackendService) CreateRun(r *http.Request) (any, error) {
	req, err := ParseRequest[api.CreateRunRequest](r)
	if err != nil {
		return nil, err
	}

	input := strings.TrimSpace(req.InputDir)
	switch {
	case input == "":
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "InputDir is required")
	case core.IsRemoteInput(input):
		if _, _, err := storage.ParseS3URI(input); err != nil {
			return nil, CodedErrorf(http.StatusUnprocessableEntity, "invalid InputDir: %v", err)
		}
	case !filepath.IsAbs(input):
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "InputDir must be an absolute path or an s3:// uri")
	}
	if req.Workers < 0 {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "Workers must not be negative")
	}
	if req.OutputPath != "" && !filepath.IsAbs(req.OutputPath) {
		return nil, CodedErrorf(http.StatusUnprocessableEntity, "OutputPath must be an absolute path")
	}

	ctx := r.Context()

	run := database.BatchRun{
		InputDir:       input,
		OutputPath:     req.OutputPath,
		ClassifierType: s.classifierType,
		Workers:        req.Workers,
	}
	if err := database.CreateBatchRun(ctx, s.db, &run); err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create run entry")
	}

	if err := s.publisher.PublishBatchTask(ctx, messaging.BatchTaskPayload{RunId: run.Id}); err != nil {
		slog.Error("error publishing batch task", "run_id", run.Id, "error", err)
		database.SaveRunError(ctx, s.db, run.Id, "failed to queue batch task")
		if err := database.UpdateRunStatus(ctx, s.db, run.Id, database.JobFailed); err != nil {
			slog.Error("error marking unqueued run as failed", "run_id", run.Id, "error", err)
		}
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to queue batch task")
	}

	slog.Info("submitted batch run", "run_id", run.Id, "input", run.InputDir)
	return api.CreateRunResponse{RunId: run.Id}, nil
}

func (s *BackendService) ListRuns(r *http.Request) (any, error) {
	runs, err := database.ListRuns(r.Context(), s.db)
	if err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "error listing runs")
	}
	return convertRuns(runs), nil
}

func (s *BackendService) getRun(r *http.Request) (database.BatchRun, error) {
	runId, err := URLParamUUID(r, "run_id")
	if err != nil {
		return database.BatchRun{}, err
	}

	run, err := database.GetRun(r.Context(), s.db, runId)
	if err != nil {
		if errors.Is(err, database.ErrRunNotFound) {
			return database.BatchRun{}, CodedErrorf(http.StatusNotFound, "run not found")
		}
		return database.BatchRun{}, CodedErrorf(http.StatusInternalServerError, "error retrieving run record")
	}
	return run, nil
}

func (s *BackendService) GetRun(r *http.Request) (any, error) {
	run, err := s.getRun(r)
	if err != nil {
		return nil, err
	}
	return convertRun(run), nil
}

// GetResults lists the ledger rows of a run. The query is applied before
// limit and offset, so pages are pages of matching rows.
func (s *BackendService) GetResults(r *http.Request) (any, error) {
	run, err := s.getRun(r)
	if err != nil {
		return nil, err
	}

	params, err := ParseRequestQueryParams[api.ResultsParams](r)
	if err != nil {
		return nil, err
	}
	if params.Limit < 0 || params.Offset < 0 {
		return nil, CodedErrorf(http.StatusBadRequest, "limit and offset must not be negative")
	}
	if params.Limit == 0 || params.Limit > maxResultsPage {
		params.Limit = maxResultsPage
	}
	if params.Status != "" && params.Status != string(core.StatusSuccess) && params.Status != string(core.StatusFailed) {
		return nil, CodedErrorf(http.StatusBadRequest, "invalid status %q", params.Status)
	}

	var filter core.Filter
	if params.Query != "" {
		filter, err = core.ParseQuery(params.Query)
		if err != nil {
			return nil, CodedErrorf(http.StatusBadRequest, "invalid query: %v", err)
		}
	}

	results, err := database.ListResults(r.Context(), s.db, run.Id, database.ResultQuery{Status: params.Status})
	if err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "error listing results")
	}

	matched := make([]api.FileResult, 0)
	for _, res := range results {
		row, err := resultRow(res)
		if err != nil {
			return nil, CodedError(http.StatusInternalServerError, err)
		}
		if filter == nil || filter.Matches(row) {
			matched = append(matched, convertResult(res, row))
		}
	}

	start := min(params.Offset, len(matched))
	end := min(start+params.Limit, len(matched))

	return api.ResultsResponse{Total: len(matched), Results: matched[start:end]}, nil
}

// DownloadLog streams the run's CSV log from the object store, or from the
// output path when the log was never uploaded.
func (s *BackendService) DownloadLog(w http.ResponseWriter, r *http.Request) {
	run, err := s.getRun(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	var data []byte
	switch {
	case run.LogKey != "" && s.storage != nil:
		data, err = s.storage.GetObject(r.Context(), s.resultBucket, run.LogKey)
	case run.OutputPath != "":
		data, err = os.ReadFile(run.OutputPath)
	default:
		err = CodedErrorf(http.StatusNotFound, "run has no result log")
	}
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = CodedErrorf(http.StatusNotFound, "result log not found")
		}
		WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", run.Id.String()+".csv"))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.Error("error writing result log", "run_id", run.Id, "error", err)
	}
}

func resultRow(res database.FileResult) (core.ResultRow, error) {
	row := core.ResultRow{Path: res.Path, Status: core.Status(res.Status)}
	if len(res.Tags) > 0 {
		var tags []types.Tag
		if err := json.Unmarshal(res.Tags, &tags); err != nil {
			return core.ResultRow{}, fmt.Errorf("invalid tags for %s: %w", res.Path, err)
		}
		row.Tags = tags
	}
	return row, nil
}
