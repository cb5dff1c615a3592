package core

import (
	"audio-tagging/internal/core/types"
	"audio-tagging/internal/database"
	"audio-tagging/internal/messaging"
	"audio-tagging/internal/storage"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const resultLogName = "results.csv"

// TaskProcessor runs queued batches. Each batch task names a run in the
// ledger; the processor stages its input, runs it, uploads the log and
// announces completion.
type TaskProcessor struct {
	db        *gorm.DB
	storage   storage.ObjectStore
	publisher messaging.Publisher
	reciever  messaging.Reciever

	runner       *BatchRunner
	stagingDir   string
	resultBucket string

	// Cancelled by Stop so that a batch in progress winds down.
	ctx    context.Context
	cancel context.CancelFunc

	stop     chan struct{}
	stopOnce sync.Once

	// Held while a task is processed, so Stop closes the queues only after
	// the task in progress has published its completion notice.
	processing sync.Mutex
}

func NewTaskProcessor(db *gorm.DB, storage storage.ObjectStore, publisher messaging.Publisher, reciever messaging.Reciever, runner *BatchRunner, stagingDir string, resultBucket string) *TaskProcessor {
	ctx, cancel := context.WithCancel(context.Background())
	return &TaskProcessor{
		ctx:          ctx,
		cancel:       cancel,
		db:           db,
		storage:      storage,
		publisher:    publisher,
		reciever:     reciever,
		runner:       runner,
		stagingDir:   stagingDir,
		resultBucket: resultBucket,
		stop:         make(chan struct{}),
	}
}

func (proc *TaskProcessor) Start() {
	slog.Info("starting task processor")

	for {
		select {
		case task, ok := <-proc.reciever.Tasks():
			if !ok {
				return
			}
			proc.ProcessTask(task)
		case <-proc.stop:
			return
		}
	}
}

func (proc *TaskProcessor) Stop() {
	slog.Info("stopping task processor")

	proc.stopOnce.Do(func() {
		close(proc.stop)
		proc.cancel()

		proc.processing.Lock()
		defer proc.processing.Unlock()

		proc.publisher.Close()
		proc.reciever.Close()
	})
}

func (proc *TaskProcessor) ProcessTask(task messaging.Task) {
	proc.processing.Lock()
	defer proc.processing.Unlock()

	ctx := proc.ctx

	var err error
	switch task.Type() {
	case messaging.BatchQueue:
		var payload messaging.BatchTaskPayload
		if err = json.Unmarshal(task.Payload(), &payload); err != nil {
			slog.Error("error unmarshalling batch task", "error", err)
			if err := task.Reject(); err != nil { // Discard malformed message
				slog.Error("error rejecting message from queue", "error", err)
			}
			return
		}
		err = proc.processBatchTask(ctx, payload)

	case messaging.BatchCompletedQueue:
		var payload messaging.BatchCompletedPayload
		if err = json.Unmarshal(task.Payload(), &payload); err != nil {
			slog.Error("error unmarshalling batch completed notice", "error", err)
			if err := task.Reject(); err != nil {
				slog.Error("error rejecting message from queue", "error", err)
			}
			return
		}
		slog.Info("batch finished", "run_id", payload.RunId, "status", payload.Status, "total", payload.Total, "succeeded", payload.Succeeded, "failed", payload.Failed, "log_key", payload.LogKey)

	default:
		slog.Error("received unknown task type", "queue", task.Type())
		if err := task.Reject(); err != nil { // reject unknown message type
			slog.Error("error rejecting message from queue", "error", err)
		}
		return
	}

	if err != nil {
		slog.Error("error processing task", "queue", task.Type(), "error", err)
		if err := task.Nack(); err != nil {
			slog.Error("error reporting processing failure on message from queue", "error", err)
		}
	} else {
		slog.Info("successfully processed task", "queue", task.Type())
		if err := task.Ack(); err != nil {
			slog.Error("error acknowledging message from queue", "error", err)
		}
	}
}

func (proc *TaskProcessor) processBatchTask(ctx context.Context, payload messaging.BatchTaskPayload) error {
	runId := payload.RunId

	run, err := database.GetRun(ctx, proc.db, runId)
	if err != nil {
		return fmt.Errorf("error getting batch run %s: %w", runId, err)
	}

	// Redelivered messages for runs that already started are dropped.
	if run.Status != database.JobQueued {
		slog.Info("batch run is not queued, skipping", "run_id", runId, "status", run.Status)
		return nil
	}

	slog.Info("processing batch run", "run_id", runId, "input", run.InputDir)

	if err := database.UpdateRunStatus(ctx, proc.db, runId, database.JobRunning); err != nil {
		return fmt.Errorf("error updating batch run status: %w", err)
	}

	summary, logKey, runErr := proc.runBatch(ctx, run)

	// A stopped processor still records how the run ended.
	ctx = context.WithoutCancel(ctx)

	status := database.JobCompleted
	notice := messaging.BatchCompletedPayload{
		RunId:     runId,
		Total:     summary.Total,
		Succeeded: summary.Succeeded,
		Failed:    summary.Failed,
		LogKey:    logKey,
	}
	if runErr != nil {
		status = database.JobFailed
		notice.Error = runErr.Error()
		database.SaveRunError(ctx, proc.db, runId, runErr.Error())
	}
	notice.Status = status

	if err := database.UpdateRunStatus(ctx, proc.db, runId, status); err != nil {
		return fmt.Errorf("error updating batch run status: %w", err)
	}

	if err := proc.publisher.PublishBatchCompleted(ctx, notice); err != nil {
		slog.Error("error publishing batch completion", "run_id", runId, "error", err)
	}

	if runErr != nil {
		return fmt.Errorf("batch run %s failed: %w", runId, runErr)
	}
	return nil
}

func (proc *TaskProcessor) runBatch(ctx context.Context, run database.BatchRun) (BatchSummary, string, error) {
	workDir := filepath.Join(proc.stagingDir, run.Id.String())
	defer func() {
		if err := os.RemoveAll(filepath.Join(workDir, "input")); err != nil {
			slog.Warn("error removing staged input", "run_id", run.Id, "error", err)
		}
	}()

	inputDir, err := StageInput(ctx, proc.storage, run.InputDir, filepath.Join(workDir, "input"))
	if err != nil {
		return BatchSummary{}, "", err
	}

	output := run.OutputPath
	if output == "" {
		output = filepath.Join(workDir, resultLogName)
	}

	summary, runErr := proc.runner.Run(ctx, BatchRequest{
		InputDir:   inputDir,
		OutputPath: output,
		Workers:    run.Workers,
		Observer:   &ledgerObserver{ctx: context.WithoutCancel(ctx), db: proc.db, runId: run.Id},
	})

	// A cancelled batch still leaves a complete log behind.
	var logKey string
	if _, err := os.Stat(output); err == nil && proc.storage != nil && proc.resultBucket != "" {
		key, err := proc.uploadLog(context.WithoutCancel(ctx), run.Id, output)
		if err != nil {
			runErr = errors.Join(runErr, err)
		} else {
			logKey = key
		}
	}

	return summary, logKey, runErr
}

func (proc *TaskProcessor) uploadLog(ctx context.Context, runId uuid.UUID, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("error opening result log: %w", err)
	}
	defer f.Close()

	key := filepath.ToSlash(filepath.Join(runId.String(), resultLogName))
	if err := proc.storage.PutObject(ctx, proc.resultBucket, key, f); err != nil {
		slog.Error("error uploading result log", "run_id", runId, "bucket", proc.resultBucket, "key", key, "error", err)
		return "", fmt.Errorf("error uploading result log: %w", err)
	}

	if err := database.SetRunLogKey(ctx, proc.db, runId, key); err != nil {
		return "", fmt.Errorf("error saving result log key: %w", err)
	}

	slog.Info("uploaded result log", "run_id", runId, "bucket", proc.resultBucket, "key", key)
	return key, nil
}

// ledgerObserver mirrors every written row into the ledger. Ledger failures
// are reported to the writer, which logs them without failing the batch.
type ledgerObserver struct {
	ctx   context.Context
	db    *gorm.DB
	runId uuid.UUID
}

func (o *ledgerObserver) BatchStarted(total, workers int) error {
	return database.SetRunTotals(o.ctx, o.db, o.runId, total, workers)
}

func (o *ledgerObserver) RecordWritten(rec ResultRecord) error {
	row, err := ParseResultRow(rec.Path, string(rec.Status), rec.Payload)
	if err != nil {
		return err
	}
	if row.Tags == nil {
		row.Tags = []types.Tag{}
	}
	tags, err := json.Marshal(row.Tags)
	if err != nil {
		return fmt.Errorf("error encoding tags: %w", err)
	}

	result := database.FileResult{
		RunId:   o.runId,
		Path:    rec.Path,
		Status:  string(rec.Status),
		Payload: rec.Payload,
		Tags:    datatypes.JSON(tags),
	}
	return database.SaveFileResult(o.ctx, o.db, result, rec.Status == StatusSuccess)
}
