package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrRunNotFound = errors.New("batch run not found")

func CreateBatchRun(ctx context.Context, db *gorm.DB, run *BatchRun) error {
	if run.Id == uuid.Nil {
		run.Id = uuid.New()
	}
	if run.Status == "" {
		run.Status = JobQueued
	}
	if run.CreationTime.IsZero() {
		run.CreationTime = time.Now().UTC()
	}

	if err := db.WithContext(ctx).Create(run).Error; err != nil {
		slog.Error("error creating batch run", "error", err)
		return fmt.Errorf("error creating batch run: %w", err)
	}
	return nil
}

func UpdateRunStatus(ctx context.Context, txn *gorm.DB, runId uuid.UUID, status string) error {
	updates := map[string]any{"status": status}
	switch status {
	case JobRunning:
		updates["start_time"] = time.Now().UTC()
	case JobCompleted, JobFailed:
		updates["completion_time"] = time.Now().UTC()
	}

	if err := txn.WithContext(ctx).Model(&BatchRun{Id: runId}).Updates(updates).Error; err != nil {
		slog.Error("error updating batch run status", "run_id", runId, "status", status, "error", err)
		return err
	}
	return nil
}

func SetRunTotals(ctx context.Context, txn *gorm.DB, runId uuid.UUID, total, workers int) error {
	updates := map[string]any{"total_file_count": total, "workers": workers}
	if err := txn.WithContext(ctx).Model(&BatchRun{Id: runId}).Updates(updates).Error; err != nil {
		slog.Error("error updating batch run totals", "run_id", runId, "error", err)
		return err
	}
	return nil
}

func SetRunLogKey(ctx context.Context, txn *gorm.DB, runId uuid.UUID, key string) error {
	if err := txn.WithContext(ctx).Model(&BatchRun{Id: runId}).Update("log_key", key).Error; err != nil {
		slog.Error("error updating batch run log key", "run_id", runId, "error", err)
		return err
	}
	return nil
}

func SaveRunError(ctx context.Context, txn *gorm.DB, runId uuid.UUID, errorMessage string) {
	runError := RunError{
		RunId:     runId,
		ErrorId:   uuid.New(),
		Error:     errorMessage,
		Timestamp: time.Now().UTC(),
	}

	if err := txn.WithContext(ctx).Create(&runError).Error; err != nil {
		slog.Error("error saving run error", "run_id", runId, "error", err)
	}
}

// SaveFileResult stores one classified file and bumps the run's success or
// failure counter in the same transaction.
func SaveFileResult(ctx context.Context, db *gorm.DB, result FileResult, succeeded bool) error {
	counter := "failed_file_count"
	if succeeded {
		counter = "succeeded_file_count"
	}

	return db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		if err := txn.Create(&result).Error; err != nil {
			return fmt.Errorf("error saving file result: %w", err)
		}

		if err := txn.Model(&BatchRun{Id: result.RunId}).
			Update(counter, gorm.Expr(counter+" + ?", 1)).Error; err != nil {
			return fmt.Errorf("error updating %s: %w", counter, err)
		}
		return nil
	})
}

func GetRun(ctx context.Context, db *gorm.DB, runId uuid.UUID) (BatchRun, error) {
	var run BatchRun
	if err := db.WithContext(ctx).Preload("Errors").First(&run, "id = ?", runId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return BatchRun{}, ErrRunNotFound
		}
		slog.Error("error getting batch run", "run_id", runId, "error", err)
		return BatchRun{}, fmt.Errorf("error getting batch run: %w", err)
	}
	return run, nil
}

func ListRuns(ctx context.Context, db *gorm.DB) ([]BatchRun, error) {
	var runs []BatchRun
	if err := db.WithContext(ctx).Order("creation_time DESC").Find(&runs).Error; err != nil {
		slog.Error("error listing batch runs", "error", err)
		return nil, fmt.Errorf("error listing batch runs: %w", err)
	}
	return runs, nil
}

func ListRunsWithStatus(ctx context.Context, db *gorm.DB, status string) ([]BatchRun, error) {
	var runs []BatchRun
	if err := db.WithContext(ctx).Where("status = ?", status).Order("creation_time").Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("error listing %s batch runs: %w", status, err)
	}
	return runs, nil
}

type ResultQuery struct {
	Status string
	Limit  int
	Offset int
}

func ListResults(ctx context.Context, db *gorm.DB, runId uuid.UUID, q ResultQuery) ([]FileResult, error) {
	query := db.WithContext(ctx).Where("run_id = ?", runId).Order("path")
	if q.Status != "" {
		query = query.Where("status = ?", q.Status)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	if q.Offset > 0 {
		query = query.Offset(q.Offset)
	}

	var results []FileResult
	if err := query.Find(&results).Error; err != nil {
		slog.Error("error listing file results", "run_id", runId, "error", err)
		return nil, fmt.Errorf("error listing file results: %w", err)
	}
	return results, nil
}
