package api

import (
	"audio-tagging/internal/core"
	"audio-tagging/internal/database"
	"audio-tagging/pkg/api"
	"database/sql"
	"time"
)

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}

func convertRun(r database.BatchRun) api.Run {
	run := api.Run{
		Id:                 r.Id,
		InputDir:           r.InputDir,
		OutputPath:         r.OutputPath,
		ClassifierType:     r.ClassifierType,
		Workers:            r.Workers,
		Status:             r.Status,
		CreationTime:       r.CreationTime,
		StartTime:          nullTime(r.StartTime),
		CompletionTime:     nullTime(r.CompletionTime),
		TotalFileCount:     r.TotalFileCount,
		SucceededFileCount: r.SucceededFileCount,
		FailedFileCount:    r.FailedFileCount,
		LogKey:             r.LogKey,
	}
	for _, e := range r.Errors {
		run.Errors = append(run.Errors, e.Error)
	}
	return run
}

func convertRuns(rs []database.BatchRun) []api.Run {
	runs := make([]api.Run, 0, len(rs))
	for _, r := range rs {
		runs = append(runs, convertRun(r))
	}
	return runs
}

func convertResult(res database.FileResult, row core.ResultRow) api.FileResult {
	tags := make([]api.Tag, 0, len(row.Tags))
	for _, t := range row.Tags {
		tags = append(tags, api.Tag{Label: t.Label, Probability: t.Probability})
	}
	return api.FileResult{
		Path:    res.Path,
		Status:  res.Status,
		Payload: res.Payload,
		Tags:    tags,
	}
}
