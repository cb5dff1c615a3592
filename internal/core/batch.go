package core

import (
	"audio-tagging/internal/core/types"
	"audio-tagging/internal/core/utils"
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"
)

// DefaultWorkers uses half of the available cores, leaving room for the
// classifier's own threads.
func DefaultWorkers() int {
	return max(1, runtime.NumCPU()/2)
}

// RunObserver follows a batch as it runs. RecordWritten is called from the
// writer goroutine only.
type RunObserver interface {
	RecordSink

	BatchStarted(total, workers int) error
}

type BatchRequest struct {
	InputDir   string
	OutputPath string

	// Overrides BatchRunner.Workers when positive.
	Workers int

	Observer RunObserver
}

type BatchSummary struct {
	InputDir  string
	LogPath   string
	Total     int
	Workers   int
	Succeeded int
	Failed    int
	Duration  time.Duration
}

// BatchRunner is the supervisor for one batch: it discovers the input,
// partitions it, starts the writer and then the workers, and joins them in
// that order.
type BatchRunner struct {
	Template types.ClassifierConfig
	Loader   ClassifierLoader
	Workers  int

	// Capacity of the result channel, 2 per worker when zero.
	ResultBuffer int

	Progress bool
}

type writerResult struct {
	stats WriteStats
	err   error
}

func (r *BatchRunner) Run(ctx context.Context, req BatchRequest) (BatchSummary, error) {
	start := time.Now()
	summary := BatchSummary{InputDir: req.InputDir, LogPath: req.OutputPath}

	if err := r.Template.Validate(); err != nil {
		return summary, fmt.Errorf("invalid classifier config: %w", err)
	}
	if r.Loader == nil {
		return summary, fmt.Errorf("no classifier loader configured")
	}

	iter, err := Discover(req.InputDir)
	if err != nil {
		return summary, err
	}
	files, err := CollectFiles(iter)
	if err != nil {
		return summary, err
	}

	n := r.Workers
	if req.Workers > 0 {
		n = req.Workers
	}
	if n < 1 {
		n = DefaultWorkers()
	}

	parts := NonEmpty(Partition(files, n))
	summary.Total = len(files)
	summary.Workers = len(parts)

	log, err := CreateLog(req.OutputPath)
	if err != nil {
		return summary, err
	}

	slog.Info("starting batch", "input", req.InputDir, "output", req.OutputPath, "files", len(files), "workers", len(parts))

	if req.Observer != nil {
		if err := req.Observer.BatchStarted(len(files), len(parts)); err != nil {
			slog.Warn("run observer failed on batch start", "error", err)
		}
	}

	if len(files) == 0 {
		if err := log.Close(); err != nil {
			return summary, fmt.Errorf("error closing result log: %w", err)
		}
		summary.Duration = time.Since(start)
		slog.Info("no audio files found, wrote empty result log", "output", req.OutputPath)
		return summary, nil
	}

	buffer := r.ResultBuffer
	if buffer <= 0 {
		buffer = 2 * len(parts)
	}
	results := NewResultChannel(buffer)

	aggregator := &Aggregator{Log: log, Expected: len(files), Progress: r.Progress}
	if req.Observer != nil {
		aggregator.Sinks = append(aggregator.Sinks, req.Observer)
	}

	// Cancelled by the writer if it stops early so that workers blocked on a
	// send can exit.
	writerCtx, abort := context.WithCancel(context.Background())
	defer abort()

	writerDone := make(chan writerResult, 1)
	go func() {
		stats, err := aggregator.Run(results)
		if err != nil {
			abort()
		}
		writerDone <- writerResult{stats: stats, err: err}
	}()

	worker := func(id int, part []string, out chan<- ResultRecord) error {
		w := &Worker{Id: id, Template: r.Template, Loader: r.Loader, Abort: writerCtx.Done()}
		return w.Run(ctx, part, out)
	}

	for task := range utils.RunPartitions(worker, parts, results) {
		if task.Error != nil {
			slog.Error("worker exited with error", "worker", task.Result, "error", task.Error)
		}
	}

	res := <-writerDone

	summary.Succeeded = res.stats.Succeeded
	summary.Failed = res.stats.Failed
	summary.Duration = time.Since(start)

	if res.err != nil {
		return summary, fmt.Errorf("result writer failed: %w", res.err)
	}
	if err := ctx.Err(); err != nil {
		// the log is complete, the unprocessed files are recorded as failed
		return summary, fmt.Errorf("batch cancelled: %w", err)
	}

	slog.Info("batch complete", "files", summary.Total, "succeeded", summary.Succeeded, "failed", summary.Failed, "duration", summary.Duration)

	return summary, nil
}
