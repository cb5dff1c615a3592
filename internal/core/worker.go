package core

import (
	"audio-tagging/internal/core/types"
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var ErrWriterAborted = errors.New("result writer stopped before the worker finished")

// Worker classifies its partition one file at a time and sends exactly one
// record per file. A failing file never stops the worker.
type Worker struct {
	Id       int
	Template types.ClassifierConfig
	Loader   ClassifierLoader

	// Closed when the writer has stopped consuming. Sends give up instead of
	// blocking forever.
	Abort <-chan struct{}
}

func (w *Worker) Run(ctx context.Context, paths []string, out chan<- ResultRecord) error {
	slog.Info("worker starting", "worker", w.Id, "files", len(paths))

	classifier, loadErr := w.load()
	defer func() {
		if classifier != nil {
			classifier.Release()
		}
	}()

	var succeeded, failed int
	for _, path := range paths {
		var outcome Outcome
		switch {
		case ctx.Err() != nil:
			outcome = Outcome{Err: ctx.Err(), Kind: KindCancelled}
		case classifier == nil:
			outcome = Outcome{Err: loadErr, Kind: KindModelError}
		default:
			outcome = InvokeClassifier(ctx, classifier, w.Template.WithAudioPath(path))
		}

		if outcome.Ok() {
			succeeded++
			slog.Debug("classified file", "worker", w.Id, "path", path)
		} else {
			failed++
			slog.Warn("error classifying file", "worker", w.Id, "path", path, "kind", outcome.Kind, "error", outcome.Err)
		}

		select {
		case out <- outcome.Record(path):
		case <-w.Abort:
			return ErrWriterAborted
		}

		// A crashed classifier may be left in a broken state, so the rest of the
		// partition gets a fresh one.
		if outcome.Kind == KindCrashed && classifier != nil {
			classifier.Release()
			classifier, loadErr = w.load()
		}
	}

	slog.Info("worker finished", "worker", w.Id, "succeeded", succeeded, "failed", failed)

	if loadErr != nil {
		return loadErr
	}
	return nil
}

func (w *Worker) load() (Classifier, error) {
	classifier, err := w.Loader()
	if err != nil {
		slog.Error("error loading classifier", "worker", w.Id, "error", err)
		return nil, fmt.Errorf("error loading classifier: %w", err)
	}
	return classifier, nil
}
