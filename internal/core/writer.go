package core

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
)

var (
	ErrShortCount    = errors.New("result channel closed before every file was reported")
	ErrExcessRecords = errors.New("received more results than discovered files")
)

// LogWriter appends result rows to a CSV file. Every append is flushed and
// synced before it returns.
type LogWriter struct {
	path string
	file *os.File
	csv  *csv.Writer
}

// CreateLog truncates (or creates) the log at path, creating the parent
// directory if needed, and writes the header row.
func CreateLog(path string) (*LogWriter, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("error creating output directory %s: %w", dir, err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("error creating result log %s: %w", path, err)
	}

	w := &LogWriter{path: path, file: file, csv: csv.NewWriter(file)}
	if err := w.writeRow(LogHeader); err != nil {
		file.Close()
		return nil, fmt.Errorf("error writing result log header: %w", err)
	}
	return w, nil
}

func (w *LogWriter) Path() string {
	return w.path
}

func (w *LogWriter) Append(rec ResultRecord) error {
	return w.writeRow(rec.Row())
}

func (w *LogWriter) writeRow(row []string) error {
	if err := w.csv.Write(row); err != nil {
		return err
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return err
	}
	return w.file.Sync()
}

func (w *LogWriter) Close() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// RecordSink is notified of every record once it is durable in the log.
type RecordSink interface {
	RecordWritten(rec ResultRecord) error
}

type WriteStats struct {
	Written   int
	Succeeded int
	Failed    int
}

// Aggregator is the single consumer of the result channel.
type Aggregator struct {
	Log      *LogWriter
	Expected int
	Sinks    []RecordSink
	Progress bool
}

// Run writes exactly Expected records and then closes the log. It keeps
// reading until the channel is closed so that surplus records are detected.
// The log is closed on every return path.
func (a *Aggregator) Run(results <-chan ResultRecord) (WriteStats, error) {
	var stats WriteStats

	var bar *progressbar.ProgressBar
	if a.Progress {
		bar = progressbar.NewOptions(a.Expected,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("classifying"),
			progressbar.OptionSetWidth(30),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	for pending := a.Expected; pending > 0; pending-- {
		rec, ok := <-results
		if !ok {
			a.Log.Close()
			return stats, fmt.Errorf("%w: %d of %d results missing", ErrShortCount, pending, a.Expected)
		}

		if err := a.Log.Append(rec); err != nil {
			a.Log.Close()
			return stats, fmt.Errorf("error appending result for %s: %w", rec.Path, err)
		}

		stats.Written++
		if rec.Status == StatusSuccess {
			stats.Succeeded++
		} else {
			stats.Failed++
		}

		for _, sink := range a.Sinks {
			if err := sink.RecordWritten(rec); err != nil {
				slog.Warn("result sink failed", "path", rec.Path, "error", err)
			}
		}

		if bar != nil {
			bar.Add(1) //nolint:errcheck
		}
	}

	if err := a.Log.Close(); err != nil {
		return stats, fmt.Errorf("error closing result log: %w", err)
	}

	extra := 0
	for range results {
		extra++
	}
	if extra > 0 {
		return stats, fmt.Errorf("%w: %d unexpected results", ErrExcessRecords, extra)
	}

	return stats, nil
}
