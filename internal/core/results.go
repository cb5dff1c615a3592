package core

import (
	"audio-tagging/internal/core/types"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
)

// ParseResultRow rebuilds a queryable row from a log row. Failed rows keep no
// tags.
func ParseResultRow(path, status, payload string) (ResultRow, error) {
	row := ResultRow{Path: path, Status: Status(status)}
	switch row.Status {
	case StatusSuccess:
		tags, err := types.ParseSummary(payload)
		if err != nil {
			return ResultRow{}, fmt.Errorf("invalid result for %s: %w", path, err)
		}
		row.Tags = tags
	case StatusFailed:
	default:
		return ResultRow{}, fmt.Errorf("invalid status %q for %s", status, path)
	}
	return row, nil
}

// ReadResultLog loads every row of a result log written by LogWriter.
func ReadResultLog(path string) ([]ResultRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening result log: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = len(LogHeader)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("error reading result log header: %w", err)
	}
	if !slices.Equal(header, LogHeader) {
		return nil, fmt.Errorf("unexpected result log header %v", header)
	}

	var rows []ResultRow
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading result log: %w", err)
		}

		row, err := ParseResultRow(record[0], record[1], record[2])
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func FilterRows(rows []ResultRow, filter Filter) []ResultRow {
	if filter == nil {
		return rows
	}
	var out []ResultRow
	for _, row := range rows {
		if filter.Matches(row) {
			out = append(out, row)
		}
	}
	return out
}
