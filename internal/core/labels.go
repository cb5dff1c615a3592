package core

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// LoadLabels reads an AudioSet style class_labels_indices.csv
// (index,mid,display_name) and returns the display names ordered by index.
func LoadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening labels file: %w", err)
	}
	defer f.Close()

	return ParseLabels(f)
}

func ParseLabels(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("error reading labels header: %w", err)
	}

	nameCol, indexCol := -1, -1
	for i, col := range header {
		switch strings.TrimSpace(strings.ToLower(col)) {
		case "display_name":
			nameCol = i
		case "index":
			indexCol = i
		}
	}
	if nameCol < 0 {
		return nil, fmt.Errorf("labels file has no display_name column")
	}

	labels := make(map[int]string)
	row := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading labels row %d: %w", row, err)
		}
		if nameCol >= len(record) {
			return nil, fmt.Errorf("labels row %d is missing display_name", row)
		}

		idx := row
		if indexCol >= 0 && indexCol < len(record) {
			idx, err = strconv.Atoi(strings.TrimSpace(record[indexCol]))
			if err != nil {
				return nil, fmt.Errorf("invalid index on labels row %d: %w", row, err)
			}
		}
		if _, exists := labels[idx]; exists {
			return nil, fmt.Errorf("duplicate label index %d", idx)
		}
		labels[idx] = record[nameCol]
		row++
	}

	out := make([]string, len(labels))
	for idx, name := range labels {
		if idx < 0 || idx >= len(out) {
			return nil, fmt.Errorf("label indices are not contiguous: %d out of range", idx)
		}
		out[idx] = name
	}
	return out, nil
}
