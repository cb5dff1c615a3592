package core

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLog(t *testing.T, path string) [][]string {
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	require.Equal(t, LogHeader, rows[0])
	return rows[1:]
}

type collectingSink struct {
	mu      sync.Mutex
	records []ResultRecord
	err     error
}

func (s *collectingSink) RecordWritten(rec ResultRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return s.err
}

func TestCreateLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out", "results.csv")

	log, err := CreateLog(path)
	require.NoError(t, err)
	require.NoError(t, log.Close())

	assert.Empty(t, readLog(t, path))

	// an existing log is truncated
	log, err = CreateLog(path)
	require.NoError(t, err)
	require.NoError(t, log.Append(SuccessRecord("a.wav", "Speech:0.900")))
	require.NoError(t, log.Close())

	log, err = CreateLog(path)
	require.NoError(t, err)
	require.NoError(t, log.Close())
	assert.Empty(t, readLog(t, path))
}

func TestAppendIsDurableImmediately(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	log, err := CreateLog(path)
	require.NoError(t, err)
	defer log.Close()

	require.NoError(t, log.Append(SuccessRecord("a, b.wav", "Vehicle horn, car horn, honking:0.500")))
	require.NoError(t, log.Append(FailedRecord("c.wav", errors.New("invalid audio input: \"quoted\"\nsecond line"))))

	rows := readLog(t, path)
	assert.Equal(t, [][]string{
		{"a, b.wav", "Success", "Vehicle horn, car horn, honking:0.500"},
		{"c.wav", "Failed", "invalid audio input: \"quoted\"\nsecond line"},
	}, rows)
}

func TestAggregatorWritesExactCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	log, err := CreateLog(path)
	require.NoError(t, err)

	results := make(chan ResultRecord, 4)
	results <- SuccessRecord("a.wav", "Speech:0.900")
	results <- FailedRecord("b.wav", errors.New("bad"))
	results <- SuccessRecord("c.wav", "Music:0.800")
	close(results)

	sink := &collectingSink{err: errors.New("sink down")}
	agg := &Aggregator{Log: log, Expected: 3, Sinks: []RecordSink{sink}}

	stats, err := agg.Run(results)
	require.NoError(t, err)
	assert.Equal(t, WriteStats{Written: 3, Succeeded: 2, Failed: 1}, stats)
	assert.Len(t, sink.records, 3)
	assert.Len(t, readLog(t, path), 3)
}

func TestAggregatorShortCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	log, err := CreateLog(path)
	require.NoError(t, err)

	results := make(chan ResultRecord, 1)
	results <- SuccessRecord("a.wav", "Speech:0.900")
	close(results)

	agg := &Aggregator{Log: log, Expected: 3}
	stats, err := agg.Run(results)
	assert.ErrorIs(t, err, ErrShortCount)
	assert.ErrorContains(t, err, "2 of 3")
	assert.Equal(t, 1, stats.Written)

	// the rows written before the failure stay valid
	assert.Len(t, readLog(t, path), 1)
}

func TestAggregatorExcessRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	log, err := CreateLog(path)
	require.NoError(t, err)

	results := make(chan ResultRecord, 3)
	results <- SuccessRecord("a.wav", "x:1.000")
	results <- SuccessRecord("b.wav", "x:1.000")
	results <- SuccessRecord("a.wav", "x:1.000")
	close(results)

	agg := &Aggregator{Log: log, Expected: 2}
	_, err = agg.Run(results)
	assert.ErrorIs(t, err, ErrExcessRecords)
	assert.Len(t, readLog(t, path), 2)
}

func TestAggregatorWriteFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	log, err := CreateLog(path)
	require.NoError(t, err)

	// closing the file underneath the writer makes every append fail
	require.NoError(t, log.file.Close())

	results := make(chan ResultRecord, 1)
	results <- SuccessRecord("a.wav", "x:1.000")

	agg := &Aggregator{Log: log, Expected: 1}
	_, err = agg.Run(results)
	assert.ErrorContains(t, err, "error appending result for a.wav")
}
