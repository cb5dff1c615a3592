package core

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadResultLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	log, err := CreateLog(path)
	require.NoError(t, err)
	require.NoError(t, log.Append(SuccessRecord("a.wav", "Speech:0.900; Vehicle horn, car horn, honking:0.050")))
	require.NoError(t, log.Append(FailedRecord("b.wav", errors.New("invalid audio input: EOF"))))
	require.NoError(t, log.Close())

	rows, err := ReadResultLog(path)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, StatusSuccess, rows[0].Status)
	assert.InDelta(t, 0.05, rows[0].Score("Vehicle horn, car horn, honking"), 1e-6)
	assert.Equal(t, StatusFailed, rows[1].Status)
	assert.Empty(t, rows[1].Tags)

	filter, err := ParseQuery(`SCORE "Speech" > 0.5`)
	require.NoError(t, err)
	matched := FilterRows(rows, filter)
	require.Len(t, matched, 1)
	assert.Equal(t, "a.wav", matched[0].Path)

	assert.Len(t, FilterRows(rows, nil), 2)
}

func TestReadResultLogRejectsForeignFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "other.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b,c\n1,2,3\n"), 0644))

	_, err := ReadResultLog(path)
	assert.ErrorContains(t, err, "unexpected result log header")

	_, err = ParseResultRow("a.wav", "Pending", "")
	assert.Error(t, err)
}
