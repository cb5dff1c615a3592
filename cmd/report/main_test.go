package main

import (
	"audio-tagging/internal/core"
	"audio-tagging/pkg/api"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLog(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "results.csv")
	content := strings.Join([]string{
		"File Path,Status,Result",
		"/data/dog.wav,Success,Dog:0.900; Animal:0.800",
		"/data/speech.wav,Success,Speech:0.950; Music:0.100",
		"/data/broken.wav,Failed,invalid audio input",
	}, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadLocal(t *testing.T) {
	path := writeLog(t)

	rows, err := loadLocal(path, "", "")
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	rows, err = loadLocal(path, `SCORE "Dog" > 0.5`, "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "/data/dog.wav", rows[0].Path)

	rows, err = loadLocal(path, "", "Failed")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, core.StatusFailed, rows[0].Status)

	_, err = loadLocal(path, "SCORE >", "")
	assert.Error(t, err)
}

func TestWriteReport(t *testing.T) {
	rows, err := loadLocal(writeLog(t), "", "")
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, writeReport(&out, rows))

	assert.Equal(t, strings.Join([]string{
		"File Path,Status,Top Label,Score",
		"/data/dog.wav,Success,Dog,0.900",
		"/data/speech.wav,Success,Speech,0.950",
		"/data/broken.wav,Failed,,",
	}, "\n")+"\n", out.String())
}

func TestFetchResultsPages(t *testing.T) {
	const total = pageSize + 5

	var queries []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/runs/abc/results", r.URL.Path)
		queries = append(queries, r.URL.Query().Get("query"))

		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		page := api.ResultsResponse{Total: total}
		for i := offset; i < total && i < offset+pageSize; i++ {
			page.Results = append(page.Results, api.FileResult{
				Path:   "/data/" + strconv.Itoa(i) + ".wav",
				Status: "Success",
				Tags:   []api.Tag{{Label: "Speech", Probability: 0.5}},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(page))
	}))
	defer server.Close()

	rows, err := fetchResults(resty.New().SetBaseURL(server.URL), "abc", `TOP = "Speech"`, "")
	require.NoError(t, err)
	assert.Len(t, rows, total)
	assert.Equal(t, []string{`TOP = "Speech"`, `TOP = "Speech"`}, queries)
	assert.Equal(t, "Speech", rows[0].Tags[0].Label)
}

func TestFetchResultsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "run not found", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := fetchResults(resty.New().SetBaseURL(server.URL), "abc", "", "")
	assert.ErrorContains(t, err, "404")
}
