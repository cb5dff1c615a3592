package main

import (
	"audio-tagging/internal/core"
	"audio-tagging/internal/core/types"
	"audio-tagging/pkg/api"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/go-resty/resty/v2"
)

const pageSize = 1000

var reportHeader = []string{"File Path", "Status", "Top Label", "Score"}

// fetchResults pages through a run's results on the api server.
func fetchResults(client *resty.Client, runId, query, status string) ([]core.ResultRow, error) {
	var rows []core.ResultRow
	for offset := 0; ; offset += pageSize {
		var page api.ResultsResponse
		res, err := client.R().
			SetHeader("Accept", "application/json").
			SetPathParam("run_id", runId).
			SetQueryParams(map[string]string{
				"query":  query,
				"status": status,
				"limit":  strconv.Itoa(pageSize),
				"offset": strconv.Itoa(offset),
			}).
			SetResult(&page).
			Get("/api/v1/runs/{run_id}/results")
		if err != nil {
			return nil, fmt.Errorf("error requesting results: %w", err)
		}
		if !res.IsSuccess() {
			return nil, fmt.Errorf("api returned status %d: %s", res.StatusCode(), res.String())
		}

		for _, result := range page.Results {
			row := core.ResultRow{Path: result.Path, Status: core.Status(result.Status)}
			for _, tag := range result.Tags {
				row.Tags = append(row.Tags, types.Tag{Label: tag.Label, Probability: tag.Probability})
			}
			rows = append(rows, row)
		}

		if len(page.Results) < pageSize || offset+len(page.Results) >= page.Total {
			return rows, nil
		}
	}
}

func loadLocal(path, query, status string) ([]core.ResultRow, error) {
	rows, err := core.ReadResultLog(path)
	if err != nil {
		return nil, err
	}

	if query != "" {
		filter, err := core.ParseQuery(query)
		if err != nil {
			return nil, fmt.Errorf("invalid query: %w", err)
		}
		rows = core.FilterRows(rows, filter)
	}

	if status != "" {
		var out []core.ResultRow
		for _, row := range rows {
			if string(row.Status) == status {
				out = append(out, row)
			}
		}
		rows = out
	}
	return rows, nil
}

func writeReport(w io.Writer, rows []core.ResultRow) error {
	out := csv.NewWriter(w)
	if err := out.Write(reportHeader); err != nil {
		return err
	}
	for _, row := range rows {
		label, score := "", ""
		if top, ok := (types.Prediction{Tags: row.Tags}).Top(); ok {
			label = top.Label
			score = strconv.FormatFloat(float64(top.Probability), 'f', 3, 32)
		}
		if err := out.Write([]string{row.Path, string(row.Status), label, score}); err != nil {
			return err
		}
	}
	out.Flush()
	return out.Error()
}

func main() {
	logPath := flag.String("log", "", "result log to read")
	apiURL := flag.String("api", "", "api server to read results from, e.g. http://localhost:8001")
	runId := flag.String("run", "", "run id, used with -api")
	query := flag.String("query", "", `filter expression, e.g. SCORE "Speech" > 0.5 AND NOT PATH CONTAINS "tmp"`)
	status := flag.String("status", "", "only keep rows with this status (Success or Failed)")
	flag.Parse()

	var (
		rows []core.ResultRow
		err  error
	)
	switch {
	case *apiURL != "":
		if *runId == "" {
			log.Fatalf("-run is required with -api")
		}
		rows, err = fetchResults(resty.New().SetBaseURL(*apiURL), *runId, *query, *status)
	case *logPath != "":
		rows, err = loadLocal(*logPath, *query, *status)
	default:
		log.Fatalf("one of -log or -api is required")
	}
	if err != nil {
		log.Fatalf("Error loading results: %v", err)
	}

	if err := writeReport(os.Stdout, rows); err != nil {
		log.Fatalf("Error writing report: %v", err)
	}
	log.Printf("%d matching files", len(rows))
}
