package api

import (
	"time"

	"github.com/google/uuid"
)

type CreateRunRequest struct {
	// Local directory or s3://bucket/prefix.
	InputDir string

	// Where the worker writes the log. Defaults to the worker's staging area.
	OutputPath string

	Workers int
}

type CreateRunResponse struct {
	RunId uuid.UUID
}

type Run struct {
	Id             uuid.UUID
	InputDir       string
	OutputPath     string
	ClassifierType string
	Workers        int
	Status         string

	CreationTime   time.Time
	StartTime      *time.Time `json:"StartTime,omitempty"`
	CompletionTime *time.Time `json:"CompletionTime,omitempty"`

	TotalFileCount     int
	SucceededFileCount int
	FailedFileCount    int

	LogKey string
	Errors []string `json:"Errors,omitempty"`
}

type Tag struct {
	Label       string
	Probability float32
}

type FileResult struct {
	Path    string
	Status  string
	Payload string
	Tags    []Tag
}

type ResultsParams struct {
	Query  string `schema:"query"`
	Status string `schema:"status"`
	Limit  int    `schema:"limit"`
	Offset int    `schema:"offset"`
}

type ResultsResponse struct {
	Total   int
	Results []FileResult
}
