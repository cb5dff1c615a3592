package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	JobQueued    string = "QUEUED"
	JobRunning   string = "RUNNING"
	JobCompleted string = "COMPLETED"
	JobFailed    string = "FAILED"
)

type BatchRun struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	InputDir       string `gorm:"not null"`
	OutputPath     string
	ClassifierType string `gorm:"size:20;not null"`
	Workers        int

	Status         string `gorm:"size:20;not null"`
	CreationTime   time.Time
	StartTime      sql.NullTime
	CompletionTime sql.NullTime

	TotalFileCount     int `gorm:"default:0"`
	SucceededFileCount int `gorm:"default:0"`
	FailedFileCount    int `gorm:"default:0"`

	// Object key of the uploaded result log, empty if the log was not uploaded.
	LogKey string

	Results []FileResult `gorm:"foreignKey:RunId;constraint:OnDelete:CASCADE"`
	Errors  []RunError   `gorm:"foreignKey:RunId;constraint:OnDelete:CASCADE"`
}

type FileResult struct {
	RunId   uuid.UUID `gorm:"type:uuid;primaryKey"`
	Path    string    `gorm:"primaryKey"`
	Status  string    `gorm:"size:20;not null;index"`
	Payload string
	Tags    datatypes.JSON
}

type RunError struct {
	RunId     uuid.UUID `gorm:"type:uuid;primaryKey"`
	ErrorId   uuid.UUID `gorm:"type:uuid;primaryKey"`
	Error     string
	Timestamp time.Time
}
