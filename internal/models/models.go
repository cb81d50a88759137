package models

import (
	"database/sql"
	"time"
)

type Operation string

const (
	OperationTraining    Operation = "training"
	OperationRecognition Operation = "recognition"
)

type RunStatus string

const (
	RunRunning  RunStatus = "running"
	RunComplete RunStatus = "complete"
	RunFailed   RunStatus = "failed"
)

// Run is one execution of the demo sequence or of a single workflow.
type Run struct {
	ID         string
	BaseURL    string
	Status     RunStatus
	FailedStep string
	Error      string
	StartedAt  time.Time
	FinishedAt sql.NullTime
}

// JobRecord is the journal entry for one submitted unit of work.
type JobRecord struct {
	ID           int64
	RunID        string
	Operation    Operation
	Collection   string
	ResultLink   string
	State        string
	RemoteStatus string
	Polls        int
	Error        string
	SubmittedAt  time.Time
	UpdatedAt    time.Time
}

// ArtifactRecord is a downloaded output file.
type ArtifactRecord struct {
	ID        int64
	JobID     int64
	Name      string
	URL       string
	Path      string
	Bytes     int64
	WrittenAt time.Time
}
