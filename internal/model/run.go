package model

import "time"

// RunStatus represents the current state of a scoring run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// ScoreRun tracks one batch scoring pass over the store.
type ScoreRun struct {
	ID         string     `json:"id"`
	Label      string     `json:"label,omitempty"`
	Status     RunStatus  `json:"status"`
	Categories []string   `json:"categories"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Scored     int64      `json:"scored"`
	Failed     int64      `json:"failed"`
	Error      *string    `json:"error,omitempty"`
}
