package history

import "time"

// Run statuses recorded in the database.
const (
	StatusInProgress = "in_progress"
	StatusSuccess    = "success"
	StatusFailed     = "failed"
	StatusNoOp       = "no_op"
)

// RunRecord represents a single bootstrap run in the database
type RunRecord struct {
	ID              int64
	RunID           string
	Role            string
	Status          string // success, failed, no_op, in_progress
	StartedAt       time.Time
	CompletedAt     *time.Time // nullable
	DurationSeconds *float64   // nullable
	ErrorMessage    *string    // nullable
}
