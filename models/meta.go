// models/meta.go
package models

import "time"

// ProgressCheckpoint marks the level-1 node a run was working on.
// At most one exists; it is removed when a run completes cleanly.
type ProgressCheckpoint struct {
	Level     int    `json:"level"`
	LastID    string `json:"last_id"`
	Path      string `json:"path"`
	Timestamp int64  `json:"timestamp"`
}

// SavedAt returns the checkpoint timestamp as a time.
func (p ProgressCheckpoint) SavedAt() time.Time {
	return time.Unix(p.Timestamp, 0)
}

// RunSummary is what the traversal reports when it finishes.
type RunSummary struct {
	RunID          string        `json:"run_id"`
	StartedAt      time.Time     `json:"started_at"`
	Elapsed        time.Duration `json:"elapsed"`
	TotalProcessed int64         `json:"total_processed"`
	Inserted       int64         `json:"inserted"`
	Existing       int64         `json:"existing"`
	Skipped        int64         `json:"skipped"`
	BranchFailures int64         `json:"branch_failures"`
}

// ProgressSnapshot is the live view served by the status endpoint.
type ProgressSnapshot struct {
	RunID          string              `json:"run_id"`
	Running        bool                `json:"running"`
	TotalProcessed int64               `json:"total_processed"`
	Elapsed        string              `json:"elapsed"`
	Checkpoint     *ProgressCheckpoint `json:"checkpoint,omitempty"`
}
