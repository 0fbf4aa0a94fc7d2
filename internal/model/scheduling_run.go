// internal/model/scheduling_run.go
package model

import "time"

type RunStatus string

const (
	RunPending RunStatus = "pending"
	RunStarted RunStatus = "started"
	RunDone    RunStatus = "done"
	RunFailed  RunStatus = "failed"
)

// SchedulingRun tracks one asynchronous upload through the planner.
type SchedulingRun struct {
	ID        string    `json:"id"`
	Status    RunStatus `json:"status"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SchedulingRunJob is published when an upload is accepted.
type SchedulingRunJob struct {
	RunID      string      `json:"run_id"`
	Recipients []Recipient `json:"recipients"`
}
