package model

import "time"

// RunStatus tracks a batch run's lifecycle.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one recorded invocation of the pipeline: a batch file, a single
// question, or an API call.
type Run struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"` // input file path or "api"
	Status    RunStatus `json:"status"`
	Questions int       `json:"questions"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
