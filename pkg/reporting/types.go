package reporting

import "time"

// RunStatus represents the status of an engine run
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusStopped   RunStatus = "stopped"
)

// RunReport is the operator-facing summary written when the engine shuts
// down. It is a reporting artifact, not result storage: per-request samples
// only ever live in the in-memory histograms.
type RunReport struct {
	RunID     string    `json:"run_id"`
	Target    string    `json:"target"`
	Strategy  string    `json:"strategy"`
	Workers   int       `json:"workers"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Duration  string    `json:"duration"`

	Status RunStatus `json:"status"`

	TotalRequests uint64 `json:"total_requests"`
	TotalBytes    uint64 `json:"total_bytes"`
	ErrorCount    uint64 `json:"error_count"`
	P99LatencyUs  int64  `json:"p99_latency_us"`

	Errors []string `json:"errors,omitempty"`
}

// ReportSummary is a lightweight view of a stored report
type ReportSummary struct {
	RunID     string    `json:"run_id"`
	Target    string    `json:"target"`
	StartTime time.Time `json:"start_time"`
	Duration  string    `json:"duration"`
	Status    RunStatus `json:"status"`
	Filepath  string    `json:"filepath"`
}
