package dto

import "time"

// SweepResult reports the outcome of a single reconciliation task.
type SweepResult struct {
	Task     string        `json:"task"`
	Success  bool          `json:"success"`
	Count    int           `json:"count"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// SchedulerReport aggregates one reconciliation run. Success is true only
// when every sweep succeeded; Skipped marks runs that found another run in
// flight and backed off.
type SchedulerReport struct {
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	Skipped    bool          `json:"skipped"`
	Success    bool          `json:"success"`
	Results    []SweepResult `json:"results"`
}
