// Package domain defines the persistent entities of the backtest job
// orchestration subsystem: jobs, results, sweeps, and market-data points.
package domain

import "time"

// JobState is one of the five lifecycle states of a Job.
type JobState string

const (
	JobSubmitted JobState = "SUBMITTED"
	JobQueued    JobState = "QUEUED"
	JobRunning   JobState = "RUNNING"
	JobCompleted JobState = "COMPLETED"
	JobFailed    JobState = "FAILED"
)

// IsTerminal reports whether state has no automatic exit.
func (s JobState) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// MaxFailureReasonLen bounds the failure reason string.
const MaxFailureReasonLen = 1000

// Spec is the strategy-backtest request carried by a Job: strategy name,
// symbol, closed date interval, an opaque parameter blob, and initial
// capital. The orchestration core never parses Params — it only
// canonicalizes and hashes them for deduplication.
type Spec struct {
	Strategy       string         `json:"strategy"`
	Symbol         string         `json:"symbol"`
	Start          time.Time      `json:"start"`
	End            time.Time      `json:"end"`
	Params         map[string]any `json:"parameters"`
	InitialCapital float64        `json:"initialCapital"`
}

// Job is the primary unit of work.
type Job struct {
	ID             int64     `json:"id"`
	DedupKey       string    `json:"dedupKey"`
	Spec           Spec      `json:"spec"`
	State          JobState  `json:"state"`
	Attempts       int       `json:"attempts"`
	ParentSweepID  *int64    `json:"parentSweepId,omitempty"`
	Version        int64     `json:"version"`
	FailureReason  string    `json:"failureReason,omitempty"`
	Priority       int       `json:"priority"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Truncate bounds reason to MaxFailureReasonLen, applied by the failure
// handler before persisting a job's failure reason.
func Truncate(reason string) string {
	if len(reason) <= MaxFailureReasonLen {
		return reason
	}
	return reason[:MaxFailureReasonLen]
}
