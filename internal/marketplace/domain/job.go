package domain

import "time"

// Job status constants
const (
	JobStatusDraft      = "draft"
	JobStatusOpen       = "open"
	JobStatusInProgress = "in_progress"
	JobStatusCompleted  = "completed"
	JobStatusCancelled  = "cancelled"
)

// Job is a unit of work posted by a requester. Status and contractor
// assignment are mutated only by the lifecycle service.
type Job struct {
	JobID        string    `db:"job_id" json:"job_id"`
	RequesterID  string    `db:"requester_id" json:"requester_id"`
	ContractorID *string   `db:"contractor_id" json:"contractor_id,omitempty"`
	Title        string    `db:"title" json:"title"`
	Description  string    `db:"description" json:"description"`
	Budget       float64   `db:"budget" json:"budget"`
	Status       string    `db:"status" json:"status"`
	Progress     int       `db:"progress" json:"progress"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// JobPatch carries the mutable job fields. Nil fields are left untouched.
// ClearContractor sets contractor_id to NULL and takes precedence over
// ContractorID. A non-nil ExpectStatus makes the update conditional: the
// store applies the patch only while the job still has that status and
// returns ErrInvalidState otherwise, so racing transitions are arbitrated
// by the store rather than by read-check-write in the caller.
type JobPatch struct {
	Status          *string
	ContractorID    *string
	ClearContractor bool
	Progress        *int
	ExpectStatus    *string
}

// IsTerminal reports whether a job status permits no further transitions.
func IsTerminal(status string) bool {
	return status == JobStatusCompleted || status == JobStatusCancelled
}

// ValidJobStatus reports whether s is a known job status value.
func ValidJobStatus(s string) bool {
	switch s {
	case JobStatusDraft, JobStatusOpen, JobStatusInProgress, JobStatusCompleted, JobStatusCancelled:
		return true
	}
	return false
}
