package domain

import "time"

// Bid status constants
const (
	BidStatusPending   = "pending"
	BidStatusAccepted  = "accepted"
	BidStatusRejected  = "rejected"
	BidStatusWithdrawn = "withdrawn"
)

// Bid is a provider's proposal against an open job. At most one bid per
// (job, provider) pair exists, and at most one bid per job may be accepted.
type Bid struct {
	BidID      string    `db:"bid_id" json:"bid_id"`
	JobID      string    `db:"job_id" json:"job_id"`
	ProviderID string    `db:"provider_id" json:"provider_id"`
	Amount     float64   `db:"amount" json:"amount"`
	Note       string    `db:"note" json:"note"`
	Status     string    `db:"status" json:"status"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// BidPatch carries the mutable bid fields. Nil fields are left untouched.
type BidPatch struct {
	Status *string
}

// ValidBidStatus reports whether s is a known bid status value.
func ValidBidStatus(s string) bool {
	switch s {
	case BidStatusPending, BidStatusAccepted, BidStatusRejected, BidStatusWithdrawn:
		return true
	}
	return false
}
