package models

import "time"

// Lending is a checkout of one or more units. ReturnedAt == nil means the
// lending is still out. Penalty fields are written once on return and are
// only touched again by an explicit override.
type Lending struct {
	ID                int64      `json:"id"`
	OrgID             int64      `json:"org_id"`
	ItemID            int64      `json:"item_id"`
	BorrowerID        int64      `json:"borrower_id"`
	Quantity          int64      `json:"quantity"`
	BorrowedAt        time.Time  `json:"borrowed_at"`
	DueDate           time.Time  `json:"due_date"`
	ReturnedAt        *time.Time `json:"returned_at,omitempty"`
	Penalty           float64    `json:"penalty"`
	PenaltyReason     string     `json:"penalty_reason,omitempty"`
	PenaltyOverridden bool       `json:"penalty_overridden"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Active reports whether the lending is still out.
func (l *Lending) Active() bool {
	return l.ReturnedAt == nil
}

// DaysLate returns whole days elapsed past the due date, never negative.
func DaysLate(due, at time.Time) int64 {
	if !at.After(due) {
		return 0
	}
	return int64(at.Sub(due).Hours() / 24)
}

// PenaltyQuote is the result of a penalty projection. Final is true when the
// quote reflects a stored value rather than an as-if-returned-now estimate.
type PenaltyQuote struct {
	LendingID  int64   `json:"lending_id"`
	DaysLate   int64   `json:"days_late"`
	Penalty    float64 `json:"penalty"`
	Reason     string  `json:"reason,omitempty"`
	Overridden bool    `json:"overridden"`
	Final      bool    `json:"final"`
}
