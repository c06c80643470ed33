package models

import "time"

// Blacklist is a time-boxed ban. Removal flips IsActive and records who
// overrode it; rows are never deleted.
type Blacklist struct {
	ID           int64      `json:"id"`
	OrgID        int64      `json:"org_id"`
	UserID       int64      `json:"user_id"`
	Reason       string     `json:"reason"`
	BlockedUntil time.Time  `json:"blocked_until"`
	IsActive     bool       `json:"is_active"`
	OverriddenBy *int64     `json:"overridden_by,omitempty"`
	OverriddenAt *time.Time `json:"overridden_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// InEffect reports whether the ban blocks new claims at the given instant.
func (b *Blacklist) InEffect(at time.Time) bool {
	return b.IsActive && !b.BlockedUntil.Before(at)
}
