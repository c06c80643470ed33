package models

import "time"

// Reservation is a time-windowed hold on an item. StockHeld records whether
// creating the reservation decremented the ledger (immediate holds do, future
// holds only affect projections), so cancellation and expiry restore exactly
// what was taken.
type Reservation struct {
	ID          int64      `json:"id"`
	OrgID       int64      `json:"org_id"`
	ItemID      int64      `json:"item_id"`
	UserID      int64      `json:"user_id"`
	Quantity    int64      `json:"quantity"`
	ReservedFor time.Time  `json:"reserved_for"`
	ExpiresAt   time.Time  `json:"expires_at"`
	Status      string     `json:"status"`
	Notes       string     `json:"notes,omitempty"`
	StockHeld   bool       `json:"stock_held"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Overlaps reports whether the reservation window covers the given instant.
func (r *Reservation) Overlaps(at time.Time) bool {
	return !at.Before(r.ReservedFor) && !at.After(r.ExpiresAt)
}
