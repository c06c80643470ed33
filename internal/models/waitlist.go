package models

import "time"

// WaitlistEntry is a queued claim on an item that had no availability at join
// time. Unlike a Reservation it carries no date window: ordering is by
// priority (lower first) then creation time, and a notified entry must be
// converted to a lending or reservation before its notification deadline.
type WaitlistEntry struct {
	ID                    int64      `json:"id"`
	OrgID                 int64      `json:"org_id"`
	ItemID                int64      `json:"item_id"`
	UserID                int64      `json:"user_id"`
	QueuePosition         int64      `json:"queue_position"`
	Priority              int64      `json:"priority"`
	NotifyWhenAvailable   bool       `json:"notify_when_available"`
	NotifiedAt            *time.Time `json:"notified_at,omitempty"`
	NotificationExpiresAt *time.Time `json:"notification_expires_at,omitempty"`
	Status                string     `json:"status"`
	FulfilledAt           *time.Time `json:"fulfilled_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// QueueActive reports whether the entry still occupies a queue position.
func (e *WaitlistEntry) QueueActive() bool {
	return e.Status == WaitlistWaiting || e.Status == WaitlistNotified
}

// WaitlistStats aggregates queue counts and the average wait between joining
// and fulfilment. Reporting only, not allocation-critical.
type WaitlistStats struct {
	ItemID      int64         `json:"item_id"`
	Waiting     int64         `json:"waiting"`
	Notified    int64         `json:"notified"`
	Fulfilled   int64         `json:"fulfilled"`
	Cancelled   int64         `json:"cancelled"`
	Expired     int64         `json:"expired"`
	AverageWait time.Duration `json:"average_wait"`
}
