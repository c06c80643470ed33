package models

import "time"

// Policy carries the tunable enforcement knobs for one tenant. Values come
// from configuration, never from constants in the engine.
type Policy struct {
	LatePenaltyPerDay       float64 `yaml:"late_penalty_per_day" json:"late_penalty_per_day"`
	BlacklistDaysPerLateDay int64   `yaml:"blacklist_days_per_late_day" json:"blacklist_days_per_late_day"`
	HoldWindowHours         int64   `yaml:"hold_window_hours" json:"hold_window_hours"`
	NotificationWindowHours int64   `yaml:"notification_window_hours" json:"notification_window_hours"`
	RequireApproval         bool    `yaml:"require_approval" json:"require_approval"`
	MaxLendingDays          int64   `yaml:"max_lending_days" json:"max_lending_days"`
}

// HoldWindow returns the reservation grace period.
func (p Policy) HoldWindow() time.Duration {
	hours := p.HoldWindowHours
	if hours <= 0 {
		hours = DefaultHoldWindowHours
	}
	return time.Duration(hours) * time.Hour
}

// NotificationWindow returns the waitlist notification deadline.
func (p Policy) NotificationWindow() time.Duration {
	hours := p.NotificationWindowHours
	if hours <= 0 {
		hours = DefaultNotificationWindowHours
	}
	return time.Duration(hours) * time.Hour
}

// AvailabilitySnapshot is a short-lived cached answer for the boolean
// availability read path.
type AvailabilitySnapshot struct {
	OrgID     int64     `json:"org_id"`
	ItemID    int64     `json:"item_id"`
	Date      time.Time `json:"date"`
	Available int64     `json:"available"`
	CachedAt  time.Time `json:"cached_at"`
}
