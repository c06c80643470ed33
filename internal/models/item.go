package models

import "time"

// Item is a countable asset type. AvailableCount is the ledger's view of
// units free right now; it never leaves [0, TotalCount].
type Item struct {
	ID             int64     `yaml:"id" json:"id"`
	OrgID          int64     `yaml:"org_id" json:"org_id"`
	Name           string    `yaml:"name" json:"name"`
	Description    string    `yaml:"description" json:"description"`
	TotalCount     int64     `yaml:"total_count" json:"total_count"`
	AvailableCount int64     `yaml:"available_count" json:"available_count"`
	IsActive       bool      `yaml:"is_active" json:"is_active"`
	CreatedAt      time.Time `yaml:"created_at" json:"created_at"`
	UpdatedAt      time.Time `yaml:"updated_at" json:"updated_at"`
}
