package models

import "time"

// ApprovalRequest gates a claim behind a pending/approved/rejected workflow
// when tenant policy requires it. Approval only authorizes the caller to
// retry the underlying operation, it never performs it.
type ApprovalRequest struct {
	ID          int64      `json:"id"`
	Reference   string     `json:"reference"`
	OrgID       int64      `json:"org_id"`
	ItemID      int64      `json:"item_id"`
	UserID      int64      `json:"user_id"`
	Type        string     `json:"type"`
	RequestData string     `json:"request_data,omitempty"`
	Status      string     `json:"status"`
	ApproverID  *int64     `json:"approver_id,omitempty"`
	DecidedAt   *time.Time `json:"decided_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
