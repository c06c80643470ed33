package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"lendery/internal/models"
)

const approvalColumns = `id, reference, org_id, item_id, user_id, type, request_data,
                 status, approver_id, decided_at, created_at, updated_at`

func scanApproval(row interface{ Scan(...interface{}) error }) (*models.ApprovalRequest, error) {
	a := &models.ApprovalRequest{}
	var approverID sql.NullInt64
	var decidedAt sql.NullTime
	var data sql.NullString
	err := row.Scan(
		&a.ID, &a.Reference, &a.OrgID, &a.ItemID, &a.UserID, &a.Type, &data,
		&a.Status, &approverID, &decidedAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if approverID.Valid {
		v := approverID.Int64
		a.ApproverID = &v
	}
	if decidedAt.Valid {
		t := decidedAt.Time
		a.DecidedAt = &t
	}
	a.RequestData = data.String
	return a, nil
}

func (db *DB) CreateApprovalRequest(ctx context.Context, req *models.ApprovalRequest) error {
	ts := now()
	query := `INSERT INTO approval_requests (reference, org_id, item_id, user_id, type, request_data, status, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := db.ExecContext(ctx, query,
		req.Reference, req.OrgID, req.ItemID, req.UserID, req.Type, req.RequestData,
		models.ApprovalPending, ts, ts,
	)
	if err != nil {
		return fmt.Errorf("failed to create approval request: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	req.ID = id
	req.Status = models.ApprovalPending
	req.CreatedAt = ts
	req.UpdatedAt = ts
	return nil
}

func (db *DB) GetApprovalRequest(ctx context.Context, orgID int64, reference string) (*models.ApprovalRequest, error) {
	query := `SELECT ` + approvalColumns + ` FROM approval_requests WHERE reference = ? AND org_id = ?`
	a, err := scanApproval(db.QueryRowContext(ctx, query, reference, orgID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("approval request %s: %w", reference, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get approval request: %w", err)
	}
	return a, nil
}

// DecideApprovalRequest moves a pending request to a terminal status. The
// WHERE clause guards the state machine: anything already decided stays
// decided.
func (db *DB) DecideApprovalRequest(ctx context.Context, orgID int64, reference, status string, approverID int64) error {
	switch status {
	case models.ApprovalApproved, models.ApprovalRejected, models.ApprovalCancelled:
	default:
		return fmt.Errorf("%w: %q is not a terminal approval status", ErrValidation, status)
	}

	ts := now()
	query := `UPDATE approval_requests SET status = ?, approver_id = ?, decided_at = ?, updated_at = ?
              WHERE reference = ? AND org_id = ? AND status = ?`
	result, err := db.ExecContext(ctx, query, status, approverID, ts, ts,
		reference, orgID, models.ApprovalPending)
	if err != nil {
		return fmt.Errorf("failed to decide approval request: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		if _, err := db.GetApprovalRequest(ctx, orgID, reference); err != nil {
			return err
		}
		return fmt.Errorf("approval request %s is not pending: %w", reference, ErrInvalidState)
	}
	return nil
}

// ListPendingApprovals returns requests awaiting a decision, oldest first.
func (db *DB) ListPendingApprovals(ctx context.Context, orgID int64) ([]*models.ApprovalRequest, error) {
	query := `SELECT ` + approvalColumns + ` FROM approval_requests
              WHERE org_id = ? AND status = ? ORDER BY created_at`
	rows, err := db.QueryContext(ctx, query, orgID, models.ApprovalPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending approvals: %w", err)
	}
	defer rows.Close()

	var requests []*models.ApprovalRequest
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval request: %w", err)
		}
		requests = append(requests, a)
	}
	return requests, rows.Err()
}
