package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lendery/internal/models"
)

const blacklistColumns = `id, org_id, user_id, reason, blocked_until, is_active, overridden_by, overridden_at, created_at`

func scanBlacklist(row interface{ Scan(...interface{}) error }) (*models.Blacklist, error) {
	b := &models.Blacklist{}
	var overriddenBy sql.NullInt64
	var overriddenAt sql.NullTime
	err := row.Scan(
		&b.ID, &b.OrgID, &b.UserID, &b.Reason, &b.BlockedUntil, &b.IsActive,
		&overriddenBy, &overriddenAt, &b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if overriddenBy.Valid {
		v := overriddenBy.Int64
		b.OverriddenBy = &v
	}
	if overriddenAt.Valid {
		t := overriddenAt.Time
		b.OverriddenAt = &t
	}
	return b, nil
}

// CreateBlacklist records a manual ban running for daysBlocked from now.
func (db *DB) CreateBlacklist(ctx context.Context, orgID, userID int64, reason string, daysBlocked int) (*models.Blacklist, error) {
	if daysBlocked <= 0 {
		return nil, fmt.Errorf("%w: days_blocked must be positive", ErrValidation)
	}
	if reason == "" {
		return nil, fmt.Errorf("%w: reason is required", ErrValidation)
	}

	ts := now()
	blockedUntil := ts.AddDate(0, 0, daysBlocked)
	query := `INSERT INTO blacklists (org_id, user_id, reason, blocked_until, is_active, created_at)
              VALUES (?, ?, ?, ?, 1, ?)`
	result, err := db.ExecContext(ctx, query, orgID, userID, reason, blockedUntil, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to create blacklist record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return &models.Blacklist{
		ID:           id,
		OrgID:        orgID,
		UserID:       userID,
		Reason:       reason,
		BlockedUntil: blockedUntil,
		IsActive:     true,
		CreatedAt:    ts,
	}, nil
}

// IsUserBlacklisted reports whether the user has any ban still in effect.
func (db *DB) IsUserBlacklisted(ctx context.Context, orgID, userID int64) (bool, error) {
	var count int64
	query := `SELECT COUNT(*) FROM blacklists
              WHERE org_id = ? AND user_id = ? AND is_active = 1 AND blocked_until >= ?`
	if err := db.QueryRowContext(ctx, query, orgID, userID, now()).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return count > 0, nil
}

// RemoveBlacklist deactivates a ban and records who lifted it. The row stays
// for history.
func (db *DB) RemoveBlacklist(ctx context.Context, orgID, id, removedBy int64) error {
	ts := now()
	query := `UPDATE blacklists SET is_active = 0, overridden_by = ?, overridden_at = ?
              WHERE id = ? AND org_id = ? AND is_active = 1`
	result, err := db.ExecContext(ctx, query, removedBy, ts, id, orgID)
	if err != nil {
		return fmt.Errorf("failed to remove blacklist record: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("active blacklist %d: %w", id, ErrNotFound)
	}
	return nil
}

func (db *DB) GetBlacklist(ctx context.Context, orgID, id int64) (*models.Blacklist, error) {
	query := `SELECT ` + blacklistColumns + ` FROM blacklists WHERE id = ? AND org_id = ?`
	b, err := scanBlacklist(db.QueryRowContext(ctx, query, id, orgID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("blacklist %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get blacklist record: %w", err)
	}
	return b, nil
}

// ListUserBlacklists returns all of a user's ban records, newest first.
func (db *DB) ListUserBlacklists(ctx context.Context, orgID, userID int64) ([]*models.Blacklist, error) {
	query := `SELECT ` + blacklistColumns + ` FROM blacklists
              WHERE org_id = ? AND user_id = ? ORDER BY created_at DESC`
	rows, err := db.QueryContext(ctx, query, orgID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list blacklist records: %w", err)
	}
	defer rows.Close()

	var records []*models.Blacklist
	for rows.Next() {
		b, err := scanBlacklist(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan blacklist record: %w", err)
		}
		records = append(records, b)
	}
	return records, rows.Err()
}

// ActiveBlacklistUntil returns the latest blocked_until among the user's
// bans still in effect, or the zero time when none apply.
func (db *DB) ActiveBlacklistUntil(ctx context.Context, orgID, userID int64) (time.Time, error) {
	var until sql.NullTime
	query := `SELECT MAX(blocked_until) FROM blacklists
              WHERE org_id = ? AND user_id = ? AND is_active = 1 AND blocked_until >= ?`
	if err := db.QueryRowContext(ctx, query, orgID, userID, now()).Scan(&until); err != nil {
		return time.Time{}, fmt.Errorf("failed to get blacklist horizon: %w", err)
	}
	if !until.Valid {
		return time.Time{}, nil
	}
	return until.Time, nil
}
