package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"lendery/internal/models"
)

const lendingColumns = `id, org_id, item_id, borrower_id, quantity, borrowed_at, due_date,
                 returned_at, penalty, penalty_reason, penalty_overridden, created_at, updated_at`

func scanLending(row interface{ Scan(...interface{}) error }) (*models.Lending, error) {
	l := &models.Lending{}
	var returnedAt sql.NullTime
	var reason sql.NullString
	err := row.Scan(
		&l.ID, &l.OrgID, &l.ItemID, &l.BorrowerID, &l.Quantity, &l.BorrowedAt, &l.DueDate,
		&returnedAt, &l.Penalty, &reason, &l.PenaltyOverridden, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if returnedAt.Valid {
		t := returnedAt.Time
		l.ReturnedAt = &t
	}
	l.PenaltyReason = reason.String
	return l, nil
}

// PenaltyReason renders the standard penalty annotation for a late return.
func PenaltyReason(daysLate int64) string {
	if daysLate <= 0 {
		return ""
	}
	return fmt.Sprintf("returned %d day(s) late", daysLate)
}

// CheckoutWithLock performs the whole checkout inside one transaction:
// release stale holds, reject conflicting reservations by other users,
// auto-fulfil the borrower's own reservation (crediting any stock it held),
// then conditionally decrement the ledger and insert the lending row.
func (db *DB) CheckoutWithLock(ctx context.Context, lending *models.Lending) error {
	if lending.Quantity < 1 {
		return fmt.Errorf("%w: quantity must be >= 1", ErrValidation)
	}

	return db.withTx(ctx, func(tx *sql.Tx) error {
		ts := now()

		if _, err := getItem(ctx, tx, lending.OrgID, lending.ItemID); err != nil {
			return err
		}

		if _, err := expireItemReservationsTx(ctx, tx, lending.OrgID, lending.ItemID, ts); err != nil {
			return err
		}

		// An active reservation by someone else that covers "now" blocks a
		// walk-in checkout of the item.
		var conflicts int64
		query := `SELECT COUNT(*) FROM reservations
                  WHERE org_id = ? AND item_id = ? AND status = ? AND user_id != ?
                    AND reserved_for <= ? AND expires_at >= ?`
		err := tx.QueryRowContext(ctx, query, lending.OrgID, lending.ItemID,
			models.ReservationActive, lending.BorrowerID, ts, ts).Scan(&conflicts)
		if err != nil {
			return fmt.Errorf("failed to check reservation conflicts: %w", err)
		}
		if conflicts > 0 {
			return ErrConflict
		}

		// Self-pickup: the borrower's own active reservation is fulfilled by
		// this checkout. Stock it held goes back first so the conditional
		// decrement below does not charge twice.
		var resID, resQty int64
		var held bool
		query = `SELECT id, quantity, stock_held FROM reservations
                 WHERE org_id = ? AND item_id = ? AND user_id = ? AND status = ?
                 ORDER BY reserved_for LIMIT 1`
		err = tx.QueryRowContext(ctx, query, lending.OrgID, lending.ItemID,
			lending.BorrowerID, models.ReservationActive).Scan(&resID, &resQty, &held)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// no reservation to fulfil
		case err != nil:
			return fmt.Errorf("failed to look up own reservation: %w", err)
		default:
			query = `UPDATE reservations SET status = ?, updated_at = ? WHERE id = ?`
			if _, err := tx.ExecContext(ctx, query, models.ReservationFulfilled, ts, resID); err != nil {
				return fmt.Errorf("failed to fulfil reservation: %w", err)
			}
			if held {
				if err := releaseStockTx(ctx, tx, lending.OrgID, lending.ItemID, resQty, ts); err != nil {
					return err
				}
			}
		}

		// A notified waitlist entry converts to this lending.
		if err := fulfilWaitlistEntryTx(ctx, tx, lending.OrgID, lending.ItemID, lending.BorrowerID, ts); err != nil {
			return err
		}

		// Projection honors units promised to notified waitlist entries;
		// the conditional decrement below still re-checks the raw ledger.
		projected, err := availableQuantityTx(ctx, tx, lending.OrgID, lending.ItemID, ts, ts)
		if err != nil {
			return err
		}
		if projected < lending.Quantity {
			return ErrNotAvailable
		}

		if err := takeStockTx(ctx, tx, lending.OrgID, lending.ItemID, lending.Quantity, ts); err != nil {
			return err
		}

		query = `INSERT INTO lendings (org_id, item_id, borrower_id, quantity, borrowed_at, due_date,
                   penalty, penalty_reason, penalty_overridden, created_at, updated_at)
                 VALUES (?, ?, ?, ?, ?, ?, 0, '', 0, ?, ?)`
		result, err := tx.ExecContext(ctx, query,
			lending.OrgID, lending.ItemID, lending.BorrowerID, lending.Quantity,
			ts, lending.DueDate, ts, ts,
		)
		if err != nil {
			return fmt.Errorf("failed to insert lending: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		lending.ID = id
		lending.BorrowedAt = ts
		lending.CreatedAt = ts
		lending.UpdatedAt = ts
		return nil
	})
}

// ReturnLendingWithPenalty closes an active lending, restores the ledger and
// creates a blacklist record when the return is late. Penalty math uses the
// tenant policy passed by the caller.
func (db *DB) ReturnLendingWithPenalty(ctx context.Context, orgID, lendingID int64, policy models.Policy) (*models.Lending, *models.Blacklist, error) {
	var lending *models.Lending
	var ban *models.Blacklist

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		query := `SELECT ` + lendingColumns + ` FROM lendings WHERE id = ? AND org_id = ? AND returned_at IS NULL`
		l, err := scanLending(tx.QueryRowContext(ctx, query, lendingID, orgID))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("active lending %d: %w", lendingID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to get lending: %w", err)
		}

		ts := now()
		daysLate := models.DaysLate(l.DueDate, ts)
		penalty := float64(daysLate) * policy.LatePenaltyPerDay
		reason := PenaltyReason(daysLate)

		query = `UPDATE lendings SET returned_at = ?, penalty = ?, penalty_reason = ?, updated_at = ? WHERE id = ?`
		if _, err := tx.ExecContext(ctx, query, ts, penalty, reason, ts, l.ID); err != nil {
			return fmt.Errorf("failed to close lending: %w", err)
		}

		if err := releaseStockTx(ctx, tx, orgID, l.ItemID, l.Quantity, ts); err != nil {
			return err
		}

		l.ReturnedAt = &ts
		l.Penalty = penalty
		l.PenaltyReason = reason
		l.UpdatedAt = ts
		lending = l

		if daysLate > 0 && policy.BlacklistDaysPerLateDay > 0 {
			blockedDays := daysLate * policy.BlacklistDaysPerLateDay
			blockedUntil := ts.AddDate(0, 0, int(blockedDays))
			query = `INSERT INTO blacklists (org_id, user_id, reason, blocked_until, is_active, created_at)
                     VALUES (?, ?, ?, ?, 1, ?)`
			result, err := tx.ExecContext(ctx, query, orgID, l.BorrowerID, reason, blockedUntil, ts)
			if err != nil {
				return fmt.Errorf("failed to create blacklist record: %w", err)
			}
			banID, _ := result.LastInsertId()
			ban = &models.Blacklist{
				ID:           banID,
				OrgID:        orgID,
				UserID:       l.BorrowerID,
				Reason:       reason,
				BlockedUntil: blockedUntil,
				IsActive:     true,
				CreatedAt:    ts,
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return lending, ban, nil
}

func (db *DB) GetLending(ctx context.Context, orgID, id int64) (*models.Lending, error) {
	query := `SELECT ` + lendingColumns + ` FROM lendings WHERE id = ? AND org_id = ?`
	l, err := scanLending(db.QueryRowContext(ctx, query, id, orgID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lending %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lending: %w", err)
	}
	return l, nil
}

// OverridePenalty replaces the stored penalty. Overridden penalties are
// never recomputed.
func (db *DB) OverridePenalty(ctx context.Context, orgID, id int64, penalty float64, reason string) error {
	query := `UPDATE lendings SET penalty = ?, penalty_reason = ?, penalty_overridden = 1, updated_at = ?
              WHERE id = ? AND org_id = ?`
	result, err := db.ExecContext(ctx, query, penalty, reason, now(), id, orgID)
	if err != nil {
		return fmt.Errorf("failed to override penalty: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("lending %d: %w", id, ErrNotFound)
	}
	return nil
}

// ListOverdueLendings returns active lendings past their due date.
func (db *DB) ListOverdueLendings(ctx context.Context, orgID int64) ([]*models.Lending, error) {
	query := `SELECT ` + lendingColumns + ` FROM lendings
              WHERE org_id = ? AND returned_at IS NULL AND due_date < ? ORDER BY due_date`
	rows, err := db.QueryContext(ctx, query, orgID, now())
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue lendings: %w", err)
	}
	defer rows.Close()

	var lendings []*models.Lending
	for rows.Next() {
		l, err := scanLending(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lending: %w", err)
		}
		lendings = append(lendings, l)
	}
	return lendings, rows.Err()
}

// GetUserLendings returns a borrower's lendings, newest first.
func (db *DB) GetUserLendings(ctx context.Context, orgID, borrowerID int64) ([]*models.Lending, error) {
	query := `SELECT ` + lendingColumns + ` FROM lendings
              WHERE org_id = ? AND borrower_id = ? ORDER BY borrowed_at DESC`
	rows, err := db.QueryContext(ctx, query, orgID, borrowerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user lendings: %w", err)
	}
	defer rows.Close()

	var lendings []*models.Lending
	for rows.Next() {
		l, err := scanLending(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lending: %w", err)
		}
		lendings = append(lendings, l)
	}
	return lendings, rows.Err()
}
