package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lendery/internal/models"
)

const reservationColumns = `id, org_id, item_id, user_id, quantity, reserved_for, expires_at,
                 status, notes, stock_held, cancelled_at, created_at, updated_at`

func scanReservation(row interface{ Scan(...interface{}) error }) (*models.Reservation, error) {
	r := &models.Reservation{}
	var cancelledAt sql.NullTime
	var notes sql.NullString
	err := row.Scan(
		&r.ID, &r.OrgID, &r.ItemID, &r.UserID, &r.Quantity, &r.ReservedFor, &r.ExpiresAt,
		&r.Status, &notes, &r.StockHeld, &cancelledAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time
		r.CancelledAt = &t
	}
	r.Notes = notes.String
	return r, nil
}

// CreateReservationWithLock creates a hold inside one transaction. A hold
// starting now (or in the past) takes stock off the ledger immediately;
// a future hold is only a promise the availability projection accounts for.
func (db *DB) CreateReservationWithLock(ctx context.Context, res *models.Reservation, holdWindow time.Duration) error {
	if res.Quantity < 1 {
		return fmt.Errorf("%w: quantity must be >= 1", ErrValidation)
	}

	return db.withTx(ctx, func(tx *sql.Tx) error {
		ts := now()

		if _, err := expireItemReservationsTx(ctx, tx, res.OrgID, res.ItemID, ts); err != nil {
			return err
		}

		var existing int64
		query := `SELECT COUNT(*) FROM reservations
                  WHERE org_id = ? AND item_id = ? AND user_id = ? AND status = ?`
		err := tx.QueryRowContext(ctx, query, res.OrgID, res.ItemID, res.UserID,
			models.ReservationActive).Scan(&existing)
		if err != nil {
			return fmt.Errorf("failed to check existing reservation: %w", err)
		}
		if existing > 0 {
			return fmt.Errorf("active reservation for item %d: %w", res.ItemID, ErrAlreadyExists)
		}

		immediate := !res.ReservedFor.After(ts)
		if immediate {
			res.ReservedFor = ts
		}
		res.ExpiresAt = res.ReservedFor.Add(holdWindow)

		// Converting from a notified waitlist spot fulfils the entry first,
		// so the projection below does not charge the user's own hold.
		if err := fulfilWaitlistEntryTx(ctx, tx, res.OrgID, res.ItemID, res.UserID, ts); err != nil {
			return err
		}

		projected, err := availableQuantityTx(ctx, tx, res.OrgID, res.ItemID, res.ReservedFor, ts)
		if err != nil {
			return err
		}
		if projected < res.Quantity {
			return ErrNotAvailable
		}

		if immediate {
			// The conditional decrement re-checks the ledger, so a racing
			// claim between the projection and here still cannot
			// oversubscribe.
			if err := takeStockTx(ctx, tx, res.OrgID, res.ItemID, res.Quantity, ts); err != nil {
				return err
			}
			res.StockHeld = true
		}

		query = `INSERT INTO reservations (org_id, item_id, user_id, quantity, reserved_for, expires_at,
                   status, notes, stock_held, created_at, updated_at)
                 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
		result, err := tx.ExecContext(ctx, query,
			res.OrgID, res.ItemID, res.UserID, res.Quantity, res.ReservedFor, res.ExpiresAt,
			models.ReservationActive, res.Notes, res.StockHeld, ts, ts,
		)
		if err != nil {
			return fmt.Errorf("failed to insert reservation: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		res.ID = id
		res.Status = models.ReservationActive
		res.CreatedAt = ts
		res.UpdatedAt = ts
		return nil
	})
}

// CancelReservation flips an active reservation to cancelled and restores
// exactly the quantity it held, if any.
func (db *DB) CancelReservation(ctx context.Context, orgID, id int64) (*models.Reservation, error) {
	var res *models.Reservation
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ? AND org_id = ?`
		r, err := scanReservation(tx.QueryRowContext(ctx, query, id, orgID))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("reservation %d: %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to get reservation: %w", err)
		}
		if r.Status != models.ReservationActive {
			return fmt.Errorf("reservation %d is %s: %w", id, r.Status, ErrInvalidState)
		}

		ts := now()
		query = `UPDATE reservations SET status = ?, cancelled_at = ?, updated_at = ? WHERE id = ?`
		if _, err := tx.ExecContext(ctx, query, models.ReservationCancelled, ts, ts, r.ID); err != nil {
			return fmt.Errorf("failed to cancel reservation: %w", err)
		}

		if r.StockHeld {
			if err := releaseStockTx(ctx, tx, orgID, r.ItemID, r.Quantity, ts); err != nil {
				return err
			}
		}

		r.Status = models.ReservationCancelled
		r.CancelledAt = &ts
		r.UpdatedAt = ts
		res = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ExpireStaleReservations flips every active reservation past its deadline
// to expired and restores any stock it held. Per-entry failures abort the
// transaction as a whole; the sweep is retried by the caller.
func (db *DB) ExpireStaleReservations(ctx context.Context) ([]*models.Reservation, error) {
	var expired []*models.Reservation
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		expired, err = expireReservationsTx(ctx, tx, `status = ? AND expires_at < ?`, models.ReservationActive, now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}

// expireItemReservationsTx runs the expiry sweep for one item inside an
// already-open transaction. Claim paths call it first so stale holds never
// block a live claim.
func expireItemReservationsTx(ctx context.Context, tx *sql.Tx, orgID, itemID int64, ts time.Time) ([]*models.Reservation, error) {
	return expireReservationsTx(ctx, tx,
		`org_id = ? AND item_id = ? AND status = ? AND expires_at < ?`,
		orgID, itemID, models.ReservationActive, ts)
}

func expireReservationsTx(ctx context.Context, tx *sql.Tx, where string, args ...interface{}) ([]*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE ` + where
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select stale reservations: %w", err)
	}

	var stale []*models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		stale = append(stale, r)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	ts := now()
	for _, r := range stale {
		query = `UPDATE reservations SET status = ?, updated_at = ? WHERE id = ?`
		if _, err := tx.ExecContext(ctx, query, models.ReservationExpired, ts, r.ID); err != nil {
			return nil, fmt.Errorf("failed to expire reservation %d: %w", r.ID, err)
		}
		if r.StockHeld {
			if err := releaseStockTx(ctx, tx, r.OrgID, r.ItemID, r.Quantity, ts); err != nil {
				return nil, err
			}
		}
		r.Status = models.ReservationExpired
	}
	return stale, nil
}

func (db *DB) GetReservation(ctx context.Context, orgID, id int64) (*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ? AND org_id = ?`
	r, err := scanReservation(db.QueryRowContext(ctx, query, id, orgID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reservation %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	return r, nil
}

// GetUpcomingReservations lists active reservations whose window starts
// within the given number of days.
func (db *DB) GetUpcomingReservations(ctx context.Context, orgID int64, days int) ([]*models.Reservation, error) {
	ts := now()
	horizon := ts.AddDate(0, 0, days)
	query := `SELECT ` + reservationColumns + ` FROM reservations
              WHERE org_id = ? AND status = ? AND expires_at >= ? AND reserved_for <= ?
              ORDER BY reserved_for`
	rows, err := db.QueryContext(ctx, query, orgID, models.ReservationActive, ts, horizon)
	if err != nil {
		return nil, fmt.Errorf("failed to get upcoming reservations: %w", err)
	}
	defer rows.Close()

	var reservations []*models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		reservations = append(reservations, r)
	}
	return reservations, rows.Err()
}

// GetActiveReservationForUser returns the user's active reservation on an
// item, or ErrNotFound.
func (db *DB) GetActiveReservationForUser(ctx context.Context, orgID, itemID, userID int64) (*models.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations
              WHERE org_id = ? AND item_id = ? AND user_id = ? AND status = ?
              ORDER BY reserved_for LIMIT 1`
	r, err := scanReservation(db.QueryRowContext(ctx, query, orgID, itemID, userID, models.ReservationActive))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("reservation for user %d: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	return r, nil
}
