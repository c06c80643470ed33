package database

import (
	"context"
	"fmt"
	"time"

	"lendery/internal/models"
)

// AvailableQuantity projects how many units of an item are free at the given
// instant. For "now" it is simply the ledger count minus overlapping
// non-held claims; for a future date it first credits back active lendings
// due before that date and stock-held reservations that will have expired,
// since the ledger already charges for them.
func (db *DB) AvailableQuantity(ctx context.Context, orgID, itemID int64, at time.Time) (int64, error) {
	return availableQuantityTx(ctx, db, orgID, itemID, at, now())
}

func availableQuantityTx(ctx context.Context, q dbtx, orgID, itemID int64, at, ref time.Time) (int64, error) {
	item, err := getItem(ctx, q, orgID, itemID)
	if err != nil {
		return 0, err
	}

	avail := item.AvailableCount

	if at.After(ref) {
		// Units currently out but expected back before the query date.
		var dueBack int64
		query := `SELECT COALESCE(SUM(quantity), 0) FROM lendings
                  WHERE org_id = ? AND item_id = ? AND returned_at IS NULL AND due_date < ?`
		if err := q.QueryRowContext(ctx, query, orgID, itemID, at).Scan(&dueBack); err != nil {
			return 0, fmt.Errorf("failed to sum due lendings: %w", err)
		}
		avail += dueBack

		// Stock-held holds that will have lapsed and released their units.
		var lapsing int64
		query = `SELECT COALESCE(SUM(quantity), 0) FROM reservations
                 WHERE org_id = ? AND item_id = ? AND status = ? AND stock_held = 1 AND expires_at < ?`
		if err := q.QueryRowContext(ctx, query, orgID, itemID, models.ReservationActive, at).Scan(&lapsing); err != nil {
			return 0, fmt.Errorf("failed to sum lapsing holds: %w", err)
		}
		avail += lapsing
	}

	// Future holds never touched the ledger; subtract the ones whose window
	// covers the query date. Stock-held holds are already inside
	// available_count and must not be charged twice.
	var promised int64
	query := `SELECT COALESCE(SUM(quantity), 0) FROM reservations
              WHERE org_id = ? AND item_id = ? AND status = ? AND stock_held = 0
                AND reserved_for <= ? AND expires_at >= ?`
	if err := q.QueryRowContext(ctx, query, orgID, itemID, models.ReservationActive, at, at).Scan(&promised); err != nil {
		return 0, fmt.Errorf("failed to sum promised holds: %w", err)
	}
	avail -= promised

	// Notified waitlist entries hold one unit each until their deadline.
	var notified int64
	query = `SELECT COUNT(*) FROM waitlist_entries
             WHERE org_id = ? AND item_id = ? AND status = ?
               AND notified_at <= ? AND notification_expires_at >= ?`
	if err := q.QueryRowContext(ctx, query, orgID, itemID, models.WaitlistNotified, at, at).Scan(&notified); err != nil {
		return 0, fmt.Errorf("failed to count notified holds: %w", err)
	}
	avail -= notified

	if avail < 0 {
		avail = 0
	}
	if avail > item.TotalCount {
		avail = item.TotalCount
	}
	return avail, nil
}

// GetAvailabilityForPeriod projects availability for each day of a period,
// starting at startDate.
func (db *DB) GetAvailabilityForPeriod(ctx context.Context, orgID, itemID int64, startDate time.Time, days int) ([]*models.AvailabilitySnapshot, error) {
	ref := now()
	var result []*models.AvailabilitySnapshot
	for i := 0; i < days; i++ {
		date := startDate.AddDate(0, 0, i)
		at := date
		if at.Before(ref) {
			at = ref
		}
		avail, err := availableQuantityTx(ctx, db, orgID, itemID, at, ref)
		if err != nil {
			return nil, err
		}
		result = append(result, &models.AvailabilitySnapshot{
			OrgID:     orgID,
			ItemID:    itemID,
			Date:      date,
			Available: avail,
			CachedAt:  ref,
		})
	}
	return result, nil
}
