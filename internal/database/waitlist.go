package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lendery/internal/models"
)

const waitlistColumns = `id, org_id, item_id, user_id, queue_position, priority, notify_when_available,
                 notified_at, notification_expires_at, status, fulfilled_at, created_at, updated_at`

func scanWaitlistEntry(row interface{ Scan(...interface{}) error }) (*models.WaitlistEntry, error) {
	e := &models.WaitlistEntry{}
	var notifiedAt, deadline, fulfilledAt sql.NullTime
	err := row.Scan(
		&e.ID, &e.OrgID, &e.ItemID, &e.UserID, &e.QueuePosition, &e.Priority, &e.NotifyWhenAvailable,
		&notifiedAt, &deadline, &e.Status, &fulfilledAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if notifiedAt.Valid {
		t := notifiedAt.Time
		e.NotifiedAt = &t
	}
	if deadline.Valid {
		t := deadline.Time
		e.NotificationExpiresAt = &t
	}
	if fulfilledAt.Valid {
		t := fulfilledAt.Time
		e.FulfilledAt = &t
	}
	return e, nil
}

// AddWaitlistEntry queues a claim on an item with no claimable units. Joining
// an item that still has projected availability is rejected; the caller should
// check out or reserve instead.
func (db *DB) AddWaitlistEntry(ctx context.Context, entry *models.WaitlistEntry) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		ts := now()

		// The join gate uses the projected availability, not the raw ledger:
		// units promised to notified entries keep the ledger positive while
		// no claim path is open, and joining must stay possible then.
		avail, err := availableQuantityTx(ctx, tx, entry.OrgID, entry.ItemID, ts, ts)
		if err != nil {
			return err
		}
		if avail > 0 {
			return fmt.Errorf("%w: item %d has available units", ErrValidation, entry.ItemID)
		}

		var existing int64
		query := `SELECT COUNT(*) FROM waitlist_entries
                  WHERE org_id = ? AND item_id = ? AND user_id = ? AND status IN (?, ?)`
		err = tx.QueryRowContext(ctx, query, entry.OrgID, entry.ItemID, entry.UserID,
			models.WaitlistWaiting, models.WaitlistNotified).Scan(&existing)
		if err != nil {
			return fmt.Errorf("failed to check existing waitlist entry: %w", err)
		}
		if existing > 0 {
			return fmt.Errorf("waitlist entry for item %d: %w", entry.ItemID, ErrAlreadyExists)
		}

		var active int64
		query = `SELECT COUNT(*) FROM waitlist_entries
                 WHERE org_id = ? AND item_id = ? AND status IN (?, ?)`
		err = tx.QueryRowContext(ctx, query, entry.OrgID, entry.ItemID,
			models.WaitlistWaiting, models.WaitlistNotified).Scan(&active)
		if err != nil {
			return fmt.Errorf("failed to count waitlist entries: %w", err)
		}

		entry.QueuePosition = active + 1
		entry.Status = models.WaitlistWaiting

		query = `INSERT INTO waitlist_entries (org_id, item_id, user_id, queue_position, priority,
                   notify_when_available, status, created_at, updated_at)
                 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
		result, err := tx.ExecContext(ctx, query,
			entry.OrgID, entry.ItemID, entry.UserID, entry.QueuePosition, entry.Priority,
			entry.NotifyWhenAvailable, entry.Status, ts, ts,
		)
		if err != nil {
			return fmt.Errorf("failed to insert waitlist entry: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		entry.ID = id
		entry.CreatedAt = ts
		entry.UpdatedAt = ts
		return nil
	})
}

// RemoveWaitlistEntry cancels the user's queued claim and re-packs the
// remaining queue positions to a contiguous 1..N.
func (db *DB) RemoveWaitlistEntry(ctx context.Context, orgID, itemID, userID int64) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		ts := now()

		var id int64
		query := `SELECT id FROM waitlist_entries
                  WHERE org_id = ? AND item_id = ? AND user_id = ? AND status IN (?, ?)`
		err := tx.QueryRowContext(ctx, query, orgID, itemID, userID,
			models.WaitlistWaiting, models.WaitlistNotified).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("waitlist entry for user %d: %w", userID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to get waitlist entry: %w", err)
		}

		query = `UPDATE waitlist_entries SET status = ?, updated_at = ? WHERE id = ?`
		if _, err := tx.ExecContext(ctx, query, models.WaitlistCancelled, ts, id); err != nil {
			return fmt.Errorf("failed to cancel waitlist entry: %w", err)
		}

		return repackQueueTx(ctx, tx, orgID, itemID, ts)
	})
}

// repackQueueTx renumbers the still-queued entries in serving order
// (priority ascending, then FIFO) so positions stay contiguous from 1.
func repackQueueTx(ctx context.Context, tx *sql.Tx, orgID, itemID int64, ts time.Time) error {
	query := `SELECT id FROM waitlist_entries
              WHERE org_id = ? AND item_id = ? AND status IN (?, ?)
              ORDER BY priority, created_at, id`
	rows, err := tx.QueryContext(ctx, query, orgID, itemID,
		models.WaitlistWaiting, models.WaitlistNotified)
	if err != nil {
		return fmt.Errorf("failed to list queue for repack: %w", err)
	}

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan queue entry: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Close(); err != nil {
		return err
	}

	for i, id := range ids {
		query = `UPDATE waitlist_entries SET queue_position = ?, updated_at = ? WHERE id = ? AND queue_position != ?`
		if _, err := tx.ExecContext(ctx, query, i+1, ts, id, i+1); err != nil {
			return fmt.Errorf("failed to renumber queue entry %d: %w", id, err)
		}
	}
	return nil
}

// fulfilWaitlistEntryTx converts a notified entry into a real claim and
// re-packs the queue. No-op when the user has no notified entry.
func fulfilWaitlistEntryTx(ctx context.Context, tx *sql.Tx, orgID, itemID, userID int64, ts time.Time) error {
	query := `UPDATE waitlist_entries SET status = ?, fulfilled_at = ?, updated_at = ?
              WHERE org_id = ? AND item_id = ? AND user_id = ? AND status = ?`
	result, err := tx.ExecContext(ctx, query, models.WaitlistFulfilled, ts, ts,
		orgID, itemID, userID, models.WaitlistNotified)
	if err != nil {
		return fmt.Errorf("failed to fulfil waitlist entry: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil
	}
	return repackQueueTx(ctx, tx, orgID, itemID, ts)
}

// NotifyWaitlist promotes up to available_count queued entries to notified,
// stamping the deadline by which each must convert. Returns the entries that
// actually transitioned this call.
func (db *DB) NotifyWaitlist(ctx context.Context, orgID, itemID int64, window time.Duration) ([]*models.WaitlistEntry, error) {
	var promoted []*models.WaitlistEntry
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		ts := now()

		item, err := getItem(ctx, tx, orgID, itemID)
		if err != nil {
			return err
		}
		if item.AvailableCount <= 0 {
			return nil
		}

		query := `SELECT ` + waitlistColumns + ` FROM waitlist_entries
                  WHERE org_id = ? AND item_id = ? AND status IN (?, ?)
                  ORDER BY priority, created_at, id LIMIT ?`
		rows, err := tx.QueryContext(ctx, query, orgID, itemID,
			models.WaitlistWaiting, models.WaitlistNotified, item.AvailableCount)
		if err != nil {
			return fmt.Errorf("failed to list queue head: %w", err)
		}

		var head []*models.WaitlistEntry
		for rows.Next() {
			e, err := scanWaitlistEntry(rows)
			if err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan waitlist entry: %w", err)
			}
			head = append(head, e)
		}
		if err := rows.Close(); err != nil {
			return err
		}

		deadline := ts.Add(window)
		for _, e := range head {
			if e.Status != models.WaitlistWaiting || !e.NotifyWhenAvailable {
				continue
			}
			query = `UPDATE waitlist_entries SET status = ?, notified_at = ?, notification_expires_at = ?, updated_at = ?
                     WHERE id = ?`
			if _, err := tx.ExecContext(ctx, query, models.WaitlistNotified, ts, deadline, ts, e.ID); err != nil {
				return fmt.Errorf("failed to notify waitlist entry %d: %w", e.ID, err)
			}
			e.Status = models.WaitlistNotified
			e.NotifiedAt = &ts
			e.NotificationExpiresAt = &deadline
			promoted = append(promoted, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return promoted, nil
}

// ExpireWaitlistNotifications flips notified entries whose conversion
// deadline has lapsed to expired and re-packs the affected queues. The
// caller promotes the next entries afterwards.
func (db *DB) ExpireWaitlistNotifications(ctx context.Context) ([]*models.WaitlistEntry, error) {
	var expired []*models.WaitlistEntry
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		ts := now()

		query := `SELECT ` + waitlistColumns + ` FROM waitlist_entries
                  WHERE status = ? AND notification_expires_at < ?`
		rows, err := tx.QueryContext(ctx, query, models.WaitlistNotified, ts)
		if err != nil {
			return fmt.Errorf("failed to select lapsed notifications: %w", err)
		}
		for rows.Next() {
			e, err := scanWaitlistEntry(rows)
			if err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan waitlist entry: %w", err)
			}
			expired = append(expired, e)
		}
		if err := rows.Close(); err != nil {
			return err
		}

		seen := make(map[[2]int64]bool)
		for _, e := range expired {
			query = `UPDATE waitlist_entries SET status = ?, updated_at = ? WHERE id = ?`
			if _, err := tx.ExecContext(ctx, query, models.WaitlistExpired, ts, e.ID); err != nil {
				return fmt.Errorf("failed to expire waitlist entry %d: %w", e.ID, err)
			}
			e.Status = models.WaitlistExpired
			seen[[2]int64{e.OrgID, e.ItemID}] = true
		}

		for key := range seen {
			if err := repackQueueTx(ctx, tx, key[0], key[1], ts); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}

// GetWaitlistEntries returns the queue for an item in serving order.
func (db *DB) GetWaitlistEntries(ctx context.Context, orgID, itemID int64) ([]*models.WaitlistEntry, error) {
	query := `SELECT ` + waitlistColumns + ` FROM waitlist_entries
              WHERE org_id = ? AND item_id = ? AND status IN (?, ?)
              ORDER BY queue_position`
	rows, err := db.QueryContext(ctx, query, orgID, itemID,
		models.WaitlistWaiting, models.WaitlistNotified)
	if err != nil {
		return nil, fmt.Errorf("failed to get waitlist entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.WaitlistEntry
	for rows.Next() {
		e, err := scanWaitlistEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan waitlist entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetWaitlistStats aggregates per-status counts and the average wait between
// joining and fulfilment.
func (db *DB) GetWaitlistStats(ctx context.Context, orgID, itemID int64) (*models.WaitlistStats, error) {
	stats := &models.WaitlistStats{ItemID: itemID}

	query := `SELECT status, COUNT(*) FROM waitlist_entries
              WHERE org_id = ? AND item_id = ? GROUP BY status`
	rows, err := db.QueryContext(ctx, query, orgID, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to get waitlist stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan stats row: %w", err)
		}
		switch status {
		case models.WaitlistWaiting:
			stats.Waiting = count
		case models.WaitlistNotified:
			stats.Notified = count
		case models.WaitlistFulfilled:
			stats.Fulfilled = count
		case models.WaitlistCancelled:
			stats.Cancelled = count
		case models.WaitlistExpired:
			stats.Expired = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	query = `SELECT created_at, fulfilled_at FROM waitlist_entries
             WHERE org_id = ? AND item_id = ? AND status = ? AND fulfilled_at IS NOT NULL`
	waitRows, err := db.QueryContext(ctx, query, orgID, itemID, models.WaitlistFulfilled)
	if err != nil {
		return nil, fmt.Errorf("failed to get fulfilment times: %w", err)
	}
	defer waitRows.Close()

	var total time.Duration
	var n int64
	for waitRows.Next() {
		var createdAt, fulfilledAt time.Time
		if err := waitRows.Scan(&createdAt, &fulfilledAt); err != nil {
			return nil, fmt.Errorf("failed to scan fulfilment row: %w", err)
		}
		total += fulfilledAt.Sub(createdAt)
		n++
	}
	if err := waitRows.Err(); err != nil {
		return nil, err
	}
	if n > 0 {
		stats.AverageWait = total / time.Duration(n)
	}
	return stats, nil
}
