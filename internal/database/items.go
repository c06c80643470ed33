package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lendery/internal/models"
)

func (db *DB) CreateItem(ctx context.Context, item *models.Item) error {
	if item.TotalCount < 1 {
		return fmt.Errorf("%w: total_count must be >= 1", ErrValidation)
	}
	if item.AvailableCount == 0 {
		item.AvailableCount = item.TotalCount
	}

	query := `INSERT INTO items (org_id, name, description, total_count, available_count, is_active, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	ts := now()
	result, err := db.ExecContext(ctx, query,
		item.OrgID,
		item.Name,
		item.Description,
		item.TotalCount,
		item.AvailableCount,
		item.IsActive,
		ts,
		ts,
	)
	if err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	item.ID = id
	item.CreatedAt = ts
	item.UpdatedAt = ts
	return nil
}

// SeedItems upserts catalog items from configuration. Existing rows keep
// their available_count; only descriptive fields and total_count change.
func (db *DB) SeedItems(ctx context.Context, items []models.Item) error {
	for i := range items {
		item := &items[i]
		existing, err := db.GetItem(ctx, item.OrgID, item.ID)
		if errors.Is(err, ErrNotFound) {
			query := `INSERT INTO items (id, org_id, name, description, total_count, available_count, is_active, created_at, updated_at)
                      VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
			ts := now()
			avail := item.AvailableCount
			if avail == 0 {
				avail = item.TotalCount
			}
			if _, err := db.ExecContext(ctx, query, item.ID, item.OrgID, item.Name, item.Description,
				item.TotalCount, avail, item.IsActive, ts, ts); err != nil {
				return fmt.Errorf("failed to seed item %d: %w", item.ID, err)
			}
			continue
		}
		if err != nil {
			return err
		}

		query := `UPDATE items SET name = ?, description = ?, total_count = ?, is_active = ?, updated_at = ? WHERE id = ? AND org_id = ?`
		if _, err := db.ExecContext(ctx, query, item.Name, item.Description, item.TotalCount,
			item.IsActive, now(), item.ID, item.OrgID); err != nil {
			return fmt.Errorf("failed to update seeded item %d: %w", existing.ID, err)
		}
	}
	return nil
}

func (db *DB) GetItem(ctx context.Context, orgID, id int64) (*models.Item, error) {
	return getItem(ctx, db, orgID, id)
}

func getItem(ctx context.Context, q dbtx, orgID, id int64) (*models.Item, error) {
	var item models.Item
	query := `SELECT id, org_id, name, description, total_count, available_count, is_active, created_at, updated_at
              FROM items WHERE id = ? AND org_id = ?`
	err := q.QueryRowContext(ctx, query, id, orgID).Scan(
		&item.ID, &item.OrgID, &item.Name, &item.Description, &item.TotalCount,
		&item.AvailableCount, &item.IsActive, &item.CreatedAt, &item.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return &item, nil
}

func (db *DB) GetActiveItems(ctx context.Context, orgID int64) ([]*models.Item, error) {
	query := `SELECT id, org_id, name, description, total_count, available_count, is_active, created_at, updated_at
              FROM items WHERE org_id = ? AND is_active = 1 ORDER BY id`
	rows, err := db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to get active items: %w", err)
	}
	defer rows.Close()

	var items []*models.Item
	for rows.Next() {
		item := &models.Item{}
		if err := rows.Scan(&item.ID, &item.OrgID, &item.Name, &item.Description, &item.TotalCount,
			&item.AvailableCount, &item.IsActive, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// takeStockTx decrements available_count only when enough units remain. A
// zero rows-affected result means the conditional failed and the claim must
// be rejected; this is the single write that serializes concurrent claims.
func takeStockTx(ctx context.Context, tx dbtx, orgID, itemID, quantity int64, ts time.Time) error {
	query := `UPDATE items SET available_count = available_count - ?, updated_at = ?
              WHERE id = ? AND org_id = ? AND available_count >= ?`
	result, err := tx.ExecContext(ctx, query, quantity, ts, itemID, orgID, quantity)
	if err != nil {
		return fmt.Errorf("failed to take stock: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotAvailable
	}
	return nil
}

// releaseStockTx gives quantity back to the ledger, capped at total_count.
func releaseStockTx(ctx context.Context, tx dbtx, orgID, itemID, quantity int64, ts time.Time) error {
	query := `UPDATE items SET available_count = MIN(total_count, available_count + ?), updated_at = ?
              WHERE id = ? AND org_id = ?`
	if _, err := tx.ExecContext(ctx, query, quantity, ts, itemID, orgID); err != nil {
		return fmt.Errorf("failed to release stock: %w", err)
	}
	return nil
}
