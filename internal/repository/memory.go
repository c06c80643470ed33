package repository

import (
	"context"
	"sync"
	"time"

	"lendery/internal/models"
)

type MemoryStateRepository struct {
	snapshots  sync.Map
	rateLimits sync.Map
}

func NewMemoryStateRepository() *MemoryStateRepository {
	return &MemoryStateRepository{}
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func (r *MemoryStateRepository) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	val, ok := r.rateLimits.Load(userID)

	var entry *rateLimitEntry
	if !ok {
		entry = &rateLimitEntry{
			count:     1,
			expiresAt: now.Add(window),
		}
	} else {
		entry = val.(*rateLimitEntry)
		if now.After(entry.expiresAt) {
			entry.count = 1
			entry.expiresAt = now.Add(window)
		} else {
			entry.count++
		}
	}

	r.rateLimits.Store(userID, entry)
	return entry.count <= limit, nil
}

type snapshotEntry struct {
	snapshot  *models.AvailabilitySnapshot
	expiresAt time.Time
}

func (r *MemoryStateRepository) GetAvailabilitySnapshot(ctx context.Context, orgID, itemID int64, date time.Time) (*models.AvailabilitySnapshot, error) {
	val, ok := r.snapshots.Load(snapshotKey(orgID, itemID, date))
	if !ok {
		return nil, nil
	}
	entry := val.(*snapshotEntry)
	if time.Now().After(entry.expiresAt) {
		r.snapshots.Delete(snapshotKey(orgID, itemID, date))
		return nil, nil
	}
	return entry.snapshot, nil
}

func (r *MemoryStateRepository) SetAvailabilitySnapshot(ctx context.Context, snapshot *models.AvailabilitySnapshot, ttl time.Duration) error {
	r.snapshots.Store(snapshotKey(snapshot.OrgID, snapshot.ItemID, snapshot.Date), &snapshotEntry{
		snapshot:  snapshot,
		expiresAt: time.Now().Add(ttl),
	})
	return nil
}

func (r *MemoryStateRepository) InvalidateAvailability(ctx context.Context, orgID, itemID int64) error {
	r.snapshots.Range(func(key, val interface{}) bool {
		entry := val.(*snapshotEntry)
		if entry.snapshot.OrgID == orgID && entry.snapshot.ItemID == itemID {
			r.snapshots.Delete(key)
		}
		return true
	})
	return nil
}
