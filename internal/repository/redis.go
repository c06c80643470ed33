package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"lendery/internal/config"
	"lendery/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisStateRepository keeps claim rate counters and availability snapshots
// in Redis so repeated availability checks skip the ledger projection.
type RedisStateRepository struct {
	client *redis.Client
}

func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisStateRepository(client *redis.Client) *RedisStateRepository {
	return &RedisStateRepository{client: client}
}

// Keys carry hour granularity: availability shifts within a day as
// reservations start and holds lapse, so two instants of the same day
// must not share a slot.
func snapshotKey(orgID, itemID int64, date time.Time) string {
	return fmt.Sprintf("avail:%d:%d:%s", orgID, itemID, date.UTC().Format("2006-01-02T15"))
}

func (r *RedisStateRepository) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, fmt.Errorf("redis client is nil")
	}
	key := fmt.Sprintf("claim_rate:%d", userID)
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	if count == 1 {
		r.client.Expire(ctx, key, window)
	}

	return count <= int64(limit), nil
}

func (r *RedisStateRepository) GetAvailabilitySnapshot(ctx context.Context, orgID, itemID int64, date time.Time) (*models.AvailabilitySnapshot, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	val, err := r.client.Get(ctx, snapshotKey(orgID, itemID, date)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot from redis: %w", err)
	}

	var snapshot models.AvailabilitySnapshot
	if err := json.Unmarshal([]byte(val), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return &snapshot, nil
}

func (r *RedisStateRepository) SetAvailabilitySnapshot(ctx context.Context, snapshot *models.AvailabilitySnapshot, ttl time.Duration) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	key := snapshotKey(snapshot.OrgID, snapshot.ItemID, snapshot.Date)
	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set snapshot in redis: %w", err)
	}

	return nil
}

// InvalidateAvailability drops every cached snapshot for an item. Called
// after any write that moves stock.
func (r *RedisStateRepository) InvalidateAvailability(ctx context.Context, orgID, itemID int64) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	pattern := fmt.Sprintf("avail:%d:%d:*", orgID, itemID)
	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete snapshot from redis: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan snapshots: %w", err)
	}
	return nil
}

// Ping verifies the Redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
