package repository

import (
	"context"
	"sync/atomic"
	"time"

	"lendery/internal/domain"
	"lendery/internal/models"

	"github.com/rs/zerolog"
)

// FailoverStateRepository serves from the primary (Redis) and falls back to
// the in-memory repository whenever the primary errors. After a minute it
// probes the primary again.
type FailoverStateRepository struct {
	primary  domain.StateRepository
	fallback domain.StateRepository
	logger   *zerolog.Logger
	isDown   atomic.Bool
	// lastCheck holds the unix nanos of the last failed primary probe; it is
	// read from concurrent request goroutines.
	lastCheck atomic.Int64
}

func NewFailoverStateRepository(primary, fallback domain.StateRepository, logger *zerolog.Logger) *FailoverStateRepository {
	return &FailoverStateRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverStateRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary state repository failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverStateRepository) shouldProbe() bool {
	return r.isDown.Load() && time.Since(time.Unix(0, r.lastCheck.Load())) > time.Minute
}

func (r *FailoverStateRepository) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	if !r.isDown.Load() {
		allowed, err := r.primary.CheckRateLimit(ctx, userID, limit, window)
		if err == nil {
			return allowed, nil
		}
		r.markDown(err)
	}

	if r.shouldProbe() {
		allowed, err := r.primary.CheckRateLimit(ctx, userID, limit, window)
		if err == nil {
			r.isDown.Store(false)
			return allowed, nil
		}
		r.lastCheck.Store(time.Now().UnixNano())
	}

	return r.fallback.CheckRateLimit(ctx, userID, limit, window)
}

func (r *FailoverStateRepository) GetAvailabilitySnapshot(ctx context.Context, orgID, itemID int64, date time.Time) (*models.AvailabilitySnapshot, error) {
	if !r.isDown.Load() {
		snapshot, err := r.primary.GetAvailabilitySnapshot(ctx, orgID, itemID, date)
		if err == nil {
			return snapshot, nil
		}
		r.markDown(err)
	}

	if r.shouldProbe() {
		snapshot, err := r.primary.GetAvailabilitySnapshot(ctx, orgID, itemID, date)
		if err == nil {
			r.isDown.Store(false)
			return snapshot, nil
		}
		r.lastCheck.Store(time.Now().UnixNano())
	}

	return r.fallback.GetAvailabilitySnapshot(ctx, orgID, itemID, date)
}

func (r *FailoverStateRepository) SetAvailabilitySnapshot(ctx context.Context, snapshot *models.AvailabilitySnapshot, ttl time.Duration) error {
	if !r.isDown.Load() {
		err := r.primary.SetAvailabilitySnapshot(ctx, snapshot, ttl)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.SetAvailabilitySnapshot(ctx, snapshot, ttl)
}

func (r *FailoverStateRepository) InvalidateAvailability(ctx context.Context, orgID, itemID int64) error {
	if !r.isDown.Load() {
		err := r.primary.InvalidateAvailability(ctx, orgID, itemID)
		if err == nil {
			// Keep the fallback coherent as well.
			return r.fallback.InvalidateAvailability(ctx, orgID, itemID)
		}
		r.markDown(err)
	}

	return r.fallback.InvalidateAvailability(ctx, orgID, itemID)
}
