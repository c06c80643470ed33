package service

import (
	"context"
	"time"

	"lendery/internal/database"
	"lendery/internal/domain"
	"lendery/internal/events"
	"lendery/internal/metrics"
	"lendery/internal/models"

	"github.com/rs/zerolog"
)

type ReservationService struct {
	repo     domain.Repository
	state    domain.StateRepository
	eventBus domain.EventPublisher
	promoter domain.WaitlistPromoter
	policies domain.PolicyProvider
	logger   *zerolog.Logger
}

func NewReservationService(
	repo domain.Repository,
	state domain.StateRepository,
	eventBus domain.EventPublisher,
	promoter domain.WaitlistPromoter,
	policies domain.PolicyProvider,
	logger *zerolog.Logger,
) *ReservationService {
	return &ReservationService{
		repo:     repo,
		state:    state,
		eventBus: eventBus,
		promoter: promoter,
		policies: policies,
		logger:   logger,
	}
}

func (s *ReservationService) Create(ctx context.Context, res *models.Reservation) error {
	if res.Quantity < 1 {
		return database.ErrValidation
	}

	policy := s.policies.PolicyFor(res.OrgID)
	if res.ReservedFor.After(time.Now().AddDate(0, 0, int(policy.MaxLendingDays))) {
		return database.ErrDateTooFar
	}

	allowed, err := s.state.CheckRateLimit(ctx, res.UserID, models.ClaimRateLimit, models.ClaimRateWindow*time.Second)
	if err != nil {
		s.logger.Warn().Err(err).Int64("user_id", res.UserID).Msg("claim rate check failed")
	} else if !allowed {
		metrics.IncOp("reserve", "rate_limited")
		return database.ErrValidation
	}

	blocked, err := s.repo.IsUserBlacklisted(ctx, res.OrgID, res.UserID)
	if err != nil {
		return err
	}
	if blocked {
		metrics.IncOp("reserve", "blacklisted")
		return database.ErrBlacklisted
	}

	if err := s.repo.CreateReservationWithLock(ctx, res, policy.HoldWindow()); err != nil {
		metrics.IncOp("reserve", "failed")
		return err
	}
	metrics.IncOp("reserve", "ok")

	if err := s.state.InvalidateAvailability(ctx, res.OrgID, res.ItemID); err != nil {
		s.logger.Warn().Err(err).Int64("item_id", res.ItemID).Msg("snapshot invalidation failed")
	}

	s.publishReservationEvent(events.EventReservationCreated, res)

	s.logger.Info().
		Int64("reservation_id", res.ID).
		Int64("item_id", res.ItemID).
		Int64("user_id", res.UserID).
		Time("reserved_for", res.ReservedFor).
		Time("expires_at", res.ExpiresAt).
		Bool("stock_held", res.StockHeld).
		Msg("reservation created")

	return nil
}

func (s *ReservationService) Cancel(ctx context.Context, orgID, reservationID int64) error {
	res, err := s.repo.CancelReservation(ctx, orgID, reservationID)
	if err != nil {
		metrics.IncOp("cancel_reservation", "failed")
		return err
	}
	metrics.IncOp("cancel_reservation", "ok")

	if err := s.state.InvalidateAvailability(ctx, orgID, res.ItemID); err != nil {
		s.logger.Warn().Err(err).Int64("item_id", res.ItemID).Msg("snapshot invalidation failed")
	}

	s.publishReservationEvent(events.EventReservationCanceled, res)

	if res.StockHeld {
		if _, err := s.promoter.PromoteWaitlist(ctx, orgID, res.ItemID); err != nil {
			s.logger.Error().Err(err).Int64("item_id", res.ItemID).Msg("waitlist promotion failed")
		}
	}

	return nil
}

// CheckAvailability answers the projected available quantity for an item at
// an instant, consulting the snapshot cache first.
func (s *ReservationService) CheckAvailability(ctx context.Context, orgID, itemID int64, at time.Time) (int64, error) {
	if snapshot, err := s.state.GetAvailabilitySnapshot(ctx, orgID, itemID, at); err == nil && snapshot != nil {
		return snapshot.Available, nil
	}

	available, err := s.repo.AvailableQuantity(ctx, orgID, itemID, at)
	if err != nil {
		return 0, err
	}

	snapshot := &models.AvailabilitySnapshot{
		OrgID:     orgID,
		ItemID:    itemID,
		Date:      at,
		Available: available,
		CachedAt:  time.Now().UTC(),
	}
	if err := s.state.SetAvailabilitySnapshot(ctx, snapshot, models.DefaultSnapshotTTL*time.Second); err != nil {
		s.logger.Warn().Err(err).Int64("item_id", itemID).Msg("snapshot write failed")
	}

	return available, nil
}

func (s *ReservationService) GetUpcoming(ctx context.Context, orgID int64, days int) ([]*models.Reservation, error) {
	return s.repo.GetUpcomingReservations(ctx, orgID, days)
}

// ExpireStale releases lapsed holds and promotes waitlists on the freed
// items. Returns the number of reservations expired.
func (s *ReservationService) ExpireStale(ctx context.Context) (int, error) {
	expired, err := s.repo.ExpireStaleReservations(ctx)
	if err != nil {
		return 0, err
	}

	freedItems := make(map[[2]int64]bool)
	for _, res := range expired {
		s.publishReservationEvent(events.EventReservationExpired, res)
		if res.StockHeld {
			freedItems[[2]int64{res.OrgID, res.ItemID}] = true
		}
		if err := s.state.InvalidateAvailability(ctx, res.OrgID, res.ItemID); err != nil {
			s.logger.Warn().Err(err).Int64("item_id", res.ItemID).Msg("snapshot invalidation failed")
		}
	}

	for key := range freedItems {
		if _, err := s.promoter.PromoteWaitlist(ctx, key[0], key[1]); err != nil {
			s.logger.Error().Err(err).Int64("item_id", key[1]).Msg("waitlist promotion failed")
		}
	}

	metrics.AddSweep("reservations_expired", len(expired))
	return len(expired), nil
}

func (s *ReservationService) publishReservationEvent(eventType string, res *models.Reservation) {
	payload := events.ReservationEventPayload{
		ReservationID: res.ID,
		OrgID:         res.OrgID,
		UserID:        res.UserID,
		ItemID:        res.ItemID,
		Quantity:      res.Quantity,
		ReservedFor:   res.ReservedFor,
		ExpiresAt:     res.ExpiresAt,
		Status:        res.Status,
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}
