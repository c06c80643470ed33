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

type LendingService struct {
	repo     domain.Repository
	state    domain.StateRepository
	eventBus domain.EventPublisher
	promoter domain.WaitlistPromoter
	policies domain.PolicyProvider
	logger   *zerolog.Logger
}

func NewLendingService(
	repo domain.Repository,
	state domain.StateRepository,
	eventBus domain.EventPublisher,
	promoter domain.WaitlistPromoter,
	policies domain.PolicyProvider,
	logger *zerolog.Logger,
) *LendingService {
	return &LendingService{
		repo:     repo,
		state:    state,
		eventBus: eventBus,
		promoter: promoter,
		policies: policies,
		logger:   logger,
	}
}

// ValidateDueDate checks the due date against the tenant lending horizon.
func (s *LendingService) ValidateDueDate(dueDate time.Time, policy models.Policy) error {
	now := time.Now()
	if dueDate.Before(now) {
		return database.ErrPastDate
	}
	if dueDate.After(now.AddDate(0, 0, int(policy.MaxLendingDays))) {
		return database.ErrDateTooFar
	}
	return nil
}

func (s *LendingService) Checkout(ctx context.Context, lending *models.Lending) error {
	if lending.Quantity < 1 {
		return database.ErrValidation
	}

	policy := s.policies.PolicyFor(lending.OrgID)
	if err := s.ValidateDueDate(lending.DueDate, policy); err != nil {
		return err
	}

	allowed, err := s.state.CheckRateLimit(ctx, lending.BorrowerID, models.ClaimRateLimit, models.ClaimRateWindow*time.Second)
	if err != nil {
		// Rate limiting is best effort; the ledger stays authoritative.
		s.logger.Warn().Err(err).Int64("user_id", lending.BorrowerID).Msg("claim rate check failed")
	} else if !allowed {
		metrics.IncOp("checkout", "rate_limited")
		return database.ErrValidation
	}

	blocked, err := s.repo.IsUserBlacklisted(ctx, lending.OrgID, lending.BorrowerID)
	if err != nil {
		return err
	}
	if blocked {
		metrics.IncOp("checkout", "blacklisted")
		return database.ErrBlacklisted
	}

	if err := s.repo.CheckoutWithLock(ctx, lending); err != nil {
		metrics.IncOp("checkout", "failed")
		return err
	}
	metrics.IncOp("checkout", "ok")

	if err := s.state.InvalidateAvailability(ctx, lending.OrgID, lending.ItemID); err != nil {
		s.logger.Warn().Err(err).Int64("item_id", lending.ItemID).Msg("snapshot invalidation failed")
	}

	s.publishLendingEvent(events.EventItemCheckedOut, lending, 0)

	s.logger.Info().
		Int64("lending_id", lending.ID).
		Int64("item_id", lending.ItemID).
		Int64("borrower_id", lending.BorrowerID).
		Int64("quantity", lending.Quantity).
		Time("due_date", lending.DueDate).
		Msg("item checked out")

	return nil
}

func (s *LendingService) Return(ctx context.Context, orgID, lendingID int64) (*models.Lending, error) {
	policy := s.policies.PolicyFor(orgID)

	lending, blacklist, err := s.repo.ReturnLendingWithPenalty(ctx, orgID, lendingID, policy)
	if err != nil {
		metrics.IncOp("return", "failed")
		return nil, err
	}
	metrics.IncOp("return", "ok")

	if err := s.state.InvalidateAvailability(ctx, orgID, lending.ItemID); err != nil {
		s.logger.Warn().Err(err).Int64("item_id", lending.ItemID).Msg("snapshot invalidation failed")
	}

	daysLate := int64(0)
	if lending.ReturnedAt != nil {
		daysLate = models.DaysLate(lending.DueDate, *lending.ReturnedAt)
	}
	s.publishLendingEvent(events.EventItemReturned, lending, daysLate)

	if lending.Penalty > 0 {
		metrics.IncPenalty()
	}

	if blacklist != nil {
		s.publishBlacklistEvent(events.EventBlacklistApplied, blacklist, 0)
		s.logger.Warn().
			Int64("lending_id", lending.ID).
			Int64("borrower_id", lending.BorrowerID).
			Time("blocked_until", blacklist.BlockedUntil).
			Msg("borrower blacklisted for late return")
	}

	// Freed stock goes to the head of the waitlist before anyone else
	// sees it.
	if _, err := s.promoter.PromoteWaitlist(ctx, orgID, lending.ItemID); err != nil {
		s.logger.Error().Err(err).Int64("item_id", lending.ItemID).Msg("waitlist promotion failed")
	}

	return lending, nil
}

// CalculatePenalty projects the penalty a lending would carry if it were
// returned at the given instant. For already returned lendings it reports
// the stored value.
func (s *LendingService) CalculatePenalty(ctx context.Context, orgID, lendingID int64, at time.Time) (*models.PenaltyQuote, error) {
	lending, err := s.repo.GetLending(ctx, orgID, lendingID)
	if err != nil {
		return nil, err
	}

	quote := &models.PenaltyQuote{LendingID: lending.ID}

	if !lending.Active() {
		quote.DaysLate = models.DaysLate(lending.DueDate, *lending.ReturnedAt)
		quote.Penalty = lending.Penalty
		quote.Reason = lending.PenaltyReason
		quote.Overridden = lending.PenaltyOverridden
		quote.Final = true
		return quote, nil
	}

	policy := s.policies.PolicyFor(orgID)
	quote.DaysLate = models.DaysLate(lending.DueDate, at)
	if quote.DaysLate > 0 {
		quote.Penalty = float64(quote.DaysLate) * policy.LatePenaltyPerDay
		quote.Reason = database.PenaltyReason(quote.DaysLate)
	}
	return quote, nil
}

func (s *LendingService) OverridePenalty(ctx context.Context, orgID, lendingID int64, penalty float64, reason string) error {
	if penalty < 0 {
		return database.ErrValidation
	}
	if err := s.repo.OverridePenalty(ctx, orgID, lendingID, penalty, reason); err != nil {
		return err
	}

	s.logger.Info().
		Int64("lending_id", lendingID).
		Float64("penalty", penalty).
		Str("reason", reason).
		Msg("penalty overridden")
	return nil
}

func (s *LendingService) ListOverdue(ctx context.Context, orgID int64) ([]*models.Lending, error) {
	return s.repo.ListOverdueLendings(ctx, orgID)
}

func (s *LendingService) GetUserLendings(ctx context.Context, orgID, borrowerID int64) ([]*models.Lending, error) {
	return s.repo.GetUserLendings(ctx, orgID, borrowerID)
}

func (s *LendingService) publishLendingEvent(eventType string, lending *models.Lending, daysLate int64) {
	payload := events.LendingEventPayload{
		LendingID: lending.ID,
		OrgID:     lending.OrgID,
		UserID:    lending.BorrowerID,
		ItemID:    lending.ItemID,
		Quantity:  lending.Quantity,
		DueDate:   lending.DueDate,
		Returned:  lending.ReturnedAt,
		DaysLate:  daysLate,
		Penalty:   lending.Penalty,
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}

func (s *LendingService) publishBlacklistEvent(eventType string, blacklist *models.Blacklist, removedBy int64) {
	payload := events.BlacklistEventPayload{
		BlacklistID:  blacklist.ID,
		OrgID:        blacklist.OrgID,
		UserID:       blacklist.UserID,
		Reason:       blacklist.Reason,
		BlockedUntil: blacklist.BlockedUntil,
		RemovedBy:    removedBy,
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}
