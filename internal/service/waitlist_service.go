package service

import (
	"context"
	"fmt"

	"lendery/internal/database"
	"lendery/internal/domain"
	"lendery/internal/events"
	"lendery/internal/metrics"
	"lendery/internal/models"

	"github.com/rs/zerolog"
)

// WaitlistService manages queue membership and runs the promotion cycle:
// freed stock notifies the head of the queue, lapsed notifications expire
// and the next entries get their turn.
type WaitlistService struct {
	repo     domain.Repository
	eventBus domain.EventPublisher
	notifier domain.Notifier
	policies domain.PolicyProvider
	logger   *zerolog.Logger
}

func NewWaitlistService(
	repo domain.Repository,
	eventBus domain.EventPublisher,
	notifier domain.Notifier,
	policies domain.PolicyProvider,
	logger *zerolog.Logger,
) *WaitlistService {
	return &WaitlistService{
		repo:     repo,
		eventBus: eventBus,
		notifier: notifier,
		policies: policies,
		logger:   logger,
	}
}

func (s *WaitlistService) Add(ctx context.Context, entry *models.WaitlistEntry) error {
	blocked, err := s.repo.IsUserBlacklisted(ctx, entry.OrgID, entry.UserID)
	if err != nil {
		return err
	}
	if blocked {
		metrics.IncOp("waitlist_join", "blacklisted")
		return database.ErrBlacklisted
	}

	if err := s.repo.AddWaitlistEntry(ctx, entry); err != nil {
		metrics.IncOp("waitlist_join", "failed")
		return err
	}
	metrics.IncOp("waitlist_join", "ok")

	s.publishWaitlistEvent(events.EventWaitlistJoined, entry)

	s.logger.Info().
		Int64("entry_id", entry.ID).
		Int64("item_id", entry.ItemID).
		Int64("user_id", entry.UserID).
		Int64("queue_position", entry.QueuePosition).
		Msg("joined waitlist")

	return nil
}

func (s *WaitlistService) Remove(ctx context.Context, orgID, itemID, userID int64) error {
	if err := s.repo.RemoveWaitlistEntry(ctx, orgID, itemID, userID); err != nil {
		metrics.IncOp("waitlist_leave", "failed")
		return err
	}
	metrics.IncOp("waitlist_leave", "ok")

	s.logger.Info().
		Int64("item_id", itemID).
		Int64("user_id", userID).
		Msg("left waitlist")

	return nil
}

// PromoteWaitlist notifies as many queue heads as there is free stock for
// the item, each with a claim deadline. Safe to call when nothing is free.
func (s *WaitlistService) PromoteWaitlist(ctx context.Context, orgID, itemID int64) ([]*models.WaitlistEntry, error) {
	window := s.policies.PolicyFor(orgID).NotificationWindow()

	promoted, err := s.repo.NotifyWaitlist(ctx, orgID, itemID, window)
	if err != nil {
		return nil, err
	}

	for _, entry := range promoted {
		s.publishWaitlistEvent(events.EventWaitlistNotified, entry)

		deadline := ""
		if entry.NotificationExpiresAt != nil {
			deadline = entry.NotificationExpiresAt.Format("2006-01-02 15:04")
		}
		message := fmt.Sprintf("Item %d is available. Claim it before %s or your spot moves on.", itemID, deadline)
		if err := s.notifier.Notify(ctx, orgID, entry.UserID, "waitlist_available", message); err != nil {
			s.logger.Error().Err(err).Int64("user_id", entry.UserID).Msg("waitlist notification failed")
		}
	}

	metrics.AddSweep("waitlist_notified", len(promoted))
	return promoted, nil
}

// SweepNotifications expires lapsed notification deadlines across all
// tenants and re-promotes the affected queues. Returns the count of
// expired entries.
func (s *WaitlistService) SweepNotifications(ctx context.Context) (int, error) {
	expired, err := s.repo.ExpireWaitlistNotifications(ctx)
	if err != nil {
		return 0, err
	}

	affected := make(map[[2]int64]bool)
	for _, entry := range expired {
		s.publishWaitlistEvent(events.EventWaitlistExpired, entry)
		affected[[2]int64{entry.OrgID, entry.ItemID}] = true
	}

	// The stock an expired entry was offered goes to the next in line.
	for key := range affected {
		if _, err := s.PromoteWaitlist(ctx, key[0], key[1]); err != nil {
			s.logger.Error().Err(err).Int64("item_id", key[1]).Msg("waitlist promotion failed")
		}
	}

	metrics.AddSweep("waitlist_expired", len(expired))
	return len(expired), nil
}

func (s *WaitlistService) Stats(ctx context.Context, orgID, itemID int64) (*models.WaitlistStats, error) {
	return s.repo.GetWaitlistStats(ctx, orgID, itemID)
}

func (s *WaitlistService) Entries(ctx context.Context, orgID, itemID int64) ([]*models.WaitlistEntry, error) {
	return s.repo.GetWaitlistEntries(ctx, orgID, itemID)
}

func (s *WaitlistService) publishWaitlistEvent(eventType string, entry *models.WaitlistEntry) {
	payload := events.WaitlistEventPayload{
		EntryID:       entry.ID,
		OrgID:         entry.OrgID,
		UserID:        entry.UserID,
		ItemID:        entry.ItemID,
		QueuePosition: entry.QueuePosition,
		Status:        entry.Status,
		NotifyBy:      entry.NotificationExpiresAt,
	}
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}
