package service

import (
	"context"

	"lendery/internal/domain"
	"lendery/internal/events"
	"lendery/internal/metrics"
	"lendery/internal/models"

	"github.com/rs/zerolog"
)

type BlacklistService struct {
	repo     domain.Repository
	eventBus domain.EventPublisher
	logger   *zerolog.Logger
}

func NewBlacklistService(repo domain.Repository, eventBus domain.EventPublisher, logger *zerolog.Logger) *BlacklistService {
	return &BlacklistService{
		repo:     repo,
		eventBus: eventBus,
		logger:   logger,
	}
}

// Apply blocks a user manually, outside the automatic late-return path.
func (s *BlacklistService) Apply(ctx context.Context, orgID, userID int64, reason string, daysBlocked int) (*models.Blacklist, error) {
	blacklist, err := s.repo.CreateBlacklist(ctx, orgID, userID, reason, daysBlocked)
	if err != nil {
		metrics.IncOp("blacklist_apply", "failed")
		return nil, err
	}
	metrics.IncOp("blacklist_apply", "ok")

	s.publishEvent(events.EventBlacklistApplied, blacklist, 0)

	s.logger.Warn().
		Int64("user_id", userID).
		Str("reason", reason).
		Time("blocked_until", blacklist.BlockedUntil).
		Msg("user blacklisted")

	return blacklist, nil
}

// Remove lifts a block early and records who did it.
func (s *BlacklistService) Remove(ctx context.Context, orgID, blacklistID, removedBy int64) error {
	blacklist, err := s.repo.GetBlacklist(ctx, orgID, blacklistID)
	if err != nil {
		return err
	}

	if err := s.repo.RemoveBlacklist(ctx, orgID, blacklistID, removedBy); err != nil {
		metrics.IncOp("blacklist_remove", "failed")
		return err
	}
	metrics.IncOp("blacklist_remove", "ok")

	s.publishEvent(events.EventBlacklistRemoved, blacklist, removedBy)

	s.logger.Info().
		Int64("blacklist_id", blacklistID).
		Int64("user_id", blacklist.UserID).
		Int64("removed_by", removedBy).
		Msg("blacklist removed")

	return nil
}

func (s *BlacklistService) IsBlacklisted(ctx context.Context, orgID, userID int64) (bool, error) {
	return s.repo.IsUserBlacklisted(ctx, orgID, userID)
}

func (s *BlacklistService) History(ctx context.Context, orgID, userID int64) ([]*models.Blacklist, error) {
	return s.repo.ListUserBlacklists(ctx, orgID, userID)
}

func (s *BlacklistService) publishEvent(eventType string, blacklist *models.Blacklist, removedBy int64) {
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
