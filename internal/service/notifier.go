package service

import (
	"context"

	"lendery/internal/domain"
	"lendery/internal/events"
	"lendery/internal/metrics"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// EventNotifier delivers user notifications as user_notified events on the
// bus, paced so a large promotion sweep cannot flood downstream consumers.
type EventNotifier struct {
	eventBus domain.EventPublisher
	limiter  *rate.Limiter
	logger   *zerolog.Logger
}

func NewEventNotifier(eventBus domain.EventPublisher, perSecond float64, logger *zerolog.Logger) *EventNotifier {
	if perSecond <= 0 {
		perSecond = 1
	}
	return &EventNotifier{
		eventBus: eventBus,
		limiter:  rate.NewLimiter(rate.Limit(perSecond), int(perSecond)),
		logger:   logger,
	}
}

func (n *EventNotifier) Notify(ctx context.Context, orgID, userID int64, kind, message string) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}

	payload := events.NotificationPayload{
		OrgID:   orgID,
		UserID:  userID,
		Kind:    kind,
		Message: message,
	}
	if err := n.eventBus.PublishJSON(events.EventUserNotified, payload); err != nil {
		return err
	}

	metrics.IncNotification(kind)

	n.logger.Debug().
		Int64("user_id", userID).
		Str("kind", kind).
		Msg("notification dispatched")

	return nil
}
