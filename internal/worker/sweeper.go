package worker

import (
	"context"
	"fmt"
	"time"

	"lendery/internal/domain"
	"lendery/internal/metrics"

	"github.com/rs/zerolog"
)

// Sweeper runs the periodic maintenance cycle: expire lapsed reservation
// holds, expire lapsed waitlist notifications (promoting the next entries),
// and remind borrowers about overdue lendings. Each cycle retries with
// backoff before giving up until the next tick.
type Sweeper struct {
	reservations domain.ReservationService
	waitlist     domain.WaitlistService
	lendings     domain.LendingService
	notifier     domain.Notifier
	retry        RetryPolicy
	interval     time.Duration
	orgIDs       []int64
	logger       *zerolog.Logger
}

func NewSweeper(
	reservations domain.ReservationService,
	waitlist domain.WaitlistService,
	lendings domain.LendingService,
	notifier domain.Notifier,
	retry RetryPolicy,
	interval time.Duration,
	orgIDs []int64,
	logger *zerolog.Logger,
) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if len(orgIDs) == 0 {
		orgIDs = []int64{1}
	}

	return &Sweeper{
		reservations: reservations,
		waitlist:     waitlist,
		lendings:     lendings,
		notifier:     notifier,
		retry:        retry.withDefaults(),
		interval:     interval,
		orgIDs:       orgIDs,
		logger:       logger,
	}
}

// Start blocks until ctx is done, sweeping once per interval.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("sweeper started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("sweeper stopped")
			return
		case <-ticker.C:
			s.runWithRetry(ctx)
		}
	}
}

func (s *Sweeper) runWithRetry(ctx context.Context) {
	for attempt := 1; attempt <= s.retry.MaxRetries; attempt++ {
		err := s.Sweep(ctx)
		if err == nil {
			return
		}
		s.logger.Error().Err(err).Int("attempt", attempt).Msg("sweep failed")

		if attempt == s.retry.MaxRetries {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.retry.NextDelay(attempt)):
		}
	}
}

// Sweep runs one maintenance cycle.
func (s *Sweeper) Sweep(ctx context.Context) error {
	expired, err := s.reservations.ExpireStale(ctx)
	if err != nil {
		return fmt.Errorf("expire reservations: %w", err)
	}

	lapsed, err := s.waitlist.SweepNotifications(ctx)
	if err != nil {
		return fmt.Errorf("sweep waitlist: %w", err)
	}

	overdue := 0
	for _, orgID := range s.orgIDs {
		n, err := s.remindOverdue(ctx, orgID)
		if err != nil {
			return fmt.Errorf("overdue scan org %d: %w", orgID, err)
		}
		overdue += n
	}

	if expired > 0 || lapsed > 0 || overdue > 0 {
		s.logger.Info().
			Int("reservations_expired", expired).
			Int("notifications_lapsed", lapsed).
			Int("overdue_reminders", overdue).
			Msg("sweep cycle complete")
	}
	return nil
}

func (s *Sweeper) remindOverdue(ctx context.Context, orgID int64) (int, error) {
	lendings, err := s.lendings.ListOverdue(ctx, orgID)
	if err != nil {
		return 0, err
	}

	for _, lending := range lendings {
		message := fmt.Sprintf("Item %d was due %s. Return it to stop the penalty clock.",
			lending.ItemID, lending.DueDate.Format("2006-01-02"))
		if err := s.notifier.Notify(ctx, orgID, lending.BorrowerID, "overdue_reminder", message); err != nil {
			s.logger.Error().Err(err).Int64("lending_id", lending.ID).Msg("overdue reminder failed")
		}
	}

	metrics.AddSweep("overdue_reminders", len(lendings))
	return len(lendings), nil
}
