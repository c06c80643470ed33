package domain

import (
	"context"
	"time"

	"lendery/internal/models"
)

type Repository interface {
	CreateItem(ctx context.Context, item *models.Item) error
	SeedItems(ctx context.Context, items []models.Item) error
	GetItem(ctx context.Context, orgID, id int64) (*models.Item, error)
	GetActiveItems(ctx context.Context, orgID int64) ([]*models.Item, error)
	AvailableQuantity(ctx context.Context, orgID, itemID int64, at time.Time) (int64, error)
	GetAvailabilityForPeriod(ctx context.Context, orgID, itemID int64, startDate time.Time, days int) ([]*models.AvailabilitySnapshot, error)
	CheckoutWithLock(ctx context.Context, lending *models.Lending) error
	ReturnLendingWithPenalty(ctx context.Context, orgID, lendingID int64, policy models.Policy) (*models.Lending, *models.Blacklist, error)
	GetLending(ctx context.Context, orgID, id int64) (*models.Lending, error)
	OverridePenalty(ctx context.Context, orgID, id int64, penalty float64, reason string) error
	ListOverdueLendings(ctx context.Context, orgID int64) ([]*models.Lending, error)
	GetUserLendings(ctx context.Context, orgID, borrowerID int64) ([]*models.Lending, error)
	CreateReservationWithLock(ctx context.Context, res *models.Reservation, holdWindow time.Duration) error
	CancelReservation(ctx context.Context, orgID, id int64) (*models.Reservation, error)
	ExpireStaleReservations(ctx context.Context) ([]*models.Reservation, error)
	GetReservation(ctx context.Context, orgID, id int64) (*models.Reservation, error)
	GetUpcomingReservations(ctx context.Context, orgID int64, days int) ([]*models.Reservation, error)
	GetActiveReservationForUser(ctx context.Context, orgID, itemID, userID int64) (*models.Reservation, error)
	AddWaitlistEntry(ctx context.Context, entry *models.WaitlistEntry) error
	RemoveWaitlistEntry(ctx context.Context, orgID, itemID, userID int64) error
	NotifyWaitlist(ctx context.Context, orgID, itemID int64, window time.Duration) ([]*models.WaitlistEntry, error)
	ExpireWaitlistNotifications(ctx context.Context) ([]*models.WaitlistEntry, error)
	GetWaitlistEntries(ctx context.Context, orgID, itemID int64) ([]*models.WaitlistEntry, error)
	GetWaitlistStats(ctx context.Context, orgID, itemID int64) (*models.WaitlistStats, error)
	CreateBlacklist(ctx context.Context, orgID, userID int64, reason string, daysBlocked int) (*models.Blacklist, error)
	IsUserBlacklisted(ctx context.Context, orgID, userID int64) (bool, error)
	RemoveBlacklist(ctx context.Context, orgID, id, removedBy int64) error
	GetBlacklist(ctx context.Context, orgID, id int64) (*models.Blacklist, error)
	ListUserBlacklists(ctx context.Context, orgID, userID int64) ([]*models.Blacklist, error)
	ActiveBlacklistUntil(ctx context.Context, orgID, userID int64) (time.Time, error)
	CreateApprovalRequest(ctx context.Context, req *models.ApprovalRequest) error
	GetApprovalRequest(ctx context.Context, orgID int64, reference string) (*models.ApprovalRequest, error)
	DecideApprovalRequest(ctx context.Context, orgID int64, reference, status string, approverID int64) error
	ListPendingApprovals(ctx context.Context, orgID int64) ([]*models.ApprovalRequest, error)
}

// StateRepository caches transient claim state outside the ledger.
type StateRepository interface {
	CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error)
	GetAvailabilitySnapshot(ctx context.Context, orgID, itemID int64, date time.Time) (*models.AvailabilitySnapshot, error)
	SetAvailabilitySnapshot(ctx context.Context, snapshot *models.AvailabilitySnapshot, ttl time.Duration) error
	InvalidateAvailability(ctx context.Context, orgID, itemID int64) error
}

// PolicyProvider resolves the enforcement policy for a tenant.
type PolicyProvider interface {
	PolicyFor(orgID int64) models.Policy
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Notifier delivers user-facing messages for waitlist and lending events.
type Notifier interface {
	Notify(ctx context.Context, orgID, userID int64, kind, message string) error
}

// WaitlistPromoter re-serves a freed item to the head of its waitlist.
type WaitlistPromoter interface {
	PromoteWaitlist(ctx context.Context, orgID, itemID int64) ([]*models.WaitlistEntry, error)
}

type LendingService interface {
	Checkout(ctx context.Context, lending *models.Lending) error
	Return(ctx context.Context, orgID, lendingID int64) (*models.Lending, error)
	CalculatePenalty(ctx context.Context, orgID, lendingID int64, at time.Time) (*models.PenaltyQuote, error)
	OverridePenalty(ctx context.Context, orgID, lendingID int64, penalty float64, reason string) error
	ListOverdue(ctx context.Context, orgID int64) ([]*models.Lending, error)
	GetUserLendings(ctx context.Context, orgID, borrowerID int64) ([]*models.Lending, error)
}

type ReservationService interface {
	Create(ctx context.Context, res *models.Reservation) error
	Cancel(ctx context.Context, orgID, reservationID int64) error
	CheckAvailability(ctx context.Context, orgID, itemID int64, at time.Time) (int64, error)
	GetUpcoming(ctx context.Context, orgID int64, days int) ([]*models.Reservation, error)
	ExpireStale(ctx context.Context) (int, error)
}

type WaitlistService interface {
	Add(ctx context.Context, entry *models.WaitlistEntry) error
	Remove(ctx context.Context, orgID, itemID, userID int64) error
	SweepNotifications(ctx context.Context) (int, error)
	Stats(ctx context.Context, orgID, itemID int64) (*models.WaitlistStats, error)
	Entries(ctx context.Context, orgID, itemID int64) ([]*models.WaitlistEntry, error)
}

type BlacklistService interface {
	Apply(ctx context.Context, orgID, userID int64, reason string, daysBlocked int) (*models.Blacklist, error)
	Remove(ctx context.Context, orgID, blacklistID, removedBy int64) error
	IsBlacklisted(ctx context.Context, orgID, userID int64) (bool, error)
	History(ctx context.Context, orgID, userID int64) ([]*models.Blacklist, error)
}

type ApprovalService interface {
	Submit(ctx context.Context, req *models.ApprovalRequest) (string, error)
	Approve(ctx context.Context, orgID int64, reference string, approverID int64) error
	Reject(ctx context.Context, orgID int64, reference string, approverID int64) error
	Cancel(ctx context.Context, orgID int64, reference string) error
	Required(orgID int64) bool
	Pending(ctx context.Context, orgID int64) ([]*models.ApprovalRequest, error)
}
