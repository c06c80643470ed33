package service

import (
	"context"
	"sync"
	"time"

	"lendery/internal/events"
	"lendery/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
)

func testLogger() *zerolog.Logger {
	logger := zerolog.Nop()
	return &logger
}

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) CreateItem(ctx context.Context, i *models.Item) error {
	return m.Called(ctx, i).Error(0)
}
func (m *mockRepo) SeedItems(ctx context.Context, items []models.Item) error {
	return m.Called(ctx, items).Error(0)
}
func (m *mockRepo) GetItem(ctx context.Context, orgID, id int64) (*models.Item, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Item), args.Error(1)
}
func (m *mockRepo) GetActiveItems(ctx context.Context, orgID int64) ([]*models.Item, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Item), args.Error(1)
}
func (m *mockRepo) AvailableQuantity(ctx context.Context, orgID, itemID int64, at time.Time) (int64, error) {
	args := m.Called(ctx, orgID, itemID, at)
	return args.Get(0).(int64), args.Error(1)
}
func (m *mockRepo) GetAvailabilityForPeriod(ctx context.Context, orgID, itemID int64, start time.Time, days int) ([]*models.AvailabilitySnapshot, error) {
	args := m.Called(ctx, orgID, itemID, start, days)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.AvailabilitySnapshot), args.Error(1)
}
func (m *mockRepo) CheckoutWithLock(ctx context.Context, l *models.Lending) error {
	return m.Called(ctx, l).Error(0)
}
func (m *mockRepo) ReturnLendingWithPenalty(ctx context.Context, orgID, lendingID int64, policy models.Policy) (*models.Lending, *models.Blacklist, error) {
	args := m.Called(ctx, orgID, lendingID, policy)
	var lending *models.Lending
	var ban *models.Blacklist
	if args.Get(0) != nil {
		lending = args.Get(0).(*models.Lending)
	}
	if args.Get(1) != nil {
		ban = args.Get(1).(*models.Blacklist)
	}
	return lending, ban, args.Error(2)
}
func (m *mockRepo) GetLending(ctx context.Context, orgID, id int64) (*models.Lending, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Lending), args.Error(1)
}
func (m *mockRepo) OverridePenalty(ctx context.Context, orgID, id int64, penalty float64, reason string) error {
	return m.Called(ctx, orgID, id, penalty, reason).Error(0)
}
func (m *mockRepo) ListOverdueLendings(ctx context.Context, orgID int64) ([]*models.Lending, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Lending), args.Error(1)
}
func (m *mockRepo) GetUserLendings(ctx context.Context, orgID, borrowerID int64) ([]*models.Lending, error) {
	args := m.Called(ctx, orgID, borrowerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Lending), args.Error(1)
}
func (m *mockRepo) CreateReservationWithLock(ctx context.Context, r *models.Reservation, holdWindow time.Duration) error {
	return m.Called(ctx, r, holdWindow).Error(0)
}
func (m *mockRepo) CancelReservation(ctx context.Context, orgID, id int64) (*models.Reservation, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Reservation), args.Error(1)
}
func (m *mockRepo) ExpireStaleReservations(ctx context.Context) ([]*models.Reservation, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Reservation), args.Error(1)
}
func (m *mockRepo) GetReservation(ctx context.Context, orgID, id int64) (*models.Reservation, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Reservation), args.Error(1)
}
func (m *mockRepo) GetUpcomingReservations(ctx context.Context, orgID int64, days int) ([]*models.Reservation, error) {
	args := m.Called(ctx, orgID, days)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Reservation), args.Error(1)
}
func (m *mockRepo) GetActiveReservationForUser(ctx context.Context, orgID, itemID, userID int64) (*models.Reservation, error) {
	args := m.Called(ctx, orgID, itemID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Reservation), args.Error(1)
}
func (m *mockRepo) AddWaitlistEntry(ctx context.Context, e *models.WaitlistEntry) error {
	return m.Called(ctx, e).Error(0)
}
func (m *mockRepo) RemoveWaitlistEntry(ctx context.Context, orgID, itemID, userID int64) error {
	return m.Called(ctx, orgID, itemID, userID).Error(0)
}
func (m *mockRepo) NotifyWaitlist(ctx context.Context, orgID, itemID int64, window time.Duration) ([]*models.WaitlistEntry, error) {
	args := m.Called(ctx, orgID, itemID, window)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.WaitlistEntry), args.Error(1)
}
func (m *mockRepo) ExpireWaitlistNotifications(ctx context.Context) ([]*models.WaitlistEntry, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.WaitlistEntry), args.Error(1)
}
func (m *mockRepo) GetWaitlistEntries(ctx context.Context, orgID, itemID int64) ([]*models.WaitlistEntry, error) {
	args := m.Called(ctx, orgID, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.WaitlistEntry), args.Error(1)
}
func (m *mockRepo) GetWaitlistStats(ctx context.Context, orgID, itemID int64) (*models.WaitlistStats, error) {
	args := m.Called(ctx, orgID, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WaitlistStats), args.Error(1)
}
func (m *mockRepo) CreateBlacklist(ctx context.Context, orgID, userID int64, reason string, daysBlocked int) (*models.Blacklist, error) {
	args := m.Called(ctx, orgID, userID, reason, daysBlocked)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Blacklist), args.Error(1)
}
func (m *mockRepo) IsUserBlacklisted(ctx context.Context, orgID, userID int64) (bool, error) {
	args := m.Called(ctx, orgID, userID)
	return args.Bool(0), args.Error(1)
}
func (m *mockRepo) RemoveBlacklist(ctx context.Context, orgID, id, removedBy int64) error {
	return m.Called(ctx, orgID, id, removedBy).Error(0)
}
func (m *mockRepo) GetBlacklist(ctx context.Context, orgID, id int64) (*models.Blacklist, error) {
	args := m.Called(ctx, orgID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Blacklist), args.Error(1)
}
func (m *mockRepo) ListUserBlacklists(ctx context.Context, orgID, userID int64) ([]*models.Blacklist, error) {
	args := m.Called(ctx, orgID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Blacklist), args.Error(1)
}
func (m *mockRepo) ActiveBlacklistUntil(ctx context.Context, orgID, userID int64) (time.Time, error) {
	args := m.Called(ctx, orgID, userID)
	return args.Get(0).(time.Time), args.Error(1)
}
func (m *mockRepo) CreateApprovalRequest(ctx context.Context, req *models.ApprovalRequest) error {
	return m.Called(ctx, req).Error(0)
}
func (m *mockRepo) GetApprovalRequest(ctx context.Context, orgID int64, reference string) (*models.ApprovalRequest, error) {
	args := m.Called(ctx, orgID, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ApprovalRequest), args.Error(1)
}
func (m *mockRepo) DecideApprovalRequest(ctx context.Context, orgID int64, reference, status string, approverID int64) error {
	return m.Called(ctx, orgID, reference, status, approverID).Error(0)
}
func (m *mockRepo) ListPendingApprovals(ctx context.Context, orgID int64) ([]*models.ApprovalRequest, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ApprovalRequest), args.Error(1)
}

type mockPromoter struct {
	mock.Mock
}

func (m *mockPromoter) PromoteWaitlist(ctx context.Context, orgID, itemID int64) ([]*models.WaitlistEntry, error) {
	args := m.Called(ctx, orgID, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.WaitlistEntry), args.Error(1)
}

// staticPolicies hands every tenant the same policy.
type staticPolicies struct {
	policy models.Policy
}

func (p staticPolicies) PolicyFor(orgID int64) models.Policy {
	return p.policy
}

// recordingNotifier captures notifications for assertions.
type recordingNotifier struct {
	mu    sync.Mutex
	calls []recordedNotification
}

type recordedNotification struct {
	OrgID  int64
	UserID int64
	Kind   string
}

func (n *recordingNotifier) Notify(ctx context.Context, orgID, userID int64, kind, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, recordedNotification{OrgID: orgID, UserID: userID, Kind: kind})
	return nil
}

func (n *recordingNotifier) recorded() []recordedNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]recordedNotification(nil), n.calls...)
}

// eventRecorder subscribes to a bus and keeps the event types it saw.
type eventRecorder struct {
	mu    sync.Mutex
	types []string
}

func newEventRecorder(bus *events.EventBus, eventTypes ...string) *eventRecorder {
	r := &eventRecorder{}
	for _, eventType := range eventTypes {
		bus.Subscribe(eventType, func(event *events.Event) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.types = append(r.types, event.Type)
			return nil
		})
	}
	return r
}

func (r *eventRecorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.types...)
}

// stubState is a StateRepository with scriptable rate-limit answers and a
// single-slot snapshot cache.
type stubState struct {
	mu          sync.Mutex
	allow       bool
	rateErr     error
	snapshot    *models.AvailabilitySnapshot
	setCalls    int
	invalidated [][2]int64
}

func newStubState() *stubState {
	return &stubState{allow: true}
}

func (s *stubState) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allow, s.rateErr
}

func (s *stubState) GetAvailabilitySnapshot(ctx context.Context, orgID, itemID int64, date time.Time) (*models.AvailabilitySnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot != nil && s.snapshot.OrgID == orgID && s.snapshot.ItemID == itemID {
		return s.snapshot, nil
	}
	return nil, nil
}

func (s *stubState) SetAvailabilitySnapshot(ctx context.Context, snapshot *models.AvailabilitySnapshot, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snapshot
	s.setCalls++
	return nil
}

func (s *stubState) InvalidateAvailability(ctx context.Context, orgID, itemID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = nil
	s.invalidated = append(s.invalidated, [2]int64{orgID, itemID})
	return nil
}
