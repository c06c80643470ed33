package service

import (
	"context"
	"testing"
	"time"

	"lendery/internal/database"
	"lendery/internal/events"
	"lendery/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newReservationFixture(t *testing.T) (*ReservationService, *mockRepo, *mockPromoter, *stubState, *eventRecorder) {
	t.Helper()

	repo := new(mockRepo)
	promoter := new(mockPromoter)
	state := newStubState()
	bus := events.NewEventBus()
	recorder := newEventRecorder(bus,
		events.EventReservationCreated,
		events.EventReservationCanceled,
		events.EventReservationExpired,
	)

	policies := staticPolicies{policy: models.Policy{
		HoldWindowHours: 48,
		MaxLendingDays:  365,
	}}

	svc := NewReservationService(repo, state, bus, promoter, policies, testLogger())
	return svc, repo, promoter, state, recorder
}

func TestReservationService_Create(t *testing.T) {
	svc, repo, _, state, recorder := newReservationFixture(t)

	res := &models.Reservation{
		OrgID:       1,
		ItemID:      7,
		UserID:      100,
		Quantity:    1,
		ReservedFor: time.Now().AddDate(0, 0, 3),
	}

	repo.On("IsUserBlacklisted", mock.Anything, int64(1), int64(100)).Return(false, nil)
	repo.On("CreateReservationWithLock", mock.Anything, res, 48*time.Hour).Return(nil)

	require.NoError(t, svc.Create(context.Background(), res))

	repo.AssertExpectations(t)
	assert.Contains(t, recorder.seen(), events.EventReservationCreated)
	assert.Contains(t, state.invalidated, [2]int64{1, 7})
}

func TestReservationService_Create_Gates(t *testing.T) {
	svc, repo, _, state, _ := newReservationFixture(t)
	ctx := context.Background()

	err := svc.Create(ctx, &models.Reservation{OrgID: 1, ItemID: 7, UserID: 100, Quantity: 0})
	assert.ErrorIs(t, err, database.ErrValidation)

	err = svc.Create(ctx, &models.Reservation{
		OrgID: 1, ItemID: 7, UserID: 100, Quantity: 1,
		ReservedFor: time.Now().AddDate(0, 0, 400),
	})
	assert.ErrorIs(t, err, database.ErrDateTooFar)

	state.allow = false
	err = svc.Create(ctx, &models.Reservation{
		OrgID: 1, ItemID: 7, UserID: 100, Quantity: 1,
		ReservedFor: time.Now().AddDate(0, 0, 3),
	})
	assert.ErrorIs(t, err, database.ErrValidation)
	state.allow = true

	repo.On("IsUserBlacklisted", mock.Anything, int64(1), int64(100)).Return(true, nil)
	err = svc.Create(ctx, &models.Reservation{
		OrgID: 1, ItemID: 7, UserID: 100, Quantity: 1,
		ReservedFor: time.Now().AddDate(0, 0, 3),
	})
	assert.ErrorIs(t, err, database.ErrBlacklisted)

	repo.AssertNotCalled(t, "CreateReservationWithLock", mock.Anything, mock.Anything, mock.Anything)
}

func TestReservationService_Cancel_HeldStockPromotes(t *testing.T) {
	svc, repo, promoter, state, recorder := newReservationFixture(t)

	repo.On("CancelReservation", mock.Anything, int64(1), int64(3)).Return(&models.Reservation{
		ID: 3, OrgID: 1, ItemID: 7, UserID: 100, Quantity: 1,
		Status: models.ReservationCancelled, StockHeld: true,
	}, nil)
	promoter.On("PromoteWaitlist", mock.Anything, int64(1), int64(7)).Return([]*models.WaitlistEntry{}, nil)

	require.NoError(t, svc.Cancel(context.Background(), 1, 3))

	promoter.AssertExpectations(t)
	assert.Contains(t, recorder.seen(), events.EventReservationCanceled)
	assert.Contains(t, state.invalidated, [2]int64{1, 7})
}

func TestReservationService_Cancel_FutureHoldSkipsPromotion(t *testing.T) {
	svc, repo, promoter, _, _ := newReservationFixture(t)

	// A future-dated reservation never held stock, so nothing was freed.
	repo.On("CancelReservation", mock.Anything, int64(1), int64(3)).Return(&models.Reservation{
		ID: 3, OrgID: 1, ItemID: 7, UserID: 100, Quantity: 1,
		Status: models.ReservationCancelled, StockHeld: false,
	}, nil)

	require.NoError(t, svc.Cancel(context.Background(), 1, 3))
	promoter.AssertNotCalled(t, "PromoteWaitlist", mock.Anything, mock.Anything, mock.Anything)
}

func TestReservationService_CheckAvailability_CachesSnapshot(t *testing.T) {
	svc, repo, _, state, _ := newReservationFixture(t)
	ctx := context.Background()
	at := time.Now().AddDate(0, 0, 1)

	repo.On("AvailableQuantity", mock.Anything, int64(1), int64(7), at).Return(int64(4), nil).Once()

	available, err := svc.CheckAvailability(ctx, 1, 7, at)
	require.NoError(t, err)
	assert.Equal(t, int64(4), available)
	assert.Equal(t, 1, state.setCalls)

	// Second read is served from the snapshot, not the ledger.
	available, err = svc.CheckAvailability(ctx, 1, 7, at)
	require.NoError(t, err)
	assert.Equal(t, int64(4), available)
	repo.AssertExpectations(t)
}

func TestReservationService_ExpireStale(t *testing.T) {
	svc, repo, promoter, state, recorder := newReservationFixture(t)

	expired := []*models.Reservation{
		{ID: 1, OrgID: 1, ItemID: 7, UserID: 100, Status: models.ReservationExpired, StockHeld: true},
		{ID: 2, OrgID: 1, ItemID: 8, UserID: 101, Status: models.ReservationExpired, StockHeld: false},
	}
	repo.On("ExpireStaleReservations", mock.Anything).Return(expired, nil)
	promoter.On("PromoteWaitlist", mock.Anything, int64(1), int64(7)).Return([]*models.WaitlistEntry{}, nil)

	count, err := svc.ExpireStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Only the stock-held expiry freed units worth promoting.
	promoter.AssertNumberOfCalls(t, "PromoteWaitlist", 1)
	assert.Len(t, recorder.seen(), 2)
	assert.Contains(t, state.invalidated, [2]int64{1, 7})
	assert.Contains(t, state.invalidated, [2]int64{1, 8})
}

func TestReservationService_ExpireStale_Empty(t *testing.T) {
	svc, repo, promoter, _, _ := newReservationFixture(t)

	repo.On("ExpireStaleReservations", mock.Anything).Return([]*models.Reservation{}, nil)

	count, err := svc.ExpireStale(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
	promoter.AssertNotCalled(t, "PromoteWaitlist", mock.Anything, mock.Anything, mock.Anything)
}
