package repository

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"lendery/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockState struct {
	mock.Mock
}

func (m *mockState) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, userID, limit, window)
	return args.Bool(0), args.Error(1)
}

func (m *mockState) GetAvailabilitySnapshot(ctx context.Context, orgID, itemID int64, date time.Time) (*models.AvailabilitySnapshot, error) {
	args := m.Called(ctx, orgID, itemID, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AvailabilitySnapshot), args.Error(1)
}

func (m *mockState) SetAvailabilitySnapshot(ctx context.Context, snapshot *models.AvailabilitySnapshot, ttl time.Duration) error {
	args := m.Called(ctx, snapshot, ttl)
	return args.Error(0)
}

func (m *mockState) InvalidateAvailability(ctx context.Context, orgID, itemID int64) error {
	args := m.Called(ctx, orgID, itemID)
	return args.Error(0)
}

func TestFailoverStateRepository(t *testing.T) {
	primary := new(mockState)
	fallback := new(mockState)
	logger := zerolog.New(io.Discard)
	repo := NewFailoverStateRepository(primary, fallback, &logger)
	ctx := context.Background()
	date := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	t.Run("PrimarySuccess", func(t *testing.T) {
		snapshot := &models.AvailabilitySnapshot{OrgID: 1, ItemID: 7, Date: date, Available: 2}
		primary.On("GetAvailabilitySnapshot", ctx, int64(1), int64(7), date).Return(snapshot, nil).Once()

		got, err := repo.GetAvailabilitySnapshot(ctx, 1, 7, date)
		assert.NoError(t, err)
		assert.Equal(t, snapshot, got)
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		snapshot := &models.AvailabilitySnapshot{OrgID: 1, ItemID: 8, Date: date, Available: 1}
		primary.On("GetAvailabilitySnapshot", ctx, int64(1), int64(8), date).Return(nil, errors.New("fail")).Once()
		fallback.On("GetAvailabilitySnapshot", ctx, int64(1), int64(8), date).Return(snapshot, nil).Once()

		got, err := repo.GetAvailabilitySnapshot(ctx, 1, 8, date)
		assert.NoError(t, err)
		assert.Equal(t, snapshot, got)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("RecoveryAttempt", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck.Store(time.Now().Add(-2 * time.Minute).UnixNano())

		snapshot := &models.AvailabilitySnapshot{OrgID: 1, ItemID: 9, Date: date, Available: 3}
		primary.On("GetAvailabilitySnapshot", ctx, int64(1), int64(9), date).Return(snapshot, nil).Once()

		got, err := repo.GetAvailabilitySnapshot(ctx, 1, 9, date)
		assert.NoError(t, err)
		assert.Equal(t, snapshot, got)
		assert.False(t, repo.isDown.Load())
		primary.AssertExpectations(t)
	})

	t.Run("RecoveryAttemptFail", func(t *testing.T) {
		repo.isDown.Store(true)
		repo.lastCheck.Store(time.Now().Add(-2 * time.Minute).UnixNano())

		primary.On("GetAvailabilitySnapshot", ctx, int64(1), int64(10), date).Return(nil, errors.New("still fail")).Once()
		fallback.On("GetAvailabilitySnapshot", ctx, int64(1), int64(10), date).Return(nil, nil).Once()

		_, err := repo.GetAvailabilitySnapshot(ctx, 1, 10, date)
		assert.NoError(t, err)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("CheckRateLimitSuccess", func(t *testing.T) {
		repo.isDown.Store(false)
		primary.On("CheckRateLimit", ctx, int64(99), 10, time.Minute).Return(true, nil).Once()

		allowed, err := repo.CheckRateLimit(ctx, 99, 10, time.Minute)
		assert.NoError(t, err)
		assert.True(t, allowed)
		primary.AssertExpectations(t)
	})

	t.Run("CheckRateLimitFailover", func(t *testing.T) {
		repo.isDown.Store(false)
		primary.On("CheckRateLimit", ctx, int64(100), 10, time.Minute).Return(false, errors.New("fail")).Once()
		fallback.On("CheckRateLimit", ctx, int64(100), 10, time.Minute).Return(true, nil).Once()

		allowed, err := repo.CheckRateLimit(ctx, 100, 10, time.Minute)
		assert.NoError(t, err)
		assert.True(t, allowed)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("SetSnapshotFailover", func(t *testing.T) {
		repo.isDown.Store(false)
		snapshot := &models.AvailabilitySnapshot{OrgID: 1, ItemID: 11, Date: date, Available: 1}
		primary.On("SetAvailabilitySnapshot", ctx, snapshot, time.Minute).Return(errors.New("fail")).Once()
		fallback.On("SetAvailabilitySnapshot", ctx, snapshot, time.Minute).Return(nil).Once()

		err := repo.SetAvailabilitySnapshot(ctx, snapshot, time.Minute)
		assert.NoError(t, err)
		assert.True(t, repo.isDown.Load())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("InvalidateTouchesBothStores", func(t *testing.T) {
		repo.isDown.Store(false)
		primary.On("InvalidateAvailability", ctx, int64(1), int64(12)).Return(nil).Once()
		fallback.On("InvalidateAvailability", ctx, int64(1), int64(12)).Return(nil).Once()

		err := repo.InvalidateAvailability(ctx, 1, 12)
		assert.NoError(t, err)
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})
}

func TestFailoverStateRepository_ConcurrentPrimaryFailures(t *testing.T) {
	primary := new(mockState)
	fallback := new(mockState)
	logger := zerolog.New(io.Discard)
	repo := NewFailoverStateRepository(primary, fallback, &logger)
	ctx := context.Background()

	primary.On("CheckRateLimit", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false, errors.New("down"))
	fallback.On("CheckRateLimit", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(true, nil)

	// Concurrent callers hitting the down-marking and recovery paths together.
	repo.lastCheck.Store(time.Now().Add(-2 * time.Minute).UnixNano())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			allowed, err := repo.CheckRateLimit(ctx, userID, 10, time.Minute)
			assert.NoError(t, err)
			assert.True(t, allowed)
		}(int64(i))
	}
	wg.Wait()

	assert.True(t, repo.isDown.Load())
}
