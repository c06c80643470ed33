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

func newBlacklistFixture(t *testing.T) (*BlacklistService, *mockRepo, *eventRecorder) {
	t.Helper()

	repo := new(mockRepo)
	bus := events.NewEventBus()
	recorder := newEventRecorder(bus, events.EventBlacklistApplied, events.EventBlacklistRemoved)

	svc := NewBlacklistService(repo, bus, testLogger())
	return svc, repo, recorder
}

func TestBlacklistService_Apply(t *testing.T) {
	svc, repo, recorder := newBlacklistFixture(t)

	repo.On("CreateBlacklist", mock.Anything, int64(1), int64(100), "repeated no-shows", 14).
		Return(&models.Blacklist{
			ID: 3, OrgID: 1, UserID: 100,
			Reason:       "repeated no-shows",
			BlockedUntil: time.Now().AddDate(0, 0, 14),
			IsActive:     true,
		}, nil)

	blacklist, err := svc.Apply(context.Background(), 1, 100, "repeated no-shows", 14)
	require.NoError(t, err)
	assert.True(t, blacklist.IsActive)

	repo.AssertExpectations(t)
	assert.Contains(t, recorder.seen(), events.EventBlacklistApplied)
}

func TestBlacklistService_Remove(t *testing.T) {
	svc, repo, recorder := newBlacklistFixture(t)

	repo.On("GetBlacklist", mock.Anything, int64(1), int64(3)).Return(&models.Blacklist{
		ID: 3, OrgID: 1, UserID: 100, IsActive: true,
	}, nil)
	repo.On("RemoveBlacklist", mock.Anything, int64(1), int64(3), int64(42)).Return(nil)

	require.NoError(t, svc.Remove(context.Background(), 1, 3, 42))
	repo.AssertExpectations(t)
	assert.Contains(t, recorder.seen(), events.EventBlacklistRemoved)
}

func TestBlacklistService_Remove_NotFound(t *testing.T) {
	svc, repo, _ := newBlacklistFixture(t)

	repo.On("GetBlacklist", mock.Anything, int64(1), int64(99)).Return(nil, database.ErrNotFound)

	err := svc.Remove(context.Background(), 1, 99, 42)
	assert.ErrorIs(t, err, database.ErrNotFound)
	repo.AssertNotCalled(t, "RemoveBlacklist", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBlacklistService_IsBlacklisted(t *testing.T) {
	svc, repo, _ := newBlacklistFixture(t)

	repo.On("IsUserBlacklisted", mock.Anything, int64(1), int64(100)).Return(true, nil)

	blocked, err := svc.IsBlacklisted(context.Background(), 1, 100)
	require.NoError(t, err)
	assert.True(t, blocked)
}
