package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"spinearn/catalog"
	"spinearn/models"
)

var (
	testToday     = time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)
	testYesterday = testToday.AddDate(0, 0, -1)
)

func newTestPolicy() *DailyResetPolicy {
	return NewDailyResetPolicy(FixedClock{T: testToday.Add(13 * time.Hour)}, catalog.Default())
}

func TestUTCDate(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*60*60)
	// 02:00 on June 2nd at UTC+5 is still June 1st in UTC
	local := time.Date(2024, 6, 2, 2, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), UTCDate(local))
}

func TestDailyResetPolicy_IsStale(t *testing.T) {
	policy := newTestPolicy()
	later := testToday.AddDate(0, 0, 1)

	assert.True(t, policy.IsStale(nil, testToday))
	assert.True(t, policy.IsStale(&testYesterday, testToday))
	assert.False(t, policy.IsStale(&testToday, testToday))
	assert.False(t, policy.IsStale(&later, testToday))
}

func TestDailyResetPolicy_ResetsStaleUser(t *testing.T) {
	ctx := context.Background()
	policy := newTestPolicy()
	repo := new(MockUserRepository)

	stale := &models.User{
		ID:                  1,
		SpinsLeftToday:      0,
		AdsWatchedToday:     38,
		SpinAdsWatchedToday: 10,
		DailyTasksStatus:    models.TaskStatus{1: true, 2: true, 3: false, 4: false, 5: false},
		LastActivityDate:    &testYesterday,
	}
	repo.On("GetByIDForUpdate", ctx, int64(1)).Return(stale, nil)
	repo.On("ResetDailyIfStale", ctx, int64(1), testToday, catalog.MaxFreeSpinsPerDay, catalog.Default().NewTaskStatus()).Return(true, nil)

	user, wasReset, err := policy.Load(ctx, repo, 1)

	require.NoError(t, err)
	assert.True(t, wasReset)
	assert.Equal(t, catalog.MaxFreeSpinsPerDay, user.SpinsLeftToday)
	assert.Zero(t, user.AdsWatchedToday)
	assert.Zero(t, user.SpinAdsWatchedToday)
	assert.False(t, user.DailyTasksStatus[1])
	assert.Equal(t, testToday, *user.LastActivityDate)
	repo.AssertExpectations(t)
	repo.AssertNotCalled(t, "UpdateTaskStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestDailyResetPolicy_SameDayIsNoOp(t *testing.T) {
	ctx := context.Background()
	policy := newTestPolicy()
	repo := new(MockUserRepository)

	current := &models.User{
		ID:               1,
		SpinsLeftToday:   3,
		DailyTasksStatus: models.TaskStatus{1: true, 2: false, 3: false, 4: false, 5: false},
		LastActivityDate: &testToday,
	}
	repo.On("GetByIDForUpdate", ctx, int64(1)).Return(current, nil)

	user, wasReset, err := policy.Load(ctx, repo, 1)

	require.NoError(t, err)
	assert.False(t, wasReset)
	assert.Equal(t, 3, user.SpinsLeftToday)
	assert.True(t, user.DailyTasksStatus[1])
	repo.AssertNotCalled(t, "ResetDailyIfStale", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDailyResetPolicy_HealsMalformedTaskStatus(t *testing.T) {
	ctx := context.Background()
	policy := newTestPolicy()
	repo := new(MockUserRepository)

	current := &models.User{
		ID:               1,
		DailyTasksStatus: models.TaskStatus{2: true, 42: true},
		LastActivityDate: &testToday,
	}
	healed := models.TaskStatus{1: false, 2: true, 3: false, 4: false, 5: false}
	repo.On("GetByIDForUpdate", ctx, int64(1)).Return(current, nil)
	repo.On("UpdateTaskStatus", ctx, int64(1), healed).Return(nil)

	user, _, err := policy.Load(ctx, repo, 1)

	require.NoError(t, err)
	assert.Equal(t, healed, user.DailyTasksStatus)
	repo.AssertExpectations(t)
}

func TestDailyResetPolicy_Errors(t *testing.T) {
	ctx := context.Background()
	policy := newTestPolicy()

	t.Run("user not found", func(t *testing.T) {
		repo := new(MockUserRepository)
		repo.On("GetByIDForUpdate", ctx, int64(9)).Return(nil, nil)

		_, _, err := policy.Load(ctx, repo, 9)
		assert.True(t, IsKind(err, KindNotFound))
	})

	t.Run("storage failure", func(t *testing.T) {
		repo := new(MockUserRepository)
		repo.On("GetByIDForUpdate", ctx, int64(9)).Return(nil, errors.New("connection reset"))

		_, _, err := policy.Load(ctx, repo, 9)
		assert.Equal(t, KindInternal, KindOf(err))
		assert.Equal(t, GenericFailureMessage, UserMessage(err))
		assert.Contains(t, err.Error(), "connection reset")
	})

	t.Run("reset failure", func(t *testing.T) {
		repo := new(MockUserRepository)
		repo.On("GetByIDForUpdate", ctx, int64(1)).Return(&models.User{ID: 1}, nil)
		repo.On("ResetDailyIfStale", ctx, int64(1), testToday, catalog.MaxFreeSpinsPerDay, mock.Anything).Return(false, errors.New("deadlock"))

		_, _, err := policy.Load(ctx, repo, 1)
		assert.Equal(t, KindInternal, KindOf(err))
	})
}

func TestDailyResetService_EnsureDailyReset(t *testing.T) {
	ctx := context.Background()

	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	mockUserRepo := new(MockUserRepository)
	mockUoW.SetRepositories(mockUserRepo, nil, nil, nil)

	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Commit").Return(nil)
	mockUoW.On("Rollback").Return(nil)

	mockUserRepo.On("GetByIDForUpdate", ctx, int64(1)).Return(&models.User{ID: 1, LastActivityDate: &testYesterday}, nil)
	mockUserRepo.On("ResetDailyIfStale", ctx, int64(1), testToday, catalog.MaxFreeSpinsPerDay, mock.Anything).Return(true, nil)

	svc := NewDailyResetService(mockFactory, newTestPolicy())
	wasReset, err := svc.EnsureDailyReset(ctx, 1)

	require.NoError(t, err)
	assert.True(t, wasReset)
	mockUoW.AssertExpectations(t)
	mockUserRepo.AssertExpectations(t)
}

func TestDailyResetService_NotFoundDoesNotCommit(t *testing.T) {
	ctx := context.Background()

	mockUoW := new(MockUnitOfWork)
	mockFactory := new(MockUnitOfWorkFactory)
	mockUserRepo := new(MockUserRepository)
	mockUoW.SetRepositories(mockUserRepo, nil, nil, nil)

	mockFactory.On("Create").Return(mockUoW)
	mockUoW.On("Begin", ctx).Return(nil)
	mockUoW.On("Rollback").Return(nil)
	mockUserRepo.On("GetByIDForUpdate", ctx, int64(7)).Return(nil, nil)

	svc := NewDailyResetService(mockFactory, newTestPolicy())
	_, err := svc.EnsureDailyReset(ctx, 7)

	assert.True(t, IsKind(err, KindNotFound))
	mockUoW.AssertNotCalled(t, "Commit")
	mockUserRepo.AssertNotCalled(t, "ResetDailyIfStale", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
