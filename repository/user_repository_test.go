package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spinearn/catalog"
	"spinearn/models"
	"spinearn/repository/testutil"
	"spinearn/service"
)

var (
	day1 = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	day2 = time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)
)

func createUser(t *testing.T, repo *UserRepository, username string) *models.User {
	t.Helper()
	user, err := repo.Create(context.Background(), testutil.CreateTestNewUser(username, day1))
	require.NoError(t, err)
	return user
}

func TestUserRepository_CreateAndLookups(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	repo := NewUserRepository(testDB.DB)
	ctx := context.Background()

	created := createUser(t, repo, "Alice")
	assert.NotZero(t, created.ID)
	assert.Equal(t, int64(0), created.Points)
	assert.Equal(t, catalog.MaxFreeSpinsPerDay, created.SpinsLeftToday)
	assert.Len(t, created.DailyTasksStatus, len(catalog.Default().Tasks()))
	require.NotNil(t, created.LastActivityDate)
	assert.True(t, created.LastActivityDate.Equal(day1))
	assert.Nil(t, created.ReferredByUserID)

	t.Run("by id", func(t *testing.T) {
		user, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, "Alice", user.Username)
	})

	t.Run("missing id returns nil", func(t *testing.T) {
		user, err := repo.GetByID(ctx, created.ID+1000)
		require.NoError(t, err)
		assert.Nil(t, user)
	})

	t.Run("email ignores case", func(t *testing.T) {
		user, err := repo.GetByEmail(ctx, "ALICE@Example.com")
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, created.ID, user.ID)
	})

	t.Run("referral code ignores case and excludes self", func(t *testing.T) {
		user, err := repo.GetByReferralCode(ctx, "astalice", 0)
		require.NoError(t, err)
		require.NotNil(t, user)

		user, err = repo.GetByReferralCode(ctx, "ASTALICE", created.ID)
		require.NoError(t, err)
		assert.Nil(t, user)
	})

	t.Run("existence checks", func(t *testing.T) {
		exists, err := repo.ExistsByUsernameOrEmail(ctx, "alice", "other@example.com")
		require.NoError(t, err)
		assert.True(t, exists)

		exists, err = repo.ExistsByUsernameOrEmail(ctx, "bob", "bob@example.com")
		require.NoError(t, err)
		assert.False(t, exists)

		exists, err = repo.ReferralCodeExists(ctx, "astALICE")
		require.NoError(t, err)
		assert.True(t, exists)
	})
}

func TestUserRepository_CreateDuplicate(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	repo := NewUserRepository(testDB.DB)

	createUser(t, repo, "Alice")

	dup := testutil.CreateTestNewUser("ALICE", day1)
	dup.ReferralCode = "ASTOTHER"
	_, err := repo.Create(context.Background(), dup)
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrDuplicateUser))
}

func TestUserRepository_ResetDailyIfStale(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	repo := NewUserRepository(testDB.DB)
	ctx := context.Background()

	user := createUser(t, repo, "Alice")
	applied, err := repo.ConsumeSpin(ctx, user.ID, 5)
	require.NoError(t, err)
	require.True(t, applied)
	applied, err = repo.CreditAd(ctx, user.ID, catalog.PointsPerAd, catalog.MaxAdsPerDay)
	require.NoError(t, err)
	require.True(t, applied)

	// Same day is a no-op
	applied, err = repo.ResetDailyIfStale(ctx, user.ID, day1, catalog.MaxFreeSpinsPerDay, models.TaskStatus{})
	require.NoError(t, err)
	assert.False(t, applied)

	applied, err = repo.ResetDailyIfStale(ctx, user.ID, day2, catalog.MaxFreeSpinsPerDay, catalog.Default().NewTaskStatus())
	require.NoError(t, err)
	assert.True(t, applied)

	reset, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.MaxFreeSpinsPerDay, reset.SpinsLeftToday)
	assert.Equal(t, 0, reset.AdsWatchedToday)
	assert.Equal(t, 0, reset.SpinAdsWatchedToday)
	assert.Equal(t, int64(5+catalog.PointsPerAd), reset.Points)
	require.NotNil(t, reset.LastActivityDate)
	assert.True(t, reset.LastActivityDate.Equal(day2))

	applied, err = repo.ResetDailyIfStale(ctx, user.ID, day2, catalog.MaxFreeSpinsPerDay, models.TaskStatus{})
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestUserRepository_ConditionalUpdates(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	repo := NewUserRepository(testDB.DB)
	ctx := context.Background()

	t.Run("spin needs spins left", func(t *testing.T) {
		user := createUser(t, repo, "Spinner")
		for i := 0; i < catalog.MaxFreeSpinsPerDay; i++ {
			applied, err := repo.ConsumeSpin(ctx, user.ID, 2)
			require.NoError(t, err)
			require.True(t, applied)
		}
		applied, err := repo.ConsumeSpin(ctx, user.ID, 2)
		require.NoError(t, err)
		assert.False(t, applied)

		after, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, after.SpinsLeftToday)
		assert.Equal(t, int64(2*catalog.MaxFreeSpinsPerDay), after.Points)
	})

	t.Run("spin ad clamps to the spin maximum", func(t *testing.T) {
		user := createUser(t, repo, "Watcher")
		applied, err := repo.AddSpinsFromAd(ctx, user.ID, catalog.SpinsGainedPerAd, catalog.MaxFreeSpinsPerDay, catalog.MaxSpinAdsPerDay)
		require.NoError(t, err)
		assert.True(t, applied)

		full, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, catalog.MaxFreeSpinsPerDay, full.SpinsLeftToday)
		assert.Equal(t, 1, full.SpinAdsWatchedToday)

		_, err = repo.ConsumeSpin(ctx, user.ID, 2)
		require.NoError(t, err)
		applied, err = repo.AddSpinsFromAd(ctx, user.ID, catalog.SpinsGainedPerAd, catalog.MaxFreeSpinsPerDay, catalog.MaxSpinAdsPerDay)
		require.NoError(t, err)
		assert.True(t, applied)

		after, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, catalog.MaxFreeSpinsPerDay, after.SpinsLeftToday)
		assert.Equal(t, 2, after.SpinAdsWatchedToday)
	})

	t.Run("ad points stop at the cap", func(t *testing.T) {
		user := createUser(t, repo, "Viewer")
		for i := 0; i < 3; i++ {
			applied, err := repo.CreditAd(ctx, user.ID, catalog.PointsPerAd, 3)
			require.NoError(t, err)
			require.True(t, applied)
		}
		applied, err := repo.CreditAd(ctx, user.ID, catalog.PointsPerAd, 3)
		require.NoError(t, err)
		assert.False(t, applied)
	})

	t.Run("referral link is set once", func(t *testing.T) {
		referrer := createUser(t, repo, "Referrer")
		referred := createUser(t, repo, "Referred")

		applied, err := repo.SetReferredBy(ctx, referred.ID, referrer.ID, catalog.PointsPerReferralForReferred)
		require.NoError(t, err)
		assert.True(t, applied)

		applied, err = repo.SetReferredBy(ctx, referred.ID, referrer.ID, catalog.PointsPerReferralForReferred)
		require.NoError(t, err)
		assert.False(t, applied)

		balance, err := repo.CreditReferrer(ctx, referrer.ID, catalog.PointsPerReferralForReferrer)
		require.NoError(t, err)
		assert.Equal(t, int64(catalog.PointsPerReferralForReferrer), balance)

		after, err := repo.GetByID(ctx, referrer.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, after.TotalReferralsMade)

		linked, err := repo.GetByID(ctx, referred.ID)
		require.NoError(t, err)
		require.NotNil(t, linked.ReferredByUserID)
		assert.Equal(t, referrer.ID, *linked.ReferredByUserID)
		assert.Equal(t, int64(catalog.PointsPerReferralForReferred), linked.Points)
	})

	t.Run("self referral is refused", func(t *testing.T) {
		user := createUser(t, repo, "Selfish")
		applied, err := repo.SetReferredBy(ctx, user.ID, user.ID, catalog.PointsPerReferralForReferred)
		require.NoError(t, err)
		assert.False(t, applied)
	})

	t.Run("deduct needs enough points", func(t *testing.T) {
		user := createUser(t, repo, "Saver")
		_, err := repo.CreditReferrer(ctx, user.ID, 100)
		require.NoError(t, err)

		applied, err := repo.DeductPoints(ctx, user.ID, 101)
		require.NoError(t, err)
		assert.False(t, applied)

		applied, err = repo.DeductPoints(ctx, user.ID, 100)
		require.NoError(t, err)
		assert.True(t, applied)
	})

	t.Run("low tier flag flips once", func(t *testing.T) {
		user := createUser(t, repo, "Casher")
		applied, err := repo.MarkLowTierUsed(ctx, user.ID)
		require.NoError(t, err)
		assert.True(t, applied)

		applied, err = repo.MarkLowTierUsed(ctx, user.ID)
		require.NoError(t, err)
		assert.False(t, applied)
	})
}

func TestUserRepository_TaskStatus(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	repo := NewUserRepository(testDB.DB)
	ctx := context.Background()

	user := createUser(t, repo, "Tasker")
	status := user.DailyTasksStatus.Clone()
	status[1] = true

	require.NoError(t, repo.CompleteTask(ctx, user.ID, status, 48))

	after, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, after.DailyTasksStatus[1])
	assert.Equal(t, int64(48), after.Points)

	t.Run("malformed json reads as empty", func(t *testing.T) {
		_, err := testDB.DB.Exec(ctx, `UPDATE users SET daily_tasks_status = '[1,2]'::jsonb WHERE user_id = $1`, user.ID)
		require.NoError(t, err)

		corrupt, err := repo.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Empty(t, corrupt.DailyTasksStatus)
	})

	t.Run("update on missing user fails", func(t *testing.T) {
		err := repo.UpdateTaskStatus(ctx, user.ID+1000, models.TaskStatus{})
		assert.Error(t, err)
	})
}
