package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spinearn/catalog"
	"spinearn/events"
	"spinearn/models"
	"spinearn/repository/testutil"
	"spinearn/service"
)

func TestWithdrawalRepository_CreateAndList(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	users := NewUserRepository(testDB.DB)
	repo := NewWithdrawalRepository(testDB.DB)
	ctx := context.Background()

	user := createUser(t, users, "Alice")
	other := createUser(t, users, "Bob")

	first := testutil.CreateTestWithdrawal(user, 4600)
	require.NoError(t, repo.Create(ctx, first))
	assert.NotZero(t, first.ID)
	assert.Equal(t, models.WithdrawalStatusPending, first.Status)
	assert.False(t, first.CreatedAt.IsZero())

	second := testutil.CreateTestWithdrawal(user, 90000)
	require.NoError(t, repo.Create(ctx, second))
	require.NoError(t, repo.Create(ctx, testutil.CreateTestWithdrawal(other, 4600)))

	list, err := repo.GetByUser(ctx, user.ID, 50)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
	assert.Equal(t, "PayPal", list[0].Method)

	limited, err := repo.GetByUser(ctx, user.ID, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	empty, err := repo.GetByUser(ctx, user.ID+1000, 50)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestBalanceHistoryRepository_RecordAndList(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	users := NewUserRepository(testDB.DB)
	repo := NewBalanceHistoryRepository(testDB.DB)
	ctx := context.Background()

	user := createUser(t, users, "Alice")

	spin := testutil.CreateTestBalanceHistoryWithAmounts(user.ID, 0, 7, models.TransactionTypeSpinReward)
	require.NoError(t, repo.Record(ctx, spin))
	assert.NotZero(t, spin.ID)

	relatedID := int64(3)
	relatedType := models.RelatedTypeTask
	task := testutil.CreateTestBalanceHistoryWithAmounts(user.ID, 7, 55, models.TransactionTypeTaskReward)
	task.RelatedID = &relatedID
	task.RelatedType = &relatedType
	require.NoError(t, repo.Record(ctx, task))

	list, err := repo.GetByUser(ctx, user.ID, 50)
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, task.ID, list[0].ID)
	assert.Equal(t, models.TransactionTypeTaskReward, list[0].TransactionType)
	assert.Equal(t, int64(48), list[0].ChangeAmount)
	require.NotNil(t, list[0].RelatedType)
	assert.Equal(t, models.RelatedTypeTask, *list[0].RelatedType)
	assert.Equal(t, true, list[0].TransactionMetadata["test"])

	assert.Nil(t, list[1].RelatedID)
	assert.Nil(t, list[1].RelatedType)
}

func TestUnitOfWork_RollbackDiscardsWritesAndEvents(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	users := NewUserRepository(testDB.DB)
	ctx := context.Background()
	user := createUser(t, users, "Alice")

	bus := events.NewBus()
	var mu sync.Mutex
	var received []events.Event
	bus.Subscribe(events.EventTypeBalanceChange, func(ctx context.Context, e events.Event) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, e)
	})

	factory := NewUnitOfWorkFactory(testDB.DB, bus)

	uow := factory.Create()
	require.NoError(t, uow.Begin(ctx))
	applied, err := uow.UserRepository().ConsumeSpin(ctx, user.ID, 10)
	require.NoError(t, err)
	require.True(t, applied)
	uow.EventBus().Publish(events.BalanceChangeEvent{UserID: user.ID, NewBalance: 10})
	require.NoError(t, uow.Rollback())

	after, err := users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), after.Points)
	assert.Equal(t, catalog.MaxFreeSpinsPerDay, after.SpinsLeftToday)

	uow = factory.Create()
	require.NoError(t, uow.Begin(ctx))
	_, err = uow.UserRepository().ConsumeSpin(ctx, user.ID, 10)
	require.NoError(t, err)
	uow.EventBus().Publish(events.BalanceChangeEvent{UserID: user.ID, NewBalance: 10})
	require.NoError(t, uow.Commit())
	require.NoError(t, uow.Rollback())

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWithdrawalService_ConcurrentRequestsAgainstPostgres(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)
	users := NewUserRepository(testDB.DB)
	ctx := context.Background()

	today := time.Now().UTC()
	newUser := testutil.CreateTestNewUser("Alice", service.UTCDate(today))
	user, err := users.Create(ctx, newUser)
	require.NoError(t, err)
	_, err = users.CreditReferrer(ctx, user.ID, 100000)
	require.NoError(t, err)

	factory := NewUnitOfWorkFactory(testDB.DB, events.NewBus())
	policy := service.NewDailyResetPolicy(service.SystemClock{}, catalog.Default())
	withdrawals := service.NewWithdrawalService(factory, policy)

	const attempts = 5
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := withdrawals.RequestWithdrawal(ctx, user.ID, 90000, "PayPal", "alice@example.com")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.Equal(t, service.KindInsufficientFunds, service.KindOf(err))
	}
	assert.Equal(t, 1, succeeded)

	after, err := users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), after.Points)

	list, err := NewWithdrawalRepository(testDB.DB).GetByUser(ctx, user.ID, 50)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
