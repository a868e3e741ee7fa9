package service

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"spinearn/events"
	"spinearn/models"
)

// MockUserRepository is a mock implementation of UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByID(ctx context.Context, userID int64) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByIDForUpdate(ctx context.Context, userID int64) (*models.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByReferralCode(ctx context.Context, code string, excludeUserID int64) (*models.User, error) {
	args := m.Called(ctx, code, excludeUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	args := m.Called(ctx, username, email)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) ReferralCodeExists(ctx context.Context, code string) (bool, error) {
	args := m.Called(ctx, code)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.NewUser) (*models.User, error) {
	args := m.Called(ctx, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) ResetDailyIfStale(ctx context.Context, userID int64, today time.Time, maxSpins int, taskStatus models.TaskStatus) (bool, error) {
	args := m.Called(ctx, userID, today, maxSpins, taskStatus)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) ConsumeSpin(ctx context.Context, userID int64, reward int64) (bool, error) {
	args := m.Called(ctx, userID, reward)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) AddSpinsFromAd(ctx context.Context, userID int64, spins, maxSpins, maxAds int) (bool, error) {
	args := m.Called(ctx, userID, spins, maxSpins, maxAds)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) CreditAd(ctx context.Context, userID int64, points int64, maxAds int) (bool, error) {
	args := m.Called(ctx, userID, points, maxAds)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) UpdateTaskStatus(ctx context.Context, userID int64, status models.TaskStatus) error {
	args := m.Called(ctx, userID, status)
	return args.Error(0)
}

func (m *MockUserRepository) CompleteTask(ctx context.Context, userID int64, status models.TaskStatus, reward int64) error {
	args := m.Called(ctx, userID, status, reward)
	return args.Error(0)
}

func (m *MockUserRepository) SetReferredBy(ctx context.Context, userID, referrerID int64, points int64) (bool, error) {
	args := m.Called(ctx, userID, referrerID, points)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) CreditReferrer(ctx context.Context, userID int64, points int64) (int64, error) {
	args := m.Called(ctx, userID, points)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockUserRepository) DeductPoints(ctx context.Context, userID int64, amount int64) (bool, error) {
	args := m.Called(ctx, userID, amount)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) MarkLowTierUsed(ctx context.Context, userID int64) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

// MockWithdrawalRepository is a mock implementation of WithdrawalRepository
type MockWithdrawalRepository struct {
	mock.Mock
}

func (m *MockWithdrawalRepository) Create(ctx context.Context, request *models.WithdrawalRequest) error {
	args := m.Called(ctx, request)
	return args.Error(0)
}

func (m *MockWithdrawalRepository) GetByUser(ctx context.Context, userID int64, limit int) ([]*models.WithdrawalRequest, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.WithdrawalRequest), args.Error(1)
}

// MockBalanceHistoryRepository is a mock implementation of BalanceHistoryRepository
type MockBalanceHistoryRepository struct {
	mock.Mock
}

func (m *MockBalanceHistoryRepository) Record(ctx context.Context, history *models.BalanceHistory) error {
	args := m.Called(ctx, history)
	return args.Error(0)
}

func (m *MockBalanceHistoryRepository) GetByUser(ctx context.Context, userID int64, limit int) ([]*models.BalanceHistory, error) {
	args := m.Called(ctx, userID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.BalanceHistory), args.Error(1)
}

// MockEventPublisher is a mock implementation of EventPublisher for testing
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) {
	m.Called(event)
}

// MockUnitOfWork is a mock implementation of UnitOfWork
type MockUnitOfWork struct {
	mock.Mock
	userRepo           UserRepository
	withdrawalRepo     WithdrawalRepository
	balanceHistoryRepo BalanceHistoryRepository
	eventBus           EventPublisher
}

// SetRepositories wires the repositories returned by the getters
func (m *MockUnitOfWork) SetRepositories(userRepo UserRepository, withdrawalRepo WithdrawalRepository, balanceHistoryRepo BalanceHistoryRepository, eventBus EventPublisher) {
	m.userRepo = userRepo
	m.withdrawalRepo = withdrawalRepo
	m.balanceHistoryRepo = balanceHistoryRepo
	m.eventBus = eventBus
}

func (m *MockUnitOfWork) Begin(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUnitOfWork) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) UserRepository() UserRepository {
	return m.userRepo
}

func (m *MockUnitOfWork) WithdrawalRepository() WithdrawalRepository {
	return m.withdrawalRepo
}

func (m *MockUnitOfWork) BalanceHistoryRepository() BalanceHistoryRepository {
	return m.balanceHistoryRepo
}

func (m *MockUnitOfWork) EventBus() EventPublisher {
	return m.eventBus
}

// MockUnitOfWorkFactory is a mock implementation of UnitOfWorkFactory
type MockUnitOfWorkFactory struct {
	mock.Mock
}

func (m *MockUnitOfWorkFactory) Create() UnitOfWork {
	args := m.Called()
	return args.Get(0).(UnitOfWork)
}

// MockPasswordHasher is a mock implementation of PasswordHasher
type MockPasswordHasher struct {
	mock.Mock
}

func (m *MockPasswordHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

func (m *MockPasswordHasher) Compare(hash, password string) bool {
	args := m.Called(hash, password)
	return args.Bool(0)
}
