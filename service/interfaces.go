package service

import (
	"context"
	"time"

	"spinearn/catalog"
	"spinearn/events"
	"spinearn/models"
)

// UserRepository defines the interface for user ledger access. Methods
// returning (bool, error) are conditional updates: false means the guard
// did not hold and nothing was changed.
type UserRepository interface {
	// GetByID retrieves a user, nil if not found
	GetByID(ctx context.Context, userID int64) (*models.User, error)

	// GetByIDForUpdate retrieves a user and locks the row until the transaction ends
	GetByIDForUpdate(ctx context.Context, userID int64) (*models.User, error)

	// GetByEmail retrieves a user by email, nil if not found
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// GetByReferralCode retrieves the owner of a referral code other than excludeUserID
	GetByReferralCode(ctx context.Context, code string, excludeUserID int64) (*models.User, error)

	// ExistsByUsernameOrEmail reports whether either value is already registered
	ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error)

	// ReferralCodeExists reports whether a referral code is taken
	ReferralCodeExists(ctx context.Context, code string) (bool, error)

	// Create inserts a new user
	Create(ctx context.Context, user *models.NewUser) (*models.User, error)

	// ResetDailyIfStale resets daily counters when last_activity_date is before today
	ResetDailyIfStale(ctx context.Context, userID int64, today time.Time, maxSpins int, taskStatus models.TaskStatus) (bool, error)

	// ConsumeSpin adds reward points and uses one spin while spins remain
	ConsumeSpin(ctx context.Context, userID int64, reward int64) (bool, error)

	// AddSpinsFromAd grants spins while the spin-ad cap and spin cap are not reached
	AddSpinsFromAd(ctx context.Context, userID int64, spins, maxSpins, maxAds int) (bool, error)

	// CreditAd adds points for a watched ad while the ad cap is not reached
	CreditAd(ctx context.Context, userID int64, points int64, maxAds int) (bool, error)

	// UpdateTaskStatus overwrites the daily task map
	UpdateTaskStatus(ctx context.Context, userID int64, status models.TaskStatus) error

	// CompleteTask stores the task map and adds the reward
	CompleteTask(ctx context.Context, userID int64, status models.TaskStatus, reward int64) error

	// SetReferredBy links the user to its referrer and credits points, once
	SetReferredBy(ctx context.Context, userID, referrerID int64, points int64) (bool, error)

	// CreditReferrer adds referral points, increments total_referrals_made and returns the new balance
	CreditReferrer(ctx context.Context, userID int64, points int64) (int64, error)

	// DeductPoints subtracts amount if the balance covers it
	DeductPoints(ctx context.Context, userID int64, amount int64) (bool, error)

	// MarkLowTierUsed flags the one-time withdrawal tier as claimed
	MarkLowTierUsed(ctx context.Context, userID int64) (bool, error)
}

// WithdrawalRepository defines the interface for withdrawal request storage
type WithdrawalRepository interface {
	// Create inserts a pending request and fills in its ID, status and timestamp
	Create(ctx context.Context, request *models.WithdrawalRequest) error

	// GetByUser returns a user's requests, newest first
	GetByUser(ctx context.Context, userID int64, limit int) ([]*models.WithdrawalRequest, error)
}

// BalanceHistoryRepository defines the interface for balance history tracking
type BalanceHistoryRepository interface {
	// Record creates a new balance history entry
	Record(ctx context.Context, history *models.BalanceHistory) error

	// GetByUser returns balance history for a specific user, newest first
	GetByUser(ctx context.Context, userID int64, limit int) ([]*models.BalanceHistory, error)
}

// EventPublisher defines the interface for publishing events
type EventPublisher interface {
	Publish(event events.Event)
}

// UnitOfWork defines the interface for transactional repository operations
type UnitOfWork interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) error

	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction, a no-op after Commit
	Rollback() error

	// Repository getters
	UserRepository() UserRepository
	WithdrawalRepository() WithdrawalRepository
	BalanceHistoryRepository() BalanceHistoryRepository
	EventBus() EventPublisher
}

// UnitOfWorkFactory defines the interface for creating UnitOfWork instances
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}

// PasswordHasher is a one-way, verifiable password hash
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) bool
}

// TaskView is a catalog task merged with the user's completion flag
type TaskView struct {
	catalog.Task
	Completed bool `json:"completed"`
}

// SpinResult is the outcome of a spin
type SpinResult struct {
	Reward int64
	User   *models.User
}

// TaskResult is the outcome of completing a task
type TaskResult struct {
	Task  catalog.Task
	Tasks []TaskView
	User  *models.User
}

// ReferralResult is the outcome of an accepted referral code
type ReferralResult struct {
	ReferrerUsername string
	ReferredBonus    int64
	ReferrerBonus    int64
	User             *models.User
}

// WithdrawalResult is the outcome of a withdrawal request
type WithdrawalResult struct {
	Request *models.WithdrawalRequest
	User    *models.User
}

// RegisterInput holds the registration form fields
type RegisterInput struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
}

// DailyResetService defines the daily limit reset operation
type DailyResetService interface {
	// EnsureDailyReset resets daily counters once per UTC day
	EnsureDailyReset(ctx context.Context, userID int64) (bool, error)
}

// AccountService defines registration, login and profile reads
type AccountService interface {
	// Register creates a new user
	Register(ctx context.Context, input RegisterInput) (*models.User, error)

	// Login verifies credentials and returns the user after the daily reset
	Login(ctx context.Context, email, password string) (*models.User, error)

	// CurrentUser returns the user after the daily reset, nil if it no longer exists
	CurrentUser(ctx context.Context, userID int64) (*models.User, error)

	// GetHistory lists the user's balance history, newest first
	GetHistory(ctx context.Context, userID int64) ([]*models.BalanceHistory, error)
}

// RewardService defines the daily earning actions
type RewardService interface {
	// Spin uses one spin and awards a random reward
	Spin(ctx context.Context, userID int64) (*SpinResult, error)

	// GetSpinsFromAd grants extra spins for a watched ad
	GetSpinsFromAd(ctx context.Context, userID int64) (*models.User, error)

	// WatchAdForPoints awards points for a watched ad
	WatchAdForPoints(ctx context.Context, userID int64) (*models.User, error)

	// GetTasks lists the catalog with today's completion flags
	GetTasks(ctx context.Context, userID int64) ([]TaskView, error)

	// CompleteTask marks a task done for today and awards its points
	CompleteTask(ctx context.Context, userID int64, taskID int) (*TaskResult, error)
}

// ReferralService defines referral code submission
type ReferralService interface {
	// SubmitReferralCode credits both users the first time a valid code is submitted
	SubmitReferralCode(ctx context.Context, userID int64, code string) (*ReferralResult, error)
}

// WithdrawalService defines points redemption
type WithdrawalService interface {
	// RequestWithdrawal deducts a tier amount and records a pending request
	RequestWithdrawal(ctx context.Context, userID int64, amount int64, method, details string) (*WithdrawalResult, error)

	// GetWithdrawals lists the user's requests, newest first
	GetWithdrawals(ctx context.Context, userID int64) ([]*models.WithdrawalRequest, error)
}
