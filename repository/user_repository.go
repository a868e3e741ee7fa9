package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	log "github.com/sirupsen/logrus"

	"spinearn/database"
	"spinearn/models"
	"spinearn/service"
)

const uniqueViolation = "23505"

const userColumns = `
	user_id, username, email, password_hash, points,
	spins_left_today, ads_watched_today, spin_ads_watched_today,
	daily_tasks_status, used_low_withdrawal_tier, last_activity_date,
	referral_code, referred_by_user_id, total_referrals_made,
	created_at, updated_at`

// UserRepository implements the UserRepository interface
type UserRepository struct {
	q queryable
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{q: db.Pool}
}

// newUserRepositoryWithTx creates a new user repository with a transaction
func newUserRepositoryWithTx(tx queryable) *UserRepository {
	return &UserRepository{q: tx}
}

// scanUser reads one row selected with userColumns
func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	var rawStatus []byte
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Points,
		&user.SpinsLeftToday,
		&user.AdsWatchedToday,
		&user.SpinAdsWatchedToday,
		&rawStatus,
		&user.UsedLowWithdrawalTier,
		&user.LastActivityDate,
		&user.ReferralCode,
		&user.ReferredByUserID,
		&user.TotalReferralsMade,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	status, ok := models.DecodeTaskStatus(rawStatus)
	if !ok {
		log.WithFields(log.Fields{
			"user_id": user.ID,
			"raw":     string(rawStatus),
		}).Warn("Malformed daily_tasks_status, treating as empty")
	}
	user.DailyTasksStatus = status

	return &user, nil
}

func (r *UserRepository) getOne(ctx context.Context, query string, args ...any) (*models.User, error) {
	user, err := scanUser(r.q.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return user, err
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, userID int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`

	user, err := r.getOne(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", userID, err)
	}
	return user, nil
}

// GetByIDForUpdate retrieves a user and locks the row for the rest of the transaction
func (r *UserRepository) GetByIDForUpdate(ctx context.Context, userID int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_id = $1 FOR UPDATE`

	user, err := r.getOne(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock user %d: %w", userID, err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email, ignoring case
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`

	user, err := r.getOne(ctx, query, email)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

// GetByReferralCode retrieves the owner of a referral code, skipping excludeUserID
func (r *UserRepository) GetByReferralCode(ctx context.Context, code string, excludeUserID int64) (*models.User, error) {
	query := `SELECT ` + userColumns + `
		FROM users
		WHERE LOWER(referral_code) = LOWER($1) AND user_id <> $2`

	user, err := r.getOne(ctx, query, code, excludeUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by referral code %q: %w", code, err)
	}
	return user, nil
}

// ExistsByUsernameOrEmail reports whether the username or email is registered
func (r *UserRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM users
			WHERE LOWER(username) = LOWER($1) OR LOWER(email) = LOWER($2)
		)
	`

	var exists bool
	if err := r.q.QueryRow(ctx, query, username, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check existing user: %w", err)
	}
	return exists, nil
}

// ReferralCodeExists reports whether the referral code is taken
func (r *UserRepository) ReferralCodeExists(ctx context.Context, code string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM users WHERE LOWER(referral_code) = LOWER($1))`

	var exists bool
	if err := r.q.QueryRow(ctx, query, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check referral code %q: %w", code, err)
	}
	return exists, nil
}

// Create inserts a new user. Unique violations are reported as service.ErrDuplicateUser.
func (r *UserRepository) Create(ctx context.Context, newUser *models.NewUser) (*models.User, error) {
	status, err := newUser.DailyTasksStatus.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode task status: %w", err)
	}

	query := `
		INSERT INTO users (username, email, password_hash, referral_code, spins_left_today, daily_tasks_status, last_activity_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + userColumns

	user, err := scanUser(r.q.QueryRow(ctx, query,
		newUser.Username,
		newUser.Email,
		newUser.PasswordHash,
		newUser.ReferralCode,
		newUser.SpinsLeftToday,
		status,
		newUser.LastActivityDate,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, fmt.Errorf("%w: %s", service.ErrDuplicateUser, pgErr.ConstraintName)
		}
		return nil, fmt.Errorf("failed to create user %q: %w", newUser.Username, err)
	}
	return user, nil
}

// ResetDailyIfStale resets the daily counters when last_activity_date is before today
func (r *UserRepository) ResetDailyIfStale(ctx context.Context, userID int64, today time.Time, maxSpins int, taskStatus models.TaskStatus) (bool, error) {
	status, err := taskStatus.Encode()
	if err != nil {
		return false, fmt.Errorf("failed to encode task status: %w", err)
	}

	query := `
		UPDATE users
		SET spins_left_today = $3,
		    ads_watched_today = 0,
		    spin_ads_watched_today = 0,
		    daily_tasks_status = $4,
		    last_activity_date = $2,
		    updated_at = NOW()
		WHERE user_id = $1
		  AND (last_activity_date IS NULL OR last_activity_date < $2)
	`

	return r.conditionalUpdate(ctx, "reset daily counters", userID, query, userID, today, maxSpins, status)
}

// ConsumeSpin credits the reward and uses one spin while spins remain
func (r *UserRepository) ConsumeSpin(ctx context.Context, userID int64, reward int64) (bool, error) {
	query := `
		UPDATE users
		SET points = points + $2,
		    spins_left_today = spins_left_today - 1,
		    updated_at = NOW()
		WHERE user_id = $1 AND spins_left_today > 0
	`

	return r.conditionalUpdate(ctx, "consume spin", userID, query, userID, reward)
}

// AddSpinsFromAd grants spins, clamped to maxSpins, while fewer than maxAds spin ads were watched
func (r *UserRepository) AddSpinsFromAd(ctx context.Context, userID int64, spins, maxSpins, maxAds int) (bool, error) {
	query := `
		UPDATE users
		SET spins_left_today = LEAST(spins_left_today + $2, $3),
		    spin_ads_watched_today = spin_ads_watched_today + 1,
		    updated_at = NOW()
		WHERE user_id = $1
		  AND spin_ads_watched_today < $4
	`

	return r.conditionalUpdate(ctx, "add spins from ad", userID, query, userID, spins, maxSpins, maxAds)
}

// CreditAd credits points for a watched ad while fewer than maxAds were watched
func (r *UserRepository) CreditAd(ctx context.Context, userID int64, points int64, maxAds int) (bool, error) {
	query := `
		UPDATE users
		SET points = points + $2,
		    ads_watched_today = ads_watched_today + 1,
		    updated_at = NOW()
		WHERE user_id = $1 AND ads_watched_today < $3
	`

	return r.conditionalUpdate(ctx, "credit ad", userID, query, userID, points, maxAds)
}

// UpdateTaskStatus overwrites the daily task map
func (r *UserRepository) UpdateTaskStatus(ctx context.Context, userID int64, status models.TaskStatus) error {
	raw, err := status.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode task status: %w", err)
	}

	query := `UPDATE users SET daily_tasks_status = $2, updated_at = NOW() WHERE user_id = $1`

	result, err := r.q.Exec(ctx, query, userID, raw)
	if err != nil {
		return fmt.Errorf("failed to update task status for user %d: %w", userID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("user %d not found", userID)
	}
	return nil
}

// CompleteTask stores the task map and credits the reward
func (r *UserRepository) CompleteTask(ctx context.Context, userID int64, status models.TaskStatus, reward int64) error {
	raw, err := status.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode task status: %w", err)
	}

	query := `
		UPDATE users
		SET daily_tasks_status = $2,
		    points = points + $3,
		    updated_at = NOW()
		WHERE user_id = $1
	`

	result, err := r.q.Exec(ctx, query, userID, raw, reward)
	if err != nil {
		return fmt.Errorf("failed to complete task for user %d: %w", userID, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("user %d not found", userID)
	}
	return nil
}

// SetReferredBy links the user to its referrer and credits points, only once
func (r *UserRepository) SetReferredBy(ctx context.Context, userID, referrerID int64, points int64) (bool, error) {
	query := `
		UPDATE users
		SET referred_by_user_id = $2,
		    points = points + $3,
		    updated_at = NOW()
		WHERE user_id = $1
		  AND referred_by_user_id IS NULL
		  AND user_id <> $2
	`

	return r.conditionalUpdate(ctx, "set referrer", userID, query, userID, referrerID, points)
}

// CreditReferrer credits referral points, counts the referral and returns the new balance
func (r *UserRepository) CreditReferrer(ctx context.Context, userID int64, points int64) (int64, error) {
	query := `
		UPDATE users
		SET points = points + $2,
		    total_referrals_made = total_referrals_made + 1,
		    updated_at = NOW()
		WHERE user_id = $1
		RETURNING points
	`

	var balance int64
	err := r.q.QueryRow(ctx, query, userID, points).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("referrer %d not found", userID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to credit referrer %d: %w", userID, err)
	}
	return balance, nil
}

// DeductPoints subtracts amount if the balance covers it
func (r *UserRepository) DeductPoints(ctx context.Context, userID int64, amount int64) (bool, error) {
	query := `
		UPDATE users
		SET points = points - $2,
		    updated_at = NOW()
		WHERE user_id = $1 AND points >= $2
	`

	return r.conditionalUpdate(ctx, "deduct points", userID, query, userID, amount)
}

// MarkLowTierUsed flags the one-time withdrawal tier as claimed
func (r *UserRepository) MarkLowTierUsed(ctx context.Context, userID int64) (bool, error) {
	query := `
		UPDATE users
		SET used_low_withdrawal_tier = TRUE,
		    updated_at = NOW()
		WHERE user_id = $1 AND used_low_withdrawal_tier = FALSE
	`

	return r.conditionalUpdate(ctx, "mark low tier used", userID, query, userID)
}

// conditionalUpdate runs a guarded UPDATE and reports whether a row changed
func (r *UserRepository) conditionalUpdate(ctx context.Context, op string, userID int64, query string, args ...any) (bool, error) {
	result, err := r.q.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to %s for user %d: %w", op, userID, err)
	}
	return result.RowsAffected() == 1, nil
}
