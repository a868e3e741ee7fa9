package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"spinearn/models"
	"spinearn/service"
)

// userRepository implements service.UserRepository over a working copy
type userRepository struct {
	st  *state
	now func() time.Time
}

func (r *userRepository) get(userID int64) (*models.User, error) {
	u, ok := r.st.users[userID]
	if !ok {
		return nil, fmt.Errorf("user with ID %d not found", userID)
	}
	return u, nil
}

func (r *userRepository) touch(u *models.User) {
	u.UpdatedAt = r.now().UTC()
}

func (r *userRepository) GetByID(ctx context.Context, userID int64) (*models.User, error) {
	return r.st.users[userID].Clone(), nil
}

// GetByIDForUpdate needs no row lock since the whole store is held
func (r *userRepository) GetByIDForUpdate(ctx context.Context, userID int64) (*models.User, error) {
	return r.GetByID(ctx, userID)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range r.st.users {
		if strings.EqualFold(u.Email, email) {
			return u.Clone(), nil
		}
	}
	return nil, nil
}

func (r *userRepository) GetByReferralCode(ctx context.Context, code string, excludeUserID int64) (*models.User, error) {
	for _, u := range r.st.users {
		if u.ID != excludeUserID && strings.EqualFold(u.ReferralCode, code) {
			return u.Clone(), nil
		}
	}
	return nil, nil
}

func (r *userRepository) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	for _, u := range r.st.users {
		if strings.EqualFold(u.Username, username) || strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (r *userRepository) ReferralCodeExists(ctx context.Context, code string) (bool, error) {
	for _, u := range r.st.users {
		if strings.EqualFold(u.ReferralCode, code) {
			return true, nil
		}
	}
	return false, nil
}

func (r *userRepository) Create(ctx context.Context, nu *models.NewUser) (*models.User, error) {
	for _, u := range r.st.users {
		if strings.EqualFold(u.Username, nu.Username) ||
			strings.EqualFold(u.Email, nu.Email) ||
			strings.EqualFold(u.ReferralCode, nu.ReferralCode) {
			return nil, service.ErrDuplicateUser
		}
	}

	now := r.now().UTC()
	day := nu.LastActivityDate
	status := nu.DailyTasksStatus.Clone()
	if status == nil {
		status = models.TaskStatus{}
	}

	u := &models.User{
		ID:               r.st.nextUserID,
		Username:         nu.Username,
		Email:            nu.Email,
		PasswordHash:     nu.PasswordHash,
		SpinsLeftToday:   nu.SpinsLeftToday,
		DailyTasksStatus: status,
		LastActivityDate: &day,
		ReferralCode:     nu.ReferralCode,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	r.st.nextUserID++
	r.st.users[u.ID] = u
	return u.Clone(), nil
}

func (r *userRepository) ResetDailyIfStale(ctx context.Context, userID int64, today time.Time, maxSpins int, taskStatus models.TaskStatus) (bool, error) {
	u, err := r.get(userID)
	if err != nil {
		return false, err
	}
	if u.LastActivityDate != nil && !u.LastActivityDate.Before(today) {
		return false, nil
	}

	day := today
	u.SpinsLeftToday = maxSpins
	u.AdsWatchedToday = 0
	u.SpinAdsWatchedToday = 0
	u.DailyTasksStatus = taskStatus.Clone()
	u.LastActivityDate = &day
	r.touch(u)
	return true, nil
}

func (r *userRepository) ConsumeSpin(ctx context.Context, userID int64, reward int64) (bool, error) {
	u, err := r.get(userID)
	if err != nil {
		return false, err
	}
	if u.SpinsLeftToday <= 0 {
		return false, nil
	}
	u.Points += reward
	u.SpinsLeftToday--
	r.touch(u)
	return true, nil
}

func (r *userRepository) AddSpinsFromAd(ctx context.Context, userID int64, spins, maxSpins, maxAds int) (bool, error) {
	u, err := r.get(userID)
	if err != nil {
		return false, err
	}
	if u.SpinAdsWatchedToday >= maxAds {
		return false, nil
	}
	u.SpinsLeftToday = min(u.SpinsLeftToday+spins, maxSpins)
	u.SpinAdsWatchedToday++
	r.touch(u)
	return true, nil
}

func (r *userRepository) CreditAd(ctx context.Context, userID int64, points int64, maxAds int) (bool, error) {
	u, err := r.get(userID)
	if err != nil {
		return false, err
	}
	if u.AdsWatchedToday >= maxAds {
		return false, nil
	}
	u.Points += points
	u.AdsWatchedToday++
	r.touch(u)
	return true, nil
}

func (r *userRepository) UpdateTaskStatus(ctx context.Context, userID int64, status models.TaskStatus) error {
	u, err := r.get(userID)
	if err != nil {
		return err
	}
	u.DailyTasksStatus = status.Clone()
	r.touch(u)
	return nil
}

func (r *userRepository) CompleteTask(ctx context.Context, userID int64, status models.TaskStatus, reward int64) error {
	u, err := r.get(userID)
	if err != nil {
		return err
	}
	u.DailyTasksStatus = status.Clone()
	u.Points += reward
	r.touch(u)
	return nil
}

func (r *userRepository) SetReferredBy(ctx context.Context, userID, referrerID int64, points int64) (bool, error) {
	u, err := r.get(userID)
	if err != nil {
		return false, err
	}
	if userID == referrerID {
		return false, fmt.Errorf("user %d cannot refer itself", userID)
	}
	if u.ReferredByUserID != nil {
		return false, nil
	}
	ref := referrerID
	u.ReferredByUserID = &ref
	u.Points += points
	r.touch(u)
	return true, nil
}

func (r *userRepository) CreditReferrer(ctx context.Context, userID int64, points int64) (int64, error) {
	u, err := r.get(userID)
	if err != nil {
		return 0, err
	}
	u.Points += points
	u.TotalReferralsMade++
	r.touch(u)
	return u.Points, nil
}

func (r *userRepository) DeductPoints(ctx context.Context, userID int64, amount int64) (bool, error) {
	if amount <= 0 {
		return false, fmt.Errorf("amount must be positive")
	}
	u, err := r.get(userID)
	if err != nil {
		return false, err
	}
	if u.Points < amount {
		return false, nil
	}
	u.Points -= amount
	r.touch(u)
	return true, nil
}

func (r *userRepository) MarkLowTierUsed(ctx context.Context, userID int64) (bool, error) {
	u, err := r.get(userID)
	if err != nil {
		return false, err
	}
	if u.UsedLowWithdrawalTier {
		return false, nil
	}
	u.UsedLowWithdrawalTier = true
	r.touch(u)
	return true, nil
}

// withdrawalRepository implements service.WithdrawalRepository over a working copy
type withdrawalRepository struct {
	st  *state
	now func() time.Time
}

func (r *withdrawalRepository) Create(ctx context.Context, request *models.WithdrawalRequest) error {
	if _, ok := r.st.users[request.UserID]; !ok {
		return fmt.Errorf("user with ID %d not found", request.UserID)
	}

	request.ID = r.st.nextWithdrawalID
	request.Status = models.WithdrawalStatusPending
	request.CreatedAt = r.now().UTC()
	r.st.nextWithdrawalID++

	stored := *request
	r.st.withdrawals = append(r.st.withdrawals, &stored)
	return nil
}

func (r *withdrawalRepository) GetByUser(ctx context.Context, userID int64, limit int) ([]*models.WithdrawalRequest, error) {
	var out []*models.WithdrawalRequest
	for _, w := range r.st.withdrawals {
		if w.UserID == userID {
			c := *w
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// balanceHistoryRepository implements service.BalanceHistoryRepository over a working copy
type balanceHistoryRepository struct {
	st  *state
	now func() time.Time
}

func (r *balanceHistoryRepository) Record(ctx context.Context, history *models.BalanceHistory) error {
	history.ID = r.st.nextHistoryID
	history.CreatedAt = r.now().UTC()
	r.st.nextHistoryID++

	stored := *history
	r.st.history = append(r.st.history, &stored)
	return nil
}

func (r *balanceHistoryRepository) GetByUser(ctx context.Context, userID int64, limit int) ([]*models.BalanceHistory, error) {
	var out []*models.BalanceHistory
	for i := len(r.st.history) - 1; i >= 0; i-- {
		h := r.st.history[i]
		if h.UserID != userID {
			continue
		}
		c := *h
		out = append(out, &c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
