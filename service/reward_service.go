package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"

	log "github.com/sirupsen/logrus"

	"spinearn/catalog"
	"spinearn/models"
)

// DrawSpinReward picks a wheel reward: 80% of draws land in [2,10], the rest in [11,15].
// intn must return a uniform integer in [0,n).
func DrawSpinReward(intn func(n int) int) int64 {
	if intn(100) < 80 {
		return int64(2 + intn(9))
	}
	return int64(11 + intn(5))
}

// InvalidTaskError reports a task id that is not in the catalog
func InvalidTaskError(raw string) *Error {
	return newError(KindInvalidArgument, "Invalid task ID: %s", raw)
}

// rewardService implements the RewardService interface
type rewardService struct {
	uowFactory UnitOfWorkFactory
	policy     *DailyResetPolicy
	intn       func(n int) int
}

// NewRewardService creates a new reward service
func NewRewardService(uowFactory UnitOfWorkFactory, policy *DailyResetPolicy) RewardService {
	return NewRewardServiceWithRand(uowFactory, policy, rand.IntN)
}

// NewRewardServiceWithRand creates a reward service drawing spin rewards from intn
func NewRewardServiceWithRand(uowFactory UnitOfWorkFactory, policy *DailyResetPolicy, intn func(n int) int) RewardService {
	return &rewardService{
		uowFactory: uowFactory,
		policy:     policy,
		intn:       intn,
	}
}

// Spin uses one spin and awards a random reward
func (s *rewardService) Spin(ctx context.Context, userID int64) (*SpinResult, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, internalError(err, "failed to begin transaction")
	}
	defer uow.Rollback()

	users := uow.UserRepository()
	user, _, err := s.policy.Load(ctx, users, userID)
	if err != nil {
		return nil, err
	}

	if user.SpinsLeftToday <= 0 {
		return nil, newError(KindLimitExceeded, "No spins left. Watch an ad for more.")
	}

	reward := DrawSpinReward(s.intn)
	applied, err := users.ConsumeSpin(ctx, userID, reward)
	if err != nil {
		return nil, internalError(err, "failed to consume spin for user %d", userID)
	}
	if !applied {
		return nil, newError(KindLimitExceeded, "No spins left. Watch an ad for more.")
	}

	before := user.Points
	user.Points += reward
	user.SpinsLeftToday--

	history := &models.BalanceHistory{
		UserID:          userID,
		BalanceBefore:   before,
		BalanceAfter:    user.Points,
		ChangeAmount:    reward,
		TransactionType: models.TransactionTypeSpinReward,
		TransactionMetadata: map[string]any{
			"spins_left_today": user.SpinsLeftToday,
		},
	}
	if err := RecordBalanceChange(ctx, uow, history); err != nil {
		return nil, internalError(err, "failed to record spin reward")
	}

	if err := uow.Commit(); err != nil {
		return nil, internalError(err, "failed to commit transaction")
	}

	return &SpinResult{Reward: reward, User: user}, nil
}

// GetSpinsFromAd grants extra spins for a watched ad. The spin balance never
// exceeds the daily maximum; an ad watched at the maximum still counts.
func (s *rewardService) GetSpinsFromAd(ctx context.Context, userID int64) (*models.User, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, internalError(err, "failed to begin transaction")
	}
	defer uow.Rollback()

	users := uow.UserRepository()
	user, _, err := s.policy.Load(ctx, users, userID)
	if err != nil {
		return nil, err
	}

	capMessage := fmt.Sprintf("Max ads for spins watched today (%d).", catalog.MaxSpinAdsPerDay)
	if user.SpinAdsWatchedToday >= catalog.MaxSpinAdsPerDay {
		return nil, newError(KindLimitExceeded, "%s", capMessage)
	}

	applied, err := users.AddSpinsFromAd(ctx, userID, catalog.SpinsGainedPerAd, catalog.MaxFreeSpinsPerDay, catalog.MaxSpinAdsPerDay)
	if err != nil {
		return nil, internalError(err, "failed to add spins for user %d", userID)
	}
	if !applied {
		return nil, newError(KindLimitExceeded, "%s", capMessage)
	}

	user.SpinsLeftToday = min(user.SpinsLeftToday+catalog.SpinsGainedPerAd, catalog.MaxFreeSpinsPerDay)
	user.SpinAdsWatchedToday++

	if err := uow.Commit(); err != nil {
		return nil, internalError(err, "failed to commit transaction")
	}
	return user, nil
}

// WatchAdForPoints awards points for a watched ad
func (s *rewardService) WatchAdForPoints(ctx context.Context, userID int64) (*models.User, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, internalError(err, "failed to begin transaction")
	}
	defer uow.Rollback()

	users := uow.UserRepository()
	user, _, err := s.policy.Load(ctx, users, userID)
	if err != nil {
		return nil, err
	}

	if user.AdsWatchedToday >= catalog.MaxAdsPerDay {
		return nil, newError(KindLimitExceeded, "Max ads for points watched today.")
	}

	applied, err := users.CreditAd(ctx, userID, catalog.PointsPerAd, catalog.MaxAdsPerDay)
	if err != nil {
		return nil, internalError(err, "failed to credit ad for user %d", userID)
	}
	if !applied {
		return nil, newError(KindLimitExceeded, "Max ads for points watched today.")
	}

	before := user.Points
	user.Points += catalog.PointsPerAd
	user.AdsWatchedToday++

	history := &models.BalanceHistory{
		UserID:          userID,
		BalanceBefore:   before,
		BalanceAfter:    user.Points,
		ChangeAmount:    catalog.PointsPerAd,
		TransactionType: models.TransactionTypeAdReward,
		TransactionMetadata: map[string]any{
			"ads_watched_today": user.AdsWatchedToday,
		},
	}
	if err := RecordBalanceChange(ctx, uow, history); err != nil {
		return nil, internalError(err, "failed to record ad reward")
	}

	if err := uow.Commit(); err != nil {
		return nil, internalError(err, "failed to commit transaction")
	}
	return user, nil
}

// GetTasks lists the catalog with today's completion flags
func (s *rewardService) GetTasks(ctx context.Context, userID int64) ([]TaskView, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, internalError(err, "failed to begin transaction")
	}
	defer uow.Rollback()

	user, _, err := s.policy.Load(ctx, uow.UserRepository(), userID)
	if err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, internalError(err, "failed to commit transaction")
	}
	return s.taskViews(user.DailyTasksStatus), nil
}

// CompleteTask marks a task done for today and awards its points
func (s *rewardService) CompleteTask(ctx context.Context, userID int64, taskID int) (*TaskResult, error) {
	task, ok := s.policy.Catalog().Task(taskID)
	if !ok {
		return nil, InvalidTaskError(strconv.Itoa(taskID))
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, internalError(err, "failed to begin transaction")
	}
	defer uow.Rollback()

	users := uow.UserRepository()
	user, _, err := s.policy.Load(ctx, users, userID)
	if err != nil {
		return nil, err
	}

	if user.DailyTasksStatus[taskID] {
		return nil, newError(KindAlreadyDone, "Task already completed today.")
	}

	status := user.DailyTasksStatus.Clone()
	status[taskID] = true
	if err := users.CompleteTask(ctx, userID, status, task.Points); err != nil {
		return nil, internalError(err, "failed to complete task %d for user %d", taskID, userID)
	}

	before := user.Points
	user.Points += task.Points
	user.DailyTasksStatus = status

	relatedID := int64(taskID)
	relatedType := models.RelatedTypeTask
	history := &models.BalanceHistory{
		UserID:          userID,
		BalanceBefore:   before,
		BalanceAfter:    user.Points,
		ChangeAmount:    task.Points,
		TransactionType: models.TransactionTypeTaskReward,
		TransactionMetadata: map[string]any{
			"task_name": task.Name,
		},
		RelatedID:   &relatedID,
		RelatedType: &relatedType,
	}
	if err := RecordBalanceChange(ctx, uow, history); err != nil {
		return nil, internalError(err, "failed to record task reward")
	}

	if err := uow.Commit(); err != nil {
		return nil, internalError(err, "failed to commit transaction")
	}

	log.WithFields(log.Fields{
		"userID": userID,
		"taskID": taskID,
		"points": task.Points,
	}).Debug("Task completed")

	return &TaskResult{
		Task:  task,
		Tasks: s.taskViews(status),
		User:  user,
	}, nil
}

func (s *rewardService) taskViews(status models.TaskStatus) []TaskView {
	tasks := s.policy.Catalog().Tasks()
	views := make([]TaskView, len(tasks))
	for i, task := range tasks {
		views[i] = TaskView{Task: task, Completed: status[task.ID]}
	}
	return views
}
