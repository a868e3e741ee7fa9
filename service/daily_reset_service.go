package service

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"spinearn/catalog"
	"spinearn/models"
)

// DailyResetPolicy decides when a user's daily counters are due for reset and
// applies the reset inside the caller's transaction.
type DailyResetPolicy struct {
	clock   Clock
	catalog *catalog.Catalog
}

// NewDailyResetPolicy creates a reset policy
func NewDailyResetPolicy(clock Clock, cat *catalog.Catalog) *DailyResetPolicy {
	return &DailyResetPolicy{clock: clock, catalog: cat}
}

// Catalog returns the task catalog the policy resets against
func (p *DailyResetPolicy) Catalog() *catalog.Catalog {
	return p.catalog
}

// Today returns the current UTC date
func (p *DailyResetPolicy) Today() time.Time {
	return Today(p.clock)
}

// IsStale reports whether a user last active on lastActivity needs a reset today
func (p *DailyResetPolicy) IsStale(lastActivity *time.Time, today time.Time) bool {
	return lastActivity == nil || UTCDate(*lastActivity).Before(today)
}

// Load locks the user row, resets daily counters if the UTC day rolled over and
// returns the current state with the task map shaped to the catalog. The bool
// reports whether a reset happened.
func (p *DailyResetPolicy) Load(ctx context.Context, users UserRepository, userID int64) (*models.User, bool, error) {
	user, err := users.GetByIDForUpdate(ctx, userID)
	if err != nil {
		return nil, false, internalError(err, "failed to load user %d", userID)
	}
	if user == nil {
		return nil, false, newError(KindNotFound, "User not found.")
	}

	today := p.Today()
	wasReset := false
	if p.IsStale(user.LastActivityDate, today) {
		fresh := p.catalog.NewTaskStatus()
		applied, err := users.ResetDailyIfStale(ctx, userID, today, catalog.MaxFreeSpinsPerDay, fresh)
		if err != nil {
			return nil, false, internalError(err, "failed to reset daily limits for user %d", userID)
		}
		if applied {
			wasReset = true
			user.SpinsLeftToday = catalog.MaxFreeSpinsPerDay
			user.AdsWatchedToday = 0
			user.SpinAdsWatchedToday = 0
			user.DailyTasksStatus = fresh
			user.LastActivityDate = &today

			log.WithFields(log.Fields{
				"userID": userID,
				"date":   today.Format("2006-01-02"),
			}).Debug("Daily limits reset")
		}
	}

	status, changed := p.catalog.Normalize(user.DailyTasksStatus)
	if changed {
		log.WithFields(log.Fields{
			"userID": userID,
			"stored": user.DailyTasksStatus,
		}).Warn("Daily task status did not match the catalog, rewriting it")
		if err := users.UpdateTaskStatus(ctx, userID, status); err != nil {
			return nil, false, internalError(err, "failed to heal task status for user %d", userID)
		}
	}
	user.DailyTasksStatus = status

	return user, wasReset, nil
}

// dailyResetService implements the DailyResetService interface
type dailyResetService struct {
	uowFactory UnitOfWorkFactory
	policy     *DailyResetPolicy
}

// NewDailyResetService creates a new daily reset service
func NewDailyResetService(uowFactory UnitOfWorkFactory, policy *DailyResetPolicy) DailyResetService {
	return &dailyResetService{
		uowFactory: uowFactory,
		policy:     policy,
	}
}

// EnsureDailyReset resets daily counters once per UTC day
func (s *dailyResetService) EnsureDailyReset(ctx context.Context, userID int64) (bool, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return false, internalError(err, "failed to begin transaction")
	}
	defer uow.Rollback()

	_, wasReset, err := s.policy.Load(ctx, uow.UserRepository(), userID)
	if err != nil {
		return false, err
	}

	if err := uow.Commit(); err != nil {
		return false, internalError(err, "failed to commit transaction")
	}
	return wasReset, nil
}
