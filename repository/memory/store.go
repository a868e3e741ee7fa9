// Package memory is an in-process ledger store. Units of work run one at a
// time against a private copy of the data that replaces the shared state on
// commit, which gives serializable isolation.
package memory

import (
	"context"
	"fmt"
	"slices"
	"time"

	"spinearn/events"
	"spinearn/models"
	"spinearn/service"
)

type state struct {
	users            map[int64]*models.User
	withdrawals      []*models.WithdrawalRequest
	history          []*models.BalanceHistory
	nextUserID       int64
	nextWithdrawalID int64
	nextHistoryID    int64
}

func (s *state) clone() *state {
	c := &state{
		users:            make(map[int64]*models.User, len(s.users)),
		withdrawals:      slices.Clip(s.withdrawals),
		history:          slices.Clip(s.history),
		nextUserID:       s.nextUserID,
		nextWithdrawalID: s.nextWithdrawalID,
		nextHistoryID:    s.nextHistoryID,
	}
	for id, u := range s.users {
		c.users[id] = u.Clone()
	}
	return c
}

// Store holds the committed state
type Store struct {
	sem   chan struct{}
	data  *state
	clock func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		sem: make(chan struct{}, 1),
		data: &state{
			users:            make(map[int64]*models.User),
			nextUserID:       1,
			nextWithdrawalID: 1,
			nextHistoryID:    1,
		},
		clock: time.Now,
	}
}

func (s *Store) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) release() {
	<-s.sem
}

// PutUser inserts or replaces a user outside any unit of work. Meant for seeding.
func (s *Store) PutUser(user *models.User) {
	s.sem <- struct{}{}
	defer s.release()

	u := user.Clone()
	if u.ID == 0 {
		u.ID = s.data.nextUserID
	}
	if u.ID >= s.data.nextUserID {
		s.data.nextUserID = u.ID + 1
	}
	if u.DailyTasksStatus == nil {
		u.DailyTasksStatus = models.TaskStatus{}
	}
	s.data.users[u.ID] = u
	user.ID = u.ID
}

// User returns a copy of the committed user, nil if absent
func (s *Store) User(userID int64) *models.User {
	s.sem <- struct{}{}
	defer s.release()
	return s.data.users[userID].Clone()
}

// Withdrawals returns copies of all committed withdrawal requests
func (s *Store) Withdrawals() []models.WithdrawalRequest {
	s.sem <- struct{}{}
	defer s.release()

	out := make([]models.WithdrawalRequest, len(s.data.withdrawals))
	for i, w := range s.data.withdrawals {
		out[i] = *w
	}
	return out
}

// History returns copies of all committed balance history rows
func (s *Store) History() []models.BalanceHistory {
	s.sem <- struct{}{}
	defer s.release()

	out := make([]models.BalanceHistory, len(s.data.history))
	for i, h := range s.data.history {
		out[i] = *h
	}
	return out
}

// NewUnitOfWorkFactory creates a factory whose units of work run against s
func NewUnitOfWorkFactory(s *Store, eventBus *events.Bus) service.UnitOfWorkFactory {
	return &unitOfWorkFactory{store: s, eventBus: eventBus}
}

type unitOfWorkFactory struct {
	store    *Store
	eventBus *events.Bus
}

func (f *unitOfWorkFactory) Create() service.UnitOfWork {
	return &unitOfWork{
		store:            f.store,
		transactionalBus: events.NewTransactionalBus(f.eventBus),
	}
}

// unitOfWork implements the UnitOfWork interface
type unitOfWork struct {
	store            *Store
	ctx              context.Context
	working          *state
	transactionalBus *events.TransactionalBus
	userRepo         *userRepository
	withdrawalRepo   *withdrawalRepository
	historyRepo      *balanceHistoryRepository
}

// Begin waits for exclusive access to the store and snapshots it
func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.working != nil {
		return fmt.Errorf("transaction already started")
	}
	if err := u.store.acquire(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	u.ctx = ctx
	u.working = u.store.data.clone()
	u.userRepo = &userRepository{st: u.working, now: u.store.clock}
	u.withdrawalRepo = &withdrawalRepository{st: u.working, now: u.store.clock}
	u.historyRepo = &balanceHistoryRepository{st: u.working, now: u.store.clock}
	return nil
}

// Commit publishes the working copy
func (u *unitOfWork) Commit() error {
	if u.working == nil {
		return fmt.Errorf("no transaction to commit")
	}

	u.store.data = u.working
	u.working = nil
	u.store.release()

	u.transactionalBus.Flush(u.ctx)
	return nil
}

// Rollback drops the working copy, a no-op when nothing is open
func (u *unitOfWork) Rollback() error {
	if u.working == nil {
		return nil
	}

	u.working = nil
	u.store.release()
	u.transactionalBus.Discard()
	return nil
}

func (u *unitOfWork) UserRepository() service.UserRepository {
	if u.userRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.userRepo
}

func (u *unitOfWork) WithdrawalRepository() service.WithdrawalRepository {
	if u.withdrawalRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.withdrawalRepo
}

func (u *unitOfWork) BalanceHistoryRepository() service.BalanceHistoryRepository {
	if u.historyRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.historyRepo
}

func (u *unitOfWork) EventBus() service.EventPublisher {
	return u.transactionalBus
}
