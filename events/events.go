package events

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"spinearn/models"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeBalanceChange       EventType = "balance_change"
	EventTypeUserRegistered      EventType = "user_registered"
	EventTypeReferralAccepted    EventType = "referral_accepted"
	EventTypeWithdrawalRequested EventType = "withdrawal_requested"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// BalanceChangeEvent represents a points change that was committed
type BalanceChangeEvent struct {
	UserID          int64                  `json:"userId"`
	OldBalance      int64                  `json:"oldBalance"`
	NewBalance      int64                  `json:"newBalance"`
	TransactionType models.TransactionType `json:"transactionType"`
	ChangeAmount    int64                  `json:"changeAmount"`
}

func (e BalanceChangeEvent) Type() EventType {
	return EventTypeBalanceChange
}

// UserRegisteredEvent represents a new account
type UserRegisteredEvent struct {
	UserID       int64  `json:"userId"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	ReferralCode string `json:"referralCode"`
}

func (e UserRegisteredEvent) Type() EventType {
	return EventTypeUserRegistered
}

// ReferralAcceptedEvent is emitted once per referred user
type ReferralAcceptedEvent struct {
	ReferredUserID int64 `json:"referredUserId"`
	ReferrerUserID int64 `json:"referrerUserId"`
	ReferredBonus  int64 `json:"referredBonus"`
	ReferrerBonus  int64 `json:"referrerBonus"`
}

func (e ReferralAcceptedEvent) Type() EventType {
	return EventTypeReferralAccepted
}

// WithdrawalRequestedEvent carries a new pending withdrawal to the back office
type WithdrawalRequestedEvent struct {
	WithdrawalID int64  `json:"withdrawalId"`
	UserID       int64  `json:"userId"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	Points       int64  `json:"points"`
	Method       string `json:"method"`
	Details      string `json:"details"`
}

func (e WithdrawalRequestedEvent) Type() EventType {
	return EventTypeWithdrawalRequested
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type")
}

// Emit publishes an event to all registered handlers
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	log.WithFields(log.Fields{
		"eventType":    event.Type(),
		"handlerCount": len(handlers),
	}).Debug("Emitting event to handlers")

	// Handlers run asynchronously so a slow consumer never holds up a request
	for i, handler := range handlers {
		go func(h Handler, handlerIndex int) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType":    event.Type(),
						"handlerIndex": handlerIndex,
						"panic":        r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler, i)
	}
}

// TransactionalBus holds events raised inside a unit of work until it commits
type TransactionalBus struct {
	real    *Bus
	pending []Event
}

func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

func (b *TransactionalBus) Publish(e Event) {
	b.pending = append(b.pending, e)
}

// Pending returns the events not yet flushed
func (b *TransactionalBus) Pending() []Event {
	out := make([]Event, len(b.pending))
	copy(out, b.pending)
	return out
}

// Flush is called after a successful commit
func (b *TransactionalBus) Flush(ctx context.Context) {
	if b.real == nil {
		b.pending = nil
		return
	}

	// Handlers outlive the request, so they get a fresh context
	eventCtx := context.WithoutCancel(ctx)

	for _, ev := range b.pending {
		b.real.Emit(eventCtx, ev)
	}
	log.WithField("eventCount", len(b.pending)).Debug("Flushed pending events")
	b.pending = nil
}

// Discard drops pending events after a rollback
func (b *TransactionalBus) Discard() {
	b.pending = nil
}
