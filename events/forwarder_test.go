package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	subject string
	data    []byte
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
	seen chan struct{}
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{seen: make(chan struct{}, 10)}
}

func (p *recordingPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	p.mu.Lock()
	p.msgs = append(p.msgs, published{subject: subject, data: data})
	p.mu.Unlock()
	p.seen <- struct{}{}
	return p.err
}

func TestSubjectFor(t *testing.T) {
	assert.Equal(t, "withdrawals.requested", SubjectFor(EventTypeWithdrawalRequested))
	assert.Equal(t, "users.balance_changed", SubjectFor(EventTypeBalanceChange))
	assert.Equal(t, "referrals.accepted", SubjectFor(EventTypeReferralAccepted))
	assert.Equal(t, "users.registered", SubjectFor(EventTypeUserRegistered))
	assert.Equal(t, "unknown.other", SubjectFor(EventType("other")))
	assert.Len(t, AllSubjects(), 4)
}

func TestForwarder_Forward(t *testing.T) {
	pub := newRecordingPublisher()
	fwd := NewForwarder(pub)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	fwd.now = func() time.Time { return fixed }

	event := WithdrawalRequestedEvent{
		WithdrawalID: 7,
		UserID:       3,
		Username:     "alice",
		Email:        "alice@example.com",
		Points:       4600,
		Method:       "paypal",
		Details:      "alice@pay.example",
	}
	require.NoError(t, fwd.Forward(context.Background(), event))

	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "withdrawals.requested", pub.msgs[0].subject)

	var env Envelope
	require.NoError(t, json.Unmarshal(pub.msgs[0].data, &env))
	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, "withdrawal_requested", env.EventType)
	assert.Equal(t, SourceService, env.SourceService)
	assert.True(t, fixed.Equal(env.Timestamp))

	var payload WithdrawalRequestedEvent
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, event, payload)
}

func TestForwarder_PublishError(t *testing.T) {
	pub := newRecordingPublisher()
	pub.err = errors.New("stream unavailable")

	err := NewForwarder(pub).Forward(context.Background(), UserRegisteredEvent{UserID: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "users.registered")
}

func TestForwarder_AttachRelaysCommittedEvents(t *testing.T) {
	bus := NewBus()
	pub := newRecordingPublisher()
	NewForwarder(pub).Attach(bus)

	tx := NewTransactionalBus(bus)
	tx.Publish(ReferralAcceptedEvent{ReferredUserID: 2, ReferrerUserID: 1, ReferredBonus: 5, ReferrerBonus: 20})
	tx.Flush(context.Background())

	select {
	case <-pub.seen:
	case <-time.After(2 * time.Second):
		t.Fatal("event was not forwarded")
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "referrals.accepted", pub.msgs[0].subject)
}
