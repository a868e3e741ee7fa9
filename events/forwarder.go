package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// StreamName is the JetStream stream holding every forwarded subject
const StreamName = "spinearn_events"

// SourceService identifies this service in event envelopes
const SourceService = "spinearn"

// Envelope wraps a forwarded event
type Envelope struct {
	EventID       string          `json:"eventId"`
	EventType     string          `json:"eventType"`
	Timestamp     time.Time       `json:"timestamp"`
	SourceService string          `json:"sourceService"`
	Payload       json.RawMessage `json:"payload"`
}

var subjects = map[EventType]string{
	EventTypeWithdrawalRequested: "withdrawals.requested",
	EventTypeBalanceChange:       "users.balance_changed",
	EventTypeReferralAccepted:    "referrals.accepted",
	EventTypeUserRegistered:      "users.registered",
}

// SubjectFor maps an event type to its message bus subject
func SubjectFor(eventType EventType) string {
	if subject, ok := subjects[eventType]; ok {
		return subject
	}
	return fmt.Sprintf("unknown.%s", eventType)
}

// AllSubjects returns every subject the forwarder publishes to
func AllSubjects() []string {
	out := make([]string, 0, len(subjects))
	for _, subject := range subjects {
		out = append(out, subject)
	}
	return out
}

// Forwarder relays committed events from the in-process bus to a message bus
type Forwarder struct {
	publisher MessagePublisher
	now       func() time.Time
}

// NewForwarder creates a forwarder publishing through publisher
func NewForwarder(publisher MessagePublisher) *Forwarder {
	return &Forwarder{
		publisher: publisher,
		now:       time.Now,
	}
}

// Attach subscribes the forwarder to every forwarded event type on bus
func (f *Forwarder) Attach(bus *Bus) {
	for eventType := range subjects {
		bus.Subscribe(eventType, f.handle)
	}
}

func (f *Forwarder) handle(ctx context.Context, event Event) {
	if err := f.Forward(ctx, event); err != nil {
		log.WithFields(log.Fields{
			"eventType": event.Type(),
			"error":     err,
		}).Error("Failed to forward event")
	}
}

// Forward wraps event in an envelope and publishes it
func (f *Forwarder) Forward(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	envelope := Envelope{
		EventID:       uuid.New().String(),
		EventType:     string(event.Type()),
		Timestamp:     f.now().UTC(),
		SourceService: SourceService,
		Payload:       payload,
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	subject := SubjectFor(event.Type())
	if err := f.publisher.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish event to %s: %w", subject, err)
	}

	log.WithFields(log.Fields{
		"eventType": event.Type(),
		"eventId":   envelope.EventID,
		"subject":   subject,
	}).Debug("Forwarded event")
	return nil
}
