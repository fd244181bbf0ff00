// Package registry describes every outbox event: its aggregate, the topic it
// travels on and the payload schema used to decode it.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/estore-backend/pkg/config"
	"github.com/angelmondragon/estore-backend/pkg/db/models"
	"github.com/angelmondragon/estore-backend/pkg/enums"
	"github.com/angelmondragon/estore-backend/pkg/outbox"
	"github.com/angelmondragon/estore-backend/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregate, topic and payload type.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is an outbox row that passed validation, ready to publish.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a row that no amount of retrying will publish.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func nonRetryablef(format string, args ...any) error {
	return NonRetryableError{Err: fmt.Errorf(format, args...)}
}

var catalog = []struct {
	event     enums.OutboxEventType
	aggregate enums.OutboxAggregateType
	payload   func() any
}{
	{enums.EventOrderCreated, enums.AggregateOrder, func() any { return &payloads.OrderCreatedEvent{} }},
	{enums.EventPaymentCreated, enums.AggregatePayment, func() any { return &payloads.PaymentCreatedEvent{} }},
	{enums.EventPaymentStatusChanged, enums.AggregatePayment, func() any { return &payloads.PaymentStatusChangedEvent{} }},
	{enums.EventPackageCreated, enums.AggregateDeliveryPackage, func() any { return &payloads.PackageCreatedEvent{} }},
	{enums.EventPackageStatusChanged, enums.AggregateDeliveryPackage, func() any { return &payloads.PackageStatusChangedEvent{} }},
	{enums.EventNotificationRequested, enums.AggregateNotification, func() any { return &payloads.NotificationRequestedEvent{} }},
}

// Descriptors lists every event the outbox may carry. All of them travel on
// topic; consumers filter on the event_type attribute.
func Descriptors(topic string) []EventDescriptor {
	out := make([]EventDescriptor, 0, len(catalog))
	for _, entry := range catalog {
		out = append(out, EventDescriptor{
			EventType:      entry.event,
			AggregateType:  entry.aggregate,
			Topic:          topic,
			PayloadFactory: entry.payload,
		})
	}
	return out
}

// EventRegistry validates outbox rows before the publisher sends them.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
	schemas *Schemas
}

// NewEventRegistry builds the registry against the configured domain topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.DomainTopic == "" {
		return nil, errors.New("domain topic is required")
	}
	reg := &EventRegistry{
		entries: make(map[enums.OutboxEventType]EventDescriptor, len(catalog)),
		schemas: CurrentSchemas(),
	}
	for _, desc := range Descriptors(cfg.DomainTopic) {
		reg.entries[desc.EventType] = desc
	}
	return reg, nil
}

// Resolve checks the row against its descriptor and decodes the typed payload.
// Every failure here is permanent for the row and returns a NonRetryableError.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, nonRetryablef("unsupported event type %s", event.EventType)
	}
	if desc.AggregateType != event.AggregateType {
		return nil, nonRetryablef("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	}
	if event.AggregateID == uuid.Nil {
		return nil, nonRetryablef("missing aggregate_id")
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, nonRetryablef("decode envelope: %w", err)
	}
	payload, err := r.schemas.Decode(event.EventType, envelope.Version, envelope.Data)
	if err != nil {
		return nil, nonRetryablef("%s payload: %w", event.EventType, err)
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}
