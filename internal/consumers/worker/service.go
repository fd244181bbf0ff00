package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/estore-backend/pkg/enums"
	"github.com/angelmondragon/estore-backend/pkg/logger"
	"github.com/angelmondragon/estore-backend/pkg/outbox"
)

// ErrUnsupportedEventType tells the worker to ack an event the handler ignores.
var ErrUnsupportedEventType = errors.New("unsupported event type")

// Envelope is a domain event as delivered over Pub/Sub.
type Envelope struct {
	EventID       string
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   string
	Version       int
	OccurredAt    time.Time
	Payload       json.RawMessage
}

// Decode unmarshals the event data into out.
func (e Envelope) Decode(out any) error {
	if len(e.Payload) == 0 {
		return errors.New("empty event payload")
	}
	return json.Unmarshal(e.Payload, out)
}

// Handler processes one domain event.
type Handler interface {
	Handle(ctx context.Context, envelope Envelope) error
}

// HandlerFunc adapts functions to the Handler interface.
type HandlerFunc func(ctx context.Context, envelope Envelope) error

// Handle calls the underlying function.
func (fn HandlerFunc) Handle(ctx context.Context, envelope Envelope) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, envelope)
}

// Claimer grants one processing claim per consumer and event.
type Claimer interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// PayloadDecoder checks event data against the schema registered for its type and version.
type PayloadDecoder interface {
	Decode(eventType enums.OutboxEventType, version int, data json.RawMessage) (any, error)
}

// Service consumes one subscription while honoring per-consumer Redis idempotency.
type Service struct {
	name         string
	subscription *gcppubsub.Subscriber
	handler      Handler
	claims       Claimer
	schemas      PayloadDecoder
	logg         *logger.Logger
}

// NewService creates a worker named after its consumer; the name scopes idempotency keys.
func NewService(name string, subscription *gcppubsub.Subscriber, handler Handler, claims Claimer, logg *logger.Logger) (*Service, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("consumer name is required")
	}
	if subscription == nil {
		return nil, errors.New("subscription is required")
	}
	if handler == nil {
		return nil, errors.New("handler is required")
	}
	if claims == nil {
		return nil, errors.New("idempotency claimer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	return &Service{
		name:         name,
		subscription: subscription,
		handler:      handler,
		claims:       claims,
		logg:         logg,
	}, nil
}

// ValidatePayloads makes the worker drop events whose data does not decode
// before any idempotency claim is taken.
func (s *Service) ValidatePayloads(schemas PayloadDecoder) *Service {
	s.schemas = schemas
	return s
}

type processResult struct {
	nack bool
}

// Run starts consuming messages until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if s.process(innerCtx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) processResult {
	fields := map[string]any{
		"consumer":   s.name,
		"message_id": msg.ID,
	}
	logCtx := s.logg.WithFields(ctx, fields)

	envelope, err := buildEnvelope(msg)
	if err != nil {
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "invalid event envelope")
		return processResult{}
	}
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"event_id":       envelope.EventID,
		"event_type":     envelope.EventType.String(),
		"aggregate_type": string(envelope.AggregateType),
		"aggregate_id":   envelope.AggregateID,
		"occurred_at":    envelope.OccurredAt.Format(time.RFC3339Nano),
	})

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		s.logg.Warn(logCtx, "invalid event id")
		return processResult{}
	}

	if s.schemas != nil {
		if _, err := s.schemas.Decode(envelope.EventType, envelope.Version, envelope.Payload); err != nil {
			s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "event payload rejected")
			return processResult{}
		}
	}

	claimed, err := s.claims.Claim(logCtx, s.name, eventID)
	if err != nil {
		s.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if !claimed {
		s.logg.Info(logCtx, "event already processed")
		return processResult{}
	}

	if err := s.handler.Handle(logCtx, *envelope); err != nil {
		if errors.Is(err, ErrUnsupportedEventType) {
			s.logg.Debug(logCtx, "event not handled by consumer")
			return processResult{}
		}
		s.logg.Error(logCtx, "handler error", err)
		if derr := s.claims.Release(logCtx, s.name, eventID); derr != nil {
			s.logg.Warn(logCtx, "idempotency release failed: "+derr.Error())
		}
		return processResult{nack: true}
	}

	s.logg.Info(logCtx, "event handled")
	return processResult{}
}

func buildEnvelope(msg *gcppubsub.Message) (*Envelope, error) {
	var stored outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &stored); err != nil {
		return nil, fmt.Errorf("decode payload envelope: %w", err)
	}

	eventType, err := enums.ParseOutboxEventType(strings.TrimSpace(msg.Attributes["event_type"]))
	if err != nil {
		return nil, fmt.Errorf("event_type: %w", err)
	}

	aggregateType, err := enums.ParseOutboxAggregateType(strings.TrimSpace(msg.Attributes["aggregate_type"]))
	if err != nil {
		return nil, fmt.Errorf("aggregate_type: %w", err)
	}

	aggregateID := strings.TrimSpace(msg.Attributes["aggregate_id"])
	if aggregateID == "" {
		return nil, errors.New("aggregate_id missing")
	}

	occurredAt := stored.OccurredAt
	if occurredAt.IsZero() {
		if created := strings.TrimSpace(msg.Attributes["created_at"]); created != "" {
			if parsed, err := time.Parse(time.RFC3339Nano, created); err == nil {
				occurredAt = parsed
			}
		}
	}

	eventID := strings.TrimSpace(stored.EventID)
	if eventID == "" {
		eventID = strings.TrimSpace(msg.Attributes["event_id"])
	}
	if eventID == "" {
		return nil, errors.New("event_id missing")
	}

	return &Envelope{
		EventID:       eventID,
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Version:       stored.Version,
		OccurredAt:    occurredAt.UTC(),
		Payload:       stored.Data,
	}, nil
}
