// Package analytics streams commerce domain events into BigQuery.
package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/estore-backend/internal/analytics/writer"
	"github.com/angelmondragon/estore-backend/internal/consumers/worker"
	"github.com/angelmondragon/estore-backend/pkg/enums"
	"github.com/angelmondragon/estore-backend/pkg/logger"
)

// ConsumerName scopes the analytics worker's idempotency keys.
const ConsumerName = "analytics"

type rowWriter interface {
	InsertCommerce(ctx context.Context, row writer.CommerceEventRow) error
}

// Sink writes one commerce row per supported event.
type Sink struct {
	writer rowWriter
	logg   *logger.Logger
	events map[enums.OutboxEventType]struct{}
}

func NewSink(w rowWriter, logg *logger.Logger) (*Sink, error) {
	if w == nil {
		return nil, fmt.Errorf("analytics writer required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Sink{
		writer: w,
		logg:   logg,
		events: map[enums.OutboxEventType]struct{}{
			enums.EventOrderCreated:         {},
			enums.EventPaymentStatusChanged: {},
			enums.EventPackageStatusChanged: {},
		},
	}, nil
}

// Handle implements worker.Handler.
func (s *Sink) Handle(ctx context.Context, envelope worker.Envelope) error {
	if _, ok := s.events[envelope.EventType]; !ok {
		return worker.ErrUnsupportedEventType
	}
	row, err := buildRow(envelope)
	if err != nil {
		return err
	}
	if err := s.writer.InsertCommerce(ctx, *row); err != nil {
		return err
	}
	s.logg.Debug(ctx, "commerce event written")
	return nil
}

func buildRow(envelope worker.Envelope) (*writer.CommerceEventRow, error) {
	payload := map[string]any{}
	if len(envelope.Payload) > 0 {
		if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		if payload == nil {
			payload = map[string]any{}
		}
	}
	row := &writer.CommerceEventRow{
		EventID:       envelope.EventID,
		EventType:     envelope.EventType.String(),
		AggregateType: string(envelope.AggregateType),
		AggregateID:   envelope.AggregateID,
		OccurredAt:    envelope.OccurredAt,
		OrderID:       stringValue(payload, "order_id"),
		StoreID:       stringValue(payload, "store_id"),
		PaymentID:     stringValue(payload, "payment_id"),
		PackageID:     stringValue(payload, "package_id"),
		Status:        stringValue(payload, "status"),
		Gateway:       stringValue(payload, "payment_gateway"),
		Payload:       writer.JSONColumn(envelope.Payload),
	}
	switch envelope.EventType {
	case enums.EventOrderCreated:
		row.Amount = amountValue(payload, "total_amount")
	case enums.EventPaymentStatusChanged:
		row.Amount = amountValue(payload, "amount")
	}
	return row, nil
}

func stringValue(payload map[string]any, key string) *string {
	raw, ok := payload[key]
	if !ok {
		return nil
	}
	str, ok := raw.(string)
	if !ok {
		return nil
	}
	trimmed := strings.TrimSpace(str)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// amountValue reads decimals, which encode as JSON strings.
func amountValue(payload map[string]any, key string) *float64 {
	var (
		d   decimal.Decimal
		err error
	)
	switch v := payload[key].(type) {
	case string:
		d, err = decimal.NewFromString(v)
	case float64:
		d = decimal.NewFromFloat(v)
	default:
		return nil
	}
	if err != nil {
		return nil
	}
	f, _ := d.Float64()
	return &f
}
