package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/estore-backend/internal/consumers/worker"
	"github.com/angelmondragon/estore-backend/pkg/enums"
	"github.com/angelmondragon/estore-backend/pkg/logger"
	"github.com/angelmondragon/estore-backend/pkg/notify"
	"github.com/angelmondragon/estore-backend/pkg/outbox/payloads"
)

// ConsumerName scopes the notification worker's idempotency keys.
const ConsumerName = "notifications"

type sender interface {
	Send(ctx context.Context, msg notify.Message) error
}

// Dispatcher forwards notification_requested events to the messaging service.
// Delivery is best effort: send failures are logged and the event is acked.
type Dispatcher struct {
	sender sender
	logg   *logger.Logger
}

func NewDispatcher(s sender, logg *logger.Logger) (*Dispatcher, error) {
	if s == nil {
		return nil, fmt.Errorf("notify client required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Dispatcher{sender: s, logg: logg}, nil
}

// Handle implements worker.Handler.
func (d *Dispatcher) Handle(ctx context.Context, envelope worker.Envelope) error {
	if envelope.EventType != enums.EventNotificationRequested {
		return worker.ErrUnsupportedEventType
	}
	var payload payloads.NotificationRequestedEvent
	if err := envelope.Decode(&payload); err != nil {
		d.logg.Error(ctx, "failed to parse notification payload", err)
		return nil
	}

	logCtx := d.logg.WithFields(ctx, map[string]any{
		"template":  payload.TemplateName,
		"recipient": payload.Recipient,
	})
	if payload.OrderID != nil {
		logCtx = d.logg.WithOrderID(logCtx, payload.OrderID.String())
	}
	if strings.TrimSpace(payload.TemplateName) == "" || strings.TrimSpace(payload.Recipient) == "" {
		d.logg.Warn(logCtx, "notification missing template or recipient")
		return nil
	}

	err := d.sender.Send(ctx, notify.Message{
		TemplateName: payload.TemplateName,
		Variables:    payload.Variables,
		Recipient:    payload.Recipient,
	})
	if err != nil {
		d.logg.Error(logCtx, "notification dispatch failed", err)
		return nil
	}
	d.logg.Info(logCtx, "notification dispatched")
	return nil
}
