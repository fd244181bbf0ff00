package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/estore-backend/internal/consumers/worker"
	"github.com/angelmondragon/estore-backend/pkg/enums"
	"github.com/angelmondragon/estore-backend/pkg/logger"
	"github.com/angelmondragon/estore-backend/pkg/notify"
	"github.com/angelmondragon/estore-backend/pkg/outbox/payloads"
)

type recordingSender struct {
	sent []notify.Message
	err  error
}

func (r *recordingSender) Send(_ context.Context, msg notify.Message) error {
	r.sent = append(r.sent, msg)
	return r.err
}

func envelopeFor(t *testing.T, payload any) worker.Envelope {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return worker.Envelope{
		EventID:       uuid.NewString(),
		EventType:     enums.EventNotificationRequested,
		AggregateType: enums.AggregateNotification,
		Payload:       data,
	}
}

func newDispatcher(t *testing.T, s *recordingSender) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(s, logger.New(logger.Options{Output: io.Discard}))
	require.NoError(t, err)
	return d
}

func TestDispatcherSendsTemplate(t *testing.T) {
	s := &recordingSender{}
	d := newDispatcher(t, s)
	orderID := uuid.New()

	err := d.Handle(context.Background(), envelopeFor(t, payloads.NotificationRequestedEvent{
		TemplateName: "payment_success",
		Variables:    []string{"ORD-20260315-ABCDEF12", "108.00"},
		Recipient:    "user-1",
		OrderID:      &orderID,
	}))
	require.NoError(t, err)
	require.Len(t, s.sent, 1)
	assert.Equal(t, notify.Message{
		TemplateName: "payment_success",
		Variables:    []string{"ORD-20260315-ABCDEF12", "108.00"},
		Recipient:    "user-1",
	}, s.sent[0])
}

func TestDispatcherFailuresAreAcked(t *testing.T) {
	s := &recordingSender{err: errors.New("gateway down")}
	d := newDispatcher(t, s)

	err := d.Handle(context.Background(), envelopeFor(t, payloads.NotificationRequestedEvent{
		TemplateName: "package_delivered",
		Recipient:    "user-2",
	}))
	assert.NoError(t, err)
	assert.Len(t, s.sent, 1)

	err = d.Handle(context.Background(), envelopeFor(t, payloads.NotificationRequestedEvent{TemplateName: "x"}))
	assert.NoError(t, err)
	assert.Len(t, s.sent, 1)
}

func TestDispatcherIgnoresOtherEvents(t *testing.T) {
	s := &recordingSender{}
	d := newDispatcher(t, s)
	env := envelopeFor(t, map[string]any{})
	env.EventType = enums.EventPaymentCreated

	assert.ErrorIs(t, d.Handle(context.Background(), env), worker.ErrUnsupportedEventType)
	assert.Empty(t, s.sent)
}
