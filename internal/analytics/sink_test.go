package analytics

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/estore-backend/internal/analytics/writer"
	"github.com/angelmondragon/estore-backend/internal/consumers/worker"
	"github.com/angelmondragon/estore-backend/pkg/enums"
	"github.com/angelmondragon/estore-backend/pkg/logger"
)

type fakeWriter struct {
	rows []writer.CommerceEventRow
	err  error
}

func (f *fakeWriter) InsertCommerce(_ context.Context, row writer.CommerceEventRow) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, row)
	return nil
}

func newSink(t *testing.T, w *fakeWriter) *Sink {
	t.Helper()
	sink, err := NewSink(w, logger.New(logger.Options{Output: io.Discard}))
	require.NoError(t, err)
	return sink
}

func TestSinkWritesPaymentStatusChanged(t *testing.T) {
	w := &fakeWriter{}
	sink := newSink(t, w)
	paymentID := uuid.New()
	orderID := uuid.New()
	at := time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC)

	err := sink.Handle(context.Background(), worker.Envelope{
		EventID:       uuid.NewString(),
		EventType:     enums.EventPaymentStatusChanged,
		AggregateType: enums.AggregatePayment,
		AggregateID:   paymentID.String(),
		OccurredAt:    at,
		Payload: []byte(`{"payment_id":"` + paymentID.String() + `","order_id":"` + orderID.String() +
			`","status":"completed","payment_gateway":"phonepe","amount":"108.5"}`),
	})
	require.NoError(t, err)
	require.Len(t, w.rows, 1)

	row := w.rows[0]
	assert.Equal(t, "payment_status_changed", row.EventType)
	assert.Equal(t, at, row.OccurredAt)
	require.NotNil(t, row.OrderID)
	assert.Equal(t, orderID.String(), *row.OrderID)
	require.NotNil(t, row.Status)
	assert.Equal(t, "completed", *row.Status)
	require.NotNil(t, row.Gateway)
	assert.Equal(t, "phonepe", *row.Gateway)
	require.NotNil(t, row.Amount)
	assert.InDelta(t, 108.5, *row.Amount, 0.0001)
	assert.True(t, row.Payload.Valid)
	assert.Nil(t, row.PackageID)
}

func TestSinkSkipsUnsupportedEvents(t *testing.T) {
	w := &fakeWriter{}
	sink := newSink(t, w)
	err := sink.Handle(context.Background(), worker.Envelope{
		EventID:   uuid.NewString(),
		EventType: enums.EventNotificationRequested,
		Payload:   []byte(`{}`),
	})
	assert.ErrorIs(t, err, worker.ErrUnsupportedEventType)
	assert.Empty(t, w.rows)
}

func TestSinkSurfacesFailures(t *testing.T) {
	sink := newSink(t, &fakeWriter{err: errors.New("bigquery down")})
	err := sink.Handle(context.Background(), worker.Envelope{
		EventID:   uuid.NewString(),
		EventType: enums.EventOrderCreated,
		Payload:   []byte(`{"order_id":"x","total_amount":"10"}`),
	})
	assert.Error(t, err)

	sink = newSink(t, &fakeWriter{})
	err = sink.Handle(context.Background(), worker.Envelope{
		EventID:   uuid.NewString(),
		EventType: enums.EventPackageStatusChanged,
		Payload:   []byte(`{invalid`),
	})
	assert.Error(t, err)
}
