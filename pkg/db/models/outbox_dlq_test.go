package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/estore-backend/pkg/enums"
)

func TestOutboxEventDeadLetter(t *testing.T) {
	event := OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventPaymentStatusChanged,
		AggregateType: enums.AggregatePayment,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1}`),
		AttemptCount:  10,
	}
	failedAt := time.Date(2026, 4, 1, 10, 0, 0, 0, time.FixedZone("IST", 19800))

	entry := event.DeadLetter(enums.OutboxDLQReasonMaxAttempts, errors.New("publish timeout"), failedAt)
	assert.Equal(t, event.ID, entry.EventID)
	assert.Equal(t, event.AggregateID, entry.AggregateID)
	assert.Equal(t, 10, entry.AttemptCount)
	assert.Equal(t, time.UTC, entry.FailedAt.Location())
	assert.True(t, entry.FailedAt.Equal(failedAt))
	require.NotNil(t, entry.ErrorMessage)
	assert.Equal(t, "publish timeout", *entry.ErrorMessage)

	assert.Nil(t, event.DeadLetter(enums.OutboxDLQReasonNonRetryable, nil, failedAt).ErrorMessage)
}
