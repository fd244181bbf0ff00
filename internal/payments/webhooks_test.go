package payments

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/estore-backend/pkg/cashfree"
	"github.com/angelmondragon/estore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/estore-backend/pkg/errors"
	"github.com/angelmondragon/estore-backend/pkg/phonepe"
)

func phonePeBody(txnID, state string) []byte {
	return []byte(fmt.Sprintf(`{"event":"checkout.order.completed","payload":{"orderId":"OMO123","merchantOrderId":%q,"state":%q,"amount":2500}}`, txnID, state))
}

func TestPhonePeWebhookRejectsBadAuthorization(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.HandlePhonePeWebhook(context.Background(), "nope", phonePeBody("pp_x", "COMPLETED"))
	assert.Equal(t, pkgerrors.CodeUnauthorized, pkgerrors.As(err).Code())
}

func TestPhonePeWebhookReplayIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.order(t, uuid.New(), "25.00")
	p := f.payment(t, order, enums.PaymentGatewayPhonePe, enums.PaymentStatusPending, fixedNow.Add(-time.Minute))
	auth := phonepe.WebhookAuthorization("hook", "secret")
	body := phonePeBody(p.TransactionID, "COMPLETED")

	first, err := f.svc.HandlePhonePeWebhook(ctx, auth, body)
	require.NoError(t, err)
	assert.True(t, first.Success)
	assert.Equal(t, OutcomeApplied, first.Outcome)
	eventsAfterFirst := len(f.events.events)

	second, err := f.svc.HandlePhonePeWebhook(ctx, auth, body)
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.True(t, second.Duplicate)
	assert.Len(t, f.events.events, eventsAfterFirst)

	// Same payload with the replay mark gone still changes nothing.
	f.store.values = map[string]string{}
	third, err := f.svc.HandlePhonePeWebhook(ctx, auth, body)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, third.Outcome)
	assert.Len(t, f.events.events, eventsAfterFirst)

	stored, order2 := f.reload(t, p.TransactionID)
	assert.Equal(t, enums.PaymentStatusCompleted, stored.Status)
	assert.Equal(t, enums.PaymentStatusCompleted, order2.PaymentStatus)
}

func TestPhonePeWebhookUnknownTransaction(t *testing.T) {
	f := newFixture(t)
	auth := phonepe.WebhookAuthorization("hook", "secret")
	body := phonePeBody("pp_unknown", "COMPLETED")

	_, err := f.svc.HandlePhonePeWebhook(context.Background(), auth, body)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())

	// the replay mark is released so a retry after the payment lands is processed
	seen, err := f.svc.replay.CheckAndMark(context.Background(), "phonepe", body)
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestPhonePeWebhookCorrelatesOnMerchantOrderID(t *testing.T) {
	f := newFixture(t)
	order := f.order(t, uuid.New(), "25.00")
	p := f.payment(t, order, enums.PaymentGatewayPhonePe, enums.PaymentStatusPending, fixedNow.Add(-time.Minute))
	auth := phonepe.WebhookAuthorization("hook", "secret")

	body := []byte(fmt.Sprintf(`{"payload":{"orderId":%q,"state":"COMPLETED"}}`, p.TransactionID))
	_, err := f.svc.HandlePhonePeWebhook(context.Background(), auth, body)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	stored, _ := f.reload(t, p.TransactionID)
	assert.Equal(t, enums.PaymentStatusPending, stored.Status)
}

func TestPhonePeWebhookIllegalTransitionAcknowledged(t *testing.T) {
	f := newFixture(t)
	order := f.order(t, uuid.New(), "25.00")
	p := f.payment(t, order, enums.PaymentGatewayPhonePe, enums.PaymentStatusFailed, fixedNow.Add(-time.Minute))

	result, err := f.svc.HandlePhonePeWebhook(context.Background(), phonepe.WebhookAuthorization("hook", "secret"), phonePeBody(p.TransactionID, "COMPLETED"))
	require.NoError(t, err)
	assert.True(t, result.Success)

	stored, _ := f.reload(t, p.TransactionID)
	assert.Equal(t, enums.PaymentStatusFailed, stored.Status)
}

func TestCashfreeWebhookVerifiesSignature(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.order(t, uuid.New(), "25.00")
	p := f.payment(t, order, enums.PaymentGatewayCashfree, enums.PaymentStatusPending, fixedNow.Add(-time.Hour))
	body := []byte(fmt.Sprintf(`{"type":"PAYMENT_SUCCESS_WEBHOOK","event_time":"2026-03-15T09:29:00Z","data":{"order":{"order_id":"CF_1","order_tags":{"link_id":%q}},"payment":{"cf_payment_id":1,"payment_status":"USER_DROPPED"}}}`, p.TransactionID))
	ts := "1773566940"

	_, err := f.svc.HandleCashfreeWebhook(ctx, WebhookHeaders{Timestamp: ts, Signature: "bad"}, body)
	assert.Equal(t, pkgerrors.CodeUnauthorized, pkgerrors.As(err).Code())

	result, err := f.svc.HandleCashfreeWebhook(ctx, WebhookHeaders{
		Timestamp: ts,
		Signature: cashfree.Signature("cf-secret", ts, body),
	}, body)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, result.Outcome)

	stored, _ := f.reload(t, p.TransactionID)
	assert.Equal(t, enums.PaymentStatusFailed, stored.Status)
	require.NotNil(t, stored.GatewayStatus)
	assert.Equal(t, "USER_DROPPED", *stored.GatewayStatus)
}
