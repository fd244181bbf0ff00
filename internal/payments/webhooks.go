package payments

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/angelmondragon/estore-backend/pkg/cashfree"
	"github.com/angelmondragon/estore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/estore-backend/pkg/errors"
	"github.com/angelmondragon/estore-backend/pkg/phonepe"
)

// WebhookHeaders are the Cashfree signature headers.
type WebhookHeaders struct {
	Timestamp string
	Signature string
}

// WebhookResult is acknowledged to the gateway with a 2xx whenever err is nil.
type WebhookResult struct {
	Success   bool
	Message   string
	Duplicate bool
	Outcome   Outcome
}

func (s *service) HandlePhonePeWebhook(ctx context.Context, authorization string, body []byte) (*WebhookResult, error) {
	if !phonepe.VerifyWebhookAuthorization(authorization, s.phonePe.WebhookUsername, s.phonePe.WebhookPassword) {
		s.logg.Warn(ctx, "phonepe webhook authorization rejected")
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook authorization")
	}
	var event phonepe.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload")
	}
	// Payments are keyed by the merchantOrderId we sent at creation. PhonePe's
	// own orderId is never stored, so it cannot correlate.
	txnID := strings.TrimSpace(event.Payload.MerchantOrderID)
	if txnID == "" || strings.TrimSpace(event.Payload.State) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook payload missing merchant order id or state")
	}
	status, known := NormalizePhonePe(event.Payload.State)
	return s.handleWebhook(ctx, "phonepe", body, Observation{
		TransactionID: txnID,
		Status:        status,
		GatewayStatus: event.Payload.State,
		ObservedAt:    s.now(),
		Source:        SourcePhonePeWebhook,
	}, known)
}

func (s *service) HandleCashfreeWebhook(ctx context.Context, headers WebhookHeaders, body []byte) (*WebhookResult, error) {
	if s.cashfree.SecretKey != "" && !cashfree.VerifySignature(s.cashfree.SecretKey, headers.Timestamp, headers.Signature, body) {
		s.logg.Warn(ctx, "cashfree webhook signature rejected")
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature")
	}
	var event cashfree.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload")
	}
	txnID := event.LinkID()
	if txnID == "" || strings.TrimSpace(event.Data.Payment.PaymentStatus) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook payload missing link id or payment status")
	}
	observedAt := s.now()
	if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(event.EventTime)); err == nil {
		observedAt = ts
	}
	status, known := NormalizeCashfreePayment(event.Data.Payment.PaymentStatus)
	return s.handleWebhook(ctx, "cashfree", body, Observation{
		TransactionID: txnID,
		Status:        status,
		GatewayStatus: event.Data.Payment.PaymentStatus,
		ObservedAt:    observedAt,
		Source:        SourceCashfreeWebhook,
	}, known)
}

func (s *service) handleWebhook(ctx context.Context, scope string, body []byte, obs Observation, known bool) (*WebhookResult, error) {
	logCtx := s.logg.WithTransactionID(ctx, obs.TransactionID)
	logCtx = s.logg.WithField(logCtx, "source", obs.Source)
	if !known {
		s.logg.Warn(s.logg.WithField(logCtx, "gateway_status", obs.GatewayStatus), "unknown gateway status treated as pending")
	}

	if s.replay != nil {
		seen, err := s.replay.CheckAndMark(ctx, scope, body)
		if err != nil {
			s.logg.Warn(logCtx, "webhook replay check failed: "+err.Error())
		} else if seen {
			s.logg.Info(logCtx, "duplicate webhook ignored")
			return &WebhookResult{Success: true, Message: "duplicate webhook ignored", Duplicate: true}, nil
		}
	}

	result, err := s.ApplyObservation(ctx, obs)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
			// Acknowledged so the gateway stops retrying a transition we will never accept.
			return &WebhookResult{Success: true, Message: "payment already settled"}, nil
		}
		if s.replay != nil {
			if ferr := s.replay.Forget(ctx, scope, body); ferr != nil {
				s.logg.Warn(logCtx, "webhook replay release failed: "+ferr.Error())
			}
		}
		return nil, err
	}

	msg := "webhook processed"
	switch result.Outcome {
	case OutcomeUnchanged:
		msg = "payment status unchanged"
	case OutcomeStale:
		msg = "stale webhook ignored"
	}
	if result.Outcome == OutcomeApplied && result.Payment.Status == enums.PaymentStatusCompleted {
		msg = "payment completed"
	}
	return &WebhookResult{Success: true, Message: msg, Outcome: result.Outcome}, nil
}
