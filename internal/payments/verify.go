package payments

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/estore-backend/pkg/db/models"
	"github.com/angelmondragon/estore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/estore-backend/pkg/errors"
	"github.com/angelmondragon/estore-backend/pkg/money"
)

// CheckResult is the outcome of a status check. SoftError is set when the
// gateway could not be consulted and Payment reflects the persisted state.
type CheckResult struct {
	Payment   *models.Payment
	SoftError *SoftError
	Changed   bool
}

// MobileCallbackInput is what the mobile app reports after returning from the
// gateway. Status is a hint; the gateway is authoritative.
type MobileCallbackInput struct {
	TransactionID string
	Status        string
	Amount        *decimal.Decimal
	OrderID       *uuid.UUID
	Platform      enums.PaymentPlatform
}

type CallbackResult struct {
	Success bool
	Status  enums.PaymentStatus
	Message string
	Payment *models.Payment
}

type ReconcileSummary struct {
	Scanned    int
	Applied    int
	Unchanged  int
	SoftErrors int
	Failed     int
}

func (s *service) VerifyPayment(ctx context.Context, transactionID string) (*CheckResult, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction_id is required")
	}
	if cached, ok := s.cached(ctx, transactionID); ok && cached.Status != enums.PaymentStatusPending {
		return &CheckResult{Payment: cached}, nil
	}

	payment, err := s.repo.FindByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, notFound(err, "payment not found")
	}
	result, err := s.poll(ctx, payment, SourceVerify)
	if err != nil {
		return nil, err
	}
	if result.Payment.Status != enums.PaymentStatusPending {
		s.store(ctx, result.Payment)
	}
	return result, nil
}

// poll asks the owning gateway for the current status of a pending gateway
// payment and applies the answer. Anything else is returned as-is.
func (s *service) poll(ctx context.Context, payment *models.Payment, source string) (*CheckResult, error) {
	if payment.Status != enums.PaymentStatusPending || payment.PaymentMethod != enums.PaymentMethodPG || payment.PaymentGateway == nil {
		return &CheckResult{Payment: payment}, nil
	}
	gw, ok := s.gateways[*payment.PaymentGateway]
	if !ok {
		return nil, pkgerrors.Newf(pkgerrors.CodeDependency, "payment gateway %q is not configured", *payment.PaymentGateway)
	}

	logCtx := s.logg.WithTransactionID(ctx, payment.TransactionID)
	status := gw.CheckStatus(ctx, payment.TransactionID)
	if status.SoftError != nil {
		s.logg.Warn(s.logg.WithField(logCtx, "error_type", status.SoftError.Type), "payment status check failed: "+status.SoftError.Message)
		return &CheckResult{Payment: payment, SoftError: status.SoftError}, nil
	}
	if !status.Known {
		s.logg.Warn(s.logg.WithField(logCtx, "gateway_status", status.RawStatus), "unknown gateway status treated as pending")
	}
	if status.Status == enums.PaymentStatusPending {
		return &CheckResult{Payment: payment}, nil
	}

	applied, err := s.ApplyObservation(ctx, Observation{
		TransactionID: payment.TransactionID,
		Status:        status.Status,
		GatewayStatus: status.RawStatus,
		ObservedAt:    s.now(),
		Source:        source,
	})
	if err != nil {
		return nil, err
	}
	return &CheckResult{Payment: applied.Payment, Changed: applied.Outcome == OutcomeApplied}, nil
}

func (s *service) MobileCallback(ctx context.Context, input MobileCallbackInput) (*CallbackResult, error) {
	input.TransactionID = strings.TrimSpace(input.TransactionID)
	if input.TransactionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction_id is required")
	}
	payment, err := s.repo.FindByTransactionID(ctx, input.TransactionID)
	if err != nil {
		return nil, notFound(err, "payment not found")
	}
	if input.OrderID != nil && *input.OrderID != payment.OrderID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order_id does not match payment")
	}
	if input.Amount != nil && !money.Round(*input.Amount).Equal(money.Round(payment.Amount)) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount does not match payment")
	}

	logCtx := s.logg.WithTransactionID(ctx, payment.TransactionID)
	s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
		"reported_status": input.Status,
		"platform":        input.Platform.String(),
	}), "mobile payment callback received")

	result, err := s.poll(ctx, payment, SourceMobileCallback)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, payment.TransactionID)

	out := &CallbackResult{
		Success: true,
		Status:  result.Payment.Status,
		Payment: result.Payment,
	}
	switch {
	case result.SoftError != nil:
		out.Message = "payment status could not be confirmed, showing last known status"
	case result.Payment.Status == enums.PaymentStatusCompleted:
		out.Message = "payment completed"
	case result.Payment.Status == enums.PaymentStatusFailed:
		out.Message = "payment failed"
	case result.Payment.Status == enums.PaymentStatusRefunded:
		out.Message = "payment refunded"
	default:
		out.Message = "payment pending"
	}
	return out, nil
}

// ReconcileStale polls gateway payments that have stayed pending longer than olderThan.
func (s *service) ReconcileStale(ctx context.Context, olderThan time.Duration, limit int) (*ReconcileSummary, error) {
	if olderThan <= 0 {
		olderThan = s.cfg.StaleAfter
	}
	if limit <= 0 {
		limit = s.cfg.ReconcileBatchSize
	}
	if limit <= 0 {
		limit = 100
	}
	cutoff := s.now().UTC().Add(-olderThan)
	rows, err := s.repo.ListStalePending(ctx, cutoff, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list stale payments")
	}

	summary := &ReconcileSummary{Scanned: len(rows)}
	for i := range rows {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		payment := rows[i]
		result, err := s.poll(ctx, &payment, SourceReconcile)
		switch {
		case err != nil:
			summary.Failed++
			s.logg.Error(s.logg.WithTransactionID(ctx, payment.TransactionID), "reconcile payment failed", err)
		case result.SoftError != nil:
			summary.SoftErrors++
		case result.Changed:
			summary.Applied++
		default:
			summary.Unchanged++
		}
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"scanned":     summary.Scanned,
		"applied":     summary.Applied,
		"unchanged":   summary.Unchanged,
		"soft_errors": summary.SoftErrors,
		"failed":      summary.Failed,
	}), "stale payment reconciliation finished")
	return summary, nil
}

func (s *service) cached(ctx context.Context, transactionID string) (*models.Payment, bool) {
	raw, err := s.cache.Get(ctx, s.cache.PaymentCacheKey(transactionID))
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			s.logg.Warn(s.logg.WithTransactionID(ctx, transactionID), "payment cache read failed: "+err.Error())
		}
		return nil, false
	}
	var payment models.Payment
	if err := json.Unmarshal([]byte(raw), &payment); err != nil {
		return nil, false
	}
	return &payment, true
}

func (s *service) store(ctx context.Context, payment *models.Payment) {
	if s.cfg.CacheTTL <= 0 {
		return
	}
	raw, err := json.Marshal(payment)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, s.cache.PaymentCacheKey(payment.TransactionID), string(raw), s.cfg.CacheTTL); err != nil {
		s.logg.Warn(s.logg.WithTransactionID(ctx, payment.TransactionID), "payment cache write failed: "+err.Error())
	}
}
