package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/estore-backend/internal/payments"
	"github.com/angelmondragon/estore-backend/pkg/logger"
)

type paymentReconciler interface {
	ReconcileStale(ctx context.Context, olderThan time.Duration, limit int) (*payments.ReconcileSummary, error)
}

type PaymentReconcileJobParams struct {
	Logger     *logger.Logger
	Payments   paymentReconciler
	StaleAfter time.Duration
	BatchSize  int
}

// NewPaymentReconcileJob polls the gateway for pending payments whose webhook
// never arrived.
func NewPaymentReconcileJob(params PaymentReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments service required")
	}
	return &paymentReconcileJob{
		logg:       params.Logger,
		payments:   params.Payments,
		staleAfter: params.StaleAfter,
		batchSize:  params.BatchSize,
	}, nil
}

type paymentReconcileJob struct {
	logg       *logger.Logger
	payments   paymentReconciler
	staleAfter time.Duration
	batchSize  int
}

func (j *paymentReconcileJob) Name() string { return "payment-reconciliation" }

// Run fails only when the scan itself fails or every polled payment errored.
func (j *paymentReconcileJob) Run(ctx context.Context) error {
	summary, err := j.payments.ReconcileStale(ctx, j.staleAfter, j.batchSize)
	if err != nil {
		return fmt.Errorf("reconcile stale payments: %w", err)
	}
	if summary.Scanned > 0 && summary.Failed == summary.Scanned {
		return fmt.Errorf("all %d stale payments failed to reconcile", summary.Failed)
	}
	if summary.Failed > 0 {
		j.logg.Warn(j.logg.WithField(ctx, "failed", summary.Failed), "some stale payments failed to reconcile")
	}
	return nil
}
