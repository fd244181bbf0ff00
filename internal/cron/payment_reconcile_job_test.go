package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/estore-backend/internal/payments"
	"github.com/angelmondragon/estore-backend/pkg/logger"
)

type fakeReconciler struct {
	summary   *payments.ReconcileSummary
	err       error
	olderThan time.Duration
	limit     int
}

func (f *fakeReconciler) ReconcileStale(_ context.Context, olderThan time.Duration, limit int) (*payments.ReconcileSummary, error) {
	f.olderThan = olderThan
	f.limit = limit
	return f.summary, f.err
}

func newReconcileJob(t *testing.T, r *fakeReconciler) Job {
	t.Helper()
	job, err := NewPaymentReconcileJob(PaymentReconcileJobParams{
		Logger:     logger.New(logger.Options{Output: io.Discard}),
		Payments:   r,
		StaleAfter: 15 * time.Minute,
		BatchSize:  25,
	})
	require.NoError(t, err)
	return job
}

func TestPaymentReconcileJobPassesWindow(t *testing.T) {
	r := &fakeReconciler{summary: &payments.ReconcileSummary{Scanned: 3, Applied: 1, Unchanged: 1, Failed: 1}}
	job := newReconcileJob(t, r)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, "payment-reconciliation", job.Name())
	assert.Equal(t, 15*time.Minute, r.olderThan)
	assert.Equal(t, 25, r.limit)
}

func TestPaymentReconcileJobFailures(t *testing.T) {
	job := newReconcileJob(t, &fakeReconciler{err: errors.New("db down")})
	assert.Error(t, job.Run(context.Background()))

	job = newReconcileJob(t, &fakeReconciler{summary: &payments.ReconcileSummary{Scanned: 2, Failed: 2}})
	assert.Error(t, job.Run(context.Background()))

	job = newReconcileJob(t, &fakeReconciler{summary: &payments.ReconcileSummary{}})
	assert.NoError(t, job.Run(context.Background()))
}
