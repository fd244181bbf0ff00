package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/angelmondragon/estore-backend/pkg/logger"
	"github.com/angelmondragon/estore-backend/pkg/metrics"
)

type fakeLock struct {
	held     bool
	acquires int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.held {
		return false, nil
	}
	f.held = true
	f.acquires++
	return true, nil
}

func (f *fakeLock) Release(context.Context) error { f.held = false; return nil }

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func newTestService(t *testing.T, lock Lock, registry *Registry, m *metrics.CronJobMetrics) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		Registry: registry,
		Lock:     lock,
		Metrics:  m,
	})
	require.NoError(t, err)
	return svc
}

func TestRunCycleRunsAllDueJobsAndCombinesErrors(t *testing.T) {
	ok := &testJob{name: "ok"}
	failA := &testJob{name: "fail-a", err: errors.New("boom")}
	failB := &testJob{name: "fail-b", err: errors.New("bang")}
	registry := NewRegistry()
	registry.Register(failA, time.Minute)
	registry.Register(ok, time.Minute)
	registry.Register(failB, time.Minute)

	reg := prometheus.NewRegistry()
	m := metrics.NewCronJobMetrics(reg)
	svc := newTestService(t, &fakeLock{}, registry, m)

	err := svc.runCycle(context.Background())
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	assert.Equal(t, 1, ok.runs)
	assert.Equal(t, 1, failA.runs)
	assert.Equal(t, 1, failB.runs)

	families, err := reg.Gather()
	require.NoError(t, err)
	outcomes := map[string]int{}
	for _, family := range families {
		if family.GetName() != "estore_cron_job_runs_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "outcome" {
					outcomes[label.GetValue()] += int(metric.GetCounter().GetValue())
				}
			}
		}
	}
	assert.Equal(t, map[string]int{"ok": 1, "error": 2}, outcomes)
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "job"}
	registry := NewRegistry()
	registry.Register(job, time.Minute)
	svc := newTestService(t, &fakeLock{held: true}, registry, nil)

	require.NoError(t, svc.runCycle(context.Background()))
	assert.Zero(t, job.runs)
}

func TestRunCycleDoesNotLockWithoutDueJobs(t *testing.T) {
	now := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	job := &testJob{name: "job"}
	registry := NewRegistry()
	registry.Register(job, time.Hour)
	lock := &fakeLock{}
	svc := newTestService(t, lock, registry, nil)
	svc.now = func() time.Time { return now }

	require.NoError(t, svc.runCycle(context.Background()))
	now = now.Add(time.Minute)
	require.NoError(t, svc.runCycle(context.Background()))

	assert.Equal(t, 1, job.runs)
	assert.Equal(t, 1, lock.acquires)
}
