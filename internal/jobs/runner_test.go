package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Spok95/classtrack-portal/internal/metrics"
)

type countFn func(ctx context.Context) (int, error)

func (f countFn) CountUngraded(ctx context.Context) (int, error) { return f(ctx) }

func TestEveryRunsImmediatelyAndSurvivesPanics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := New(ctx, nil)

	var n int32
	r.Every(5*time.Millisecond, "flaky", func(context.Context) error {
		if atomic.AddInt32(&n, 1) == 1 {
			panic("boom")
		}
		return errors.New("still failing")
	})

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&n) < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if atomic.LoadInt32(&n) < 3 {
		t.Fatal("job stopped after panic")
	}
	if testutil.ToFloat64(jobRuns.WithLabelValues("flaky", outcomePanic)) != 1 {
		t.Fatal("panic not counted")
	}
	if testutil.ToFloat64(jobRuns.WithLabelValues("flaky", outcomeError)) < 1 {
		t.Fatal("errors not counted")
	}
	if testutil.ToFloat64(jobLastSuccess.WithLabelValues("flaky")) != 0 {
		t.Fatal("failing job recorded a success")
	}
}

func TestRunRecordsSuccess(t *testing.T) {
	r := New(context.Background(), nil)
	r.run("tidy", func(context.Context) error { return nil })
	if testutil.ToFloat64(jobRuns.WithLabelValues("tidy", outcomeOK)) != 1 {
		t.Fatal("success not counted")
	}
	if testutil.ToFloat64(jobLastSuccess.WithLabelValues("tidy")) < float64(time.Now().Add(-time.Minute).Unix()) {
		t.Fatal("last success timestamp not set")
	}
}

func TestUngradedBacklogSetsGauge(t *testing.T) {
	job := UngradedBacklog(countFn(func(context.Context) (int, error) { return 7, nil }))
	if err := job(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(metrics.UngradedBacklog); got != 7 {
		t.Fatalf("gauge = %v", got)
	}
}
