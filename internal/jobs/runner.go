package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/classtrack-portal/internal/observability"
)

type Job func(ctx context.Context) error

type Runner struct {
	ctx context.Context
	log *zap.Logger
}

func New(ctx context.Context, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{ctx: ctx, log: log}
}

// Every runs fn once right away and then on every tick until the runner's
// context is done. A panicking run is reported and does not stop the loop.
func (r *Runner) Every(interval time.Duration, name string, fn Job) {
	go func() {
		r.run(name, fn)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-r.ctx.Done():
				return
			case <-t.C:
				r.run(name, fn)
			}
		}
	}()
}

func (r *Runner) run(name string, fn Job) {
	start := time.Now()
	outcome := outcomePanic
	defer func() {
		jobRuns.WithLabelValues(name, outcome).Inc()
		jobDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		if p := recover(); p != nil {
			observability.CaptureErr(fmt.Errorf("panic in job %s: %v", name, p))
			r.log.Error("job panicked", zap.String("job", name), zap.Any("panic", p))
		}
	}()
	if err := fn(r.ctx); err != nil {
		outcome = outcomeError
		r.log.Warn("job failed", zap.String("job", name), zap.Error(err))
		return
	}
	outcome = outcomeOK
	jobLastSuccess.WithLabelValues(name).SetToCurrentTime()
}
