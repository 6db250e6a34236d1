package jobs

import (
	"context"

	"github.com/Spok95/classtrack-portal/internal/metrics"
)

// BacklogCounter counts submissions that still wait for a grade.
type BacklogCounter interface {
	CountUngraded(ctx context.Context) (int, error)
}

// UngradedBacklog keeps the portal_ungraded_submissions gauge current.
func UngradedBacklog(src BacklogCounter) Job {
	return func(ctx context.Context) error {
		n, err := src.CountUngraded(ctx)
		if err != nil {
			return err
		}
		metrics.UngradedBacklog.Set(float64(n))
		return nil
	}
}
