package music

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"
)

// Status is where an external job stands after polling.
type Status int

const (
	StatusPending Status = iota
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Outcome is the result of checking a job. Raw carries the provider's
// payload for diagnostics.
type Outcome[R any] struct {
	Status Status
	Result R
	Raw    json.RawMessage
}

// CheckFunc asks the provider for the current state of a job.
type CheckFunc[R any] func(ctx context.Context, taskID string) (Outcome[R], error)

// Poller waits for a long-running job with a bounded number of checks.
type Poller[R any] struct {
	Check       CheckFunc[R]
	Interval    time.Duration
	MaxAttempts int
}

// Poll waits Interval before each check and stops at the first terminal
// outcome. A check that errors counts as a failed job. Only context
// cancellation is returned as an error.
func (p Poller[R]) Poll(ctx context.Context, taskID string) (Outcome[R], error) {
	timer := time.NewTimer(p.Interval)
	defer timer.Stop()

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return Outcome[R]{}, ctx.Err()
		case <-timer.C:
		}

		out, err := p.Check(ctx, taskID)
		if err != nil {
			if ctx.Err() != nil {
				return Outcome[R]{}, ctx.Err()
			}
			logrus.WithError(err).WithField("task", taskID).Error("Error polling job")
			return Outcome[R]{Status: StatusFailed}, nil
		}

		logrus.WithFields(logrus.Fields{
			"task":    taskID,
			"attempt": attempt,
			"max":     p.MaxAttempts,
			"status":  out.Status,
		}).Debug("Polled job")

		if out.Status != StatusPending {
			return out, nil
		}
		timer.Reset(p.Interval)
	}
	return Outcome[R]{Status: StatusPending}, nil
}
