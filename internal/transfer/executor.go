package transfer

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/ligustah/ferry/internal/chunk"
)

// AttemptFunc performs one network attempt for a chunk and returns the
// number of bytes transferred.
type AttemptFunc func(ctx context.Context, task *chunk.Task) (int64, error)

// Executor runs chunk attempts with retry and backoff.
type Executor struct {
	backoff Backoff
	abort   <-chan struct{}
}

// NewExecutor returns an executor that stops retrying once abort is closed.
// abort may be nil.
func NewExecutor(backoff Backoff, abort <-chan struct{}) *Executor {
	return &Executor{backoff: backoff, abort: abort}
}

func (e *Executor) aborted(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	select {
	case <-e.abort:
		return true
	default:
		return false
	}
}

// Execute runs attempt until it succeeds, fails permanently, or the task's
// retry budget is spent. Every failed attempt increments task.Attempt, but
// only transient failures are retried; once Attempt exceeds MaxRetries a
// *RetryBudgetExhaustedError is returned.
func (e *Executor) Execute(ctx context.Context, task *chunk.Task, attempt AttemptFunc) (int64, error) {
	for {
		if e.aborted(ctx) {
			return 0, ErrAborted
		}

		n, err := attempt(ctx, task)
		if err == nil {
			return n, nil
		}

		kind := Classify(err)
		if kind == Aborted {
			return 0, ErrAborted
		}
		task.Attempt++
		if kind == Permanent {
			return 0, &PermanentError{Index: task.Index, Err: err}
		}
		if task.Attempt > task.MaxRetries {
			return 0, &RetryBudgetExhaustedError{
				Index:    task.Index,
				Start:    task.Start,
				End:      task.End,
				Attempts: task.Attempt,
				Err:      err,
			}
		}

		logrus.WithFields(logrus.Fields{
			"function": "Execute",
			"chunk":    task.Index,
			"attempt":  task.Attempt,
			"max":      task.MaxRetries,
			"error":    err.Error(),
		}).Debug("Retrying chunk after transient error")

		if err := e.backoff.Wait(ctx, task.Attempt, e.abort); err != nil {
			return 0, err
		}
	}
}

// Do runs a whole-object operation (create, commit) under the same retry
// policy as a chunk.
func (e *Executor) Do(ctx context.Context, maxRetries int, op func(ctx context.Context) error) error {
	task := &chunk.Task{Index: -1, Start: 0, End: -1, MaxRetries: maxRetries}
	_, err := e.Execute(ctx, task, func(ctx context.Context, _ *chunk.Task) (int64, error) {
		return 0, op(ctx)
	})
	return err
}
