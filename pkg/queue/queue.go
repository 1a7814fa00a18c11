// Package queue implements Component H: the bounded dispatch queue sitting
// between the proxy controller and the upstream. It combines two of the
// teacher SDK's examples/middleware/rate-limiting limiters — a concurrency
// semaphore and a token-bucket spacing limiter — the way that example's own
// CombinedLimiter composes them, except built on golang.org/x/sync/semaphore
// (already part of the teacher's stack) instead of a bare channel, since the
// weighted semaphore gives FIFO-ordered, context-cancellable admission for
// free.
package queue

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const (
	// DefaultConcurrency is N in "at most N concurrent in-flight upstream
	// calls".
	DefaultConcurrency = 3
	// DefaultSpacingMillis is M in "no two consecutive departures within
	// less than M milliseconds".
	DefaultSpacingMillis = 200
)

// Queue enforces bounded concurrency and minimum inter-departure spacing
// against the upstream. The zero value is not usable; construct with New.
type Queue struct {
	sem     *semaphore.Weighted
	spacing *rate.Limiter
}

// New builds a Queue admitting at most concurrency simultaneous callers,
// none departing less than spacingMillis after the previous one. Values
// <= 0 select the package defaults.
func New(concurrency int, spacingMillis int) *Queue {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if spacingMillis <= 0 {
		spacingMillis = DefaultSpacingMillis
	}

	interval := rate.Every(time.Duration(spacingMillis) * time.Millisecond)
	return &Queue{
		sem:     semaphore.NewWeighted(int64(concurrency)),
		spacing: rate.NewLimiter(interval, 1),
	}
}

// Admit blocks until both a concurrency slot is free and the minimum
// spacing since the last departure has elapsed, then returns a release
// function the caller must invoke exactly once. If ctx is cancelled before
// admission, Admit returns ctx.Err() and occupies no slot.
func (q *Queue) Admit(ctx context.Context) (release func(), err error) {
	if err := q.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	if err := q.spacing.Wait(ctx); err != nil {
		q.sem.Release(1)
		return nil, err
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		q.sem.Release(1)
	}, nil
}
