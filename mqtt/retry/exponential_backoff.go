// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package retry

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/envira/ieq-pipeline/internal/log"
	"github.com/envira/ieq-pipeline/internal/wallclock"
)

// Default interval bounds.
const (
	DefaultMinInterval = time.Second / 8
	DefaultMaxInterval = 30 * time.Second
)

// ExponentialBackoff implements a retry policy with exponential backoff and
// optional jitter. The zero value retries forever, which is what a broker
// connection wants: only context cancellation or a non-retryable task error
// ends it.
type ExponentialBackoff struct {
	// MaxAttempts sets the maximum number of attempts. The default value of 0
	// indicates unlimited attempts; setting this to 1 will disable retries.
	MaxAttempts uint64

	// MinInterval is the interval before the first retry (before jitter).
	// Defaults to DefaultMinInterval.
	MinInterval time.Duration

	// MaxInterval caps the interval between retries (before jitter).
	// Defaults to DefaultMaxInterval.
	MaxInterval time.Duration

	// Timeout is the total timeout for all attempts.
	Timeout time.Duration

	// NoJitter removes the default jitter.
	NoJitter bool

	// Logger receives one record per failed attempt and the final outcome.
	Logger *slog.Logger
}

// Start runs the task until it succeeds, declines a retry, exhausts its
// attempts or the context ends.
func (e *ExponentialBackoff) Start(
	ctx context.Context,
	name string,
	task Task,
) error {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = wallclock.Instance.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	l := logger{log.Wrap(e.Logger)}

	for attempt := uint64(1); ; attempt++ {
		retry, err := task(ctx)
		if err == nil {
			l.succeeded(ctx, name, attempt)
			return nil
		}

		interval := e.next(ctx, attempt, retry)
		if interval == 0 {
			l.gaveUp(ctx, name, attempt, err)
			return err
		}
		l.failed(ctx, name, attempt, interval, err)

		select {
		case <-wallclock.Instance.After(interval):
		case <-ctx.Done():
			l.gaveUp(ctx, name, attempt, ctx.Err())
			return ctx.Err()
		}
	}
}

// Interval returns the backoff after the given failed attempt, before jitter.
func (e *ExponentialBackoff) Interval(attempt uint64) time.Duration {
	minInterval := e.MinInterval
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}

	maxInterval := e.MaxInterval
	if maxInterval <= 0 {
		maxInterval = DefaultMaxInterval
	}
	if maxInterval < minInterval {
		maxInterval = minInterval
	}

	// Clamp the exponent so the interval never exceeds the maximum.
	factor := math.Pow(2, min(
		float64(attempt-1),
		math.Log2(float64(maxInterval)/float64(minInterval)),
	))
	return time.Duration(factor * float64(minInterval))
}

func (e *ExponentialBackoff) next(
	ctx context.Context,
	attempt uint64,
	retry bool,
) time.Duration {
	switch {
	case !retry,
		attempt == e.MaxAttempts,
		ctx.Err() != nil:
		return 0
	}

	interval := e.Interval(attempt)
	if !e.NoJitter {
		interval = jitter(interval)
	}
	return max(interval, time.Nanosecond)
}

// Spread retries between 95% and 105% of the base interval.
func jitter(base time.Duration) time.Duration {
	// #nosec G404
	j := rand.New(rand.NewSource(wallclock.Instance.Now().UnixNano())).Float64()
	return time.Duration(float64(base) * (.95 + .1*j))
}
