// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/envira/ieq-pipeline/internal/log"
)

type logger struct{ log.Logger }

func (l *logger) failed(
	ctx context.Context,
	task string,
	attempt uint64,
	interval time.Duration,
	err error,
) {
	l.WarnErr(ctx, err,
		slog.String("task", task),
		slog.Uint64("attempt", attempt),
		slog.Duration("retry_in", interval),
	)
}

func (l *logger) gaveUp(
	ctx context.Context,
	task string,
	attempt uint64,
	err error,
) {
	l.Log(ctx, slog.LevelInfo, "retry abandoned",
		slog.String("task", task),
		slog.Uint64("attempt", attempt),
		slog.String("error", err.Error()),
	)
}

func (l *logger) succeeded(
	ctx context.Context,
	task string,
	attempt uint64,
) {
	// Quiet on the happy path; first-try successes are the norm.
	if attempt == 1 {
		return
	}
	l.Log(ctx, slog.LevelInfo, "retry succeeded",
		slog.String("task", task),
		slog.Uint64("attempt", attempt),
	)
}
