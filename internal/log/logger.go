// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package log

import (
	"context"
	"errors"
	"log/slog"
	"runtime"

	"github.com/envira/ieq-pipeline/internal/wallclock"
)

type (
	// Logger wraps an slog.Logger so that components can log unconditionally
	// whether or not the caller supplied one.
	Logger struct{ logger *slog.Logger }

	// Attrs represents an object that exposes extra slog attributes to log.
	Attrs interface {
		Attrs() []slog.Attr
	}
)

// Wrap the slog logger. A nil logger discards everything.
func Wrap(logger *slog.Logger) Logger {
	return Logger{logger}
}

// With returns a logger that adds the given attributes to every record.
func (l Logger) With(attrs ...slog.Attr) Logger {
	if l.logger == nil {
		return l
	}
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	return Logger{l.logger.With(args...)}
}

// Enabled reports whether the wrapped logger emits records at the level.
func (l Logger) Enabled(ctx context.Context, level slog.Level) bool {
	return l.logger != nil && l.logger.Enabled(ctx, level)
}

// Log is designed to build logging wrappers; it should not be called directly.
// See: https://pkg.go.dev/log/slog#hdr-Wrapping_output_methods
func (l Logger) Log(
	ctx context.Context,
	level slog.Level,
	msg string,
	attrs ...slog.Attr,
) {
	l.log(ctx, 4, level, msg, attrs)
}

// Debug logs at debug level.
func (l Logger) Debug(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.log(ctx, 3, slog.LevelDebug, msg, attrs)
}

// Info logs at info level.
func (l Logger) Info(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.log(ctx, 3, slog.LevelInfo, msg, attrs)
}

// Warn logs at warn level.
func (l Logger) Warn(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.log(ctx, 3, slog.LevelWarn, msg, attrs)
}

// Err logs a error with structured logging. Extra attributes are appended
// after those exposed by the error itself.
func (l Logger) Err(ctx context.Context, err error, attrs ...slog.Attr) {
	l.errAt(ctx, slog.LevelError, err, attrs)
}

// WarnErr logs an error that the component recovered from.
func (l Logger) WarnErr(ctx context.Context, err error, attrs ...slog.Attr) {
	l.errAt(ctx, slog.LevelWarn, err, attrs)
}

func (l Logger) errAt(
	ctx context.Context,
	level slog.Level,
	err error,
	attrs []slog.Attr,
) {
	if err == nil {
		return
	}
	var a Attrs
	if errors.As(err, &a) {
		attrs = append(a.Attrs(), attrs...)
	}
	l.log(ctx, 4, level, err.Error(), attrs)
}

// The skip count is the number of frames between runtime.Callers and the
// frame to report as the record source.
func (l Logger) log(
	ctx context.Context,
	skip int,
	level slog.Level,
	msg string,
	attrs []slog.Attr,
) {
	if !l.Enabled(ctx, level) {
		return
	}

	now := wallclock.Instance.Now()
	var pcs [1]uintptr
	runtime.Callers(skip, pcs[:])

	r := slog.NewRecord(now, level, msg, pcs[0])
	r.AddAttrs(attrs...)
	_ = l.logger.Handler().Handle(ctx, r)
}
