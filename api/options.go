// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package api

import "log/slog"

type (
	// Option represents a single router option.
	Option interface{ router(*Options) }

	// Options are the resolved router options.
	Options struct {
		// MaxLimit caps the limit query parameter of history requests.
		MaxLimit int

		Logger *slog.Logger
	}

	// WithMaxLimit sets the largest page a history request may ask for.
	WithMaxLimit int

	withLogger struct{ *slog.Logger }
)

// DefaultMaxLimit is the default cap on history page size.
const DefaultMaxLimit = 1000

// Apply resolves the provided list of options.
func (o *Options) Apply(opts []Option, rest ...Option) {
	for _, opt := range opts {
		if opt != nil {
			opt.router(o)
		}
	}
	for _, opt := range rest {
		if opt != nil {
			opt.router(o)
		}
	}
	if o.MaxLimit <= 0 {
		o.MaxLimit = DefaultMaxLimit
	}
}

func (o *Options) router(opt *Options) {
	if o != nil {
		*opt = *o
	}
}

func (o WithMaxLimit) router(opt *Options) {
	opt.MaxLimit = int(o)
}

// WithLogger enables request logging with the provided slog logger.
func WithLogger(logger *slog.Logger) Option {
	return withLogger{logger}
}

func (o withLogger) router(opt *Options) {
	opt.Logger = o.Logger
}
