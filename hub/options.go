// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package hub

import (
	"log/slog"
	"time"
)

type (
	// Option represents a single hub option.
	Option interface{ hub(*Options) }

	// Options are the resolved hub options.
	Options struct {
		// QueueSize is the number of frames buffered per subscriber. A
		// subscriber whose queue is full when a broadcast arrives is dropped.
		QueueSize int

		// WriteTimeout bounds each frame write to a subscriber.
		WriteTimeout time.Duration

		Logger *slog.Logger
	}

	// WithQueueSize sets the per-subscriber queue length.
	WithQueueSize int

	// WithWriteTimeout sets the per-frame write timeout.
	WithWriteTimeout time.Duration

	withLogger struct{ *slog.Logger }
)

const (
	DefaultQueueSize    = 64
	DefaultWriteTimeout = 10 * time.Second
)

// Apply resolves the provided list of options.
func (o *Options) Apply(opts []Option, rest ...Option) {
	for _, opt := range opts {
		if opt != nil {
			opt.hub(o)
		}
	}
	for _, opt := range rest {
		if opt != nil {
			opt.hub(o)
		}
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
}

func (o *Options) hub(opt *Options) {
	if o != nil {
		*opt = *o
	}
}

func (o WithQueueSize) hub(opt *Options) {
	opt.QueueSize = int(o)
}

func (o WithWriteTimeout) hub(opt *Options) {
	opt.WriteTimeout = time.Duration(o)
}

// WithLogger enables logging with the provided slog logger.
func WithLogger(logger *slog.Logger) Option {
	return withLogger{logger}
}

func (o withLogger) hub(opt *Options) {
	opt.Logger = o.Logger
}
