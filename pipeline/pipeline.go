// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/envira/ieq-pipeline/errors"
	"github.com/envira/ieq-pipeline/internal"
	"github.com/envira/ieq-pipeline/internal/log"
	"github.com/envira/ieq-pipeline/internal/wallclock"
	"github.com/envira/ieq-pipeline/mqtt"
	"github.com/envira/ieq-pipeline/store"
	"github.com/envira/ieq-pipeline/telemetry"
)

type (
	// Source delivers broker messages. It is satisfied by *mqtt.Subscriber.
	Source interface {
		Run(context.Context) error
		Messages() <-chan *mqtt.Message
		Connected() bool
		Broker() string
	}

	// Broadcaster fans records out to live subscribers. It is satisfied by
	// *hub.Hub.
	Broadcaster interface {
		Broadcast(*telemetry.Record)
	}

	// Config sizes the pipeline.
	Config struct {
		// Workers is the number of storage and broadcast goroutines. Records
		// of one device always go to the same worker.
		Workers int

		// QueueSize is the number of records buffered per worker.
		QueueSize int

		// StoreTimeout bounds each store append.
		StoreTimeout time.Duration
	}

	// Pipeline receives telemetry from the source, turns each message into a
	// scored record, persists it and broadcasts it. Store failures never
	// prevent the broadcast.
	Pipeline struct {
		config Config
		source Source
		store  store.Store
		hub    Broadcaster
		log    log.Logger

		received     atomic.Uint64
		decodeErrors atomic.Uint64
		stored       atomic.Uint64
		storeErrors  atomic.Uint64
		broadcast    atomic.Uint64
	}

	// Stats are cumulative counters since the pipeline was created.
	Stats struct {
		Received     uint64 `json:"received"`
		DecodeErrors uint64 `json:"decode_errors"`
		Stored       uint64 `json:"stored"`
		StoreErrors  uint64 `json:"store_errors"`
		Broadcast    uint64 `json:"broadcast"`
	}
)

// Configuration defaults.
const (
	DefaultWorkers      = 4
	DefaultQueueSize    = 64
	DefaultStoreTimeout = 5 * time.Second
)

// New creates a pipeline over the given components. The pipeline does not own
// their lifecycles beyond Run.
func New(
	config Config,
	source Source,
	st store.Store,
	hub Broadcaster,
	logger *slog.Logger,
) *Pipeline {
	if config.Workers <= 0 {
		config.Workers = DefaultWorkers
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}
	if config.StoreTimeout <= 0 {
		config.StoreTimeout = DefaultStoreTimeout
	}

	return &Pipeline{
		config: config,
		source: source,
		store:  st,
		hub:    hub,
		log:    log.Wrap(logger).With(slog.String("module", "pipeline")),
	}
}

// Run starts the source and processes its messages until the context ends.
// On return the source has disconnected and every record that was dispatched
// has been stored and broadcast.
func (p *Pipeline) Run(ctx context.Context) error {
	dispatch, drain := internal.Sharded(
		uint(p.config.Workers),
		uint(p.config.QueueSize),
		p.deliver,
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := p.source.Run(ctx); err != nil {
			p.log.Err(ctx, err)
		}
	}()

	p.log.Info(ctx, "pipeline started",
		slog.Int("workers", p.config.Workers),
		slog.String("broker", p.source.Broker()),
	)

	msgs := p.source.Messages()
	for {
		select {
		case <-ctx.Done():
			drain()
			wg.Wait()
			p.log.Info(ctx, "pipeline stopped")
			return nil

		case msg := <-msgs:
			rec, err := p.record(ctx, msg.Topic, msg.Payload)
			if err != nil {
				continue
			}
			dispatch(ctx, rec.DeviceID, rec)
		}
	}
}

// Process handles one message synchronously: decode, broadcast, store. A store
// failure is returned after the record has been broadcast.
func (p *Pipeline) Process(
	ctx context.Context,
	topic string,
	payload []byte,
) (*telemetry.Record, error) {
	rec, err := p.record(ctx, topic, payload)
	if err != nil {
		return nil, err
	}
	return rec, p.deliverErr(ctx, rec)
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Received:     p.received.Load(),
		DecodeErrors: p.decodeErrors.Load(),
		Stored:       p.stored.Load(),
		StoreErrors:  p.storeErrors.Load(),
		Broadcast:    p.broadcast.Load(),
	}
}

// Connected reports whether the source is currently connected.
func (p *Pipeline) Connected() bool {
	return p.source.Connected()
}

// Broker returns the source's broker address.
func (p *Pipeline) Broker() string {
	return p.source.Broker()
}

func (p *Pipeline) record(
	ctx context.Context,
	topic string,
	payload []byte,
) (*telemetry.Record, error) {
	p.received.Add(1)

	msg, err := telemetry.Decode(topic, payload)
	if err != nil {
		p.decodeErrors.Add(1)
		p.log.WarnErr(ctx, err)
		return nil, err
	}

	rec := telemetry.NewRecord(msg)
	p.log.Debug(ctx, "record built",
		slog.String("device_id", rec.DeviceID),
		slog.Float64("ieq_score", rec.IEQScore),
	)
	return rec, nil
}

func (p *Pipeline) deliver(ctx context.Context, rec *telemetry.Record) {
	_ = p.deliverErr(ctx, rec)
}

func (p *Pipeline) deliverErr(
	ctx context.Context,
	rec *telemetry.Record,
) error {
	// Broadcast only enqueues, so the live view never waits on the store.
	p.hub.Broadcast(rec)
	p.broadcast.Add(1)

	// Records already accepted are persisted even while shutting down.
	sctx, cancel := wallclock.Instance.WithTimeout(
		context.WithoutCancel(ctx),
		p.config.StoreTimeout,
	)
	defer cancel()

	_, err := p.store.Append(sctx, rec)
	if err != nil {
		p.storeErrors.Add(1)
		err = errors.Normalize(err, errors.StoreError, "store append")
		p.log.Err(ctx, err, slog.String("record_id", rec.ID.String()))
		return err
	}
	p.stored.Add(1)
	return nil
}
