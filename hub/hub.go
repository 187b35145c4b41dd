// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/envira/ieq-pipeline/errors"
	"github.com/envira/ieq-pipeline/internal/log"
	"github.com/envira/ieq-pipeline/internal/wallclock"
	"github.com/envira/ieq-pipeline/telemetry"
	"github.com/google/uuid"
)

type (
	// Conn is a live subscriber connection. WriteMessage is only ever called
	// from one goroutine at a time; Close may be called concurrently with it.
	Conn interface {
		WriteMessage(ctx context.Context, data []byte) error
		Close() error
	}

	// Hub fans processed readings out to live subscribers. It is safe for
	// concurrent use. A slow or broken subscriber is dropped without
	// affecting delivery to the others.
	Hub struct {
		opts Options
		log  log.Logger

		mu     sync.Mutex
		subs   map[*Subscription]struct{}
		closed bool

		writers sync.WaitGroup
	}

	// Subscription is the hub's handle on one registered connection.
	Subscription struct {
		id    string
		hub   *Hub
		conn  Conn
		queue chan []byte
		done  chan struct{}
		stop  func()
	}
)

// New creates an empty hub.
func New(opt ...Option) *Hub {
	h := &Hub{subs: map[*Subscription]struct{}{}}
	h.opts.Apply(opt)
	h.log = log.Wrap(h.opts.Logger)
	return h
}

// ID identifies the subscription in logs.
func (s *Subscription) ID() string {
	return s.id
}

// Done is closed once the subscription has been removed from the hub.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Register adds a connection to the hub and queues the handshake frame for
// it. Registering on a closed hub closes the connection immediately.
func (h *Hub) Register(conn Conn) *Subscription {
	done := make(chan struct{})
	sub := &Subscription{
		id:    uuid.NewString(),
		hub:   h,
		conn:  conn,
		queue: make(chan []byte, h.opts.QueueSize),
		done:  done,
		stop:  sync.OnceFunc(func() { close(done) }),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.stop()
		_ = conn.Close()
		return sub
	}
	h.subs[sub] = struct{}{}
	count := len(h.subs)
	h.writers.Add(1)
	h.mu.Unlock()

	// The queue is empty, so the handshake always fits.
	if data, err := json.Marshal(newHandshake(count)); err == nil {
		sub.queue <- data
	}

	go h.write(sub)

	h.log.Info(context.Background(), "subscriber connected",
		slog.String("subscriber", sub.id),
		slog.Int("active", count),
	)
	return sub
}

// Unregister removes a subscription and closes its connection. Removing a
// subscription that is not registered is a no-op.
func (h *Hub) Unregister(sub *Subscription) {
	if sub == nil || !h.remove(sub) {
		return
	}
	h.log.Info(context.Background(), "subscriber disconnected",
		slog.String("subscriber", sub.id),
		slog.Int("active", h.Count()),
	)
}

// Broadcast queues the record for every live subscriber. It never blocks on
// a subscriber and never fails; subscribers that cannot keep up are removed.
func (h *Hub) Broadcast(rec *telemetry.Record) {
	data, err := json.Marshal(NewUpdate(rec))
	if err != nil {
		h.log.Err(context.Background(), &errors.Error{
			Message:     "cannot encode telemetry frame",
			Kind:        errors.DeliveryError,
			NestedError: err,
			DeviceID:    rec.DeviceID,
		})
		return
	}
	h.broadcast(data)
}

func (h *Hub) broadcast(data []byte) {
	h.mu.Lock()
	subs := make([]*Subscription, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.queue <- data:
		default:
			h.drop(sub, &errors.Error{
				Message: "subscriber queue full",
				Kind:    errors.DeliveryError,
			})
		}
	}
}

// Count returns the number of live subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close removes every subscriber, closes their connections and waits for
// their writers to exit. Later registrations are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := h.subs
	h.subs = map[*Subscription]struct{}{}
	h.mu.Unlock()

	for sub := range subs {
		sub.stop()
	}
	h.writers.Wait()
}

func (h *Hub) remove(sub *Subscription) bool {
	h.mu.Lock()
	_, ok := h.subs[sub]
	delete(h.subs, sub)
	h.mu.Unlock()

	if ok {
		sub.stop()
	}
	return ok
}

func (h *Hub) drop(sub *Subscription, err *errors.Error) {
	if h.remove(sub) {
		h.log.WarnErr(context.Background(), err,
			slog.String("subscriber", sub.id),
		)
	}
}

// write owns all writes to one connection. It exits, closing the
// connection, once the subscription is stopped or a write fails.
func (h *Hub) write(sub *Subscription) {
	defer h.writers.Done()
	defer func() { _ = sub.conn.Close() }()

	for {
		select {
		case <-sub.done:
			return
		case data := <-sub.queue:
			ctx, cancel := wallclock.Instance.WithTimeout(
				context.Background(),
				h.opts.WriteTimeout,
			)
			err := sub.conn.WriteMessage(ctx, data)
			cancel()

			if err != nil {
				h.drop(sub, &errors.Error{
					Message:     "cannot write to subscriber",
					Kind:        errors.DeliveryError,
					NestedError: err,
				})
				return
			}
		}
	}
}
