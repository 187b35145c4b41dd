// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package store

import (
	"context"
	"slices"
	"sync"

	"github.com/envira/ieq-pipeline/telemetry"
)

// Memory keeps records in process. It backs tests and local runs.
type Memory struct {
	mu      sync.RWMutex
	devices map[string][]*telemetry.Record
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{devices: map[string][]*telemetry.Record{}}
}

// Append stores the record.
func (m *Memory) Append(
	ctx context.Context,
	rec *telemetry.Record,
) (RecordID, error) {
	if err := validate(rec); err != nil {
		return RecordID{}, err
	}
	if err := ctx.Err(); err != nil {
		return RecordID{}, storeError(err, "append", rec.DeviceID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	recs := m.devices[rec.DeviceID]

	// Keep each device sorted by processing time so reads are a reverse scan.
	i, _ := slices.BinarySearchFunc(
		recs,
		rec,
		func(a, b *telemetry.Record) int {
			if a.ProcessedAt.After(b.ProcessedAt) {
				return 1
			}
			return -1
		},
	)
	m.devices[rec.DeviceID] = slices.Insert(recs, i, rec)
	return rec.ID, nil
}

// Query returns matching records, newest first.
func (m *Memory) Query(
	ctx context.Context,
	q Query,
) ([]*telemetry.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeError(err, "query", q.DeviceID)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	recs := m.devices[q.DeviceID]
	limit := q.limit()
	out := make([]*telemetry.Record, 0, min(limit, len(recs)))
	for i := len(recs) - 1; i >= 0 && len(out) < limit; i-- {
		if q.includes(recs[i].ProcessedAt) {
			out = append(out, recs[i])
		}
	}
	return out, nil
}

// Latest returns the newest record of a device.
func (m *Memory) Latest(
	ctx context.Context,
	deviceID string,
) (*telemetry.Record, error) {
	recs, err := m.Query(ctx, Query{DeviceID: deviceID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return recs[0], nil
}

// Len returns the number of records held across all devices.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, recs := range m.devices {
		n += len(recs)
	}
	return n
}

// Close is a no-op.
func (*Memory) Close() error {
	return nil
}
