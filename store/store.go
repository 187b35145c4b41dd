// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package store

import (
	"context"
	e "errors"
	"fmt"
	"time"

	"github.com/envira/ieq-pipeline/errors"
	"github.com/envira/ieq-pipeline/telemetry"
	"github.com/google/uuid"
)

type (
	// RecordID identifies a persisted record.
	RecordID = uuid.UUID

	// Store persists telemetry records. Append gives at-least-once semantics;
	// the same reading delivered twice by the broker is stored twice.
	Store interface {
		Append(ctx context.Context, rec *telemetry.Record) (RecordID, error)
		Query(ctx context.Context, q Query) ([]*telemetry.Record, error)
		Latest(ctx context.Context, deviceID string) (*telemetry.Record, error)
		Close() error
	}

	// Query selects records of one device by processing time. Zero bounds are
	// open. Results are newest first.
	Query struct {
		DeviceID string
		From     time.Time
		To       time.Time
		Limit    int
	}
)

// DefaultLimit applies when a query does not set one.
const DefaultLimit = 100

// ErrNotFound is returned by Latest when a device has no records.
var ErrNotFound = e.New("no data found for device")

func (q Query) limit() int {
	if q.Limit <= 0 {
		return DefaultLimit
	}
	return q.Limit
}

func (q Query) includes(t time.Time) bool {
	if !q.From.IsZero() && t.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && t.After(q.To) {
		return false
	}
	return true
}

func validate(rec *telemetry.Record) error {
	if rec == nil || rec.DeviceID == "" {
		return &errors.Error{
			Message:      "record must have a device id",
			Kind:         errors.ArgumentInvalid,
			PropertyName: "DeviceID",
		}
	}
	return nil
}

func storeError(err error, op string, deviceID string) error {
	if err == nil {
		return nil
	}
	n := errors.Normalize(err, errors.StoreError, fmt.Sprintf("store %s", op))
	var se *errors.Error
	if e.As(n, &se) && se.DeviceID == "" {
		se.DeviceID = deviceID
	}
	return n
}
