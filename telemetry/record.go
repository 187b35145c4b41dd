// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package telemetry

import (
	"encoding/json"
	"math"
	"time"

	"github.com/envira/ieq-pipeline/internal/wallclock"
	"github.com/google/uuid"
)

// Record is one processed reading. It is not modified once created.
type Record struct {
	ID       uuid.UUID `json:"id"`
	DeviceID string    `json:"device_id"`
	SiteID   string    `json:"site_id"`

	// DeviceTimestamp is the device clock in milliseconds; 0 when unknown.
	DeviceTimestamp int64 `json:"ts"`

	Sensors    Sensors         `json:"sensors"`
	RawSensors json.RawMessage `json:"raw_sensors,omitempty"`
	IEQScore   float64         `json:"ieq_score"`

	// ProcessedAt is the server clock when the record was built.
	ProcessedAt time.Time `json:"processed_at"`

	// Timestamp is the device time when usable, else ProcessedAt.
	Timestamp time.Time `json:"timestamp"`
}

// NewRecord normalizes and scores a decoded message into a record stamped
// with the current server time.
func NewRecord(msg *Message) *Record {
	sensors := Normalize(msg.Sensors)
	now := wallclock.Instance.Now().UTC()

	return &Record{
		ID:              uuid.New(),
		DeviceID:        msg.DeviceID,
		SiteID:          msg.SiteID,
		DeviceTimestamp: msg.TS,
		Sensors:         sensors,
		RawSensors:      msg.RawSensors,
		IEQScore:        Score(sensors),
		ProcessedAt:     now,
		Timestamp:       ResolveTimestamp(msg.TS, now),
	}
}

// Device timestamps outside this range are treated as unusable. The upper
// bound is the last instant representable in int64 Unix nanoseconds.
var (
	minDeviceTime = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	maxDeviceTime = time.Unix(0, math.MaxInt64).UTC()
)

// ResolveTimestamp interprets a device millisecond timestamp, falling back to
// the processing time when it is absent or out of range.
func ResolveTimestamp(ts int64, processedAt time.Time) time.Time {
	if ts <= 0 {
		return processedAt
	}
	t := time.UnixMilli(ts).UTC()
	if t.Before(minDeviceTime) || t.After(maxDeviceTime) {
		return processedAt
	}
	return t
}
