// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package hub

import (
	"github.com/envira/ieq-pipeline/iso"
	"github.com/envira/ieq-pipeline/telemetry"
)

// Frame types pushed to subscribers.
const (
	TypeConnection = "connection"
	TypeTelemetry  = "telemetry"
)

type (
	// Handshake is the first frame a subscriber receives.
	Handshake struct {
		Type    string `json:"type"`
		Message string `json:"message"`

		// ActiveConnections counts live subscribers including this one.
		ActiveConnections int `json:"active_connections"`
	}

	// Update is pushed for every processed reading.
	Update struct {
		Type string     `json:"type"`
		Data UpdateData `json:"data"`
	}

	// UpdateData is the reading carried by an Update.
	UpdateData struct {
		DeviceID  string            `json:"device_id"`
		Sensors   telemetry.Sensors `json:"sensors"`
		IEQScore  float64           `json:"ieq_score"`
		Timestamp iso.DateTime      `json:"timestamp"`
	}
)

// NewUpdate builds the frame for a record. The timestamp is when the record
// was processed.
func NewUpdate(rec *telemetry.Record) Update {
	return Update{
		Type: TypeTelemetry,
		Data: UpdateData{
			DeviceID:  rec.DeviceID,
			Sensors:   rec.Sensors,
			IEQScore:  rec.IEQScore,
			Timestamp: iso.DateTime(rec.ProcessedAt),
		},
	}
}

func newHandshake(count int) Handshake {
	return Handshake{
		Type:              TypeConnection,
		Message:           "Connected",
		ActiveConnections: count,
	}
}
