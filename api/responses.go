// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package api

import (
	"github.com/envira/ieq-pipeline/iso"
	"github.com/envira/ieq-pipeline/pipeline"
	"github.com/envira/ieq-pipeline/telemetry"
	"github.com/google/uuid"
)

type (
	// Health is the body of GET /health.
	Health struct {
		Status           string         `json:"status"`
		Timestamp        iso.DateTime   `json:"timestamp"`
		MQTTBroker       string         `json:"mqtt_broker"`
		Database         string         `json:"database"`
		ActiveWebsockets int            `json:"active_websockets"`
		MQTTBrokerURL    string         `json:"mqtt_broker_url"`
		Stats            pipeline.Stats `json:"stats"`
	}

	// Latest is the body of GET /latest/{deviceID}.
	Latest struct {
		DeviceID           string            `json:"device_id"`
		SiteID             string            `json:"site_id"`
		Timestamp          iso.DateTime      `json:"timestamp"`
		TS                 *iso.DateTime     `json:"ts"`
		Sensors            telemetry.Sensors `json:"sensors"`
		IEQScore           float64           `json:"ieq_score"`
		EnvironmentalScore float64           `json:"environmental_score"`
		Grade              string            `json:"grade"`
	}

	// Summary is the body of GET /latest/device/{deviceID}/summary.
	Summary struct {
		DeviceID       string                     `json:"device_id"`
		SiteID         string                     `json:"site_id"`
		CurrentTime    iso.DateTime               `json:"current_time"`
		LastUpdate     iso.DateTime               `json:"last_update"`
		IEQScore       float64                    `json:"ieq_score"`
		CurrentSensors telemetry.Sensors          `json:"current_sensors"`
		Trends         map[string]telemetry.Trend `json:"trends"`
		ReadingCount   int                        `json:"reading_count"`
	}

	// History is the body of GET /telemetry/{deviceID}.
	History struct {
		DeviceID string `json:"device_id"`
		Count    int    `json:"count"`

		// TimeWindowHours is null when explicit bounds were requested.
		TimeWindowHours *float64 `json:"time_window_hours"`

		Data []Reading `json:"data"`
	}

	// Reading is one stored record in a History.
	Reading struct {
		ID          uuid.UUID         `json:"id"`
		DeviceID    string            `json:"device_id"`
		SiteID      string            `json:"site_id"`
		Sensors     telemetry.Sensors `json:"sensors"`
		IEQScore    float64           `json:"ieq_score"`
		ProcessedAt iso.DateTime      `json:"processed_at"`
		Timestamp   iso.DateTime      `json:"timestamp"`
	}

	// Problem is the body of every error response.
	Problem struct {
		Detail string `json:"detail"`
	}
)

func newLatest(rec *telemetry.Record) Latest {
	l := Latest{
		DeviceID:           rec.DeviceID,
		SiteID:             rec.SiteID,
		Timestamp:          iso.DateTime(rec.ProcessedAt),
		Sensors:            rec.Sensors,
		IEQScore:           rec.IEQScore,
		EnvironmentalScore: rec.IEQScore,
		Grade:              telemetry.Grade(rec.IEQScore),
	}
	if rec.DeviceTimestamp > 0 {
		ts := iso.DateTime(rec.Timestamp)
		l.TS = &ts
	}
	return l
}

func newReading(rec *telemetry.Record) Reading {
	return Reading{
		ID:          rec.ID,
		DeviceID:    rec.DeviceID,
		SiteID:      rec.SiteID,
		Sensors:     rec.Sensors,
		IEQScore:    rec.IEQScore,
		ProcessedAt: iso.DateTime(rec.ProcessedAt),
		Timestamp:   iso.DateTime(rec.Timestamp),
	}
}
