// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/envira/ieq-pipeline/errors"
)

// TopicLeaf is the last level of every telemetry topic.
const TopicLeaf = "telemetry"

// Message is a decoded inbound telemetry payload.
type Message struct {
	DeviceID string
	SiteID   string
	TS       int64
	Sensors  SensorSet

	// RawSensors is the sensors object exactly as received.
	RawSensors json.RawMessage
}

type payload struct {
	DeviceID   *string         `json:"device_id"`
	SiteID     *string         `json:"site_id"`
	TS         json.RawMessage `json:"ts"`
	RawSensors json.RawMessage `json:"sensors"`
}

// TelemetryTopic builds the topic a device publishes on.
func TelemetryTopic(root, siteID, deviceID string) string {
	return strings.Join([]string{root, siteID, deviceID, TopicLeaf}, "/")
}

// TopicFilter is the subscription covering every site and device under root.
func TopicFilter(root string) string {
	return TelemetryTopic(root, "+", "+")
}

// ParseTopic extracts the site and device levels of a telemetry topic.
func ParseTopic(topic string) (siteID, deviceID string, ok bool) {
	levels := strings.Split(topic, "/")
	if len(levels) != 4 || levels[3] != TopicLeaf {
		return "", "", false
	}
	return levels[1], levels[2], true
}

// Decode parses an inbound payload. Missing device or site identifiers are
// taken from the topic. A payload that is not a JSON object, or that names
// no device at all, is a DecodeError.
func Decode(topic string, data []byte) (*Message, error) {
	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, &errors.Error{
			Message:     "malformed telemetry payload",
			Kind:        errors.DecodeError,
			NestedError: err,
			Topic:       topic,
		}
	}

	siteID, deviceID, _ := ParseTopic(topic)
	msg := &Message{
		DeviceID: deref(p.DeviceID, deviceID),
		SiteID:   deref(p.SiteID, siteID),
		TS:       millis(p.TS),
	}

	if msg.DeviceID == "" {
		return nil, &errors.Error{
			Message: "telemetry payload has no device_id",
			Kind:    errors.DecodeError,
			Topic:   topic,
		}
	}

	raw := bytes.TrimSpace(p.RawSensors)
	if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		if raw[0] != '{' {
			return nil, &errors.Error{
				Message:  fmt.Sprintf("sensors must be an object, got %.16s", raw),
				Kind:     errors.DecodeError,
				Topic:    topic,
				DeviceID: msg.DeviceID,
			}
		}
		if err := json.Unmarshal(raw, &msg.Sensors); err != nil {
			return nil, &errors.Error{
				Message:     "malformed sensors object",
				Kind:        errors.DecodeError,
				NestedError: err,
				Topic:       topic,
				DeviceID:    msg.DeviceID,
			}
		}
		msg.RawSensors = append(json.RawMessage(nil), raw...)
	}

	return msg, nil
}

func deref(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}

func millis(raw json.RawMessage) int64 {
	v := number(raw)
	if !v.Valid || v.Float64 <= 0 || v.Float64 >= math.MaxInt64 {
		return 0
	}
	return int64(v.Float64)
}
