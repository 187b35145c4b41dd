// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package telemetry

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/guregu/null/v5"
)

type (
	// Sensors is the canonical five-field reading. Any field may be null.
	Sensors struct {
		Temperature null.Float `json:"temperature"`
		Humidity    null.Float `json:"humidity"`
		AirQuality  null.Float `json:"air_quality"`
		Light       null.Float `json:"light"`
		Sound       null.Float `json:"sound"`
	}

	// DHT is the combined temperature/humidity sensor reading.
	DHT struct {
		T null.Float `json:"t"`
		H null.Float `json:"h"`
	}

	// SensorSet is a sensor object as it arrives from a device or is read
	// back from storage. It carries whichever of the raw device fields and
	// canonical fields were present; Normalize decides which to use.
	SensorSet struct {
		MQ135    null.Float
		DHT      DHT
		LDR      null.Float
		SoundRMS null.Float

		Canonical Sensors

		// HasCanonical is set when any canonical field name was present,
		// whatever its value.
		HasCanonical bool
	}
)

var canonicalKeys = []string{
	"temperature",
	"humidity",
	"air_quality",
	"light",
	"sound",
}

// CanonicalSet wraps an already canonical reading so it can be fed back
// through Normalize unchanged.
func CanonicalSet(s Sensors) SensorSet {
	return SensorSet{Canonical: s, HasCanonical: true}
}

// UnmarshalJSON decodes a sensor object field by field. Values that are not
// numbers (or numeric strings) decode to null rather than failing. A JSON
// null decodes to an empty set.
func (s *SensorSet) UnmarshalJSON(b []byte) error {
	*s = SensorSet{}
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		return nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}

	for _, k := range canonicalKeys {
		if _, ok := fields[k]; ok {
			s.HasCanonical = true
			break
		}
	}

	s.Canonical = Sensors{
		Temperature: number(fields["temperature"]),
		Humidity:    number(fields["humidity"]),
		AirQuality:  number(fields["air_quality"]),
		Light:       number(fields["light"]),
		Sound:       number(fields["sound"]),
	}

	s.MQ135 = number(fields["mq135"])
	s.LDR = number(fields["ldr"])
	s.SoundRMS = number(fields["sound_rms"])

	var dht map[string]json.RawMessage
	if raw, ok := fields["dht"]; ok && json.Unmarshal(raw, &dht) == nil {
		s.DHT = DHT{T: number(dht["t"]), H: number(dht["h"])}
	}

	return nil
}

// number converts a JSON value to a nullable float. Numbers and strings
// holding a finite number are accepted; anything else is null.
func number(raw json.RawMessage) null.Float {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return null.Float{}
	}

	var text string
	switch raw[0] {
	case '"':
		if err := json.Unmarshal(raw, &text); err != nil {
			return null.Float{}
		}
		text = strings.TrimSpace(text)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		text = string(raw)
	default:
		return null.Float{}
	}

	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return null.Float{}
	}
	return null.FloatFrom(f)
}
