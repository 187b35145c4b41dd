// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package telemetry

import (
	"math"

	"github.com/guregu/null/v5"
)

// Trend directions.
const (
	Rising  = "rising"
	Falling = "falling"
	Stable  = "stable"
)

// Trend compares the latest value of a field with the one before it.
type Trend struct {
	Value  float64 `json:"value"`
	Trend  string  `json:"trend"`
	Change float64 `json:"change"`
}

// Trends compares each canonical field of the latest reading with the
// previous one. Fields missing from either reading are omitted.
func Trends(latest, previous Sensors) map[string]Trend {
	out := make(map[string]Trend, len(canonicalKeys))
	add := func(name string, cur, prev null.Float) {
		if !cur.Valid || !prev.Valid {
			return
		}
		t := Trend{
			Value:  cur.Float64,
			Trend:  Stable,
			Change: math.Round((cur.Float64-prev.Float64)*100) / 100,
		}
		switch {
		case cur.Float64 > prev.Float64:
			t.Trend = Rising
		case cur.Float64 < prev.Float64:
			t.Trend = Falling
		}
		out[name] = t
	}

	add("temperature", latest.Temperature, previous.Temperature)
	add("humidity", latest.Humidity, previous.Humidity)
	add("air_quality", latest.AirQuality, previous.AirQuality)
	add("light", latest.Light, previous.Light)
	add("sound", latest.Sound, previous.Sound)
	return out
}
