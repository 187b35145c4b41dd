// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package telemetry

import (
	"math"

	"github.com/guregu/null/v5"
)

// Score weights. They sum to 1.
const (
	WeightAir         = 0.4
	WeightTemperature = 0.3
	WeightLight       = 0.2
	WeightSound       = 0.1
)

// Values assumed for null fields when scoring.
const (
	DefaultTemperature = 22.0
	DefaultHumidity    = 50.0
	DefaultAirQuality  = 70.0
	DefaultLight       = 400.0
	DefaultSound       = 40.0
)

// NeutralScore is returned if a score cannot be computed.
const NeutralScore = 50.0

// Comfort bands.
const (
	IdealTemperature = 22.0
	IdealHumidity    = 50.0
	IdealLightLow    = 300.0
	IdealLightHigh   = 600.0
)

// ScoreBreakdown holds the component scores behind an IEQ score. Humidity is
// scored but carries no weight.
type ScoreBreakdown struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	AirQuality  float64 `json:"air_quality"`
	Light       float64 `json:"light"`
	Sound       float64 `json:"sound"`
	IEQ         float64 `json:"ieq"`
}

// Score computes the 0-100 indoor environmental quality score. It is total:
// null fields take their defaults and any failure yields NeutralScore.
func Score(s Sensors) float64 {
	return Breakdown(s).IEQ
}

// Breakdown computes the IEQ score along with its component scores.
func Breakdown(s Sensors) (b ScoreBreakdown) {
	defer func() {
		if recover() != nil {
			b = ScoreBreakdown{IEQ: NeutralScore}
		}
	}()

	b.Temperature = TemperatureScore(
		orDefault(s.Temperature, DefaultTemperature),
	)
	b.Humidity = HumidityScore(orDefault(s.Humidity, DefaultHumidity))
	b.AirQuality = orDefault(s.AirQuality, DefaultAirQuality)
	b.Light = LightScore(orDefault(s.Light, DefaultLight))
	b.Sound = SoundScore(orDefault(s.Sound, DefaultSound))

	ieq := b.AirQuality*WeightAir +
		b.Temperature*WeightTemperature +
		b.Light*WeightLight +
		b.Sound*WeightSound
	if math.IsNaN(ieq) || math.IsInf(ieq, 0) {
		return ScoreBreakdown{IEQ: NeutralScore}
	}

	b.IEQ = clamp(round1(ieq), 0, 100)
	return b
}

// TemperatureScore loses 5 points per degree away from the ideal.
func TemperatureScore(t float64) float64 {
	return max(0, 100-math.Abs(t-IdealTemperature)*5)
}

// HumidityScore loses 2 points per percent away from the ideal.
func HumidityScore(h float64) float64 {
	return max(0, 100-math.Abs(h-IdealHumidity)*2)
}

// LightScore is 100 inside the ideal band, linear below it and decays by a
// point per 10 lux above it.
func LightScore(l float64) float64 {
	switch {
	case l < IdealLightLow:
		return l / IdealLightLow * 100
	case l > IdealLightHigh:
		return max(0, 100-(l-IdealLightHigh)/10)
	default:
		return 100
	}
}

// SoundScore loses a point per dB.
func SoundScore(s float64) float64 {
	return max(0, 100-s)
}

// Grade buckets a score the way it is presented to users.
func Grade(score float64) string {
	switch {
	case score >= 75:
		return "excellent"
	case score >= 50:
		return "good"
	case score >= 25:
		return "fair"
	default:
		return "poor"
	}
}

func orDefault(v null.Float, d float64) float64 {
	if v.Valid {
		return v.Float64
	}
	return d
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
