// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package telemetry

import "github.com/guregu/null/v5"

// Conversion factors from raw device units.
const (
	// MQ135Divisor maps the gas sensor ADC reading onto a 0-100 penalty.
	MQ135Divisor = 20.0

	// LDRDivisor maps the 12-bit photoresistor reading onto lux-equivalent.
	LDRDivisor = 4.096

	// SoundRMSDivisor maps the microphone RMS onto dB-equivalent.
	SoundRMSDivisor = 10.0
)

// Clamp ranges of the canonical fields derived from raw readings.
const (
	AirQualityMax = 100.0
	LightMax      = 1000.0
	SoundMax      = 100.0
)

// Normalize converts a sensor set to the canonical reading. It never fails:
// absent or unusable fields come back null.
//
// When any canonical field name is present the canonical values are copied
// as they are, without clamping, which makes Normalize idempotent on its own
// output. Otherwise each raw device field is converted independently.
func Normalize(in SensorSet) Sensors {
	if in.HasCanonical {
		return in.Canonical
	}

	return Sensors{
		AirQuality: convert(in.MQ135, func(v float64) float64 {
			return clamp(AirQualityMax-v/MQ135Divisor, 0, AirQualityMax)
		}),
		Temperature: in.DHT.T,
		Humidity:    in.DHT.H,
		Light: convert(in.LDR, func(v float64) float64 {
			return clamp(v/LDRDivisor, 0, LightMax)
		}),
		Sound: convert(in.SoundRMS, func(v float64) float64 {
			return clamp(v/SoundRMSDivisor, 0, SoundMax)
		}),
	}
}

func convert(v null.Float, f func(float64) float64) null.Float {
	if !v.Valid {
		return null.Float{}
	}
	return null.FloatFrom(f(v.Float64))
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}
