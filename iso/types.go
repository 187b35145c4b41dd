// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package iso

import (
	"time"

	"github.com/relvacode/iso8601"
	"github.com/sosodev/duration"
)

// Wrappers for the native Go time types that will serialize to ISO 8601.
type (
	// DateTime is a date and time in ISO 8601 format, always rendered in UTC
	// with sub-second precision kept.
	DateTime time.Time

	// Duration is a duration in ISO 8601 format (e.g. PT5S).
	Duration time.Duration
)

// Layout used for every timestamp the service emits.
const Layout = "2006-01-02T15:04:05.000000Z07:00"

// ParseDateTime parses an ISO 8601 date-time in any of the accepted forms.
func ParseDateTime(s string) (time.Time, error) {
	return iso8601.ParseString(s)
}

// ParseDuration parses an ISO 8601 duration.
func ParseDuration(s string) (time.Duration, error) {
	d, err := duration.Parse(s)
	if err != nil {
		return 0, err
	}
	return d.ToTimeDuration(), nil
}

// String returns the date-time as an ISO 8601 string.
func (dt DateTime) String() string {
	return time.Time(dt).UTC().Format(Layout)
}

// MarshalText marshals the date-time to an ISO 8601 string.
func (dt DateTime) MarshalText() ([]byte, error) {
	return []byte(dt.String()), nil
}

// UnmarshalText unmarshals the date-time from an ISO 8601 string.
func (dt *DateTime) UnmarshalText(b []byte) error {
	parsed, err := iso8601.Parse(b)
	if err != nil {
		return err
	}
	*dt = DateTime(parsed.UTC())
	return nil
}

// String returns the duration as an ISO 8601 string.
func (d Duration) String() string {
	return duration.Format(time.Duration(d))
}

// MarshalText marshals the duration to an ISO 8601 string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText unmarshals the duration from an ISO 8601 string.
func (d *Duration) UnmarshalText(b []byte) error {
	parsed, err := ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}
