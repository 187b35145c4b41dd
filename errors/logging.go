// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package errors

import "log/slog"

// Attrs returns the structured logging attributes relevant to the error kind.
func (e *Error) Attrs() []slog.Attr {
	a := make([]slog.Attr, 0, 6)

	a = append(a, slog.String("kind", e.Kind.String()))

	if e.Topic != "" {
		a = append(a, slog.String("topic", e.Topic))
	}
	if e.DeviceID != "" {
		a = append(a, slog.String("device_id", e.DeviceID))
	}

	switch e.Kind {
	case ConnectError:
		if e.ReasonCode != 0 {
			a = append(a,
				slog.Int("reason_code", int(e.ReasonCode)),
				slog.String("reason", e.Reason),
			)
		}
	case ConfigurationInvalid, ArgumentInvalid:
		a = append(a,
			slog.String("property_name", e.PropertyName),
			slog.Any("property_value", e.PropertyValue),
		)
	}

	return a
}
