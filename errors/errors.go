// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package errors

import (
	"context"
	"errors"
	"fmt"
	"os"
)

type (
	// Error represents a structured pipeline error. None of these are fatal to
	// the pipeline; they are logged by the component that produced them and
	// the message or subscriber in question is dropped.
	Error struct {
		Message string
		Kind    Kind

		NestedError error

		// Topic and DeviceID identify the message being processed, when known.
		Topic    string
		DeviceID string

		// ReasonCode and Reason describe a rejected MQTT CONNECT or SUBSCRIBE.
		ReasonCode byte
		Reason     string

		PropertyName  string
		PropertyValue any
	}

	// Kind defines the type of error being reported.
	Kind int
)

// The following are the defined error kinds.
const (
	// DecodeError: a broker payload could not be parsed into a telemetry
	// message. The message is dropped.
	DecodeError Kind = iota

	// ConnectError: the broker connection or subscription could not be
	// established. Followed by a reconnect attempt.
	ConnectError

	// StoreError: a record could not be persisted. The record is still
	// broadcast.
	StoreError

	// DeliveryError: a frame could not be written to a live subscriber. That
	// subscriber is removed.
	DeliveryError

	// ConfigurationInvalid: a configuration value failed validation.
	ConfigurationInvalid

	// ArgumentInvalid: a caller supplied an invalid argument.
	ArgumentInvalid

	UnknownError
)

var kindNames = map[Kind]string{
	DecodeError:          "decode_error",
	ConnectError:         "connect_error",
	StoreError:           "store_error",
	DeliveryError:        "delivery_error",
	ConfigurationInvalid: "configuration_invalid",
	ArgumentInvalid:      "argument_invalid",
	UnknownError:         "unknown_error",
}

// String returns the snake_case name of the kind.
func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error returns the error as a string.
func (e *Error) Error() string {
	if e.NestedError != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.NestedError)
	}
	return e.Message
}

// Unwrap exposes the nested error to errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.NestedError
}

// Is matches any *Error of the same kind, so callers can test for a category
// with errors.Is(err, &errors.Error{Kind: errors.StoreError}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Message == ""
}

// IsKind reports whether err is (or wraps) an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// Normalize well-known errors into pipeline errors of the given kind. The
// kind always comes from the caller; timeouts and cancellations only change
// the message and stay reachable through errors.Is on the nested error.
func Normalize(err error, kind Kind, msg string) error {
	var e *Error
	switch {
	case err == nil:
		return nil

	case errors.As(err, &e):
		return err

	case os.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		msg = fmt.Sprintf("%s timed out", msg)

	case errors.Is(err, context.Canceled):
		msg = fmt.Sprintf("%s cancelled", msg)
	}

	return &Error{
		Message:     msg,
		Kind:        kind,
		NestedError: err,
	}
}
