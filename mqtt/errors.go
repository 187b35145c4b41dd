// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"fmt"

	"github.com/envira/ieq-pipeline/errors"
)

// ConnectionError indicates that the network connection to the broker could
// not be opened.
type ConnectionError struct {
	wrapped error
	message string
}

func (e *ConnectionError) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrapped)
	}
	return e.message
}

func (e *ConnectionError) Unwrap() error {
	return e.wrapped
}

// DisconnectError indicates that the broker closed the session with a
// DISCONNECT packet.
type DisconnectError struct {
	ReasonCode byte
}

func (e *DisconnectError) Error() string {
	return fmt.Sprintf(
		"received DISCONNECT packet with reason code 0x%02x (%s)",
		e.ReasonCode,
		ReasonName(e.ReasonCode),
	)
}

// MQTT v5 reason codes that can appear in a CONNACK, SUBACK or DISCONNECT.
var reasonNames = map[byte]string{
	0x00: "success",
	0x01: "granted qos 1",
	0x02: "granted qos 2",
	0x04: "disconnect with will message",
	0x80: "unspecified error",
	0x81: "malformed packet",
	0x82: "protocol error",
	0x83: "implementation specific error",
	0x84: "unsupported protocol version",
	0x85: "client identifier not valid",
	0x86: "bad user name or password",
	0x87: "not authorized",
	0x88: "server unavailable",
	0x89: "server busy",
	0x8A: "banned",
	0x8B: "server shutting down",
	0x8C: "bad authentication method",
	0x8D: "keep alive timeout",
	0x8E: "session taken over",
	0x8F: "topic filter invalid",
	0x90: "topic name invalid",
	0x91: "packet identifier in use",
	0x93: "receive maximum exceeded",
	0x95: "packet too large",
	0x97: "quota exceeded",
	0x98: "administrative action",
	0x99: "payload format invalid",
	0x9A: "retain not supported",
	0x9B: "qos not supported",
	0x9C: "use another server",
	0x9D: "server moved",
	0x9E: "shared subscriptions not supported",
	0x9F: "connection rate exceeded",
	0xA0: "maximum connect time",
	0xA1: "subscription identifiers not supported",
	0xA2: "wildcard subscriptions not supported",
}

// ReasonName returns the human readable name of an MQTT v5 reason code.
func ReasonName(code byte) string {
	if name, ok := reasonNames[code]; ok {
		return name
	}
	return fmt.Sprintf("unknown reason code 0x%02x", code)
}

// IsFailure reports whether the reason code signals a failure.
func IsFailure(code byte) bool {
	return code >= 0x80
}

func connackError(code byte, broker string) *errors.Error {
	return &errors.Error{
		Kind:          errors.ConnectError,
		Message:       "broker rejected connection",
		ReasonCode:    code,
		Reason:        ReasonName(code),
		PropertyName:  "broker",
		PropertyValue: broker,
	}
}

func subackError(code byte, filter string) *errors.Error {
	return &errors.Error{
		Kind:       errors.ConnectError,
		Message:    "broker rejected subscription",
		Topic:      filter,
		ReasonCode: code,
		Reason:     ReasonName(code),
	}
}

func connectError(msg, broker string, err error) *errors.Error {
	return &errors.Error{
		Kind:          errors.ConnectError,
		Message:       msg,
		NestedError:   err,
		PropertyName:  "broker",
		PropertyValue: broker,
	}
}
