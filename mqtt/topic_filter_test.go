// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt_test

import (
	"testing"

	"github.com/envira/ieq-pipeline/mqtt"
	"github.com/stretchr/testify/require"
)

func TestTopicFilterMatch(t *testing.T) {
	tests := []struct {
		filter   string
		topic    string
		expected bool
	}{
		{mqtt.DefaultTopicFilter, "envira/lab/esp32-001/telemetry", true},
		{mqtt.DefaultTopicFilter, "envira/lab/esp32-001/status", false},
		{mqtt.DefaultTopicFilter, "envira/lab/telemetry", false},
		{mqtt.DefaultTopicFilter, "envira/lab/a/b/telemetry", false},
		{mqtt.DefaultTopicFilter, "other/lab/esp32-001/telemetry", false},
		{"$share/ingest/envira/+/+/telemetry", "envira/a/b/telemetry", true},
		{"$share/ingest", "envira/a/b/telemetry", false},
		{"envira/#", "envira", true},
		{"envira/#", "envira/lab/esp32-001/telemetry", true},
		{"#", "$SYS/broker/uptime", false},
		{"+/broker/uptime", "$SYS/broker/uptime", false},
		{"envira/+/esp32-001/#", "envira/lab/esp32-001", true},
		{"envira/#/telemetry", "envira/lab/telemetry", false},
	}

	for _, test := range tests {
		require.Equal(
			t,
			test.expected,
			mqtt.IsTopicFilterMatch(test.filter, test.topic),
			"Topic filter: %s, Topic name: %s",
			test.filter,
			test.topic,
		)
	}
}

func TestReasonName(t *testing.T) {
	for code, name := range map[byte]string{
		0x84: "unsupported protocol version",
		0x85: "client identifier not valid",
		0x86: "bad user name or password",
		0x87: "not authorized",
		0x88: "server unavailable",
		0x8F: "topic filter invalid",
		0xFE: "unknown reason code 0xfe",
	} {
		require.Equal(t, name, mqtt.ReasonName(code))
	}
	require.False(t, mqtt.IsFailure(0x00))
	require.False(t, mqtt.IsFailure(0x01))
	require.True(t, mqtt.IsFailure(0x80))
}

func TestRandomClientID(t *testing.T) {
	id := mqtt.RandomClientID()
	require.Len(t, id, 23)
	require.Regexp(t, "^envira[0-9A-Za-z]+$", id)
}

func TestStateString(t *testing.T) {
	require.Equal(t, "connected", mqtt.Connected.String())
	require.Equal(t, "shutting_down", mqtt.ShuttingDown.String())
	require.Equal(t, "unknown", mqtt.State(42).String())
}
