// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package telemetry_test

import (
	"math"
	"testing"
	"time"

	"github.com/envira/ieq-pipeline/errors"
	"github.com/envira/ieq-pipeline/internal/wallclock"
	"github.com/envira/ieq-pipeline/telemetry"
	"github.com/guregu/null/v5"
	"github.com/stretchr/testify/require"
)

const topic = "envira/office_main/esp32-001/telemetry"

func TestTopics(t *testing.T) {
	require.Equal(t, "envira/+/+/telemetry", telemetry.TopicFilter("envira"))

	site, device, ok := telemetry.ParseTopic(topic)
	require.True(t, ok)
	require.Equal(t, "office_main", site)
	require.Equal(t, "esp32-001", device)

	_, _, ok = telemetry.ParseTopic("envira/office_main/esp32-001/status")
	require.False(t, ok)
}

func TestDecode(t *testing.T) {
	msg, err := telemetry.Decode(topic, []byte(`{
		"device_id": "esp32-001",
		"site_id": "home",
		"ts": 4266,
		"sensors": {"mq135": 1115, "dht": {"t": 24.2, "h": 54.3}}
	}`))
	require.NoError(t, err)
	require.Equal(t, "esp32-001", msg.DeviceID)
	require.Equal(t, "home", msg.SiteID)
	require.Equal(t, int64(4266), msg.TS)
	require.Equal(t, null.FloatFrom(1115), msg.Sensors.MQ135)
	require.JSONEq(
		t,
		`{"mq135": 1115, "dht": {"t": 24.2, "h": 54.3}}`,
		string(msg.RawSensors),
	)
}

func TestDecodeFallsBackToTopic(t *testing.T) {
	msg, err := telemetry.Decode(topic, []byte(`{"sensors": {}}`))
	require.NoError(t, err)
	require.Equal(t, "esp32-001", msg.DeviceID)
	require.Equal(t, "office_main", msg.SiteID)
	require.Zero(t, msg.TS)
}

func TestDecodeErrors(t *testing.T) {
	for _, payload := range []string{
		`not json`,
		`[1, 2, 3]`,
		`{"device_id": 7}`,
		`{"device_id": "a", "sensors": [1]}`,
		`{"device_id": "a", "sensors": "mq135"}`,
	} {
		_, err := telemetry.Decode(topic, []byte(payload))
		require.True(t, errors.IsKind(err, errors.DecodeError), payload)
	}

	_, err := telemetry.Decode("elsewhere", []byte(`{}`))
	require.True(t, errors.IsKind(err, errors.DecodeError))
}

func TestNewRecord(t *testing.T) {
	now := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)
	prev := wallclock.Instance
	wallclock.Instance = wallclock.Fixed{At: now}
	t.Cleanup(func() { wallclock.Instance = prev })

	msg, err := telemetry.Decode(topic, []byte(`{
		"ts": 1705329000000,
		"sensors": {"temperature": 22, "air_quality": 90}
	}`))
	require.NoError(t, err)

	rec := telemetry.NewRecord(msg)
	require.NotZero(t, rec.ID)
	require.Equal(t, "esp32-001", rec.DeviceID)
	require.Equal(t, now, rec.ProcessedAt)
	require.Equal(t, time.UnixMilli(1705329000000).UTC(), rec.Timestamp)
	require.Equal(t, telemetry.Score(rec.Sensors), rec.IEQScore)
}

func TestResolveTimestamp(t *testing.T) {
	now := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	require.Equal(t, now, telemetry.ResolveTimestamp(0, now))
	require.Equal(t, now, telemetry.ResolveTimestamp(-5, now))
	require.Equal(t, now, telemetry.ResolveTimestamp(1<<62, now))
	require.Equal(
		t,
		time.UnixMilli(4266).UTC(),
		telemetry.ResolveTimestamp(4266, now),
	)

	// Last millisecond that still fits in int64 Unix nanoseconds.
	last := int64(math.MaxInt64 / int64(time.Millisecond))
	require.Equal(
		t,
		time.UnixMilli(last).UTC(),
		telemetry.ResolveTimestamp(last, now),
	)
	require.Equal(t, now, telemetry.ResolveTimestamp(last+1, now))
	require.Equal(t, now, telemetry.ResolveTimestamp(100000000000000, now))
}

func TestTrends(t *testing.T) {
	trends := telemetry.Trends(
		telemetry.Sensors{
			Temperature: null.FloatFrom(22.5),
			Humidity:    null.FloatFrom(40),
			Light:       null.FloatFrom(450),
		},
		telemetry.Sensors{
			Temperature: null.FloatFrom(22.2),
			Humidity:    null.FloatFrom(41),
			Light:       null.FloatFrom(450),
			Sound:       null.FloatFrom(30),
		},
	)

	require.Len(t, trends, 3)
	require.Equal(t, telemetry.Rising, trends["temperature"].Trend)
	require.Equal(t, 0.3, trends["temperature"].Change)
	require.Equal(t, telemetry.Falling, trends["humidity"].Trend)
	require.Equal(t, telemetry.Stable, trends["light"].Trend)
}
