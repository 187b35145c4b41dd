// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package store_test

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/envira/ieq-pipeline/errors"
	"github.com/envira/ieq-pipeline/store"
	"github.com/envira/ieq-pipeline/telemetry"
	"github.com/google/uuid"
	"github.com/guregu/null/v5"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)

func record(device string, offset time.Duration) *telemetry.Record {
	sensors := telemetry.Sensors{
		Temperature: null.FloatFrom(22.5),
		AirQuality:  null.FloatFrom(44.25),
		Light:       null.FloatFrom(450),
	}
	return &telemetry.Record{
		ID:              uuid.New(),
		DeviceID:        device,
		SiteID:          "office_main",
		DeviceTimestamp: 4266,
		Sensors:         sensors,
		RawSensors:      json.RawMessage(`{"mq135":1115}`),
		IEQScore:        telemetry.Score(sensors),
		ProcessedAt:     base.Add(offset),
		Timestamp:       base.Add(offset),
	}
}

func testStore(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.Latest(ctx, "esp32-001")
	require.ErrorIs(t, err, store.ErrNotFound)

	var appended []*telemetry.Record
	for _, offset := range []time.Duration{0, 2 * time.Minute, time.Minute} {
		rec := record("esp32-001", offset)
		id, err := s.Append(ctx, rec)
		require.NoError(t, err)
		require.Equal(t, rec.ID, id)
		appended = append(appended, rec)
	}
	_, err = s.Append(ctx, record("esp32-002", 0))
	require.NoError(t, err)

	t.Run("Latest", func(t *testing.T) {
		latest, err := s.Latest(ctx, "esp32-001")
		require.NoError(t, err)
		require.Equal(t, appended[1], latest)
	})

	t.Run("NewestFirst", func(t *testing.T) {
		recs, err := s.Query(ctx, store.Query{DeviceID: "esp32-001"})
		require.NoError(t, err)
		require.Equal(
			t,
			[]*telemetry.Record{appended[1], appended[2], appended[0]},
			recs,
		)
	})

	t.Run("Window", func(t *testing.T) {
		recs, err := s.Query(ctx, store.Query{
			DeviceID: "esp32-001",
			From:     base.Add(30 * time.Second),
			To:       base.Add(90 * time.Second),
		})
		require.NoError(t, err)
		require.Equal(t, []*telemetry.Record{appended[2]}, recs)
	})

	t.Run("Limit", func(t *testing.T) {
		recs, err := s.Query(ctx, store.Query{DeviceID: "esp32-001", Limit: 2})
		require.NoError(t, err)
		require.Len(t, recs, 2)
	})

	t.Run("Duplicates", func(t *testing.T) {
		dup := record("esp32-003", 0)
		_, err := s.Append(ctx, dup)
		require.NoError(t, err)

		again := *dup
		again.ID = uuid.New()
		_, err = s.Append(ctx, &again)
		require.NoError(t, err)

		recs, err := s.Query(ctx, store.Query{DeviceID: "esp32-003"})
		require.NoError(t, err)
		require.Len(t, recs, 2)
	})

	t.Run("NullSensors", func(t *testing.T) {
		rec := record("esp32-004", 0)
		rec.Sensors = telemetry.Sensors{}
		rec.RawSensors = nil
		_, err := s.Append(ctx, rec)
		require.NoError(t, err)

		latest, err := s.Latest(ctx, "esp32-004")
		require.NoError(t, err)
		require.Equal(t, rec, latest)
	})

	t.Run("FarFutureDeviceClock", func(t *testing.T) {
		last := int64(math.MaxInt64 / int64(time.Millisecond))
		for i, ts := range []int64{last, last + 1, 100000000000000} {
			rec := record(fmt.Sprintf("esp32-clock-%d", i), 0)
			rec.DeviceTimestamp = ts
			rec.Timestamp = telemetry.ResolveTimestamp(ts, rec.ProcessedAt)
			_, err := s.Append(ctx, rec)
			require.NoError(t, err)

			latest, err := s.Latest(ctx, rec.DeviceID)
			require.NoError(t, err)
			require.Equal(t, rec, latest)
			require.True(t, rec.Timestamp.Equal(latest.Timestamp))
		}
	})

	t.Run("InvalidRecord", func(t *testing.T) {
		_, err := s.Append(ctx, &telemetry.Record{})
		require.True(t, errors.IsKind(err, errors.ArgumentInvalid))
	})
}

func TestMemory(t *testing.T) {
	s := store.NewMemory()
	testStore(t, s)
	require.NoError(t, s.Close())
}

func TestSQLite(t *testing.T) {
	s, err := store.OpenSQLite(
		filepath.Join(t.TempDir(), "telemetry.db"),
		store.SQLiteOptions{PoolSize: 2},
	)
	require.NoError(t, err)
	testStore(t, s)
	require.NoError(t, s.Close())
}

func TestSQLiteRequiresPath(t *testing.T) {
	_, err := store.OpenSQLite("", store.SQLiteOptions{})
	require.Error(t, err)
}

func TestMemoryCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.NewMemory().Append(ctx, record("esp32-001", 0))
	require.True(t, errors.IsKind(err, errors.StoreError))
	require.ErrorIs(t, err, context.Canceled)
}
