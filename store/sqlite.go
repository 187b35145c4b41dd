// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"time"

	"github.com/envira/ieq-pipeline/internal/log"
	"github.com/envira/ieq-pipeline/telemetry"
	"github.com/google/uuid"
	"github.com/guregu/null/v5"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// SQLite stores records in a local SQLite database in WAL mode.
type SQLite struct {
	pool *sqlitex.Pool
	path string
	log  log.Logger
}

// SQLiteOptions configures the SQLite store.
type SQLiteOptions struct {
	// PoolSize defaults to max(runtime.NumCPU(), 4).
	PoolSize int
	Logger   *slog.Logger
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS telemetry (
	id           TEXT PRIMARY KEY,
	device_id    TEXT NOT NULL,
	site_id      TEXT NOT NULL,
	ts           INTEGER NOT NULL,
	temperature  REAL,
	humidity     REAL,
	air_quality  REAL,
	light        REAL,
	sound        REAL,
	raw_sensors  TEXT,
	ieq_score    REAL NOT NULL,
	processed_at INTEGER NOT NULL,
	timestamp    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS telemetry_device_processed
	ON telemetry (device_id, processed_at);
`

const sqliteColumns = `id, device_id, site_id, ts,
	temperature, humidity, air_quality, light, sound,
	raw_sensors, ieq_score, processed_at, timestamp`

var sqlitePragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA temp_store=MEMORY",
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string, opts SQLiteOptions) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite store: path is required")
	}

	poolSize := opts.PoolSize
	if poolSize <= 0 {
		poolSize = max(runtime.NumCPU(), 4)
	}

	pool, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConn,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite store: opening %s: %w", path, err)
	}

	s := &SQLite{pool: pool, path: path, log: log.Wrap(opts.Logger)}
	if err := s.migrate(context.Background()); err != nil {
		_ = pool.Close()
		return nil, err
	}

	s.log.Info(context.Background(), "sqlite store opened",
		slog.String("path", path),
		slog.Int("pool_size", poolSize),
	)
	return s, nil
}

func prepareConn(conn *sqlite.Conn) error {
	for _, pragma := range sqlitePragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlite store: %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *SQLite) migrate(ctx context.Context) error {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("sqlite store: take: %w", err)
	}
	defer s.pool.Put(conn)

	if err := sqlitex.ExecuteScript(conn, sqliteSchema, nil); err != nil {
		return fmt.Errorf("sqlite store: schema: %w", err)
	}
	return nil
}

// Append inserts the record.
func (s *SQLite) Append(
	ctx context.Context,
	rec *telemetry.Record,
) (RecordID, error) {
	if err := validate(rec); err != nil {
		return RecordID{}, err
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return RecordID{}, storeError(err, "append", rec.DeviceID)
	}
	defer s.pool.Put(conn)

	var raw any
	if len(rec.RawSensors) > 0 {
		raw = string(rec.RawSensors)
	}

	err = sqlitex.Execute(conn,
		`INSERT INTO telemetry (`+sqliteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				rec.ID.String(),
				rec.DeviceID,
				rec.SiteID,
				rec.DeviceTimestamp,
				nullable(rec.Sensors.Temperature),
				nullable(rec.Sensors.Humidity),
				nullable(rec.Sensors.AirQuality),
				nullable(rec.Sensors.Light),
				nullable(rec.Sensors.Sound),
				raw,
				rec.IEQScore,
				rec.ProcessedAt.UnixNano(),
				rec.Timestamp.UnixNano(),
			},
		},
	)
	if err != nil {
		return RecordID{}, storeError(err, "append", rec.DeviceID)
	}
	return rec.ID, nil
}

// Query returns matching records, newest first.
func (s *SQLite) Query(
	ctx context.Context,
	q Query,
) ([]*telemetry.Record, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, storeError(err, "query", q.DeviceID)
	}
	defer s.pool.Put(conn)

	from, to := int64(math.MinInt64), int64(math.MaxInt64)
	if !q.From.IsZero() {
		from = q.From.UnixNano()
	}
	if !q.To.IsZero() {
		to = q.To.UnixNano()
	}

	var recs []*telemetry.Record
	err = sqlitex.Execute(conn,
		`SELECT `+sqliteColumns+` FROM telemetry
		WHERE device_id = ? AND processed_at >= ? AND processed_at <= ?
		ORDER BY processed_at DESC, rowid DESC
		LIMIT ?`,
		&sqlitex.ExecOptions{
			Args: []any{q.DeviceID, from, to, q.limit()},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				rec, err := scanRecord(stmt)
				if err != nil {
					return err
				}
				recs = append(recs, rec)
				return nil
			},
		},
	)
	if err != nil {
		return nil, storeError(err, "query", q.DeviceID)
	}
	return recs, nil
}

// Latest returns the newest record of a device.
func (s *SQLite) Latest(
	ctx context.Context,
	deviceID string,
) (*telemetry.Record, error) {
	recs, err := s.Query(ctx, Query{DeviceID: deviceID, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return recs[0], nil
}

// Close closes every connection in the pool.
func (s *SQLite) Close() error {
	if err := s.pool.Close(); err != nil {
		return fmt.Errorf("sqlite store: closing %s: %w", s.path, err)
	}
	s.log.Info(context.Background(), "sqlite store closed",
		slog.String("path", s.path),
	)
	return nil
}

func scanRecord(stmt *sqlite.Stmt) (*telemetry.Record, error) {
	id, err := uuid.Parse(stmt.ColumnText(0))
	if err != nil {
		return nil, fmt.Errorf("invalid record id: %w", err)
	}

	rec := &telemetry.Record{
		ID:              id,
		DeviceID:        stmt.ColumnText(1),
		SiteID:          stmt.ColumnText(2),
		DeviceTimestamp: stmt.ColumnInt64(3),
		Sensors: telemetry.Sensors{
			Temperature: columnFloat(stmt, 4),
			Humidity:    columnFloat(stmt, 5),
			AirQuality:  columnFloat(stmt, 6),
			Light:       columnFloat(stmt, 7),
			Sound:       columnFloat(stmt, 8),
		},
		IEQScore:    stmt.ColumnFloat(10),
		ProcessedAt: time.Unix(0, stmt.ColumnInt64(11)).UTC(),
		Timestamp:   time.Unix(0, stmt.ColumnInt64(12)).UTC(),
	}
	if !stmt.ColumnIsNull(9) {
		rec.RawSensors = json.RawMessage(stmt.ColumnText(9))
	}
	return rec, nil
}

func columnFloat(stmt *sqlite.Stmt, col int) null.Float {
	if stmt.ColumnIsNull(col) {
		return null.Float{}
	}
	return null.FloatFrom(stmt.ColumnFloat(col))
}

func nullable(v null.Float) any {
	if !v.Valid {
		return nil
	}
	return v.Float64
}
