package database

import (
	"database/sql"
	"fmt"
)

// schema holds the full DDL. The service is deployed as a single
// binary, so the schema is embedded rather than shipped as loose
// migration files.
const schema = `
CREATE TABLE IF NOT EXISTS agency (
	agency_id TEXT PRIMARY KEY,
	agency_name TEXT NOT NULL,
	agency_url TEXT,
	agency_timezone TEXT,
	agency_lang TEXT
);

CREATE TABLE IF NOT EXISTS routes (
	route_id TEXT PRIMARY KEY,
	agency_id TEXT,
	route_short_name TEXT,
	route_long_name TEXT,
	route_type INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS stops (
	stop_id TEXT PRIMARY KEY,
	stop_name TEXT NOT NULL,
	stop_lat REAL NOT NULL,
	stop_lon REAL NOT NULL,
	zone_id TEXT
);

CREATE TABLE IF NOT EXISTS calendar (
	service_id TEXT PRIMARY KEY,
	monday INTEGER, tuesday INTEGER, wednesday INTEGER, thursday INTEGER,
	friday INTEGER, saturday INTEGER, sunday INTEGER
);

CREATE TABLE IF NOT EXISTS trips (
	trip_id TEXT PRIMARY KEY,
	route_id TEXT NOT NULL,
	service_id TEXT,
	trip_headsign TEXT,
	direction_id INTEGER
);

CREATE TABLE IF NOT EXISTS stop_times (
	trip_id TEXT NOT NULL,
	stop_sequence INTEGER NOT NULL,
	stop_id TEXT NOT NULL,
	arrival_time TEXT,
	departure_time TEXT,
	PRIMARY KEY (trip_id, stop_sequence)
);
CREATE INDEX IF NOT EXISTS idx_stop_times_stop ON stop_times(stop_id);

CREATE TABLE IF NOT EXISTS time_bins (
	bin_id INTEGER PRIMARY KEY,
	weekday_type INTEGER NOT NULL,
	hour_start INTEGER NOT NULL,
	minute_start INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS segments (
	segment_id INTEGER PRIMARY KEY AUTOINCREMENT,
	route_id TEXT NOT NULL,
	direction_id INTEGER NOT NULL,
	from_stop_id TEXT NOT NULL,
	to_stop_id TEXT NOT NULL,
	UNIQUE (route_id, direction_id, from_stop_id, to_stop_id)
);

CREATE TABLE IF NOT EXISTS segment_stats (
	segment_id INTEGER NOT NULL,
	bin_id INTEGER NOT NULL,
	n INTEGER NOT NULL DEFAULT 0 CHECK (n >= 0),
	welford_mean REAL NOT NULL DEFAULT 0,
	welford_m2 REAL NOT NULL DEFAULT 0,
	ema_mean REAL NOT NULL DEFAULT 0,
	ema_var REAL NOT NULL DEFAULT 0,
	schedule_mean REAL NOT NULL,
	last_update INTEGER,
	PRIMARY KEY (segment_id, bin_id)
);

CREATE TABLE IF NOT EXISTS rides (
	ride_id TEXT PRIMARY KEY,
	route_id TEXT NOT NULL,
	direction_id INTEGER NOT NULL,
	device_bucket TEXT,
	submitted_at INTEGER NOT NULL,
	segment_count INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS ride_segments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ride_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	segment_id INTEGER,
	from_stop_id TEXT NOT NULL,
	to_stop_id TEXT NOT NULL,
	duration_sec REAL NOT NULL,
	dwell_sec REAL,
	mapmatch_conf REAL NOT NULL,
	observed_at INTEGER NOT NULL,
	accepted INTEGER NOT NULL,
	rejection_reason TEXT
);
CREATE INDEX IF NOT EXISTS idx_ride_segments_ride ON ride_segments(ride_id);

CREATE TABLE IF NOT EXISTS rejection_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	segment_id INTEGER,
	bin_id INTEGER,
	reason TEXT NOT NULL,
	duration_sec REAL NOT NULL,
	mapmatch_conf REAL NOT NULL,
	device_bucket TEXT,
	rejected_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rejection_log_time ON rejection_log(rejected_at);

CREATE TABLE IF NOT EXISTS rate_limit_buckets (
	bucket_id TEXT PRIMARY KEY,
	tokens INTEGER NOT NULL CHECK (tokens >= -1),
	last_refill INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS idempotency_keys (
	key TEXT PRIMARY KEY,
	body_hash TEXT NOT NULL,
	response_body BLOB NOT NULL,
	status_code INTEGER NOT NULL,
	submitted_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_idempotency_time ON idempotency_keys(submitted_at);

CREATE TABLE IF NOT EXISTS device_buckets (
	bucket TEXT PRIMARY KEY,
	first_seen INTEGER NOT NULL,
	last_seen INTEGER NOT NULL,
	submissions INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS gtfs_metadata (
	key TEXT PRIMARY KEY,
	value TEXT,
	updated_at INTEGER
);
`

// ensureSchema applies the DDL and preloads the 192 time bins
// (weekday/weekend x 96 quarter-hour slots). Both are idempotent.
func ensureSchema(d *sql.DB) error {
	if _, err := d.Exec(schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	tx, err := d.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin time-bin preload: %w", err)
	}
	stmt, err := tx.Prepare(
		"INSERT OR IGNORE INTO time_bins (bin_id, weekday_type, hour_start, minute_start) VALUES (?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare time-bin insert: %w", err)
	}
	binID := 0
	for weekdayType := 0; weekdayType <= 1; weekdayType++ {
		for hour := 0; hour < 24; hour++ {
			for _, minute := range []int{0, 15, 30, 45} {
				if _, err := stmt.Exec(binID, weekdayType, hour, minute); err != nil {
					stmt.Close()
					tx.Rollback()
					return fmt.Errorf("failed to insert time bin %d: %w", binID, err)
				}
				binID++
			}
		}
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit time-bin preload: %w", err)
	}
	return nil
}
