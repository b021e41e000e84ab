package repository

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/crowdeta/transit-eta-go/internal/database"
)

// testDB opens a fresh SQLite database in a per-test temp directory
// with the full schema applied.
func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// seedSegment inserts a segment row and returns its id.
func seedSegment(t *testing.T, db *sql.DB, routeID string, directionID int, fromStop, toStop string) int64 {
	t.Helper()
	res, err := db.Exec(
		"INSERT INTO segments (route_id, direction_id, from_stop_id, to_stop_id) VALUES (?, ?, ?, ?)",
		routeID, directionID, fromStop, toStop,
	)
	if err != nil {
		t.Fatalf("failed to seed segment: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("failed to get segment id: %v", err)
	}
	return id
}

// seedBaseline inserts a schedule baseline row for (segment, bin).
func seedBaseline(t *testing.T, db *sql.DB, segmentID int64, binID int, scheduleMean float64) {
	t.Helper()
	_, err := db.Exec(
		"INSERT INTO segment_stats (segment_id, bin_id, schedule_mean, ema_mean) VALUES (?, ?, ?, ?)",
		segmentID, binID, scheduleMean, scheduleMean,
	)
	if err != nil {
		t.Fatalf("failed to seed baseline: %v", err)
	}
}
