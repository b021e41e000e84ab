package repository

import (
	"database/sql"
	"fmt"

	"github.com/crowdeta/transit-eta-go/internal/models"
)

// SegmentRepository resolves segment identities loaded at schedule
// import. Segments are immutable at runtime, so this is read-only.
type SegmentRepository struct {
	db *sql.DB
}

// NewSegmentRepository creates a new segment repository
func NewSegmentRepository(db *sql.DB) *SegmentRepository {
	return &SegmentRepository{db: db}
}

// Find resolves (route, direction, from, to) to a segment id.
// Returns (0, nil) when no such segment exists.
func (r *SegmentRepository) Find(routeID string, directionID int, fromStopID, toStopID string) (int64, error) {
	var id int64
	err := r.db.QueryRow(
		`SELECT segment_id FROM segments
		 WHERE route_id = ? AND direction_id = ? AND from_stop_id = ? AND to_stop_id = ?`,
		routeID, directionID, fromStopID, toStopID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve segment: %w", err)
	}
	return id, nil
}

// Get returns the full segment row by id, or nil if absent.
func (r *SegmentRepository) Get(segmentID int64) (*models.Segment, error) {
	var s models.Segment
	err := r.db.QueryRow(
		`SELECT segment_id, route_id, direction_id, from_stop_id, to_stop_id
		 FROM segments WHERE segment_id = ?`,
		segmentID,
	).Scan(&s.SegmentID, &s.RouteID, &s.DirectionID, &s.FromStopID, &s.ToStopID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get segment: %w", err)
	}
	return &s, nil
}
