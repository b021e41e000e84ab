package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/crowdeta/transit-eta-go/internal/models"
)

// RideRepository persists the write-once audit trail of submissions:
// rides, their segments (accepted or not), the rejection log used for
// quality monitoring, and device-bucket bookkeeping. All rows are
// insert-only.
type RideRepository struct {
	db  *sql.DB
	Now func() time.Time
}

// NewRideRepository creates a new ride repository
func NewRideRepository(db *sql.DB) *RideRepository {
	return &RideRepository{db: db, Now: time.Now}
}

// InsertRide records a parsed ride submission.
func (r *RideRepository) InsertRide(rideID, routeID string, directionID int, deviceBucket string, segmentCount int) error {
	var bucket interface{}
	if deviceBucket != "" {
		bucket = deviceBucket
	}
	_, err := r.db.Exec(
		`INSERT INTO rides (ride_id, route_id, direction_id, device_bucket, submitted_at, segment_count)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rideID, routeID, directionID, bucket, r.Now().Unix(), segmentCount,
	)
	if err != nil {
		return fmt.Errorf("failed to insert ride: %w", err)
	}
	return nil
}

// InsertSegment records the audit row for one submitted segment.
func (r *RideRepository) InsertSegment(rec models.RideSegmentRecord) error {
	var segmentID interface{}
	if rec.SegmentID != 0 {
		segmentID = rec.SegmentID
	}
	var reason interface{}
	if rec.RejectionReason != "" {
		reason = rec.RejectionReason
	}
	var dwell interface{}
	if rec.DwellSec != nil {
		dwell = *rec.DwellSec
	}
	accepted := 0
	if rec.Accepted {
		accepted = 1
	}
	_, err := r.db.Exec(
		`INSERT INTO ride_segments
		 (ride_id, seq, segment_id, from_stop_id, to_stop_id, duration_sec, dwell_sec, mapmatch_conf, observed_at, accepted, rejection_reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RideID, rec.Seq, segmentID, rec.FromStopID, rec.ToStopID,
		rec.DurationSec, dwell, rec.MapmatchConf, rec.ObservedAt, accepted, reason,
	)
	if err != nil {
		return fmt.Errorf("failed to insert ride segment: %w", err)
	}
	return nil
}

// LogRejection appends one rejection-log entry.
func (r *RideRepository) LogRejection(rec models.RejectionRecord) error {
	var segmentID interface{}
	if rec.SegmentID != 0 {
		segmentID = rec.SegmentID
	}
	var bucket interface{}
	if rec.DeviceBucket != "" {
		bucket = rec.DeviceBucket
	}
	_, err := r.db.Exec(
		`INSERT INTO rejection_log (segment_id, bin_id, reason, duration_sec, mapmatch_conf, device_bucket, rejected_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		segmentID, rec.BinID, rec.Reason, rec.DurationSec, rec.MapmatchConf, bucket, rec.RejectedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to log rejection: %w", err)
	}
	return nil
}

// TouchDeviceBucket upserts first/last-seen bookkeeping for a
// pseudonymous device bucket.
func (r *RideRepository) TouchDeviceBucket(bucket string) error {
	now := r.Now().Unix()
	_, err := r.db.Exec(
		`INSERT INTO device_buckets (bucket, first_seen, last_seen, submissions)
		 VALUES (?, ?, ?, 1)
		 ON CONFLICT(bucket) DO UPDATE SET last_seen = ?, submissions = submissions + 1`,
		bucket, now, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to touch device bucket: %w", err)
	}
	return nil
}

// DeleteRejectionsBefore drops rejection-log rows older than cutoff.
func (r *RideRepository) DeleteRejectionsBefore(cutoff int64) (int64, error) {
	res, err := r.db.Exec("DELETE FROM rejection_log WHERE rejected_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune rejection log: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
