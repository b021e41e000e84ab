package models

// Rejection reasons for ride segments. Every rejected segment carries
// exactly one of these; the response always reports all of them, zero
// or not.
const (
	ReasonTooManySegments = "too_many_segments"
	ReasonInvalidSegment  = "invalid_segment"
	ReasonStaleTimestamp  = "stale_timestamp"
	ReasonLowConfidence   = "low_confidence"
	ReasonOutlier         = "outlier"
)

// AllRejectionReasons lists every reason in wire order.
var AllRejectionReasons = []string{
	ReasonOutlier,
	ReasonLowConfidence,
	ReasonInvalidSegment,
	ReasonTooManySegments,
	ReasonStaleTimestamp,
}

// RideSegmentInput is a single observed hop inside a submitted ride.
type RideSegmentInput struct {
	FromStopID    string   `json:"from_stop_id"`
	ToStopID      string   `json:"to_stop_id"`
	DurationSec   float64  `json:"duration_sec"`
	DwellSec      *float64 `json:"dwell_sec,omitempty"`
	MapmatchConf  float64  `json:"mapmatch_conf"`
	ObservedAtUTC string   `json:"observed_at_utc"`
}

// RideSummaryRequest is the POST /v1/ride_summary body.
type RideSummaryRequest struct {
	RouteID      string             `json:"route_id"`
	DirectionID  int                `json:"direction_id"`
	DeviceBucket string             `json:"device_bucket,omitempty"`
	Segments     []RideSegmentInput `json:"segments"`
}

// RideSummaryResponse reports the per-segment outcome of a submission.
type RideSummaryResponse struct {
	AcceptedSegments int            `json:"accepted_segments"`
	RejectedSegments int            `json:"rejected_segments"`
	RejectedByReason map[string]int `json:"rejected_by_reason"`
}

// NewRejectedByReason returns a reason map with every reason present
// at zero, so responses are shape-stable for clients.
func NewRejectedByReason() map[string]int {
	m := make(map[string]int, len(AllRejectionReasons))
	for _, r := range AllRejectionReasons {
		m[r] = 0
	}
	return m
}

// RideSegmentRecord is the audit row persisted for every submitted
// segment, accepted or not. Write-once.
type RideSegmentRecord struct {
	RideID          string
	Seq             int
	SegmentID       int64 // 0 when the segment could not be resolved
	FromStopID      string
	ToStopID        string
	DurationSec     float64
	DwellSec        *float64
	MapmatchConf    float64
	ObservedAt      int64
	Accepted        bool
	RejectionReason string
}

// RejectionRecord is one quality-monitoring log entry.
type RejectionRecord struct {
	SegmentID    int64
	BinID        int
	Reason       string
	DurationSec  float64
	MapmatchConf float64
	DeviceBucket string
	RejectedAt   int64
}
