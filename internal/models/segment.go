package models

// Segment is a directed, route-specific hop between two adjacent
// stops. Created during schedule import, immutable afterwards.
type Segment struct {
	SegmentID   int64  `json:"segment_id"`
	RouteID     string `json:"route_id"`
	DirectionID int    `json:"direction_id"`
	FromStopID  string `json:"from_stop_id"`
	ToStopID    string `json:"to_stop_id"`
}

// SegmentStat is the learning state for one (segment, time bin) pair.
// Mutated only by the ingestion pipeline, one accepted observation at
// a time, under the store's row-level write lock.
type SegmentStat struct {
	SegmentID    int64   `json:"segment_id"`
	BinID        int     `json:"bin_id"`
	N            int64   `json:"n"`
	WelfordMean  float64 `json:"welford_mean"`
	WelfordM2    float64 `json:"welford_m2"`
	EMAMean      float64 `json:"ema_mean"`
	EMAVar       float64 `json:"ema_var"`
	ScheduleMean float64 `json:"schedule_mean"`
	LastUpdate   int64   `json:"last_update"` // unix seconds, 0 before first update
}
