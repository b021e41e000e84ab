package models

// ETAQuery binds the GET /v1/eta query parameters.
type ETAQuery struct {
	RouteID     string `form:"route_id"`
	DirectionID int    `form:"direction_id"`
	FromStopID  string `form:"from_stop_id"`
	ToStopID    string `form:"to_stop_id"`
	When        string `form:"when"` // ISO-8601 UTC; defaults to now
}

// SegmentInfo identifies the queried segment.
type SegmentInfo struct {
	RouteID     string `json:"route_id"`
	DirectionID int    `json:"direction_id"`
	FromStopID  string `json:"from_stop_id"`
	ToStopID    string `json:"to_stop_id"`
}

// ScheduledInfo carries the static schedule baseline.
type ScheduledInfo struct {
	DurationSec float64 `json:"duration_sec"`
	ServiceID   *string `json:"service_id"`
	Source      string  `json:"source"`
}

// PredictionInfo carries the learned prediction.
type PredictionInfo struct {
	PredictedDurationSec float64 `json:"predicted_duration_sec"`
	P50Sec               float64 `json:"p50_sec"`
	P90Sec               float64 `json:"p90_sec"`
	Confidence           string  `json:"confidence"` // low | medium | high
	BlendWeight          float64 `json:"blend_weight"`
	SamplesUsed          int64   `json:"samples_used"`
	BinID                int     `json:"bin_id"`
	LastUpdated          string  `json:"last_updated"`
	ModelVersion         string  `json:"model_version"`
}

// ETAResponse is the GET /v1/eta response.
type ETAResponse struct {
	Segment    SegmentInfo    `json:"segment"`
	QueryTime  string         `json:"query_time"`
	Scheduled  ScheduledInfo  `json:"scheduled"`
	Prediction PredictionInfo `json:"prediction"`
}
