package models

// ConfigResponse exposes the effective tunables (GET /v1/config).
type ConfigResponse struct {
	BlendN0             int     `json:"n0"`
	TimeBinMinutes      int     `json:"time_bin_minutes"`
	EMAAlpha            float64 `json:"ema_alpha"`
	OutlierSigma        float64 `json:"outlier_sigma"`
	MapmatchMinConf     float64 `json:"mapmatch_min_conf"`
	MaxSegmentsPerRide  int     `json:"max_segments_per_ride"`
	RateLimitPerHour    int     `json:"rate_limit_per_hour"`
	IdempotencyTTLHours int     `json:"idempotency_ttl_hours"`
	GTFSVersion         string  `json:"gtfs_version"`
	ServerVersion       string  `json:"server_version"`
}

// HealthResponse is the GET /v1/health payload.
type HealthResponse struct {
	Status    string `json:"status"` // "ok" or "degraded"
	DBOK      bool   `json:"db_ok"`
	UptimeSec int64  `json:"uptime_sec"`
}

// Stop is one GTFS stop.
type Stop struct {
	StopID   string  `json:"stop_id"`
	StopName string  `json:"stop_name"`
	StopLat  float64 `json:"stop_lat"`
	StopLon  float64 `json:"stop_lon"`
	ZoneID   *string `json:"zone_id,omitempty"`
}

// StopsListResponse is the GET /v1/stops payload.
type StopsListResponse struct {
	Stops  []Stop `json:"stops"`
	Total  int64  `json:"total"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// Route is one GTFS route.
type Route struct {
	RouteID        string  `json:"route_id"`
	RouteShortName *string `json:"route_short_name,omitempty"`
	RouteLongName  *string `json:"route_long_name,omitempty"`
	RouteType      int     `json:"route_type"`
	AgencyID       *string `json:"agency_id,omitempty"`
}

// RoutesListResponse is the GET /v1/routes payload.
type RoutesListResponse struct {
	Routes []Route `json:"routes"`
	Total  int64   `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}
