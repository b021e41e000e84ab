package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/crowdeta/transit-eta-go/internal/config"
	"github.com/crowdeta/transit-eta-go/internal/database"
	"github.com/crowdeta/transit-eta-go/internal/metrics"
	"github.com/crowdeta/transit-eta-go/internal/models"
)

const testAPIKey = "test-api-key"

func testConfig() *config.Config {
	return &config.Config{
		Port:                ":0",
		APIKey:              testAPIKey,
		RateLimitEnabled:    true,
		RateLimitPerHour:    500,
		IdempotencyTTLHours: 24,
		MaxSegmentsPerRide:  50,
		MapmatchMinConf:     0.5,
		OutlierSigma:        3.0,
		ObservationMaxAge:   7 * 24 * 3600,
		ClockSkewTolerance:  60,
		BlendN0:             20,
		EMAAlpha:            0.1,
		ConfMediumN:         5,
		ConfHighN:           20,
		ServerVersion:       "test",
	}
}

func newTestServer(t *testing.T, cfg *config.Config) (*gin.Engine, *sql.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return SetupRouter(cfg, db, metrics.NewCollector()), db
}

func seedSegmentWithBaseline(t *testing.T, db *sql.DB, routeID string, directionID int, from, to string, scheduleMean float64) int64 {
	t.Helper()
	res, err := db.Exec(
		"INSERT INTO segments (route_id, direction_id, from_stop_id, to_stop_id) VALUES (?, ?, ?, ?)",
		routeID, directionID, from, to,
	)
	if err != nil {
		t.Fatalf("failed to seed segment: %v", err)
	}
	segID, _ := res.LastInsertId()
	for bin := 0; bin < 192; bin++ {
		if _, err := db.Exec(
			"INSERT INTO segment_stats (segment_id, bin_id, schedule_mean, ema_mean) VALUES (?, ?, ?, ?)",
			segID, bin, scheduleMean, scheduleMean,
		); err != nil {
			t.Fatalf("failed to seed baseline: %v", err)
		}
	}
	return segID
}

func rideBody(t *testing.T, durations ...float64) []byte {
	t.Helper()
	observed := time.Now().UTC().Add(-5 * time.Minute).Format(time.RFC3339)
	segments := make([]map[string]interface{}, 0, len(durations))
	for _, d := range durations {
		segments = append(segments, map[string]interface{}{
			"from_stop_id":    "S1",
			"to_stop_id":      "S2",
			"duration_sec":    d,
			"mapmatch_conf":   0.9,
			"observed_at_utc": observed,
		})
	}
	body, err := json.Marshal(map[string]interface{}{
		"route_id":     "R1",
		"direction_id": 0,
		"segments":     segments,
	})
	if err != nil {
		t.Fatalf("failed to marshal ride body: %v", err)
	}
	return body
}

func submitRide(r *gin.Engine, body []byte, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/v1/ride_summary", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", key)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSubmitAndQueryRoundTrip(t *testing.T) {
	r, db := newTestServer(t, testConfig())
	seedSegmentWithBaseline(t, db, "R1", 0, "S1", "S2", 300)

	w := submitRide(r, rideBody(t, 320.5), uuid.NewString())
	if w.Code != http.StatusOK {
		t.Fatalf("submit status = %d, body %s", w.Code, w.Body.String())
	}

	var resp models.RideSummaryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode submit response: %v", err)
	}
	if resp.AcceptedSegments != 1 || resp.RejectedSegments != 0 {
		t.Errorf("accepted=%d rejected=%d, want 1/0", resp.AcceptedSegments, resp.RejectedSegments)
	}

	// The learned prediction must move off the schedule toward the
	// observation, without reaching it.
	req := httptest.NewRequest("GET", "/v1/eta?route_id=R1&direction_id=0&from_stop_id=S1&to_stop_id=S2", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("eta status = %d, body %s", w.Code, w.Body.String())
	}

	var eta models.ETAResponse
	if err := json.Unmarshal(w.Body.Bytes(), &eta); err != nil {
		t.Fatalf("failed to decode eta response: %v", err)
	}
	p := eta.Prediction.PredictedDurationSec
	if p <= 300 || p >= 320.5 {
		t.Errorf("prediction = %f, want strictly between the 300 baseline and the 320.5 observation", p)
	}
	if eta.Prediction.SamplesUsed != 1 {
		t.Errorf("samples_used = %d, want 1", eta.Prediction.SamplesUsed)
	}
	if eta.Prediction.Confidence != "low" {
		t.Errorf("confidence = %q, want low after one sample", eta.Prediction.Confidence)
	}
}

func TestSubmitReplayIsByteIdentical(t *testing.T) {
	r, db := newTestServer(t, testConfig())
	seedSegmentWithBaseline(t, db, "R1", 0, "S1", "S2", 300)

	body := rideBody(t, 310)
	key := uuid.NewString()

	first := submitRide(r, body, key)
	if first.Code != http.StatusOK {
		t.Fatalf("first submit status = %d, body %s", first.Code, first.Body.String())
	}
	second := submitRide(r, body, key)
	if second.Code != http.StatusOK {
		t.Fatalf("replay status = %d", second.Code)
	}
	if !bytes.Equal(first.Body.Bytes(), second.Body.Bytes()) {
		t.Errorf("replay body differs:\nfirst:  %s\nsecond: %s", first.Body.String(), second.Body.String())
	}

	// The retry must not have been reprocessed.
	var n int64
	db.QueryRow("SELECT COALESCE(SUM(n), 0) FROM segment_stats").Scan(&n)
	if n != 1 {
		t.Errorf("observation count = %d after replay, want 1", n)
	}
	var rides int
	db.QueryRow("SELECT COUNT(*) FROM rides").Scan(&rides)
	if rides != 1 {
		t.Errorf("rides = %d after replay, want 1", rides)
	}

	// The replay must not have spent a second rate-limit token.
	var tokens int
	db.QueryRow("SELECT tokens FROM rate_limit_buckets").Scan(&tokens)
	if tokens != testConfig().RateLimitPerHour-1 {
		t.Errorf("tokens = %d after replay, want %d: replays spend nothing",
			tokens, testConfig().RateLimitPerHour-1)
	}
}

func TestSubmitKeyReuseWithDifferentBodyConflicts(t *testing.T) {
	r, db := newTestServer(t, testConfig())
	seedSegmentWithBaseline(t, db, "R1", 0, "S1", "S2", 300)

	key := uuid.NewString()
	if w := submitRide(r, rideBody(t, 310), key); w.Code != http.StatusOK {
		t.Fatalf("first submit status = %d", w.Code)
	}

	w := submitRide(r, rideBody(t, 999), key)
	if w.Code != http.StatusConflict {
		t.Errorf("key reuse with different body: status = %d, want 409", w.Code)
	}
}

func TestSubmitRequiresIdempotencyKey(t *testing.T) {
	r, db := newTestServer(t, testConfig())
	seedSegmentWithBaseline(t, db, "R1", 0, "S1", "S2", 300)

	w := submitRide(r, rideBody(t, 310), "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing key: status = %d, want 400", w.Code)
	}

	w = submitRide(r, rideBody(t, 310), "not-a-uuid")
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed key: status = %d, want 400", w.Code)
	}
}

func TestSubmitRequiresAuth(t *testing.T) {
	r, db := newTestServer(t, testConfig())
	seedSegmentWithBaseline(t, db, "R1", 0, "S1", "S2", 300)

	req := httptest.NewRequest("POST", "/v1/ride_summary", bytes.NewReader(rideBody(t, 310)))
	req.Header.Set("Idempotency-Key", uuid.NewString())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no credential: status = %d, want 401", w.Code)
	}

	req = httptest.NewRequest("POST", "/v1/ride_summary", bytes.NewReader(rideBody(t, 310)))
	req.Header.Set("Authorization", "Bearer wrong-key")
	req.Header.Set("Idempotency-Key", uuid.NewString())
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong credential: status = %d, want 401", w.Code)
	}
}

func TestSubmitRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitPerHour = 2
	r, db := newTestServer(t, cfg)
	seedSegmentWithBaseline(t, db, "R1", 0, "S1", "S2", 300)

	for i := 0; i < 2; i++ {
		if w := submitRide(r, rideBody(t, 300+float64(i)), uuid.NewString()); w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, body %s", i, w.Code, w.Body.String())
		}
	}

	w := submitRide(r, rideBody(t, 305), uuid.NewString())
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("over-quota status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("429 response missing Retry-After header")
	}
	if w.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("X-RateLimit-Remaining = %q, want 0", w.Header().Get("X-RateLimit-Remaining"))
	}

	// A denied request must not have been processed.
	var rides int
	db.QueryRow("SELECT COUNT(*) FROM rides").Scan(&rides)
	if rides != 2 {
		t.Errorf("rides = %d, want 2: the denied submission must not be ingested", rides)
	}
}

func TestSubmitValidation(t *testing.T) {
	r, db := newTestServer(t, testConfig())
	seedSegmentWithBaseline(t, db, "R1", 0, "S1", "S2", 300)

	bad := []map[string]interface{}{
		{"direction_id": 0, "segments": []map[string]interface{}{}},                // missing route_id
		{"route_id": "R1", "direction_id": 2, "segments": []map[string]interface{}{}}, // bad direction
		{"route_id": "R1", "direction_id": 0, "segments": []map[string]interface{}{}}, // empty segments
		{"route_id": "R1", "direction_id": 0, "segments": []map[string]interface{}{
			{"from_stop_id": "S1", "to_stop_id": "S2", "duration_sec": -5, "mapmatch_conf": 0.9,
				"observed_at_utc": "2026-03-02T09:00:00Z"},
		}},
		{"route_id": "R1", "direction_id": 0, "segments": []map[string]interface{}{
			{"from_stop_id": "S1", "to_stop_id": "S2", "duration_sec": 300, "mapmatch_conf": 0.9,
				"observed_at_utc": "yesterday"},
		}},
	}

	for i, payload := range bad {
		body, _ := json.Marshal(payload)
		w := submitRide(r, body, uuid.NewString())
		if w.Code != http.StatusBadRequest {
			t.Errorf("payload %d: status = %d, want 400; body %s", i, w.Code, w.Body.String())
		}
		var envelope struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil || envelope.Error != "invalid_request" {
			t.Errorf("payload %d: error code = %q, want invalid_request", i, envelope.Error)
		}
	}
}

func TestETARequiredParameters(t *testing.T) {
	r, db := newTestServer(t, testConfig())
	seedSegmentWithBaseline(t, db, "R1", 0, "S1", "S2", 300)

	missing := []string{
		"/v1/eta?direction_id=0&from_stop_id=S1&to_stop_id=S2",          // no route_id
		"/v1/eta?route_id=R1&from_stop_id=S1&to_stop_id=S2",             // no direction_id
		"/v1/eta?route_id=R1&direction_id=0&to_stop_id=S2",              // no from_stop_id
		"/v1/eta?route_id=R1&direction_id=0&from_stop_id=S1",            // no to_stop_id
		"/v1/eta?route_id=R1&direction_id=2&from_stop_id=S1&to_stop_id=S2", // bad direction
	}
	for _, url := range missing {
		req := httptest.NewRequest("GET", url, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", url, w.Code)
		}
	}
}

func TestETAUnknownSegment(t *testing.T) {
	r, _ := newTestServer(t, testConfig())

	req := httptest.NewRequest("GET", "/v1/eta?route_id=R9&direction_id=0&from_stop_id=S1&to_stop_id=S2", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown segment: status = %d, want 404", w.Code)
	}
}

func TestHealthAndConfig(t *testing.T) {
	r, _ := newTestServer(t, testConfig())

	req := httptest.NewRequest("GET", "/v1/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d", w.Code)
	}
	var health models.HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &health); err != nil {
		t.Fatalf("failed to decode health: %v", err)
	}
	if health.Status != "ok" || !health.DBOK {
		t.Errorf("health = %+v, want ok with db_ok", health)
	}

	req = httptest.NewRequest("GET", "/v1/config", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("config status = %d", w.Code)
	}
	var cfg models.ConfigResponse
	if err := json.Unmarshal(w.Body.Bytes(), &cfg); err != nil {
		t.Fatalf("failed to decode config: %v", err)
	}
	if cfg.BlendN0 != 20 || cfg.TimeBinMinutes != 15 || cfg.EMAAlpha != 0.1 {
		t.Errorf("config = %+v", cfg)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := newTestServer(t, testConfig())

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("metrics status = %d, want 200", w.Code)
	}
}

func TestStopsEndpoint(t *testing.T) {
	r, db := newTestServer(t, testConfig())
	for i := 1; i <= 3; i++ {
		if _, err := db.Exec(
			"INSERT INTO stops (stop_id, stop_name, stop_lat, stop_lon) VALUES (?, ?, ?, ?)",
			fmt.Sprintf("S%d", i), fmt.Sprintf("Stop %d", i), 41.38+float64(i)*0.01, 2.17,
		); err != nil {
			t.Fatalf("failed to seed stop: %v", err)
		}
	}

	req := httptest.NewRequest("GET", "/v1/stops?limit=2", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("stops status = %d, body %s", w.Code, w.Body.String())
	}
	var resp models.StopsListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode stops: %v", err)
	}
	if len(resp.Stops) != 2 || resp.Total != 3 {
		t.Errorf("stops = %d with total %d, want 2 of 3", len(resp.Stops), resp.Total)
	}
}
