package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/crowdeta/transit-eta-go/internal/middleware"
	"github.com/crowdeta/transit-eta-go/internal/models"
	"github.com/crowdeta/transit-eta-go/internal/service"
	"github.com/crowdeta/transit-eta-go/pkg/response"
)

// maxDurationSec bounds a single observed segment duration (2 hours).
const maxDurationSec = 7200

// RideHandler handles HTTP requests for ride submissions
type RideHandler struct {
	service *service.IngestService
}

// NewRideHandler creates a new ride handler
func NewRideHandler(service *service.IngestService) *RideHandler {
	return &RideHandler{service: service}
}

// Submit handles POST /v1/ride_summary
func (h *RideHandler) Submit(c *gin.Context) {
	body := middleware.RawBody(c)

	var req models.RideSummaryRequest
	if err := json.Unmarshal(body, &req); err != nil {
		response.InvalidRequest(c, "Invalid JSON body", nil)
		return
	}

	if msg, details := validateRide(&req); msg != "" {
		response.InvalidRequest(c, msg, details)
		return
	}

	resp, err := h.service.Submit(req)
	if err != nil {
		response.ServerError(c, "Failed to process ride submission")
		return
	}

	c.JSON(http.StatusOK, resp)
}

// validateRide checks ride-level structure. Field-shape problems are
// request errors; semantic per-segment rules (unknown segment, stale
// timestamp, confidence, outliers) are handled as rejections inside
// the ingestion pipeline instead.
func validateRide(req *models.RideSummaryRequest) (string, map[string]interface{}) {
	if req.RouteID == "" {
		return "route_id is required", nil
	}
	if req.DirectionID != 0 && req.DirectionID != 1 {
		return "direction_id must be 0 or 1", map[string]interface{}{"direction_id": req.DirectionID}
	}
	if len(req.Segments) == 0 {
		return "segments must contain at least one entry", nil
	}
	if req.DeviceBucket != "" && !isHex64(req.DeviceBucket) {
		return "device_bucket must be a 64-character hex string", nil
	}

	for i, seg := range req.Segments {
		detail := map[string]interface{}{"seq": i}
		switch {
		case seg.FromStopID == "" || seg.ToStopID == "":
			return "from_stop_id and to_stop_id are required", detail
		case seg.DurationSec <= 0 || seg.DurationSec > maxDurationSec:
			return fmt.Sprintf("duration_sec must be in (0, %d]", maxDurationSec), detail
		case seg.DwellSec != nil && *seg.DwellSec < 0:
			return "dwell_sec must be >= 0", detail
		case seg.MapmatchConf < 0 || seg.MapmatchConf > 1:
			return "mapmatch_conf must be in [0, 1]", detail
		case seg.ObservedAtUTC == "":
			return "observed_at_utc is required", detail
		}
		if _, err := time.Parse(time.RFC3339, seg.ObservedAtUTC); err != nil {
			detail["observed_at_utc"] = seg.ObservedAtUTC
			return "observed_at_utc must be an ISO-8601 UTC timestamp (e.g. 2025-10-22T10:33:00Z)", detail
		}
	}
	return "", nil
}

func isHex64(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
