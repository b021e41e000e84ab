package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/crowdeta/transit-eta-go/internal/models"
	"github.com/crowdeta/transit-eta-go/internal/service"
	"github.com/crowdeta/transit-eta-go/pkg/response"
)

// ETAHandler handles HTTP requests for ETA queries
type ETAHandler struct {
	service *service.ETAService
}

// NewETAHandler creates a new ETA handler
func NewETAHandler(service *service.ETAService) *ETAHandler {
	return &ETAHandler{service: service}
}

// GetETA handles GET /v1/eta
func (h *ETAHandler) GetETA(c *gin.Context) {
	var q models.ETAQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.InvalidRequest(c, "Invalid query parameters", nil)
		return
	}

	// An absent direction_id would bind to 0 and silently query that
	// direction, so its presence is checked on the raw query.
	if q.RouteID == "" || q.FromStopID == "" || q.ToStopID == "" || c.Query("direction_id") == "" {
		response.InvalidRequest(c, "route_id, direction_id, from_stop_id and to_stop_id are required", nil)
		return
	}
	if q.DirectionID != 0 && q.DirectionID != 1 {
		response.InvalidRequest(c, "direction_id must be 0 or 1",
			map[string]interface{}{"direction_id": q.DirectionID})
		return
	}

	when := time.Now()
	if q.When != "" {
		parsed, err := time.Parse(time.RFC3339, q.When)
		if err != nil {
			response.InvalidRequest(c, "when must be an ISO-8601 UTC timestamp (e.g. 2025-10-22T10:41:00Z)",
				map[string]interface{}{"when": q.When})
			return
		}
		when = parsed
	}

	eta, err := h.service.Query(q, when)
	if err != nil {
		if errors.Is(err, service.ErrSegmentNotFound) {
			response.NotFound(c, "Segment not found in GTFS data", map[string]interface{}{
				"route_id":     q.RouteID,
				"direction_id": q.DirectionID,
				"from_stop_id": q.FromStopID,
				"to_stop_id":   q.ToStopID,
			})
			return
		}
		response.ServerError(c, "Failed to compute ETA")
		return
	}

	c.JSON(http.StatusOK, eta)
}
