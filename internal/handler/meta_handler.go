package handler

import (
	"database/sql"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/crowdeta/transit-eta-go/internal/config"
	"github.com/crowdeta/transit-eta-go/internal/models"
	"github.com/crowdeta/transit-eta-go/internal/repository"
	"github.com/crowdeta/transit-eta-go/pkg/response"
)

// MetaHandler serves configuration, health and GTFS discovery
// endpoints.
type MetaHandler struct {
	db        *sql.DB
	gtfs      *repository.GTFSRepository
	cfg       *config.Config
	startedAt time.Time
}

// NewMetaHandler creates a new meta handler
func NewMetaHandler(db *sql.DB, gtfs *repository.GTFSRepository, cfg *config.Config, startedAt time.Time) *MetaHandler {
	return &MetaHandler{db: db, gtfs: gtfs, cfg: cfg, startedAt: startedAt}
}

// GetConfig handles GET /v1/config
func (h *MetaHandler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, models.ConfigResponse{
		BlendN0:             h.cfg.BlendN0,
		TimeBinMinutes:      15,
		EMAAlpha:            h.cfg.EMAAlpha,
		OutlierSigma:        h.cfg.OutlierSigma,
		MapmatchMinConf:     h.cfg.MapmatchMinConf,
		MaxSegmentsPerRide:  h.cfg.MaxSegmentsPerRide,
		RateLimitPerHour:    h.cfg.RateLimitPerHour,
		IdempotencyTTLHours: h.cfg.IdempotencyTTLHours,
		GTFSVersion:         h.gtfs.GetMetadata("gtfs_version", "unknown"),
		ServerVersion:       h.cfg.ServerVersion,
	})
}

// GetHealth handles GET /v1/health
func (h *MetaHandler) GetHealth(c *gin.Context) {
	dbOK := true
	var one int
	if err := h.db.QueryRow("SELECT 1").Scan(&one); err != nil {
		dbOK = false
	}

	status := "ok"
	if !dbOK {
		status = "degraded"
	}

	c.JSON(http.StatusOK, models.HealthResponse{
		Status:    status,
		DBOK:      dbOK,
		UptimeSec: int64(time.Since(h.startedAt).Seconds()),
	})
}

// GetStops handles GET /v1/stops
func (h *MetaHandler) GetStops(c *gin.Context) {
	filter := repository.StopFilter{
		RouteID: c.Query("route_id"),
		Limit:   parsePositive(c.DefaultQuery("limit", "100"), 100, 1000),
		Offset:  parsePositive(c.DefaultQuery("offset", "0"), 0, 1<<30),
	}

	if bbox := c.Query("bbox"); bbox != "" {
		parts := strings.Split(bbox, ",")
		ok := len(parts) == 4
		vals := make([]float64, 0, 4)
		if ok {
			for _, p := range parts {
				f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
				if err != nil {
					ok = false
					break
				}
				vals = append(vals, f)
			}
		}
		if !ok {
			response.InvalidRequest(c, "bbox must be in format: min_lat,min_lon,max_lat,max_lon",
				map[string]interface{}{"bbox": bbox})
			return
		}
		filter.HasBBox = true
		filter.MinLat, filter.MinLon, filter.MaxLat, filter.MaxLon = vals[0], vals[1], vals[2], vals[3]
	}

	stops, total, err := h.gtfs.GetStops(filter)
	if err != nil {
		response.ServerError(c, "Failed to list stops")
		return
	}
	if stops == nil {
		stops = []models.Stop{}
	}

	c.JSON(http.StatusOK, models.StopsListResponse{
		Stops:  stops,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

// GetRoutes handles GET /v1/routes
func (h *MetaHandler) GetRoutes(c *gin.Context) {
	filter := repository.RouteFilter{
		StopID:    c.Query("stop_id"),
		RouteType: -1,
		Limit:     parsePositive(c.DefaultQuery("limit", "100"), 100, 1000),
		Offset:    parsePositive(c.DefaultQuery("offset", "0"), 0, 1<<30),
	}

	if rt := c.Query("route_type"); rt != "" {
		n, err := strconv.Atoi(rt)
		if err != nil || n < 0 || n > 7 {
			response.InvalidRequest(c, "route_type must be a valid GTFS route type (0-7)",
				map[string]interface{}{"route_type": rt})
			return
		}
		filter.RouteType = n
	}

	routes, total, err := h.gtfs.GetRoutes(filter)
	if err != nil {
		response.ServerError(c, "Failed to list routes")
		return
	}
	if routes == nil {
		routes = []models.Route{}
	}

	c.JSON(http.StatusOK, models.RoutesListResponse{
		Routes: routes,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

func parsePositive(s string, def, max int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
