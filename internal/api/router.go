package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/crowdeta/transit-eta-go/internal/config"
	"github.com/crowdeta/transit-eta-go/internal/handler"
	"github.com/crowdeta/transit-eta-go/internal/metrics"
	"github.com/crowdeta/transit-eta-go/internal/middleware"
	"github.com/crowdeta/transit-eta-go/internal/repository"
	"github.com/crowdeta/transit-eta-go/internal/service"
)

// SetupRouter wires repositories, services, handlers and middleware
// into the gin engine.
func SetupRouter(cfg *config.Config, db *sql.DB, collector *metrics.Collector) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(collector))

	// CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	segmentRepo := repository.NewSegmentRepository(db)
	statsRepo := repository.NewStatsRepository(db, cfg.OutlierSigma, cfg.EMAAlpha)
	rideRepo := repository.NewRideRepository(db)
	limitRepo := repository.NewRateLimitRepository(db, cfg.RateLimitPerHour)
	idemRepo := repository.NewIdempotencyRepository(db, cfg.IdempotencyTTLHours)
	gtfsRepo := repository.NewGTFSRepository(db)

	ingestSvc := service.NewIngestService(
		segmentRepo, statsRepo, rideRepo, collector,
		cfg.MaxSegmentsPerRide, cfg.MapmatchMinConf,
		cfg.ObservationMaxAge, cfg.ClockSkewTolerance,
	)
	etaSvc := service.NewETAService(segmentRepo, statsRepo, cfg.BlendN0, cfg.ConfMediumN, cfg.ConfHighN)

	rideHandler := handler.NewRideHandler(ingestSvc)
	etaHandler := handler.NewETAHandler(etaSvc)
	metaHandler := handler.NewMetaHandler(db, gtfsRepo, cfg, time.Now())

	r.GET("/metrics", gin.WrapH(collector.Handler()))

	v1 := r.Group("/v1")
	{
		v1.POST("/ride_summary",
			middleware.Auth(cfg.APIKey, cfg.JWTSecret),
			middleware.Idempotency(idemRepo, limitRepo, cfg.RateLimitEnabled, collector),
			middleware.RateLimit(limitRepo, cfg.RateLimitEnabled, collector),
			rideHandler.Submit,
		)

		v1.GET("/eta", etaHandler.GetETA)
		v1.GET("/config", metaHandler.GetConfig)
		v1.GET("/health", metaHandler.GetHealth)
		v1.GET("/stops", metaHandler.GetStops)
		v1.GET("/routes", metaHandler.GetRoutes)
	}

	return r
}
