package main

import (
	"database/sql"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/crowdeta/transit-eta-go/internal/api"
	"github.com/crowdeta/transit-eta-go/internal/config"
	"github.com/crowdeta/transit-eta-go/internal/database"
	"github.com/crowdeta/transit-eta-go/internal/metrics"
	"github.com/crowdeta/transit-eta-go/internal/repository"
)

// sweepInterval controls how often expired idempotency records, aged
// rejection-log rows and idle rate-limit buckets are pruned. Expiry
// is advisory cleanup, not a correctness requirement.
const sweepInterval = time.Hour

// rejectionLogRetention bounds the quality-monitoring log.
const rejectionLogRetention = 30 * 24 * time.Hour

// bucketIdleWindow is how long an untouched rate-limit bucket
// survives before garbage collection. Losing one only resets its
// quota.
const bucketIdleWindow = 24 * time.Hour

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	if err := database.Init(database.Config{Path: cfg.DBPath}); err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer database.Close()
	db := database.GetDB()

	collector := metrics.NewCollector()

	go runRetentionSweeper(cfg, db)

	router := api.SetupRouter(cfg, db, collector)

	log.Printf("Server starting on port %s", cfg.Port)
	if err := router.Run(cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

func runRetentionSweeper(cfg *config.Config, db *sql.DB) {
	idemRepo := repository.NewIdempotencyRepository(db, cfg.IdempotencyTTLHours)
	rideRepo := repository.NewRideRepository(db)
	limitRepo := repository.NewRateLimitRepository(db, cfg.RateLimitPerHour)

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for range ticker.C {
		if n, err := idemRepo.DeleteExpired(); err != nil {
			log.Printf("Sweeper: idempotency cleanup failed: %v", err)
		} else if n > 0 {
			log.Printf("Sweeper: removed %d expired idempotency records", n)
		}

		cutoff := time.Now().Add(-rejectionLogRetention).Unix()
		if n, err := rideRepo.DeleteRejectionsBefore(cutoff); err != nil {
			log.Printf("Sweeper: rejection log cleanup failed: %v", err)
		} else if n > 0 {
			log.Printf("Sweeper: removed %d aged rejection-log rows", n)
		}

		cutoff = time.Now().Add(-bucketIdleWindow).Unix()
		if n, err := limitRepo.DeleteIdleBefore(cutoff); err != nil {
			log.Printf("Sweeper: rate-limit bucket cleanup failed: %v", err)
		} else if n > 0 {
			log.Printf("Sweeper: removed %d idle rate-limit buckets", n)
		}
	}
}
