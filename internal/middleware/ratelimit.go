package middleware

import (
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/crowdeta/transit-eta-go/internal/metrics"
	"github.com/crowdeta/transit-eta-go/internal/repository"
	"github.com/crowdeta/transit-eta-go/pkg/response"
)

// RateLimit gates the write path behind the per-client token bucket.
// Runs after the idempotency middleware so replays never spend a
// token. When disabled, every request passes without touching
// storage.
func RateLimit(limits *repository.RateLimitRepository, enabled bool, collector *metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled {
			c.Next()
			return
		}

		bucketID := ResolveBucket(c, RawBody(c))

		state, err := limits.CheckAndSpend(bucketID)
		if err != nil {
			// Fail open: a broken limiter should not take down writes.
			log.Printf("rate limit check failed for %s: %v", bucketID, err)
			c.Next()
			return
		}

		setRateHeaders(c, state)

		if !state.Allowed {
			collector.RateLimitDenied()
			retryAfter := state.ResetAt - time.Now().Unix()
			if retryAfter < 0 {
				retryAfter = 0
			}
			c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
			response.RateLimited(c,
				fmt.Sprintf("Rate limit exceeded. Limit: %d requests per hour.", state.Limit),
				map[string]interface{}{
					"limit": state.Limit,
					"reset": state.ResetAt,
				})
			return
		}

		c.Next()
	}
}
