package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/crowdeta/transit-eta-go/internal/metrics"
	"github.com/crowdeta/transit-eta-go/internal/models"
	"github.com/crowdeta/transit-eta-go/internal/repository"
	"github.com/crowdeta/transit-eta-go/pkg/response"
)

// Context keys shared along the write path.
const (
	CtxRawBody        = "rawBody"
	CtxIdempotencyKey = "idempotencyKey"
	CtxBodyHash       = "bodyHash"
)

// RawBody returns the cached request body placed in the context by
// the idempotency middleware.
func RawBody(c *gin.Context) []byte {
	if v, ok := c.Get(CtxRawBody); ok {
		if b, ok := v.([]byte); ok {
			return b
		}
	}
	return nil
}

// ResolveBucket picks the rate-limit bucket for a request: the
// declared device_bucket when present, otherwise an IP-derived
// fallback key.
func ResolveBucket(c *gin.Context, body []byte) string {
	var probe struct {
		DeviceBucket string `json:"device_bucket"`
	}
	if len(body) > 0 && json.Unmarshal(body, &probe) == nil && probe.DeviceBucket != "" {
		return probe.DeviceBucket
	}
	return "ip:" + c.ClientIP()
}

// bodyCapture tees the response so a successful outcome can be stored
// for exact replay.
type bodyCapture struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *bodyCapture) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyCapture) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency deduplicates retried writes. A replayed (key, body)
// pair is answered from the stored response without spending a
// rate-limit token or re-running ingestion; a reused key with a
// different body is a conflict, never a reprocess.
func Idempotency(
	idem *repository.IdempotencyRepository,
	limits *repository.RateLimitRepository,
	rateLimitEnabled bool,
	collector *metrics.Collector,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("Idempotency-Key")
		if key == "" {
			response.InvalidRequest(c, "Idempotency-Key header is required", nil)
			return
		}
		if _, err := uuid.Parse(key); err != nil {
			response.InvalidRequest(c, "Idempotency-Key must be a UUID", map[string]interface{}{
				"idempotency_key": key,
			})
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			response.InvalidRequest(c, "Failed to read request body", nil)
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		hash := repository.HashBody(body)

		rec, err := idem.Get(key)
		if err != nil {
			response.ServerError(c, "Idempotency lookup failed")
			return
		}
		if rec != nil {
			if rec.BodyHash != hash {
				collector.IdempotencyConflict()
				response.Conflict(c, "Idempotency key already used with different request body",
					map[string]interface{}{"idempotency_key": key})
				return
			}
			collector.IdempotentReplay()
			if rateLimitEnabled {
				if state, err := limits.Peek(ResolveBucket(c, body)); err == nil {
					setRateHeaders(c, state)
				}
			}
			c.Data(rec.StatusCode, "application/json", rec.ResponseBody)
			c.Abort()
			return
		}

		c.Set(CtxRawBody, body)
		c.Set(CtxIdempotencyKey, key)
		c.Set(CtxBodyHash, hash)

		capture := &bodyCapture{ResponseWriter: c.Writer}
		c.Writer = capture

		c.Next()

		// Only successful outcomes are cached; a rate-limited or
		// failed request must stay retryable under the same key.
		// The response already went out; losing the cache entry only
		// costs a future replay, so a store failure is logged, not fatal.
		if capture.Status() == http.StatusOK {
			if err := idem.Store(key, hash, capture.buf.Bytes(), capture.Status()); err != nil {
				log.Printf("failed to store idempotency record %s: %v", key, err)
			}
		}
	}
}

func setRateHeaders(c *gin.Context, state models.RateLimitState) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(state.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(state.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(state.ResetAt, 10))
}
