package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/crowdeta/transit-eta-go/internal/models"
)

// refillIntervalSec is the bucket refill period.
const refillIntervalSec = 3600

// RateLimitRepository implements the per-client token bucket. The
// check-and-spend is one conditional UPSERT: no read happens before
// the write, which removes the check-then-act race without any row
// lock. Tokens are clamped to [-1, limit]; -1 marks exhaustion under
// concurrent overshoot.
type RateLimitRepository struct {
	db    *sql.DB
	Limit int
	Now   func() time.Time
}

// NewRateLimitRepository creates a new rate limit repository
func NewRateLimitRepository(db *sql.DB, limit int) *RateLimitRepository {
	return &RateLimitRepository{db: db, Limit: limit, Now: time.Now}
}

// CheckAndSpend atomically spends one token from the bucket,
// refilling first when the last refill is an hour or more old. The
// current request immediately spends one token of a fresh quota, so
// a refill sets tokens to limit-1. The UPSERT carries a RETURNING
// clause so the verdict comes from the very row state this statement
// wrote; a separate read-back could observe another request's spend
// or refill.
func (r *RateLimitRepository) CheckAndSpend(bucketID string) (models.RateLimitState, error) {
	now := r.Now().Unix()

	var tokens int
	var lastRefill int64
	err := r.db.QueryRow(
		`INSERT INTO rate_limit_buckets (bucket_id, tokens, last_refill)
		 VALUES (?, ?, ?)
		 ON CONFLICT(bucket_id) DO UPDATE SET
		   tokens = CASE
		     WHEN ? - last_refill >= ? THEN ?
		     ELSE MAX(-1, tokens - 1)
		   END,
		   last_refill = CASE
		     WHEN ? - last_refill >= ? THEN ?
		     ELSE last_refill
		   END
		 RETURNING tokens, last_refill`,
		bucketID, r.Limit-1, now,
		now, refillIntervalSec, r.Limit-1,
		now, refillIntervalSec, now,
	).Scan(&tokens, &lastRefill)
	if err != nil {
		return models.RateLimitState{}, fmt.Errorf("failed to spend rate-limit token: %w", err)
	}

	remaining := tokens
	if remaining < 0 {
		remaining = 0
	}
	return models.RateLimitState{
		Allowed:   tokens >= 0,
		Limit:     r.Limit,
		Remaining: remaining,
		ResetAt:   lastRefill + refillIntervalSec,
	}, nil
}

// Peek reports the bucket state without spending a token. Used to
// attach rate headers to idempotent replays.
func (r *RateLimitRepository) Peek(bucketID string) (models.RateLimitState, error) {
	now := r.Now().Unix()

	var tokens int
	var lastRefill int64
	err := r.db.QueryRow(
		"SELECT tokens, last_refill FROM rate_limit_buckets WHERE bucket_id = ?",
		bucketID,
	).Scan(&tokens, &lastRefill)
	if err == sql.ErrNoRows {
		return models.RateLimitState{Allowed: true, Limit: r.Limit, Remaining: r.Limit, ResetAt: now + refillIntervalSec}, nil
	}
	if err != nil {
		return models.RateLimitState{}, fmt.Errorf("failed to peek rate-limit bucket: %w", err)
	}

	remaining := tokens
	if now-lastRefill >= refillIntervalSec {
		remaining = r.Limit
	}
	if remaining < 0 {
		remaining = 0
	}
	return models.RateLimitState{
		Allowed:   true,
		Limit:     r.Limit,
		Remaining: remaining,
		ResetAt:   lastRefill + refillIntervalSec,
	}, nil
}

// DeleteIdleBefore garbage-collects buckets whose last refill is older
// than cutoff. Losing a bucket only resets its quota, so this is safe.
func (r *RateLimitRepository) DeleteIdleBefore(cutoff int64) (int64, error) {
	res, err := r.db.Exec("DELETE FROM rate_limit_buckets WHERE last_refill < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune rate-limit buckets: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
