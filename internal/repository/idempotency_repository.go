package repository

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"
)

// IdempotencyRecord is the stored outcome of a completed write
// request. The full serialized response is kept so replays are
// byte-identical; the body hash alone could only detect mismatches,
// never reproduce the original response.
type IdempotencyRecord struct {
	Key          string
	BodyHash     string
	ResponseBody []byte
	StatusCode   int
	SubmittedAt  int64
}

// IdempotencyRepository deduplicates retried write requests by
// client-supplied key. Records are write-once; a second request with
// the same key and a different body hash is a conflict.
type IdempotencyRepository struct {
	db       *sql.DB
	TTLHours int
	Now      func() time.Time
}

// NewIdempotencyRepository creates a new idempotency repository
func NewIdempotencyRepository(db *sql.DB, ttlHours int) *IdempotencyRepository {
	return &IdempotencyRepository{db: db, TTLHours: ttlHours, Now: time.Now}
}

// HashBody returns the canonical hash of a raw request body.
func HashBody(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Get returns the record for key if one exists within the retention
// window, or nil.
func (r *IdempotencyRepository) Get(key string) (*IdempotencyRecord, error) {
	minSubmitted := r.Now().Unix() - int64(r.TTLHours)*3600

	var rec IdempotencyRecord
	err := r.db.QueryRow(
		`SELECT key, body_hash, response_body, status_code, submitted_at
		 FROM idempotency_keys WHERE key = ? AND submitted_at >= ?`,
		key, minSubmitted,
	).Scan(&rec.Key, &rec.BodyHash, &rec.ResponseBody, &rec.StatusCode, &rec.SubmittedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read idempotency key: %w", err)
	}
	return &rec, nil
}

// Store persists the response for key. INSERT OR IGNORE keeps the
// record write-once: if two concurrent requests with the same key
// both complete, the first stored response wins and subsequent
// replays return it.
func (r *IdempotencyRepository) Store(key, bodyHash string, responseBody []byte, statusCode int) error {
	_, err := r.db.Exec(
		`INSERT OR IGNORE INTO idempotency_keys (key, body_hash, response_body, status_code, submitted_at)
		 VALUES (?, ?, ?, ?, ?)`,
		key, bodyHash, responseBody, statusCode, r.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store idempotency key: %w", err)
	}
	return nil
}

// DeleteExpired removes records past the retention window. Expiry is
// advisory cleanup, not a correctness requirement.
func (r *IdempotencyRepository) DeleteExpired() (int64, error) {
	cutoff := r.Now().Unix() - int64(r.TTLHours)*3600
	res, err := r.db.Exec("DELETE FROM idempotency_keys WHERE submitted_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune idempotency keys: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
