package models

// RateLimitState is the outcome of one atomic check-and-spend against
// a client's token bucket.
type RateLimitState struct {
	Allowed   bool
	Limit     int
	Remaining int   // clamped to 0 on denial
	ResetAt   int64 // unix seconds when the bucket refills
}
