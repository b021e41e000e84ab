package repository

import (
	"bytes"
	"testing"
	"time"
)

func TestIdempotencyStoreAndGet(t *testing.T) {
	repo := NewIdempotencyRepository(testDB(t), 24)

	body := []byte(`{"route_id":"R1"}`)
	response := []byte(`{"accepted_segments":1}`)
	key := "4f9c1a52-7a0e-4d5b-9f3e-0b6a2c8d1e44"

	if err := repo.Store(key, HashBody(body), response, 200); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	rec, err := repo.Get(key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec == nil {
		t.Fatal("stored record not found")
	}
	if !bytes.Equal(rec.ResponseBody, response) {
		t.Errorf("replayed body = %q, want %q", rec.ResponseBody, response)
	}
	if rec.StatusCode != 200 {
		t.Errorf("status = %d, want 200", rec.StatusCode)
	}
	if rec.BodyHash != HashBody(body) {
		t.Error("stored body hash does not match the request body")
	}
}

func TestIdempotencyGetUnknownKey(t *testing.T) {
	repo := NewIdempotencyRepository(testDB(t), 24)

	rec, err := repo.Get("0a7b1c2d-3e4f-4a5b-8c9d-0e1f2a3b4c5d")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec != nil {
		t.Errorf("unknown key returned a record: %+v", rec)
	}
}

// A second store under the same key must not overwrite the first
// response; the earliest completed request wins.
func TestIdempotencyStoreIsWriteOnce(t *testing.T) {
	repo := NewIdempotencyRepository(testDB(t), 24)
	key := "4f9c1a52-7a0e-4d5b-9f3e-0b6a2c8d1e44"

	first := []byte(`{"accepted_segments":1}`)
	second := []byte(`{"accepted_segments":99}`)

	if err := repo.Store(key, "hash-a", first, 200); err != nil {
		t.Fatalf("first Store failed: %v", err)
	}
	if err := repo.Store(key, "hash-b", second, 200); err != nil {
		t.Fatalf("second Store failed: %v", err)
	}

	rec, err := repo.Get(key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(rec.ResponseBody, first) {
		t.Errorf("second store overwrote the record: got %q, want %q", rec.ResponseBody, first)
	}
	if rec.BodyHash != "hash-a" {
		t.Errorf("body hash = %q, want the first writer's %q", rec.BodyHash, "hash-a")
	}
}

func TestIdempotencyExpiry(t *testing.T) {
	repo := NewIdempotencyRepository(testDB(t), 24)
	key := "4f9c1a52-7a0e-4d5b-9f3e-0b6a2c8d1e44"

	base := time.Unix(1_700_000_000, 0)
	repo.Now = func() time.Time { return base }
	if err := repo.Store(key, "h", []byte("{}"), 200); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	// Within the window the record is visible.
	repo.Now = func() time.Time { return base.Add(23 * time.Hour) }
	if rec, _ := repo.Get(key); rec == nil {
		t.Error("record should still be visible 23h after storage")
	}

	// Past the window Get treats it as absent even before the sweeper
	// physically removes it.
	repo.Now = func() time.Time { return base.Add(25 * time.Hour) }
	if rec, _ := repo.Get(key); rec != nil {
		t.Error("record should be invisible 25h after storage")
	}

	n, err := repo.DeleteExpired()
	if err != nil {
		t.Fatalf("DeleteExpired failed: %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteExpired removed %d records, want 1", n)
	}
}

func TestHashBodyDistinguishesBodies(t *testing.T) {
	a := HashBody([]byte(`{"route_id":"R1"}`))
	b := HashBody([]byte(`{"route_id":"R2"}`))
	if a == b {
		t.Error("different bodies should hash differently")
	}
	if a != HashBody([]byte(`{"route_id":"R1"}`)) {
		t.Error("hash must be deterministic")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex characters", len(a))
	}
}
