package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestAllowWithinLimit(t *testing.T) {
	r := miniredis.RunT(t)
	limiter, err := NewFixedWindowLimiter(r.Addr(), "", 3, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	for i := 0; i < 3; i++ {
		if !limiter.Allow("10.0.0.1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if limiter.Allow("10.0.0.1") {
		t.Fatal("fourth request in window should be blocked")
	}
	// Other keys have their own quota.
	if !limiter.Allow("10.0.0.2") {
		t.Fatal("different key should not share quota")
	}
}

func TestAllowFailsClosedOnRedisError(t *testing.T) {
	r := miniredis.RunT(t)
	limiter, err := NewFixedWindowLimiter(r.Addr(), "", 5, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	r.Close()
	if limiter.Allow("10.0.0.1") {
		t.Fatal("limiter must fail closed when Redis is unreachable")
	}
}

func TestNilLimiterAllows(t *testing.T) {
	var limiter *FixedWindowLimiter
	if !limiter.Allow("anyone") {
		t.Fatal("nil limiter means rate limiting is disabled")
	}
}

func TestNewFixedWindowLimiterValidation(t *testing.T) {
	if _, err := NewFixedWindowLimiter("", "", 1, time.Minute); err == nil {
		t.Fatal("expected error for missing addr")
	}
	if _, err := NewFixedWindowLimiter("localhost:6379", "", 0, time.Minute); err == nil {
		t.Fatal("expected error for zero limit")
	}
}
