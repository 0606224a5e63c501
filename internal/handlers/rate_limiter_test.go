package handlers

import (
	"testing"
	"time"
)

func TestCustomerLimiterIsolatesCustomers(t *testing.T) {
	now := time.Date(2025, time.May, 2, 10, 0, 0, 0, time.UTC)
	limiter := newCustomerLimiter(4, 2*time.Second, func() time.Time { return now })

	for i := 0; i < 4; i++ {
		if wait := limiter.reserve("u_1"); wait != 0 {
			t.Fatalf("attempt %d: unexpected wait %s", i+1, wait)
		}
	}
	if wait := limiter.reserve("u_1"); wait != 500*time.Millisecond {
		t.Fatalf("expected 500ms wait, got %s", wait)
	}
	if wait := limiter.reserve("u_2"); wait != 0 {
		t.Fatalf("other customers must not share a bucket, got %s", wait)
	}
	// Denied attempts do not consume tokens.
	now = now.Add(500 * time.Millisecond)
	if wait := limiter.reserve("u_1"); wait != 0 {
		t.Fatalf("expected refill after 500ms, got %s", wait)
	}
}

func TestCustomerLimiterEvictsIdleBuckets(t *testing.T) {
	now := time.Date(2025, time.May, 2, 10, 0, 0, 0, time.UTC)
	limiter := newCustomerLimiter(1, time.Minute, func() time.Time { return now })

	limiter.reserve("u_1")
	limiter.reserve(" ")
	now = now.Add(2 * time.Minute)
	limiter.reserve("u_3")

	if len(limiter.buckets) != 1 {
		t.Fatalf("expected idle buckets evicted, got %d", len(limiter.buckets))
	}
	if _, ok := limiter.buckets["u_3"]; !ok {
		t.Fatal("expected bucket for u_3")
	}
}

func TestNewCustomerLimiterDisabled(t *testing.T) {
	if newCustomerLimiter(0, time.Minute, nil) != nil || newCustomerLimiter(5, 0, nil) != nil {
		t.Fatal("expected nil limiter for non-positive settings")
	}
}
