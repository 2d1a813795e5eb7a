package ratelimit

import (
	"errors"
	"testing"
)

func TestAllow_Unlimited(t *testing.T) {
	l := NewLimiter(Config{})
	for i := 0; i < 100; i++ {
		if err := l.Allow("alice"); err != nil {
			t.Fatalf("unlimited limiter denied request %d: %v", i, err)
		}
	}
}

func TestAllow_BurstExhaustion(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 60, BurstSize: 3})

	for i := 0; i < 3; i++ {
		if err := l.Allow("alice"); err != nil {
			t.Fatalf("request %d within burst denied: %v", i, err)
		}
	}
	if err := l.Allow("alice"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("error = %v, want rate limited", err)
	}
}

func TestAllow_SendersAreIndependent(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 60, BurstSize: 1})

	if err := l.Allow("alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.Allow("alice"); !errors.Is(err, ErrRateLimited) {
		t.Error("alice should be exhausted")
	}
	// Bob's bucket is untouched by Alice's traffic.
	if err := l.Allow("bob"); err != nil {
		t.Errorf("bob denied: %v", err)
	}
}

func TestNewLimiter_BurstDefaults(t *testing.T) {
	l := NewLimiter(Config{RequestsPerMinute: 10})
	if l.burst != 10 {
		t.Errorf("burst = %v, want to default to rate", l.burst)
	}
}
