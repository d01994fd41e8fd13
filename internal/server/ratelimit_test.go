package server

import (
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestMultiLimiterAllow(t *testing.T) {
	// 2 events per second with burst 2
	ml := newMultiLimiter(rate.Limit(2), 2, time.Minute)
	key := "test"
	if !ml.allow(key) {
		t.Fatal("first allow should pass")
	}
	if !ml.allow(key) {
		t.Fatal("second allow should pass")
	}
	if ml.allow(key) {
		t.Fatal("third allow should be rate limited")
	}
	if !ml.allow("other") {
		t.Fatal("separate key should have its own bucket")
	}
}

func TestMultiLimiterEvictsIdle(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	ml := newMultiLimiter(rate.Limit(1), 1, time.Minute)
	ml.now = func() time.Time { return now }

	ml.allow("a")
	ml.allow("b")
	now = now.Add(2 * time.Minute)
	ml.allow("c")
	if n := ml.size(); n != 1 {
		t.Errorf("entries after sweep = %d, want 1", n)
	}
}

func TestGetClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.5:4321"
	if got := getClientIP(r); got != "10.0.0.5" {
		t.Errorf("getClientIP = %q", got)
	}
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := getClientIP(r); got != "203.0.113.7" {
		t.Errorf("getClientIP with XFF = %q", got)
	}
}
