package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"huntdesk-ops/config"
)

func TestLimiterBlocksAfterCapacity(t *testing.T) {
	l := newLimiter(3, time.Hour)
	for i := 0; i < 3; i++ {
		if !l.allow("10.0.0.1") {
			t.Fatalf("attempt %d blocked early", i+1)
		}
	}
	if l.allow("10.0.0.1") {
		t.Fatalf("over-capacity attempt allowed")
	}
	// A different key has its own bucket.
	if !l.allow("10.0.0.2") {
		t.Fatalf("independent key blocked")
	}
}

func TestLimiterRefills(t *testing.T) {
	l := newLimiter(1, 10*time.Millisecond)
	if !l.allow("k") {
		t.Fatalf("first attempt blocked")
	}
	if l.allow("k") {
		t.Fatalf("second attempt allowed without refill")
	}
	time.Sleep(20 * time.Millisecond)
	if !l.allow("k") {
		t.Fatalf("attempt blocked after refill window")
	}
}

func TestLimiterCleanupEvictsStale(t *testing.T) {
	l := newLimiter(5, time.Minute)
	l.ttl = time.Millisecond
	l.buckets["stale"] = &tokenBucket{tokens: 5, last: time.Now().Add(-time.Hour), lastSeen: time.Now().Add(-time.Hour)}
	l.cleanup(time.Now())
	if _, ok := l.buckets["stale"]; ok {
		t.Fatalf("stale bucket survived cleanup")
	}
}

func TestSecurityHeaders(t *testing.T) {
	s := &Server{}
	h := s.securityHeadersMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("nosniff header missing")
	}
	if rr.Header().Get("X-Frame-Options") != "SAMEORIGIN" {
		t.Fatalf("frame options header missing")
	}
}

func TestRecoverMiddleware(t *testing.T) {
	s := &Server{}
	h := s.recoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
}

func TestClientIPIgnoresXFFFromUntrustedPeer(t *testing.T) {
	s := &Server{cfg: &config.AppConfig{}}
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.9:1234"
	r.Header.Set("X-Forwarded-For", "198.51.100.1")
	if got := s.clientIP(r); got != "203.0.113.9" {
		t.Fatalf("clientIP = %q, want peer address", got)
	}
}

func TestClientIPTrustedProxyXFF(t *testing.T) {
	s := &Server{cfg: &config.AppConfig{
		Security: config.SecurityConfig{TrustedProxies: []string{"10.0.0.0/8"}},
	}}
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.1.2.3:1234"
	r.Header.Set("X-Forwarded-For", "198.51.100.7, 10.1.2.4")
	if got := s.clientIP(r); got != "198.51.100.7" {
		t.Fatalf("clientIP = %q, want forwarded client", got)
	}
}

func TestSessionActivityThrottles(t *testing.T) {
	sa := newSessionActivity()
	now := time.Now()
	if !sa.shouldUpdate("s1", now, 30*time.Second) {
		t.Fatalf("first touch should update")
	}
	if sa.shouldUpdate("s1", now.Add(5*time.Second), 30*time.Second) {
		t.Fatalf("touch inside interval should be skipped")
	}
	if !sa.shouldUpdate("s1", now.Add(31*time.Second), 30*time.Second) {
		t.Fatalf("touch past interval should update")
	}
}
