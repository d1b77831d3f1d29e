package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/anitrack/internal/platform/auth"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiter_AllowsBurst(t *testing.T) {
	rl := NewRateLimiter(1, 3) // 1/s, burst 3
	handler := rl.Middleware(okHandler())

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "1.2.3.4:1234"
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "1.2.3.4:5678"
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("4th request: expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestRateLimiter_DifferentIPs(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	handler := rl.Middleware(okHandler())

	for _, addr := range []string{"1.1.1.1:1234", "2.2.2.2:1234"} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = addr
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s first: expected 200, got %d", addr, rec.Code)
		}
	}
}

func TestRateLimiter_KeysSignedInUsers(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	handler := rl.Middleware(okHandler())

	send := func(uid string) int {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/", nil)
		req.RemoteAddr = "9.9.9.9:1"
		if uid != "" {
			req = req.WithContext(auth.WithUserID(req.Context(), uid))
		}
		handler.ServeHTTP(rec, req)
		return rec.Code
	}
	if code := send("u1"); code != http.StatusOK {
		t.Fatalf("u1: expected 200, got %d", code)
	}
	if code := send("u2"); code != http.StatusOK {
		t.Fatalf("u2 behind the same IP: expected 200, got %d", code)
	}
	if code := send("u1"); code != http.StatusTooManyRequests {
		t.Fatalf("u1 again: expected 429, got %d", code)
	}
}

func TestRateLimiter_Refills(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	if !rl.allow("k") {
		t.Fatal("first request should pass")
	}
	if rl.allow("k") {
		t.Fatal("second request should be limited")
	}
	now = now.Add(time.Second)
	if !rl.allow("k") {
		t.Fatal("expected a refilled token after one second")
	}
}

func TestRateLimiter_SweepsIdleClients(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	rl.allow("a")
	now = now.Add(idleAfter + time.Minute)
	rl.allow("b")
	if _, ok := rl.clients["a"]; ok {
		t.Fatal("idle client should have been swept")
	}
	if len(rl.clients) != 1 {
		t.Fatalf("expected 1 client, got %d", len(rl.clients))
	}
}
