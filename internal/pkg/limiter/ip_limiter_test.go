package limiter

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/time/rate"
)

func TestAllowEnforcesBurstPerIP(t *testing.T) {
	l := NewIPRateLimiter(rate.Limit(0.001), 2)

	for i := 0; i < 2; i++ {
		if !l.Allow("10.0.0.1") {
			t.Fatalf("request %d within burst refused", i)
		}
	}
	if l.Allow("10.0.0.1") {
		t.Fatal("request over burst allowed")
	}

	// Another IP has its own bucket.
	if !l.Allow("10.0.0.2") {
		t.Fatal("fresh IP refused")
	}
}

func TestMiddlewareRejectsWith429(t *testing.T) {
	l := NewIPRateLimiter(rate.Limit(0.001), 1)

	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	request := func() int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.3:4321"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := request(); code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", code)
	}
	if code := request(); code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", code)
	}
}
