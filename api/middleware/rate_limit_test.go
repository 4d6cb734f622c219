package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type counterStore struct {
	counts map[string]int64
}

func (c *counterStore) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	c.counts[key]++
	return c.counts[key], nil
}

func (c *counterStore) RateLimitKey(scope string) string { return "rl:" + scope }

func TestRateLimitPerUser(t *testing.T) {
	store := &counterStore{counts: map[string]int64{}}
	handler := RateLimit(RateLimitPolicy{Name: "checkout", Window: time.Minute, Limit: 2}, store, nil)(okHandler())

	send := func(user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/cash", nil)
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req.WithContext(WithUserID(req.Context(), user)))
		return resp
	}

	for i := 0; i < 2; i++ {
		if resp := send("u1"); resp.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200 got %d", i, resp.Code)
		}
	}
	blocked := send("u1")
	if blocked.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", blocked.Code)
	}
	if blocked.Header().Get("Retry-After") != "60" {
		t.Fatalf("expected Retry-After 60, got %q", blocked.Header().Get("Retry-After"))
	}
	if resp := send("u2"); resp.Code != http.StatusOK {
		t.Fatalf("other users must not share the counter, got %d", resp.Code)
	}
	if _, ok := store.counts["rl:checkout:u1"]; !ok {
		t.Fatalf("expected per-user key, have %v", store.counts)
	}
}

func TestRateLimitFallsBackToIP(t *testing.T) {
	store := &counterStore{counts: map[string]int64{}}
	handler := RateLimit(RateLimitPolicy{Name: "checkout", Window: time.Minute, Limit: 1}, store, nil)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if store.counts["rl:checkout:ip:203.0.113.7"] != 1 {
		t.Fatalf("expected ip-scoped counter, have %v", store.counts)
	}
}

func TestRateLimitDisabledPassesThrough(t *testing.T) {
	handler := RateLimit(RateLimitPolicy{}, nil, nil)(okHandler())
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected pass-through, got %d", resp.Code)
	}
}
