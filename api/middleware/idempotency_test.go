package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/angelmondragon/ordersettle/pkg/errors"
)

const cashRoute = "/api/v1/orders/cash"

type fakeStore struct {
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	f.data[key], _ = value.(string)
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key], _ = value.(string)
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.data, k)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func requestWithPattern(method, url, pattern string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, url, body)
	rc := chi.NewRouteContext()
	rc.RoutePatterns = []string{pattern}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
}

func cashRequest(key, body string) *http.Request {
	req := requestWithPattern(http.MethodPost, cashRoute, cashRoute, strings.NewReader(body))
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	return req.WithContext(WithUserID(req.Context(), "user-1"))
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	return payload.Error.Code
}

func TestRouteTTLSelection(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		pattern string
		want    time.Duration
		ok      bool
	}{
		{"cash", http.MethodPost, "/api/v1/orders/cash", criticalIdempotencyTTL, true},
		{"session", http.MethodPost, "/api/v1/orders/checkout-session", criticalIdempotencyTTL, true},
		{"admin cancel", http.MethodPost, "/api/admin/v1/orders/{orderId}/cancel", defaultIdempotencyTTL, true},
		{"webhook", http.MethodPost, "/api/v1/webhooks/stripe", 0, false},
		{"wrong method", http.MethodGet, "/api/v1/orders/cash", 0, false},
	}
	for _, tt := range tests {
		ttl, ok := routeTTL(tt.method, tt.pattern)
		if ok != tt.ok {
			t.Fatalf("%s: expected ok=%v got %v", tt.name, tt.ok, ok)
		}
		if ok && ttl != tt.want {
			t.Fatalf("%s: expected ttl=%v got %v", tt.name, tt.want, ttl)
		}
	}
}

func TestIdempotencyMiddlewareRequiresHeader(t *testing.T) {
	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { handlerCalled = true })

	resp := httptest.NewRecorder()
	Idempotency(newFakeStore(), nil)(handler).ServeHTTP(resp, cashRequest("", `{}`))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if handlerCalled {
		t.Fatalf("handler should not run without idempotency key")
	}
}

func TestIdempotencyMiddlewareReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"success":true}`))
	})

	first := httptest.NewRecorder()
	mw(handler).ServeHTTP(first, cashRequest("abc", `{"totalAmt":1}`))
	if first.Code != http.StatusCreated {
		t.Fatalf("expected first response 201 got %d", first.Code)
	}
	if ttl := store.ttls["fake:user-1|POST|"+cashRoute+":abc"]; ttl != criticalIdempotencyTTL {
		t.Fatalf("expected final record ttl %v got %v", criticalIdempotencyTTL, ttl)
	}

	replay := httptest.NewRecorder()
	mw(handler).ServeHTTP(replay, cashRequest("abc", `{"totalAmt":1}`))
	if replay.Code != http.StatusCreated {
		t.Fatalf("expected replay status 201 got %d", replay.Code)
	}
	if replay.Header().Get("Content-Type") != "application/json" || replay.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("unexpected replay headers %v", replay.Header())
	}
	if strings.TrimSpace(replay.Body.String()) != `{"success":true}` {
		t.Fatalf("expected stored body got %s", replay.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}
}

func TestIdempotencyMiddlewareDetectsBodyChange(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	mw(handler).ServeHTTP(httptest.NewRecorder(), cashRequest("xyz", `{"totalAmt":1}`))
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, cashRequest("xyz", `{"totalAmt":2}`))

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected error code %s got %s", pkgerrors.CodeIdempotency, code)
	}
}

func TestIdempotencyMiddlewareRefusesConcurrentDuplicate(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	var inner *httptest.ResponseRecorder
	var calls int
	var handler http.Handler
	handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			// A second delivery arrives while the first is still running.
			inner = httptest.NewRecorder()
			mw(handler).ServeHTTP(inner, cashRequest("dup", `{}`))
		}
		w.WriteHeader(http.StatusOK)
	})

	mw(handler).ServeHTTP(httptest.NewRecorder(), cashRequest("dup", `{}`))
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}
	if inner.Code != http.StatusConflict {
		t.Fatalf("expected in-flight duplicate to get 409, got %d", inner.Code)
	}
}

func TestIdempotencyMiddlewareReleasesKeyOnServerError(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	status := http.StatusServiceUnavailable
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(status)
	})

	mw(handler).ServeHTTP(httptest.NewRecorder(), cashRequest("retry", `{}`))
	if len(store.data) != 0 {
		t.Fatalf("expected key released after 5xx, have %v", store.data)
	}
	status = http.StatusOK
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, cashRequest("retry", `{}`))
	if resp.Code != http.StatusOK || calls != 2 {
		t.Fatalf("expected retry to run handler again, code=%d calls=%d", resp.Code, calls)
	}
}

func TestIdempotencyMiddlewareSkipsOtherRoutes(t *testing.T) {
	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
	req := requestWithPattern(http.MethodPost, "/api/v1/webhooks/stripe", "/api/v1/webhooks/stripe", strings.NewReader(`{}`))
	Idempotency(newFakeStore(), nil)(handler).ServeHTTP(httptest.NewRecorder(), req)
	if !called {
		t.Fatalf("handler should run for routes without idempotency")
	}
}
