package routes

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	checkoutsvc "github.com/angelmondragon/ordersettle/internal/checkout"
	"github.com/angelmondragon/ordersettle/internal/orders"
	pkgAuth "github.com/angelmondragon/ordersettle/pkg/auth"
	"github.com/angelmondragon/ordersettle/pkg/config"
	"github.com/angelmondragon/ordersettle/pkg/db/models"
	"github.com/angelmondragon/ordersettle/pkg/enums"
	"github.com/angelmondragon/ordersettle/pkg/metrics"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubRedis struct {
	mu   sync.Mutex
	data map[string]string
	hits map[string]int64
}

func newStubRedis() *stubRedis {
	return &stubRedis{data: map[string]string{}, hits: map[string]int64{}}
}

func (s *stubRedis) Ping(context.Context) error { return nil }

func (s *stubRedis) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *stubRedis) Set(_ context.Context, key string, value any, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = fmt.Sprint(value)
	return nil
}

func (s *stubRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key] = fmt.Sprint(value)
	return true, nil
}

func (s *stubRedis) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

func (s *stubRedis) IdempotencyKey(scope, id string) string { return "idem:" + scope + ":" + id }

func (s *stubRedis) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hits[key]++
	return s.hits[key], nil
}

func (s *stubRedis) RateLimitKey(scope string) string { return "rl:" + scope }

type stubCheckout struct {
	calls int
}

func (s *stubCheckout) PlaceCashOrder(ctx context.Context, req checkoutsvc.Request) (*checkoutsvc.Result, error) {
	s.calls++
	return &checkoutsvc.Result{CheckoutID: uuid.New()}, nil
}

type stubOrders struct{}

func (stubOrders) Cancel(ctx context.Context, input orders.CancelInput) (*models.Order, error) {
	return &models.Order{ID: input.OrderID, PaymentStatus: enums.PaymentStatusCancelled}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{Secret: "router-secret", Issuer: "ordersettle"},
		HTTP: config.HTTPConfig{
			CheckoutRateWindow: time.Minute,
			CheckoutRateLimit:  1,
		},
	}
}

func bearer(t *testing.T, cfg *config.Config, role enums.Role) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), time.Hour, pkgAuth.AccessTokenPayload{UserID: uuid.New(), Role: role})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return "Bearer " + token
}

func newTestRouter(cfg *config.Config, checkout *stubCheckout) http.Handler {
	reg := prometheus.NewRegistry()
	metrics.NewSettlementMetrics(reg)
	return NewRouter(cfg, nil, Dependencies{
		DB:           stubPinger{},
		Redis:        newStubRedis(),
		CashCheckout: checkout,
		Orders:       stubOrders{},
		Metrics:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
}

func cashBody() string {
	return `{"list_items":[{"productId":"` + uuid.NewString() + `","quantity":1}],"addressId":"` + uuid.NewString() + `"}`
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	router := newTestRouter(testConfig(), &stubCheckout{})
	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, resp.Code)
		}
	}
}

func TestOrderRoutesRequireAuth(t *testing.T) {
	checkout := &stubCheckout{}
	router := newTestRouter(testConfig(), checkout)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/cash", strings.NewReader(cashBody()))
	req.Header.Set("Idempotency-Key", "k1")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
	if checkout.calls != 0 {
		t.Fatalf("checkout must not run unauthenticated")
	}
}

func TestCashOrderRequiresIdempotencyKeyAndReplays(t *testing.T) {
	cfg := testConfig()
	checkout := &stubCheckout{}
	router := newTestRouter(cfg, checkout)
	token := bearer(t, cfg, enums.RoleCustomer)
	body := cashBody()

	send := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/cash", strings.NewReader(body))
		req.Header.Set("Authorization", token)
		if key != "" {
			req.Header.Set("Idempotency-Key", key)
		}
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		return resp
	}

	if resp := send(""); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without key, got %d", resp.Code)
	}
	first := send("order-1")
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d (%s)", first.Code, first.Body.String())
	}
	replay := send("order-1")
	if replay.Code != http.StatusCreated || replay.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatalf("expected replayed 201, got %d %v", replay.Code, replay.Header())
	}
	if checkout.calls != 1 {
		t.Fatalf("expected one checkout, got %d", checkout.calls)
	}
	if resp := send("order-2"); resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected rate limit on the second distinct order, got %d", resp.Code)
	}
}

func TestAdminCancelRequiresAdminRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg, &stubCheckout{})
	path := "/api/admin/v1/orders/" + uuid.NewString() + "/cancel"

	send := func(role enums.Role) int {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"reason":"duplicate"}`))
		req.Header.Set("Authorization", bearer(t, cfg, role))
		req.Header.Set("Idempotency-Key", uuid.NewString())
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		return resp.Code
	}

	if code := send(enums.RoleCustomer); code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer, got %d", code)
	}
	if code := send(enums.RoleAdmin); code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", code)
	}
}

func TestStripeWebhookSkipsAuth(t *testing.T) {
	router := newTestRouter(testConfig(), &stubCheckout{})
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader(`{}`)))
	// No reconciler is wired here, so reaching the handler yields 500 rather than 401.
	if resp.Code == http.StatusUnauthorized {
		t.Fatalf("webhook must not require bearer auth")
	}
}
