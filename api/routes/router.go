package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/ordersettle/api/controllers"
	webhookcontrollers "github.com/angelmondragon/ordersettle/api/controllers/webhooks"
	"github.com/angelmondragon/ordersettle/api/middleware"
	checkoutsvc "github.com/angelmondragon/ordersettle/internal/checkout"
	"github.com/angelmondragon/ordersettle/internal/orders"
	stripewebhook "github.com/angelmondragon/ordersettle/internal/webhooks/stripe"
	"github.com/angelmondragon/ordersettle/pkg/config"
	"github.com/angelmondragon/ordersettle/pkg/enums"
	"github.com/angelmondragon/ordersettle/pkg/logger"
	pkgredis "github.com/angelmondragon/ordersettle/pkg/redis"
)

type redisStore interface {
	pkgredis.IdempotencyStore
	Ping(ctx context.Context) error
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

type cashOrderPlacer interface {
	PlaceCashOrder(ctx context.Context, req checkoutsvc.Request) (*checkoutsvc.Result, error)
}

type sessionStarter interface {
	Start(ctx context.Context, req checkoutsvc.Request) (*checkoutsvc.SessionResult, error)
}

type eventReconciler interface {
	HandleEvent(ctx context.Context, event *stripe.Event) stripewebhook.Outcome
}

type eventGuard interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Remember(ctx context.Context, eventID string) error
}

type signingClient interface {
	SigningSecret() string
}

// Dependencies are the services the API surface dispatches to.
type Dependencies struct {
	DB             controllers.Pinger
	Redis          redisStore
	CashCheckout   cashOrderPlacer
	OnlineCheckout sessionStarter
	Orders         orders.Service
	Reconciler     eventReconciler
	EventGuard     eventGuard
	Stripe         signingClient
	Metrics        http.Handler
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.HTTP.CORSOrigins),
	)

	checkoutLimit := middleware.RateLimitPolicy{
		Name:   "checkout",
		Window: cfg.HTTP.CheckoutRateWindow,
		Limit:  cfg.HTTP.CheckoutRateLimit,
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"database": deps.DB,
			"redis":    deps.Redis,
		}))
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(deps.Reconciler, deps.Stripe, deps.EventGuard, logg))
	})

	// Flat patterns keep the full route visible to the idempotency rules.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(deps.Redis, logg))

		limited := r.With(middleware.RateLimit(checkoutLimit, deps.Redis, logg))
		limited.Post("/api/v1/orders/cash", controllers.CashOrder(deps.CashCheckout, logg))
		limited.Post("/api/v1/orders/checkout-session", controllers.CheckoutSession(deps.OnlineCheckout, logg))

		r.With(middleware.RequireRole(logg, enums.RoleAdmin)).
			Post("/api/admin/v1/orders/{orderId}/cancel", controllers.AdminCancelOrder(deps.Orders, logg))
	})

	return r
}
