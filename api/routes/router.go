package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/partsdepot/cart-service/api/controllers"
	cartcontrollers "github.com/partsdepot/cart-service/api/controllers/cart"
	"github.com/partsdepot/cart-service/api/middleware"
	"github.com/partsdepot/cart-service/internal/cart"
	"github.com/partsdepot/cart-service/pkg/config"
	"github.com/partsdepot/cart-service/pkg/logger"
	pkgredis "github.com/partsdepot/cart-service/pkg/redis"
)

// redisStore is the Redis surface used by the HTTP layer.
type redisStore interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

type guestSessionManager interface {
	Issue(ctx context.Context) (string, error)
	Touch(ctx context.Context, token string) (bool, error)
	Revoke(ctx context.Context, token string) error
	TTL() time.Duration
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisClient redisStore,
	sessions guestSessionManager,
	cartService cart.Service,
	metricsHandler http.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.GuestSession.HeaderName),
	)

	sessionPolicy := middleware.NewRateLimitPolicy(
		"cart-session",
		cfg.RateLimit.SessionWindow,
		cfg.RateLimit.SessionIPLimit,
		cfg.RateLimit.SessionUserLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg,
			controllers.ReadinessCheck{Name: "postgres", Pinger: dbP},
			controllers.ReadinessCheck{Name: "redis", Pinger: redisClient},
		))
	})

	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Use(middleware.OptionalAuth(cfg.JWT, logg))
		r.Use(middleware.GuestSession(sessions, cfg.GuestSession, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Idempotency(redisClient, logg))
			r.Get("/", cartcontrollers.CartFetch(cartService, logg))
			r.Delete("/", cartcontrollers.CartClear(cartService, logg))
			r.Get("/count", cartcontrollers.CartCount(cartService, logg))
			r.Put("/sync", cartcontrollers.CartSync(cartService, logg))
			r.Post("/items", cartcontrollers.CartAddItem(cartService, logg))
			r.Patch("/items/{itemId}", cartcontrollers.CartUpdateItem(cartService, logg))
			r.Delete("/items/{itemId}", cartcontrollers.CartRemoveItem(cartService, logg))
		})

		r.Route("/session", func(r chi.Router) {
			r.Use(middleware.RequireAuth(logg))
			r.Use(middleware.RateLimit(sessionPolicy, redisClient, logg))
			r.Use(middleware.Idempotency(redisClient, logg))
			r.Post("/login", cartcontrollers.SessionLogin(cartService, sessions, cfg.GuestSession, logg))
			r.Post("/logout", cartcontrollers.SessionLogout(cartService, logg))
		})
	})

	return r
}
