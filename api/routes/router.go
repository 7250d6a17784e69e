package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/farmfresh/marketplace-backend/api/controllers"
	analyticscontrollers "github.com/farmfresh/marketplace-backend/api/controllers/analytics"
	cartcontrollers "github.com/farmfresh/marketplace-backend/api/controllers/cart"
	ordercontrollers "github.com/farmfresh/marketplace-backend/api/controllers/orders"
	wishlistcontrollers "github.com/farmfresh/marketplace-backend/api/controllers/wishlist"
	"github.com/farmfresh/marketplace-backend/api/middleware"
	"github.com/farmfresh/marketplace-backend/internal/analytics"
	"github.com/farmfresh/marketplace-backend/internal/cart"
	"github.com/farmfresh/marketplace-backend/internal/orders"
	"github.com/farmfresh/marketplace-backend/internal/wishlist"
	"github.com/farmfresh/marketplace-backend/pkg/config"
	"github.com/farmfresh/marketplace-backend/pkg/enums"
	"github.com/farmfresh/marketplace-backend/pkg/logger"
	"github.com/farmfresh/marketplace-backend/pkg/redis"
)

// RedisStore is the slice of the redis client the HTTP layer relies on.
type RedisStore interface {
	redis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

// Dependencies groups everything NewRouter wires into handlers.
type Dependencies struct {
	DB        controllers.Pinger
	Redis     RedisStore
	Gatherer  prometheus.Gatherer
	Cart      cart.Service
	Wishlist  wishlist.Service
	Orders    orders.Service
	Analytics analytics.Service

	// Location reads date-only query parameters; defaults to UTC.
	Location *time.Location
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	ready := map[string]controllers.Pinger{}
	if deps.DB != nil {
		ready["db"] = deps.DB
	}
	if deps.Redis != nil {
		ready["redis"] = deps.Redis
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, ready))
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	cartPolicy := middleware.NewRateLimitPolicy("cart", cfg.RateLimit.CartWindow, cfg.RateLimit.CartLimit)

	var (
		idempotencyStore redis.IdempotencyStore
		limiter          middleware.RateLimiterStore
	)
	if deps.Redis != nil {
		idempotencyStore = deps.Redis
		limiter = deps.Redis
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotencyStore, cfg.Eventing.RequestKeyTTL, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Use(middleware.RateLimit(cartPolicy, limiter, logg))
			r.Get("/", cartcontrollers.ListCart(deps.Cart, logg))
			r.Delete("/", cartcontrollers.ClearCart(deps.Cart, logg))
			r.Post("/items", cartcontrollers.AddItem(deps.Cart, logg))
			r.Patch("/items/{productId}", cartcontrollers.UpdateItem(deps.Cart, logg))
			r.Delete("/items/{productId}", cartcontrollers.RemoveItem(deps.Cart, logg))
		})

		r.Route("/wishlist", func(r chi.Router) {
			r.Get("/", wishlistcontrollers.List(deps.Wishlist, logg))
			r.Delete("/", wishlistcontrollers.Clear(deps.Wishlist, logg))
			r.Post("/items", wishlistcontrollers.AddItem(deps.Wishlist, logg))
			r.Delete("/items/{productId}", wishlistcontrollers.RemoveItem(deps.Wishlist, logg))
			r.With(middleware.RateLimit(cartPolicy, limiter, logg)).
				Post("/items/{productId}/move-to-cart", wishlistcontrollers.MoveToCart(deps.Wishlist, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", ordercontrollers.Checkout(deps.Orders, logg))
			r.Get("/", ordercontrollers.ListMine(deps.Orders, loc, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
		})
	})

	reports := analyticscontrollers.NewReports(deps.Analytics, loc, cfg.Analytics.DefaultWindowDays, logg)
	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.RoleAdmin, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.AdminList(deps.Orders, loc, logg))
			r.Patch("/{orderId}/status", ordercontrollers.AdminSetStatus(deps.Orders, logg))
		})

		r.Route("/analytics", func(r chi.Router) {
			r.Get("/overview", reports.Overview)
			r.Get("/top-products", reports.TopProducts)
			r.Get("/product-performance", reports.ProductPerformance)
			r.Get("/export.csv", reports.ExportCSV)
			r.Get("/low-stock", reports.LowStock)
			r.Get("/out-of-stock", reports.OutOfStock)
		})
	})

	return r
}
