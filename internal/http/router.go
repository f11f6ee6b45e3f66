package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/go_orders/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type RouterConfig struct {
	Carts          CartService
	Orders         OrderService
	Catalog        CatalogService
	Health         func(*http.Request) error
	AdminToken     string
	RequestTimeout time.Duration
	Limiter        *RateLimiter
	Metrics        *metrics.Metrics
	Logger         *slog.Logger

	// TrustProxy takes the client IP from X-Forwarded-For/X-Real-IP. Enable
	// it only behind a proxy that overwrites those headers.
	TrustProxy bool
}

func NewRouter(cfg RouterConfig) http.Handler {
	cartHandler := NewCartHandler(cfg.Carts, cfg.RequestTimeout, cfg.Logger)
	orderHandler := NewOrderHandler(cfg.Orders, cfg.Limiter, cfg.RequestTimeout, cfg.Logger)
	catalogHandler := NewCatalogHandler(cfg.Catalog, cfg.RequestTimeout, cfg.Logger)
	admin := AdminOnly(cfg.AdminToken)

	r := chi.NewRouter()

	if cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(MetricsMiddleware(cfg.Metrics))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Health != nil {
			if err := cfg.Health(r); err != nil {
				respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
				return
			}
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", cfg.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/cart/{user_id}", func(r chi.Router) {
			r.Use(limit(cfg.Limiter))
			r.Get("/", cartHandler.GetCart)
			r.Get("/validate", cartHandler.Validate)
			r.Post("/add", cartHandler.AddItem)
			r.Put("/items/{item_id}", cartHandler.UpdateItem)
			r.Delete("/items/{item_id}", cartHandler.RemoveItem)
			r.Delete("/", cartHandler.ClearCart)
		})

		r.Route("/users/{user_id}/orders", func(r chi.Router) {
			r.Use(limit(cfg.Limiter))
			r.Get("/", orderHandler.ListUserOrders)
			r.Get("/{order_id}", orderHandler.GetUserOrder)
			r.Post("/{order_id}/cancel", orderHandler.CancelOrder)
		})

		r.Route("/orders", func(r chi.Router) {
			r.With(limit(cfg.Limiter)).Post("/", orderHandler.CreateOrder)
			r.Group(func(r chi.Router) {
				r.Use(admin)
				r.Get("/", orderHandler.ListOrders)
				r.Get("/{order_id}", orderHandler.GetOrder)
				r.Put("/{order_id}/status", orderHandler.UpdateStatus)
				r.Put("/{order_id}/payment-status", orderHandler.UpdatePaymentStatus)
			})
		})

		r.Get("/categories", catalogHandler.ListCategories)
		r.Get("/categories/{category_id}/products", catalogHandler.ListProducts)
		r.Get("/products/{product_id}", catalogHandler.GetProduct)
		r.With(admin).Patch("/products/{product_id}", catalogHandler.UpdateProduct)

		r.Route("/cache", func(r chi.Router) {
			r.Use(admin)
			r.Get("/stats", catalogHandler.CacheStats)
			r.Delete("/catalog", catalogHandler.InvalidateCatalog)
		})
	})

	return otelhttp.NewHandler(r, "orders-api")
}

func limit(l *RateLimiter) func(http.Handler) http.Handler {
	if l == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return l.Middleware
}
