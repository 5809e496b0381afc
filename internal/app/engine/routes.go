package engine

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/entitlement-engine/internal/catalog"
	"github.com/magabrotheeeer/entitlement-engine/internal/http/handlers/entitlement/check"
	"github.com/magabrotheeeer/entitlement-engine/internal/http/handlers/entitlement/feature"
	"github.com/magabrotheeeer/entitlement-engine/internal/http/handlers/entitlement/limit"
	"github.com/magabrotheeeer/entitlement-engine/internal/http/handlers/entitlement/resolve"
	"github.com/magabrotheeeer/entitlement-engine/internal/http/handlers/health"
	"github.com/magabrotheeeer/entitlement-engine/internal/http/handlers/payment/paymentget"
	"github.com/magabrotheeeer/entitlement-engine/internal/http/handlers/payment/paymentlist"
	"github.com/magabrotheeeer/entitlement-engine/internal/http/handlers/payment/refund"
	"github.com/magabrotheeeer/entitlement-engine/internal/http/handlers/plans"
	"github.com/magabrotheeeer/entitlement-engine/internal/http/handlers/subscription/cancel"
	"github.com/magabrotheeeer/entitlement-engine/internal/http/handlers/subscription/history"
	"github.com/magabrotheeeer/entitlement-engine/internal/http/handlers/subscription/subscribe"
	"github.com/magabrotheeeer/entitlement-engine/internal/http/handlers/subscription/upgrade"
	"github.com/magabrotheeeer/entitlement-engine/internal/http/middlewarectx"
	"github.com/magabrotheeeer/entitlement-engine/internal/lib/jwt"
	"github.com/magabrotheeeer/entitlement-engine/internal/metrics"
	"github.com/magabrotheeeer/entitlement-engine/internal/services/subscription"
)

// Routes: зависимости HTTP-маршрутов.
type Routes struct {
	Logger  *slog.Logger
	Catalog *catalog.Catalog
	Service *subscription.Service
	Tokens  middlewarectx.TokenParser
	Limiter *middlewarectx.RateLimiter
	Metrics *metrics.Metrics
	Ready   health.Checker
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, d Routes) {
	logger := d.Logger

	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		d.Metrics.Middleware,
	)

	r.Get("/health", health.New(logger, d.Ready).ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.With(d.Limiter.Middleware(logger)).Get("/plans", plans.New(logger, d.Catalog).ServeHTTP)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(d.Tokens, logger))
			r.Use(d.Limiter.Middleware(logger))

			r.Post("/subscriptions", subscribe.New(logger, d.Service).ServeHTTP)
			r.Post("/subscriptions/upgrade", upgrade.New(logger, d.Service).ServeHTTP)
			r.Post("/subscriptions/cancel", cancel.New(logger, d.Service).ServeHTTP)
			r.Get("/subscriptions/history", history.New(logger, d.Service).ServeHTTP)
			r.Get("/entitlement", resolve.New(logger, d.Service).ServeHTTP)
			r.Get("/access/{tier}", check.New(logger, d.Service).ServeHTTP)
			r.Get("/features/{name}", feature.New(logger, d.Service).ServeHTTP)
			r.Get("/limits/{name}", limit.New(logger, d.Service).ServeHTTP)

			r.Group(func(r chi.Router) {
				r.Use(middlewarectx.RequireTier(logger, d.Service, catalog.Pro))
				r.Get("/payments", paymentlist.New(logger, d.Service).ServeHTTP)
				r.Get("/payments/{id}", paymentget.New(logger, d.Service).ServeHTTP)
			})
			r.With(middlewarectx.RequireRole(logger, jwt.RoleAdmin)).
				Post("/payments/{id}/refund", refund.New(logger, d.Service).ServeHTTP)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
