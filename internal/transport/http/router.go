package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/time/rate"

	"github.com/go-account-link/internal/config"
	jwtinfra "github.com/go-account-link/internal/infrastructure/jwt"
	"github.com/go-account-link/internal/transport/http/handler"
	appmiddleware "github.com/go-account-link/internal/transport/http/middleware"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Webhook-Token"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// With no JWT provider configured (local development) the auth and
	// role checks degrade to passthrough.
	authMw := func(next http.Handler) http.Handler { return next }
	requireRole := func(...string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler { return next }
	}
	if deps.JWTProvider != nil {
		authMw = appmiddleware.Auth(deps.JWTProvider)
		requireRole = appmiddleware.RequireRole
	}

	// 5 requests/second, burst of 10 — applied to sensitive public endpoints.
	sensitiveRL := appmiddleware.NewRateLimiter(rate.Limit(5), 10)
	// The bot relay funnels every chat user through one client, so the
	// webhook bucket is far wider.
	webhookRL := appmiddleware.NewRateLimiter(rate.Limit(50), 100)

	healthH := handler.NewHealthHandler()
	bindingH := handler.NewBindingHandler(deps.Coordinator)
	webhookH := handler.NewWebhookHandler(deps.Coordinator)
	auditH := handler.NewAuditHandler(deps.AuditRepo)

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/{action}", healthH.Ping)
		r.Post("/health-check/{action}", healthH.Ping)

		// Bot webhook, guarded by the shared transport token.
		r.Group(func(r chi.Router) {
			r.Use(webhookRL.Limit)
			r.Use(appmiddleware.WebhookToken(cfg.WebhookToken))
			r.Post("/webhook/messages", webhookH.Message)
		})

		if deps.OperatorSvc != nil {
			operatorH := handler.NewOperatorHandler(deps.OperatorSvc)
			r.With(sensitiveRL.Limit).Post("/operators/login", operatorH.Login)
		}

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(authMw)
			r.Use(requireRole(jwtinfra.RoleService, jwtinfra.RoleOperator))

			r.Post("/bindings/requests", bindingH.StartBind)
			r.Get("/bindings/requests/{localID}", bindingH.GetPending)
			r.Delete("/bindings/requests/{localID}", bindingH.CancelPending)
			r.Get("/bindings/local/{localID}", bindingH.GetByLocal)
			r.Get("/bindings/external/{externalID}", bindingH.GetByExternal)
			r.Get("/status", bindingH.Status)

			// Operator-only routes
			r.Group(func(r chi.Router) {
				r.Use(requireRole(jwtinfra.RoleOperator))

				r.Delete("/bindings/{localID}", bindingH.Unbind)
				r.Get("/audit", auditH.ByTimeRange)
				r.Get("/audit/local/{localID}", auditH.ByLocal)
				r.Get("/audit/external/{externalID}", auditH.ByExternal)
			})
		})
	})

	return r
}
