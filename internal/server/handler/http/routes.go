package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/couplegram/couplegram/internal/middleware"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Auth  *AuthHandler
	Users *UserHandler
	Posts *PostHandler
	Saves *SaveHandler
	Files *FileHandler

	// Verifier authenticates bearer tokens on protected routes.
	Verifier middleware.Verifier
	// Metrics instruments every request when set.
	Metrics *middleware.Metrics
	// Gatherer backs GET /metrics when set.
	Gatherer prometheus.Gatherer
	// Ping backs GET /healthz.
	Ping func(ctx context.Context) error
}

// NewRouter constructs the couplegram API handler.
//
// Public routes: account sign-up, session sign-in, file previews, avatars,
// health and metrics. Everything else under /v1 requires a bearer session
// token.
func NewRouter(h Handlers, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.WithRequestLogging(logger))
	if h.Metrics != nil {
		r.Use(h.Metrics.Handler)
	}

	r.Get("/healthz", Health(h.Ping))
	if h.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(chiMiddleware.AllowContentType("application/json", "multipart/form-data"))

		// Public endpoints
		r.Post("/account", h.Auth.CreateAccount)
		r.Post("/sessions", h.Auth.CreateSession)
		r.Get("/files/{id}/preview", h.Files.Preview)
		r.Get("/avatars/initials", Initials)

		// Protected group: requires a valid session token
		r.Group(func(r chi.Router) {
			r.Use(middleware.SessionAuth(h.Verifier))

			r.Get("/account", h.Auth.GetAccount)
			r.Delete("/account/{id}", h.Auth.DeleteAccount)
			r.Delete("/sessions/{id}", h.Auth.DeleteSession)

			r.Get("/users", h.Users.List)
			r.Post("/users", h.Users.Create)
			r.Get("/users/{id}", h.Users.Get)
			r.Patch("/users/{id}", h.Users.Update)

			r.Get("/posts", h.Posts.List)
			r.Post("/posts", h.Posts.Create)
			r.Get("/posts/{id}", h.Posts.Get)
			r.Patch("/posts/{id}", h.Posts.Update)
			r.Delete("/posts/{id}", h.Posts.Delete)
			r.Put("/posts/{id}/likes", h.Posts.UpdateLikes)

			r.Get("/saves", h.Saves.List)
			r.Post("/saves", h.Saves.Create)
			r.Delete("/saves/{id}", h.Saves.Delete)

			r.Post("/files", h.Files.Create)
			r.Get("/files/{id}", h.Files.Get)
			r.Delete("/files/{id}", h.Files.Delete)
		})
	})

	return r
}
