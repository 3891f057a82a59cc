package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/recall/internal/reviewservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *reviewservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/queue", h.Queue)
	r.Post("/sync", h.Sync)

	// Notes. Paths may contain slashes, so they trail the route.
	r.Get("/notes/next", h.NextNote)
	r.Get("/notes/preview/*", h.PreviewNote)
	r.Post("/notes/review/*", h.ReviewNote)
	r.Post("/notes/skip/*", h.SkipNote)
	r.Get("/notes/*", h.GetNote)

	// Flash-cards.
	r.Get("/cards/next", h.NextCard)
	r.Post("/cards/{id}/review", h.ReviewCard)
	r.Post("/cards/{id}/skip", h.SkipCard)

	r.Get("/reviews", h.Reviews)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
