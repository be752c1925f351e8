package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/starford/notesync/internal/noteservice"
)

// NewRouter builds the API routes. With authEnabled every route requires
// token. sseHandler, when non-nil, serves GET /events.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Route("/notes", func(r chi.Router) {
		r.Get("/", h.ListNotes)
		r.Post("/", h.CreateNote)
		r.Route("/{key}", func(r chi.Router) {
			r.Get("/", h.GetNote)
			r.Put("/", h.UpdateNote)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(mirrorTimeout))
		r.Get("/browse", h.BrowseNotes)
		r.Get("/tags", h.Tags)
		r.Get("/search", h.Search)
	})

	r.Post("/sync", h.Sync)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
