package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/PaulBabatuyi/FileVault/internal/observability"
)

// NewRouter wires the HTTP surface.
func NewRouter(h *Handler, logger *zap.Logger, metrics *observability.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(Tracing())
	r.Use(RequestLogger(logger, metrics))

	r.Get("/status", h.Status)
	r.Get("/stats", h.Stats)

	r.Route("/files", func(r chi.Router) {
		r.Post("/", h.Upload)
		r.Get("/", h.Index)
		r.Get("/{id}", h.Show)
		r.Put("/{id}/publish", h.Publish)
		r.Put("/{id}/unpublish", h.Unpublish)
		r.Get("/{id}/data", h.Content)
	})

	return r
}
