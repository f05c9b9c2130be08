package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all spreadsheet import routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/excel", func(r chi.Router) {
		r.Post("/compare", h.HandleCompare)
		r.Post("/import", h.HandleImport)
	})
}
