package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all record routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/records", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)

		// Fixed paths before {id}
		r.Post("/delete", h.HandleBulkDelete)
		r.Post("/clear", h.HandleClear)
		r.Delete("/clear", h.HandleClear)
		r.Get("/export", h.HandleExport)
		r.Get("/stats", h.HandleStats)
		r.Post("/sync", h.HandleSync)

		r.Get("/{id}", h.HandleGet)
		r.Put("/{id}", h.HandleUpdate)
		r.Delete("/{id}", h.HandleDelete)
	})
}
