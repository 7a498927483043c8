package api

import "github.com/go-chi/chi/v5"

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Get("/", h.Root)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/health/detailed", h.DetailedHealth)

		r.Post("/chat", h.Chat)

		r.Route("/ingest", func(r chi.Router) {
			r.Post("/text", h.IngestText)
			r.Post("/url", h.IngestURL)
			r.Post("/file", h.IngestFile)
			r.Post("/pdf", h.IngestPDF)
		})

		r.Delete("/documents/{document_id}", h.DeleteDocument)
	})
}
