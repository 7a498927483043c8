// Package api exposes the assistant over HTTP: chat, ingestion, deletion and
// health endpoints.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"learning-assistant/internal/api/middleware"
)

type RouterOptions struct {
	AllowedOrigins []string
	// Timeout bounds every request; zero disables it.
	Timeout time.Duration
}

// SetupRouter creates and configures the HTTP router
func SetupRouter(h *Handler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler)
	if opts.Timeout > 0 {
		r.Use(chimiddleware.Timeout(opts.Timeout))
	}

	RegisterRoutes(r, h)
	return r
}
