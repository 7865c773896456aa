package api

import (
	"net/http"

	"github.com/chatrelay/chatrelay/internal/api/handlers"
	"github.com/chatrelay/chatrelay/internal/api/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates the HTTP router with all relay routes.
func NewRouter(h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	// Health & info
	r.Get("/health", h.Health)
	r.Get("/version", h.Version)

	// Webhook — the relay entry point
	r.Route("/webhook", func(r chi.Router) {
		r.Post("/", h.HandleWebhook)
		r.Get("/", h.WebhookInfo)
	})

	// Monitoring
	r.Route("/monitoring", func(r chi.Router) {
		r.Get("/", h.Monitoring)
		r.Delete("/", h.MonitoringReset)
	})

	// Debug
	r.Route("/debug", func(r chi.Router) {
		r.Get("/", h.Debug)
		r.Post("/", h.DebugTest)
	})

	return r
}
