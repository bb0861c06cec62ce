package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/julioamaral/juliobot/internal/http/handlers"
	httpmiddleware "github.com/julioamaral/juliobot/internal/http/middleware"
	"github.com/julioamaral/juliobot/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	WebhookHandler *handlers.WebhookHandler
	MetricsHandler http.Handler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/", cfg.WebhookHandler.HandleRoot)
	r.Get("/health", cfg.WebhookHandler.HandleRoot)
	r.Route("/webhook", func(r chi.Router) {
		r.Get("/", cfg.WebhookHandler.HandleGet)
		r.Post("/", cfg.WebhookHandler.HandlePost)
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	return r
}
