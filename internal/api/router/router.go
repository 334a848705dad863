package router

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/relaykit/whatsapp-relay/internal/conversation"
	httpmiddleware "github.com/relaykit/whatsapp-relay/internal/http/middleware"
	"github.com/relaykit/whatsapp-relay/internal/webhook"
	"github.com/relaykit/whatsapp-relay/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	WebhookHandler *webhook.Handler
	Registry       *conversation.Registry
	MetricsHandler http.Handler
	MCPHandler     http.Handler
	StartTime      time.Time
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

	start := cfg.StartTime
	if start.IsZero() {
		start = time.Now()
	}

	r.Get("/", describe)
	r.Get("/health", health(cfg.Registry, start))

	if cfg.WebhookHandler != nil {
		r.Get("/webhook", cfg.WebhookHandler.HandleVerify)
		r.Post("/webhook", cfg.WebhookHandler.HandleEvents)
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}
	if cfg.MCPHandler != nil {
		r.Handle("/mcp", cfg.MCPHandler)
		r.Handle("/mcp/*", cfg.MCPHandler)
	}

	return r
}

func describe(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service":     "whatsapp-relay",
		"description": "relays coding-assistant notifications to an operator over WhatsApp",
	})
}

func health(registry *conversation.Registry, start time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		active := 0
		if registry != nil {
			active = registry.Count()
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":              "ok",
			"activeConversations": active,
			"uptime":              time.Since(start).Round(time.Second).String(),
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
