package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/proxymail/internal/api/handler"
	"github.com/mcoot/proxymail/internal/api/middleware"
	"github.com/mcoot/proxymail/internal/api/response"
	"github.com/mcoot/proxymail/internal/metrics"
	"github.com/mcoot/proxymail/internal/services/mail"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger      *slog.Logger
	MailService *mail.Service
	// Metrics is served at /metrics when set
	Metrics *metrics.Metrics
	// TokenHash is the bcrypt hash of the API token; empty disables auth
	TokenHash string
	// StorageType is reported by the health check
	StorageType string
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	// Create handlers
	mailHandler := handler.NewMailHandler(cfg.MailService)
	directoryHandler := handler.NewDirectoryHandler(cfg.MailService)
	adminHandler := handler.NewAdminHandler(cfg.MailService)

	// API subrouter with common middleware
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Recovery(cfg.Logger))
	api.Use(middleware.Logging(cfg.Logger))

	// Health check endpoint (no auth)
	api.HandleFunc("/health", healthHandler(cfg.StorageType)).Methods(http.MethodGet)

	// Everything else requires the API token when one is configured
	protected := api.NewRoute().Subrouter()
	protected.Use(middleware.TokenAuth(cfg.TokenHash))

	// Player mailbox routes
	players := protected.PathPrefix("/players/{identity}").Subrouter()
	players.HandleFunc("/session", mailHandler.Session).Methods(http.MethodPost)
	players.HandleFunc("/messages", mailHandler.Inbox).Methods(http.MethodGet)
	players.HandleFunc("/messages", mailHandler.DeleteMessages).Methods(http.MethodDelete)
	players.HandleFunc("/messages/{id}", mailHandler.DeleteMessage).Methods(http.MethodDelete)

	// Sending routes
	protected.HandleFunc("/messages", mailHandler.Send).Methods(http.MethodPost)
	protected.HandleFunc("/messages/broadcast", mailHandler.Broadcast).Methods(http.MethodPost)

	// Directory routes
	protected.HandleFunc("/names", directoryHandler.List).Methods(http.MethodGet)
	protected.HandleFunc("/names/{name}", directoryHandler.Lookup).Methods(http.MethodGet)

	// Admin routes
	protected.HandleFunc("/admin/cleanup", adminHandler.Cleanup).Methods(http.MethodPost)

	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler()).Methods(http.MethodGet)
	}

	return r
}

func healthHandler(storageType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, http.StatusOK, response.Health{Status: "ok", Storage: storageType})
	}
}
