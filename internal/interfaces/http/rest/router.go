// Package rest exposes the graph sync service over HTTP.
package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// RouterConfig carries the router's collaborators.
type RouterConfig struct {
	Handler        *Handler
	Metrics        RequestMetrics
	MetricsHandler http.Handler
	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter builds the HTTP handler tree.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(requestLogger(logger))
	if cfg.Metrics != nil {
		router.Use(instrument(cfg.Metrics))
	}
	if len(cfg.AllowedOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}

	router.Get("/health", healthCheck)
	if cfg.MetricsHandler != nil {
		router.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	h := cfg.Handler
	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/users/{userID}/databases", func(r chi.Router) {
			r.Get("/", h.GetUserDatabases)
			r.Put("/", h.PutUserDatabases)
		})
		r.Route("/databases/{databaseID}", func(r chi.Router) {
			r.Delete("/", h.DeleteDatabase)
			r.Get("/graph", h.GetDatabaseGraph)
			r.Put("/pages", h.PutDatabasePages)
			r.Post("/extract", h.ExtractDatabase)
		})
		r.Route("/pages/{pageID}", func(r chi.Router) {
			r.Put("/", h.PutPage)
			r.Delete("/", h.DeletePage)
		})
	})
	return router
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"healthy"}`))
}
