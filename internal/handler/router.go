package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"netwatch/internal/config"
	"netwatch/internal/service"
)

// HealthFunc reports per-dependency health, keyed by dependency name.
type HealthFunc func(ctx context.Context) map[string]string

// NewRouter configures the chi router with the middleware stack and all
// routes.
func NewRouter(
	auth *AuthHandler,
	nodes *NodeHandler,
	traffic *TrafficHandler,
	admin *AdminHandler,
	authService *service.AuthService,
	health HealthFunc,
	cfg *config.Config,
	logger *zap.Logger,
) chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(LoggerMiddleware(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-API-Key", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Use(SessionMiddleware(authService, cfg.Auth.SessionCookie))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		checks := health(r.Context())
		status := http.StatusOK
		healthy := true
		for _, state := range checks {
			if state != "healthy" {
				status = http.StatusServiceUnavailable
				healthy = false
				break
			}
		}
		respondWithJSON(w, status, Envelope{
			"success": healthy,
			"service": "netwatch",
			"checks":  checks,
		})
	})

	router.Post("/register", auth.Register)
	router.Post("/login", auth.Login)
	router.Post("/logout", auth.Logout)
	router.Get("/session", auth.Session)

	router.Post("/nodes", nodes.Create)
	router.Get("/nodes", nodes.List)
	router.Put("/nodes", nodes.UpdateStatus)
	router.Delete("/nodes", nodes.Delete)

	router.Post("/ingest", traffic.Ingest)
	router.Get("/traffic", traffic.Get)

	router.Get("/admin", admin.Get)
	router.Post("/admin", admin.Action)
	router.Put("/admin", admin.Action)
	router.Delete("/admin", admin.Delete)

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusNotFound, Envelope{
			"success": false,
			"message": "Endpoint not found",
		})
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusMethodNotAllowed, Envelope{
			"success": false,
			"message": "Method not allowed",
		})
	})

	return router
}
