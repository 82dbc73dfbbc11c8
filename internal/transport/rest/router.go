package rest

import (
	"context"
	"net/http"

	"codementor/internal/service"
	"codementor/internal/transport/rest/handler"
	"codementor/internal/transport/rest/middleware"

	"github.com/gorilla/mux"
	"goa.design/clue/log"
)

// Container holds all dependencies for the router
type Container struct {
	LogContext     context.Context
	AuthService    *service.AuthService
	Sessions       handler.SessionReader
	WSHandler      http.Handler
	AllowedOrigins string
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	// Initialize handlers
	authHandler := handler.NewAuthHandler(c.AuthService)
	sessionHandler := handler.NewSessionHandler(c.Sessions)

	// Initialize middleware
	authMW := middleware.NewAuthMiddleware(c.AuthService)

	// CORS middleware (apply first)
	r.Use(corsMiddleware(c.AllowedOrigins))

	// WebSocket endpoint; kept out of the logging middleware so the
	// connection can be hijacked.
	if c.WSHandler != nil {
		r.Handle("/ws", c.WSHandler).Methods("GET")
	}

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// API v1 routes
	v1 := r.PathPrefix("/v1").Subrouter()
	if c.LogContext != nil {
		v1.Use(log.HTTP(c.LogContext))
	}

	// Public routes
	v1.HandleFunc("/auth/login", authHandler.Login).Methods("POST", "OPTIONS")

	// Mentor routes (require mentor auth)
	mentorRoutes := v1.NewRoute().Subrouter()
	mentorRoutes.Use(authMW.RequireMentor)

	mentorRoutes.HandleFunc("/sessions", sessionHandler.List).Methods("GET", "OPTIONS")
	mentorRoutes.HandleFunc("/sessions/{id}/leaderboard", sessionHandler.Leaderboard).Methods("GET", "OPTIONS")
	mentorRoutes.HandleFunc("/sessions/{id}/snapshot", sessionHandler.Snapshot).Methods("GET", "OPTIONS")

	return r
}

func corsMiddleware(allowedOrigins string) mux.MiddlewareFunc {
	if allowedOrigins == "" {
		allowedOrigins = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
