package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/doorwatch/doorwatch-core/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	if s.push != nil {
		r.Get("/ws", s.push.ServeHTTP)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/auth/login", s.handleLogin)

		// Reads
		r.Get("/doors", s.handleListDoors)
		r.Get("/doors/statuses", s.handleListDoors)
		r.Get("/doors/{id}", s.handleGetDoor)
		r.Get("/dashboard/stats", s.handleDashboardStats)
		r.Get("/activities/recent", s.handleRecentActivities)

		// Mutations
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Group(func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermDoorControl))
				r.Post("/doors/{id}/control", s.handleControlDoor)
				r.Post("/door-control", s.handleLegacyDoorControl)
			})

			r.Group(func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermDoorManage))
				r.Post("/doors", s.handleCreateDoor)
				r.Put("/doors/{id}", s.handleUpdateDoor)
				r.Delete("/doors/{id}", s.handleDeleteDoor)
			})

			r.Route("/users", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermUserManage))
				r.Get("/", s.handleListUsers)
				r.Post("/", s.handleCreateUser)
				r.Get("/{id}", s.handleGetUser)
				r.Put("/{id}", s.handleUpdateUser)
				r.Delete("/{id}", s.handleDeleteUser)
				r.Post("/{id}/reset-password", s.handleResetPassword)
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	clients := 0
	if s.push != nil {
		clients = s.push.ClientCount()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"version":     s.version,
		"connections": clients,
	})
}

// successResponse is the body of mutations that return no entity.
type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
