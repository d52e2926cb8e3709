package app

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"traffic-router/internal/handlers"
	"traffic-router/internal/middleware"
)

// SetupRoutes configures the admin API under adminPrefix
func SetupRoutes(router *mux.Router, h *handlers.Handlers, authMiddleware func(http.Handler) http.Handler, adminPrefix string) {
	router.NotFoundHandler = http.HandlerFunc(h.NotFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(h.MethodNotAllowed)

	adminRouter := router.PathPrefix(adminPrefix).Subrouter()

	// Health check (no auth required)
	adminRouter.HandleFunc("/health", h.Health).Methods("GET")

	// Protected routes
	api := adminRouter.PathPrefix("/api").Subrouter()
	api.Use(authMiddleware)

	api.HandleFunc("/routes", h.GetRoutes).Methods("GET")
	api.HandleFunc("/routes", h.ReplaceRoutes).Methods("PUT")
	api.HandleFunc("/routes/validate", h.ValidateRoutes).Methods("POST")
	api.HandleFunc("/routes/{id}", h.PatchRoute).Methods("PATCH")
	api.HandleFunc("/routes/{id}", h.DeleteRoute).Methods("DELETE")

	api.HandleFunc("/flags", h.GetFlags).Methods("GET")
	api.HandleFunc("/flags", h.ReplaceFlags).Methods("PUT")

	api.HandleFunc("/cache/invalidate", h.InvalidateCache).Methods("POST")
	api.HandleFunc("/audit", h.GetAudit).Methods("GET")
	api.HandleFunc("/export", h.Export).Methods("GET")
	api.HandleFunc("/import", h.Import).Methods("POST")
	api.HandleFunc("/ui", h.UI).Methods("GET")
}

// splitAdmin sends paths under adminPrefix to adminHandler and everything
// else, unmodified, to edge.
func splitAdmin(adminPrefix string, adminHandler, edge http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := r.URL.Path
		if p == adminPrefix || strings.HasPrefix(p, adminPrefix+"/") {
			adminHandler.ServeHTTP(w, r)
			return
		}
		edge.ServeHTTP(w, r)
	})
}

// withRequestMiddleware applies the middleware shared by runtime and admin traffic
func withRequestMiddleware(next http.Handler) http.Handler {
	return middleware.RequestID(middleware.Logging(nil)(next))
}
