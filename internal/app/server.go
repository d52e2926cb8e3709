package app

import (
	"net/http"

	"github.com/gorilla/mux"
	"traffic-router/internal/handlers"
	"traffic-router/internal/middleware"
	"traffic-router/internal/server"
)

// Handler builds the root handler: the admin API under ADMIN_PREFIX and
// runtime traffic everywhere else
func (app *App) Handler() http.Handler {
	h := handlers.New(app.Config, app.Cache, app.Classifier, app.Admin, app.Origin, app.Logger)

	router := mux.NewRouter()
	SetupRoutes(router, h, app.Auth.RequireAuth, app.Config.AdminPrefix)

	return withRequestMiddleware(splitAdmin(
		app.Config.AdminPrefix,
		middleware.AdminSecurityHeaders(router),
		http.HandlerFunc(h.ServeEdge),
	))
}

// RunServer creates the HTTP server with all handlers configured
func (app *App) RunServer() (*server.Server, http.Handler) {
	handler := app.Handler()
	return server.New(handler, app.Config.Port, app.Logger), handler
}
