package app

import (
	"traffic-router/internal/auth"
)

func (app *App) initializeAuth() {
	if app.Config.AdminToken == "" {
		app.Logger.Warn("ADMIN_TOKEN is empty, every admin API call will be rejected")
	}
	app.Auth = auth.New(app.Config.AdminToken, app.Cache, app.Classifier.ClientIP, app.Logger)
}
