package app

import (
	"context"
	"time"

	"traffic-router/internal/admin"
	"traffic-router/internal/audit"
	"traffic-router/internal/auth"
	"traffic-router/internal/classify"
	"traffic-router/internal/common/logging"
	"traffic-router/internal/config"
	"traffic-router/internal/configcache"
	"traffic-router/internal/proxy"
	"traffic-router/internal/store"
)

// App holds all the application dependencies
type App struct {
	Config     *config.Config
	Store      store.Store
	Audit      *audit.Log
	Cache      *configcache.Cache
	Geo        *classify.GeoService
	Classifier *classify.Classifier
	Origin     *proxy.Origin
	Admin      *admin.Service
	Auth       *auth.Auth
	Logger     logging.Logger
	now        func() time.Time
}

// New creates a new application instance with all dependencies
func New(cfg *config.Config) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "app"}),
		now:    time.Now,
	}

	// Initialize components in order of dependency
	if err := app.initializeStorage(); err != nil {
		return nil, err
	}

	app.Audit = audit.New(app.Store, app.now, app.Logger)
	app.Cache = configcache.New(app.Store, app.Audit, app.now, app.Logger)

	if err := app.initializeClassifier(); err != nil {
		app.Cleanup()
		return nil, err
	}
	if err := app.initializeOrigin(); err != nil {
		app.Cleanup()
		return nil, err
	}

	app.Admin = admin.NewService(app.Store, app.Cache, app.Audit, app.now, app.Logger)
	app.initializeAuth()

	return app, nil
}

// Warm loads the configuration once so the first request does not pay for it.
// An empty store is bootstrapped here.
func (app *App) Warm(ctx context.Context) error {
	b, err := app.Cache.Get(ctx, false)
	if err != nil {
		return err
	}
	app.Logger.Info("Configuration loaded",
		logging.Field{Key: "version", Value: b.Metadata.Version},
		logging.Field{Key: "etag", Value: b.Etag},
		logging.Field{Key: "routes", Value: len(b.Routes)},
		logging.Field{Key: "invalid_rules", Value: len(b.InvalidRules)},
	)
	return nil
}

// Cleanup releases all resources
func (app *App) Cleanup() {
	if app.Geo != nil {
		app.Geo.Stop()
	}
	if app.Store != nil {
		if err := app.Store.Close(); err != nil {
			app.Logger.Warn("Error closing store", logging.Field{Key: "error", Value: err.Error()})
		}
	}
}
