package app

import (
	"fmt"

	"traffic-router/internal/common/logging"
	"traffic-router/internal/config"
	"traffic-router/internal/store"
)

func (app *App) initializeStorage() error {
	switch app.Config.StoreType {
	case config.StorePostgres:
		app.Logger.Info("Store: PostgreSQL",
			logging.Field{Key: "host", Value: app.Config.PostgresHost},
			logging.Field{Key: "port", Value: app.Config.PostgresPort},
			logging.Field{Key: "database", Value: app.Config.PostgresDB},
		)
	case config.StoreSQLite:
		app.Logger.Info("Store: SQLite", logging.Field{Key: "path", Value: app.Config.DatabasePath})
	case config.StoreMemory:
		app.Logger.Warn("Store: in-memory, configuration is lost on restart")
	default:
		app.Logger.Info("Store: Redis",
			logging.Field{Key: "address", Value: app.Config.RedisAddress},
			logging.Field{Key: "key_prefix", Value: app.Config.StoreKeyPrefix},
		)
	}

	s, err := store.Open(app.Config)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	app.Store = s
	return nil
}
