package store

import (
	"fmt"
	"strconv"

	"traffic-router/internal/config"
	"traffic-router/internal/redis"
)

// Open builds the backend selected by STORE_TYPE
func Open(cfg *config.Config) (Store, error) {
	switch cfg.StoreType {
	case config.StoreRedis:
		db, _ := strconv.Atoi(cfg.RedisDB)
		poolSize, _ := strconv.Atoi(cfg.RedisPoolSize)
		client, err := redis.NewClient(&redis.Config{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       db,
			PoolSize: poolSize,

			ConnectAttempts: 5,
		})
		if err != nil {
			return nil, err
		}
		return NewRedisStore(client, cfg.StoreKeyPrefix), nil

	case config.StoreSQLite:
		return OpenSQLite(cfg.DatabasePath)

	case config.StorePostgres:
		return OpenPostgres(cfg.PostgresDSN())

	case config.StoreMemory:
		return NewMemoryStore(), nil

	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.StoreType)
	}
}
