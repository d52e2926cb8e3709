package configcache

import (
	"context"
	"encoding/json"
	"fmt"

	"traffic-router/internal/common/logging"
	"traffic-router/internal/models"
	"traffic-router/internal/store"
)

const bootstrapKey = "bootstrap"

// Bootstrap writes the default routes, flags and metadata when no metadata
// record exists. Concurrent callers share one attempt. Success is remembered
// for the life of the process; a failure is audited and retried by the next caller.
func (c *Cache) Bootstrap(ctx context.Context) error {
	if c.bootstrapped.Load() {
		return nil
	}

	_, err, _ := c.bootstrapGroup.Do(bootstrapKey, func() (interface{}, error) {
		if c.bootstrapped.Load() {
			return nil, nil
		}
		// The attempt outlives any one caller's cancellation
		if err := c.bootstrap(context.WithoutCancel(ctx)); err != nil {
			return nil, err
		}
		c.bootstrapped.Store(true)
		return nil, nil
	})
	return err
}

func (c *Cache) bootstrap(ctx context.Context) error {
	_, found, err := c.store.Get(ctx, store.KeyMetadata)
	if err != nil {
		return c.bootstrapFailed(ctx, fmt.Errorf("failed to check metadata: %w", err))
	}
	if found {
		return nil
	}

	routes := models.DefaultRoutes()
	flags := models.DefaultFlags()
	meta := models.Metadata{}.Next(models.AuditActorSystem, c.now())

	routesJSON, err := json.Marshal(routes)
	if err != nil {
		return c.bootstrapFailed(ctx, err)
	}
	flagsJSON, err := json.Marshal(flags)
	if err != nil {
		return c.bootstrapFailed(ctx, err)
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return c.bootstrapFailed(ctx, err)
	}

	// Metadata goes last: its presence marks a complete bootstrap
	if err := c.store.Put(ctx, store.KeyRoutes, routesJSON); err != nil {
		return c.bootstrapFailed(ctx, fmt.Errorf("failed to write default routes: %w", err))
	}
	if err := c.store.Put(ctx, store.KeyFlags, flagsJSON); err != nil {
		return c.bootstrapFailed(ctx, fmt.Errorf("failed to write default flags: %w", err))
	}
	if err := c.store.Put(ctx, store.KeyMetadata, metaJSON); err != nil {
		return c.bootstrapFailed(ctx, fmt.Errorf("failed to write metadata: %w", err))
	}

	etag, _ := ComputeEtag(routes, flags, meta.Version)
	c.record(ctx, models.AuditEntry{
		Actor:   models.AuditActorSystem,
		Action:  models.AuditBootstrap,
		NewHash: etag,
		Note:    fmt.Sprintf("default configuration written: %d routes", len(routes)),
	})
	c.logger.Info("Configuration bootstrapped from defaults",
		logging.Field{Key: "routes", Value: len(routes)},
		logging.Field{Key: "version", Value: meta.Version},
	)
	return nil
}

func (c *Cache) bootstrapFailed(ctx context.Context, err error) error {
	c.logger.Error("Bootstrap failed", err)
	c.record(ctx, models.AuditEntry{
		Actor:  models.AuditActorSystem,
		Action: models.AuditBootstrapError,
		Error:  err.Error(),
	})
	return fmt.Errorf("bootstrap failed: %w", err)
}

func (c *Cache) record(ctx context.Context, entry models.AuditEntry) {
	if c.auditor != nil {
		c.auditor.Record(ctx, entry)
	}
}
