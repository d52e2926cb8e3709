// Package configcache holds the process-wide configuration snapshot: it loads
// routes, flags and metadata from the store, compiles the rules, stamps an etag
// and serves the result until the flags TTL expires.
package configcache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"traffic-router/internal/common/errors"
	"traffic-router/internal/common/logging"
	"traffic-router/internal/models"
	"traffic-router/internal/routing"
	"traffic-router/internal/store"
)

// Auditor receives best-effort audit records
type Auditor interface {
	Record(ctx context.Context, entry models.AuditEntry)
}

// Cache owns the live Bundle
type Cache struct {
	store   store.Store
	auditor Auditor
	now     func() time.Time
	logger  logging.Logger

	current   atomic.Pointer[Bundle]
	lastKnown atomic.Pointer[Bundle]

	bootstrapGroup singleflight.Group
	bootstrapped   atomic.Bool
}

// New creates a cache over s. auditor may be nil; now may be nil to use the wall clock.
func New(s store.Store, auditor Auditor, now func() time.Time, logger logging.Logger) *Cache {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Cache{
		store:   s,
		auditor: auditor,
		now:     now,
		logger:  logger.WithFields(logging.Field{Key: "component", Value: "configcache"}),
	}
}

// Get returns the current bundle, reloading when it has expired or force is set.
// When a reload fails the last-known bundle is served; without one the error
// is a config_unavailable AppError.
func (c *Cache) Get(ctx context.Context, force bool) (*Bundle, error) {
	if !force {
		if b := c.current.Load(); b != nil && c.now().Before(b.ExpiresAt) {
			return b, nil
		}
	}

	b, err := c.load(ctx)
	if err != nil {
		if stale := c.lastKnown.Load(); stale != nil {
			c.logger.Warn("Configuration reload failed, serving last-known bundle",
				logging.Field{Key: "error", Value: err.Error()},
				logging.Field{Key: "etag", Value: stale.Etag},
				logging.Field{Key: "loaded_at", Value: stale.LoadedAt},
			)
			return stale, nil
		}
		c.logger.Error("Configuration unavailable", err)
		return nil, errors.UnavailableError("configuration unavailable", err)
	}

	c.swap(b)
	return b, nil
}

// Reload reads the store unconditionally. Unlike Get it never falls back to the
// last-known bundle: a failed read is returned as a config_unavailable AppError.
func (c *Cache) Reload(ctx context.Context) (*Bundle, error) {
	b, err := c.load(ctx)
	if err != nil {
		return nil, errors.UnavailableError("configuration unavailable", err)
	}
	c.swap(b)
	return b, nil
}

func (c *Cache) swap(b *Bundle) {
	c.current.Store(b)
	c.lastKnown.Store(b)
}

// Invalidate drops the held bundle so the next Get reloads
func (c *Cache) Invalidate() {
	c.current.Store(nil)
}

// AdminFlags returns the flags of the current bundle
func (c *Cache) AdminFlags(ctx context.Context) (models.FlagsConfig, error) {
	b, err := c.Get(ctx, false)
	if err != nil {
		return models.FlagsConfig{}, err
	}
	return b.Flags, nil
}

// Current returns the held bundle without any I/O; nil when none is held
func (c *Cache) Current() *Bundle {
	return c.current.Load()
}

type records struct {
	routes, flags, metadata []byte
	hasRoutes, hasFlags     bool
	hasMetadata             bool
}

// readRecords fetches the three logical records in parallel
func (c *Cache) readRecords(ctx context.Context) (*records, error) {
	var r records
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		r.routes, r.hasRoutes, err = c.store.Get(ctx, store.KeyRoutes)
		return err
	})
	g.Go(func() (err error) {
		r.flags, r.hasFlags, err = c.store.Get(ctx, store.KeyFlags)
		return err
	})
	g.Go(func() (err error) {
		r.metadata, r.hasMetadata, err = c.store.Get(ctx, store.KeyMetadata)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}
	return &r, nil
}

func (c *Cache) load(ctx context.Context) (*Bundle, error) {
	recs, err := c.readRecords(ctx)
	if err != nil {
		return nil, err
	}

	if !recs.hasMetadata {
		if c.bootstrapped.Load() {
			return nil, fmt.Errorf("metadata record is missing")
		}
		if err := c.Bootstrap(ctx); err != nil {
			return nil, err
		}
		if recs, err = c.readRecords(ctx); err != nil {
			return nil, err
		}
		if !recs.hasMetadata {
			return nil, fmt.Errorf("metadata record is missing after bootstrap")
		}
	}
	if recs.hasMetadata && (!recs.hasRoutes || !recs.hasFlags) {
		// A parallel read can interleave with a bootstrap in progress; read once more
		if recs, err = c.readRecords(ctx); err != nil {
			return nil, err
		}
	}
	if !recs.hasRoutes || !recs.hasFlags {
		return nil, fmt.Errorf("configuration is incomplete: routes=%t flags=%t", recs.hasRoutes, recs.hasFlags)
	}

	return c.build(recs)
}

func (c *Cache) build(recs *records) (*Bundle, error) {
	var routes []models.RouteRule
	if err := json.Unmarshal(recs.routes, &routes); err != nil {
		return nil, fmt.Errorf("corrupt routes record: %w", err)
	}
	if routes == nil {
		routes = []models.RouteRule{}
	}

	var flags models.FlagsConfig
	if err := json.Unmarshal(recs.flags, &flags); err != nil {
		return nil, fmt.Errorf("corrupt flags record: %w", err)
	}
	flags.Normalize()

	var meta models.Metadata
	if err := json.Unmarshal(recs.metadata, &meta); err != nil {
		return nil, fmt.Errorf("corrupt metadata record: %w", err)
	}

	etag, err := ComputeEtag(routes, flags, meta.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to compute etag: %w", err)
	}

	rules := routing.Compile(routes, c.logger)
	now := c.now()
	b := &Bundle{
		Routes:       routes,
		Flags:        flags,
		Metadata:     meta,
		Etag:         etag,
		LoadedAt:     now,
		ExpiresAt:    now.Add(flags.CacheTTL()),
		Rules:        rules,
		InvalidRules: rules.Invalid,
	}

	c.logger.Debug("Configuration loaded",
		logging.Field{Key: "version", Value: meta.Version},
		logging.Field{Key: "etag", Value: etag},
		logging.Field{Key: "rules", Value: len(routes)},
		logging.Field{Key: "invalid_rules", Value: len(rules.Invalid)},
	)
	return b, nil
}
