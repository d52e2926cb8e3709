// Package admin implements the configuration mutations behind the admin API:
// validation, optimistic concurrency against the bundle etag, store writes,
// metadata bumps, cache reloads and the audit trail.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"traffic-router/internal/audit"
	"traffic-router/internal/common/errors"
	"traffic-router/internal/common/logging"
	"traffic-router/internal/common/validation"
	"traffic-router/internal/configcache"
	"traffic-router/internal/models"
	"traffic-router/internal/store"
)

// Service applies admin mutations
type Service struct {
	store     store.Store
	cache     *configcache.Cache
	audit     *audit.Log
	validator *validation.CentralizedValidator
	now       func() time.Time
	logger    logging.Logger

	// serializes mutations within this process so the If-Match check and the write agree
	mu sync.Mutex
}

// NewService creates the admin service. now may be nil to use the wall clock.
func NewService(s store.Store, cache *configcache.Cache, auditLog *audit.Log, now func() time.Time, logger logging.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Service{
		store:     s,
		cache:     cache,
		audit:     auditLog,
		validator: validation.Default(),
		now:       now,
		logger:    logger.WithFields(logging.Field{Key: "component", Value: "admin"}),
	}
}

// write is one record of a mutation
type write struct {
	key   string
	value []byte
	prev  []byte
}

// Routes returns the current bundle
func (s *Service) Routes(ctx context.Context) (*configcache.Bundle, error) {
	return s.cache.Get(ctx, false)
}

// Flags returns the current bundle; its Flags field holds the flags
func (s *Service) Flags(ctx context.Context) (*configcache.Bundle, error) {
	return s.cache.Get(ctx, false)
}

// ValidateRoutes checks routes without writing anything
func (s *Service) ValidateRoutes(routes []models.RouteRule) ValidationReport {
	return CheckRoutes(s.validator, routes)
}

// ReplaceRoutes swaps the whole rule list
func (s *Service) ReplaceRoutes(ctx context.Context, actor string, routes []models.RouteRule, ifMatch string) (*configcache.Bundle, error) {
	if routes == nil {
		routes = []models.RouteRule{}
	}
	if err := s.checkRoutes(routes); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.guard(ctx, ifMatch)
	if err != nil {
		return nil, err
	}
	return s.commitRoutes(ctx, actor, models.AuditRoutesReplace, current, routes,
		fmt.Sprintf("%d routes", len(routes)))
}

// UpsertRoute merge-patches the rule with id, or appends a new rule built from
// the patch when no rule has that id.
func (s *Service) UpsertRoute(ctx context.Context, actor, id string, patch json.RawMessage, ifMatch string) (*configcache.Bundle, error) {
	if id == "" {
		return nil, errors.ValidationError("route id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.guard(ctx, ifMatch)
	if err != nil {
		return nil, err
	}

	routes := append([]models.RouteRule(nil), current.Routes...)
	index := -1
	for i := range routes {
		if routes[i].ID == id {
			index = i
			break
		}
	}

	var base json.RawMessage
	if index >= 0 {
		if base, err = json.Marshal(routes[index]); err != nil {
			return nil, errors.InternalError("failed to encode route", err)
		}
	}
	merged, err := mergePatch(base, patch)
	if err != nil {
		return nil, errors.ValidationError(fmt.Sprintf("invalid patch: %v", err))
	}

	var rule models.RouteRule
	if err := json.Unmarshal(merged, &rule); err != nil {
		return nil, errors.ValidationError(fmt.Sprintf("invalid route: %v", err))
	}
	if rule.ID != "" && rule.ID != id {
		return nil, errors.ValidationError(fmt.Sprintf("route id %q does not match path id %q", rule.ID, id))
	}
	rule.ID = id

	note := "updated " + id
	if index >= 0 {
		routes[index] = rule
	} else {
		routes = append(routes, rule)
		note = "added " + id
	}

	if err := s.checkRoutes(routes); err != nil {
		return nil, err
	}
	return s.commitRoutes(ctx, actor, models.AuditRoutesUpsert, current, routes, note)
}

// DeleteRoute removes the rule with id
func (s *Service) DeleteRoute(ctx context.Context, actor, id string, ifMatch string) (*configcache.Bundle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.guard(ctx, ifMatch)
	if err != nil {
		return nil, err
	}

	routes := make([]models.RouteRule, 0, len(current.Routes))
	for _, r := range current.Routes {
		if r.ID != id {
			routes = append(routes, r)
		}
	}
	if len(routes) == len(current.Routes) {
		return nil, errors.NotFoundError(fmt.Sprintf("route %q", id))
	}
	return s.commitRoutes(ctx, actor, models.AuditRoutesDelete, current, routes, "deleted "+id)
}

// ReplaceFlags swaps the flags. Flags are not etag-guarded.
func (s *Service) ReplaceFlags(ctx context.Context, actor string, flags models.FlagsConfig) (*configcache.Bundle, error) {
	if err := s.validator.ValidateStruct(flags); err != nil {
		return nil, err
	}
	flags.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.cache.Reload(ctx)
	if err != nil {
		return nil, err
	}
	w, err := s.flagsWrite(current, flags)
	if err != nil {
		return nil, err
	}
	return s.commit(ctx, actor, models.AuditFlagsReplace, current, "", w)
}

// InvalidateCache drops the held bundle and reloads it
func (s *Service) InvalidateCache(ctx context.Context, actor string) (*configcache.Bundle, error) {
	prev := s.cache.Current()
	s.cache.Invalidate()
	b, err := s.cache.Reload(ctx)

	entry := models.AuditEntry{Actor: actor, Action: models.AuditCacheInvalidate}
	if prev != nil {
		entry.PrevHash = prev.Etag
	}
	if err != nil {
		entry.Error = err.Error()
		s.audit.Record(ctx, entry)
		return nil, err
	}
	entry.NewHash = b.Etag
	s.audit.Record(ctx, entry)
	return b, nil
}

// Audit returns up to limit audit entries, newest first
func (s *Service) Audit(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	entries, err := s.audit.List(ctx, limit)
	if err != nil {
		return nil, errors.ConnectionError("failed to read audit log", err)
	}
	return entries, nil
}

// Export returns the current routes and flags as an importable document
func (s *Service) Export(ctx context.Context) (*models.ConfigExport, error) {
	b, err := s.cache.Get(ctx, false)
	if err != nil {
		return nil, err
	}
	meta := b.Metadata
	routes := make([]models.RouteRule, len(b.Routes))
	copy(routes, b.Routes)
	return &models.ConfigExport{
		Etag:       b.Etag,
		ExportedAt: s.now().UTC(),
		Metadata:   &meta,
		Routes:     routes,
		Flags:      b.Flags,
	}, nil
}

// Import replaces routes and flags from an exported document
func (s *Service) Import(ctx context.Context, actor string, doc models.ConfigExport, ifMatch string) (*configcache.Bundle, error) {
	if doc.Routes == nil {
		return nil, errors.ValidationError("field 'routes' is required")
	}
	if err := s.checkRoutes(doc.Routes); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateStruct(doc.Flags); err != nil {
		return nil, err
	}
	doc.Flags.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.guard(ctx, ifMatch)
	if err != nil {
		return nil, err
	}
	routesWrite, err := s.routesWrite(current, doc.Routes)
	if err != nil {
		return nil, err
	}
	flagsWrite, err := s.flagsWrite(current, doc.Flags)
	if err != nil {
		return nil, err
	}
	note := fmt.Sprintf("%d routes", len(doc.Routes))
	if doc.Etag != "" {
		note += " from export " + doc.Etag
	}
	return s.commit(ctx, actor, models.AuditConfigImport, current, note, routesWrite, flagsWrite)
}

func (s *Service) checkRoutes(routes []models.RouteRule) error {
	report := CheckRoutes(s.validator, routes)
	if report.Valid {
		return nil
	}
	msg := report.Issues[0].Message
	if len(report.Issues) > 1 {
		msg = fmt.Sprintf("%s (and %d more)", msg, len(report.Issues)-1)
	}
	return errors.ValidationError(msg).WithContext("issues", report.Issues)
}

// guard reads the store and checks ifMatch against the fresh etag when supplied.
// A failed read is an error; mutations never start from a stale bundle.
func (s *Service) guard(ctx context.Context, ifMatch string) (*configcache.Bundle, error) {
	current, err := s.cache.Reload(ctx)
	if err != nil {
		return nil, err
	}
	if ifMatch != "" && !configcache.MatchesEtag(ifMatch, current.Etag) {
		return nil, errors.ConflictError("configuration changed since it was read").
			WithContext("etag", current.Etag)
	}
	return current, nil
}

func (s *Service) routesWrite(current *configcache.Bundle, routes []models.RouteRule) (write, error) {
	value, err := json.Marshal(routes)
	if err != nil {
		return write{}, errors.InternalError("failed to encode routes", err)
	}
	prev, _ := json.Marshal(current.Routes)
	return write{key: store.KeyRoutes, value: value, prev: prev}, nil
}

func (s *Service) flagsWrite(current *configcache.Bundle, flags models.FlagsConfig) (write, error) {
	value, err := json.Marshal(flags)
	if err != nil {
		return write{}, errors.InternalError("failed to encode flags", err)
	}
	prev, _ := json.Marshal(current.Flags)
	return write{key: store.KeyFlags, value: value, prev: prev}, nil
}

func (s *Service) commitRoutes(ctx context.Context, actor, action string, current *configcache.Bundle, routes []models.RouteRule, note string) (*configcache.Bundle, error) {
	w, err := s.routesWrite(current, routes)
	if err != nil {
		return nil, err
	}
	return s.commit(ctx, actor, action, current, note, w)
}

// commit writes the payload records, then metadata, then reloads the cache and
// audits the outcome. Failures from the first write on are audited with the error.
func (s *Service) commit(ctx context.Context, actor, action string, current *configcache.Bundle, note string, writes ...write) (*configcache.Bundle, error) {
	entry := models.AuditEntry{Actor: actor, Action: action, PrevHash: current.Etag, Note: note}

	var diff int64
	for _, w := range writes {
		diff += int64(len(w.value)) - int64(len(w.prev))
	}
	entry.DiffBytes = &diff

	fail := func(err error) (*configcache.Bundle, error) {
		entry.Error = err.Error()
		s.audit.Record(ctx, entry)
		s.logger.Error("Configuration mutation failed", err,
			logging.Field{Key: "action", Value: action},
			logging.Field{Key: "actor", Value: actor},
		)
		return nil, err
	}

	for _, w := range writes {
		if err := s.store.Put(ctx, w.key, w.value); err != nil {
			return fail(errors.ConnectionError(fmt.Sprintf("failed to write %s", w.key), err))
		}
	}

	meta := current.Metadata.Next(actor, s.now())
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fail(errors.InternalError("failed to encode metadata", err))
	}
	if err := s.store.Put(ctx, store.KeyMetadata, metaJSON); err != nil {
		return fail(errors.ConnectionError("failed to write metadata", err))
	}

	s.cache.Invalidate()
	b, err := s.cache.Reload(ctx)
	if err != nil {
		return fail(err)
	}
	if b.Metadata.Version != meta.Version {
		s.logger.Warn("Reload after mutation returned a different version",
			logging.Field{Key: "expected", Value: meta.Version},
			logging.Field{Key: "got", Value: b.Metadata.Version},
		)
	}

	entry.NewHash = b.Etag
	s.audit.Record(ctx, entry)
	s.logger.Info("Configuration updated",
		logging.Field{Key: "action", Value: action},
		logging.Field{Key: "actor", Value: actor},
		logging.Field{Key: "version", Value: b.Metadata.Version},
		logging.Field{Key: "etag", Value: b.Etag},
	)
	return b, nil
}
