// Package audit appends immutable records of configuration mutations to the
// config store and reads them back newest first.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"traffic-router/internal/common/logging"
	"traffic-router/internal/common/utils"
	"traffic-router/internal/models"
	"traffic-router/internal/store"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500

	// fixed width so lexical key order is chronological
	keyTimeLayout = "2006-01-02T15:04:05.000000000Z"
)

// Log writes and reads audit entries
type Log struct {
	store  store.Store
	now    func() time.Time
	logger logging.Logger
}

// New creates an audit log over s. now may be nil to use the wall clock.
func New(s store.Store, now func() time.Time, logger logging.Logger) *Log {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Log{
		store:  s,
		now:    now,
		logger: logger.WithFields(logging.Field{Key: "component", Value: "audit"}),
	}
}

// Key returns the storage key for an entry written at ts
func Key(ts time.Time) string {
	return store.AuditPrefix + ts.UTC().Format(keyTimeLayout) + "-" + utils.GenerateSortableSuffix()
}

// Write appends entry. A zero TS is stamped with the current time.
func (l *Log) Write(ctx context.Context, entry models.AuditEntry) error {
	if entry.TS.IsZero() {
		entry.TS = l.now().UTC()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode audit entry: %w", err)
	}
	if err := l.store.Put(ctx, Key(entry.TS), data); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// Record writes entry and only logs a failure. Mutations never fail because of the audit trail.
func (l *Log) Record(ctx context.Context, entry models.AuditEntry) {
	if err := l.Write(ctx, entry); err != nil {
		l.logger.Error("Audit write failed", err,
			logging.Field{Key: "action", Value: entry.Action},
			logging.Field{Key: "actor", Value: entry.Actor},
		)
	}
}

// List returns up to limit entries, newest first. limit is clamped to [1, MaxLimit]
// and defaults to DefaultLimit when not positive.
func (l *Log) List(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	keys, err := l.store.List(ctx, store.AuditPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}

	entries := make([]models.AuditEntry, 0, limit)
	for i := len(keys) - 1; i >= 0 && len(entries) < limit; i-- {
		if !strings.HasPrefix(keys[i], store.AuditPrefix) {
			continue
		}
		data, found, err := l.store.Get(ctx, keys[i])
		if err != nil {
			return nil, fmt.Errorf("failed to read audit entry %s: %w", keys[i], err)
		}
		if !found {
			continue
		}
		var entry models.AuditEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			l.logger.Warn("Skipping unreadable audit entry",
				logging.Field{Key: "key", Value: keys[i]},
				logging.Field{Key: "error", Value: err.Error()},
			)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
