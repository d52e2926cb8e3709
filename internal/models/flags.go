package models

import "time"

const (
	// MinCacheTTLMs keeps reloads from stampeding the store
	MinCacheTTLMs int64 = 5000
	// DefaultCacheTTLMs is the TTL written by bootstrap
	DefaultCacheTTLMs int64 = 60000
)

// FlagsConfig holds the runtime feature flags stored next to the routes
type FlagsConfig struct {
	CacheTTLMs      int64    `json:"cacheTtlMs"`
	StrictBots      bool     `json:"strictBots"`
	YandexBots      []string `json:"yandexBots"`
	GoogleBots      []string `json:"googleBots"`
	AllowedAdminIPs []string `json:"allowedAdminIps" validate:"omitempty,dive,ip_or_cidr"`
	UITitle         string   `json:"uiTitle"`
	UIReadonly      bool     `json:"uiReadonly"`
}

// Normalize clamps the TTL to the floor and replaces nil lists with empty ones
func (f *FlagsConfig) Normalize() {
	if f.CacheTTLMs < MinCacheTTLMs {
		f.CacheTTLMs = MinCacheTTLMs
	}
	if f.YandexBots == nil {
		f.YandexBots = []string{}
	}
	if f.GoogleBots == nil {
		f.GoogleBots = []string{}
	}
	if f.AllowedAdminIPs == nil {
		f.AllowedAdminIPs = []string{}
	}
}

// CacheTTL returns the effective bundle lifetime, never below the floor
func (f FlagsConfig) CacheTTL() time.Duration {
	ms := f.CacheTTLMs
	if ms < MinCacheTTLMs {
		ms = MinCacheTTLMs
	}
	return time.Duration(ms) * time.Millisecond
}

// Metadata is provenance for the stored configuration
type Metadata struct {
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
	UpdatedBy string    `json:"updatedBy"`
}

// Next returns the metadata written alongside a mutation
func (m Metadata) Next(actor string, now time.Time) Metadata {
	return Metadata{Version: m.Version + 1, UpdatedAt: now.UTC(), UpdatedBy: actor}
}

// AuditEntry is one immutable record of a configuration mutation attempt
type AuditEntry struct {
	TS        time.Time `json:"ts"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	PrevHash  string    `json:"prevHash,omitempty"`
	NewHash   string    `json:"newHash,omitempty"`
	DiffBytes *int64    `json:"diffBytes,omitempty"`
	Note      string    `json:"note,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Audit actions
const (
	AuditRoutesReplace   = "routes.replace"
	AuditRoutesUpsert    = "routes.upsert"
	AuditRoutesDelete    = "routes.delete"
	AuditFlagsReplace    = "flags.replace"
	AuditCacheInvalidate = "cache.invalidate"
	AuditConfigImport    = "config.import"
	AuditBootstrap       = "config.bootstrap"
	AuditBootstrapError  = "config.bootstrap.error"
	AuditActorSystem     = "system"
)

// ConfigExport is the document produced by export and accepted by import
type ConfigExport struct {
	Etag       string      `json:"etag,omitempty"`
	ExportedAt time.Time   `json:"exportedAt,omitempty"`
	Metadata   *Metadata   `json:"metadata,omitempty"`
	Routes     []RouteRule `json:"routes" validate:"required"`
	Flags      FlagsConfig `json:"flags"`
}
