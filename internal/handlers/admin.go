package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"traffic-router/internal/auth"
	"traffic-router/internal/circuitbreaker"
	"traffic-router/internal/common/errors"
	"traffic-router/internal/configcache"
	"traffic-router/internal/models"
	"traffic-router/internal/routing"
)

// RoutesResponse is the body of every routes endpoint
type RoutesResponse struct {
	Routes       []models.RouteRule    `json:"routes"`
	Etag         string                `json:"etag"`
	Metadata     models.Metadata       `json:"metadata"`
	InvalidRules []routing.InvalidRule `json:"invalidRules,omitempty"`
}

// FlagsResponse is the body of the flags endpoints
type FlagsResponse struct {
	Flags    models.FlagsConfig `json:"flags"`
	Etag     string             `json:"etag"`
	Metadata models.Metadata    `json:"metadata"`
}

// CacheResponse describes the bundle held after an invalidation
type CacheResponse struct {
	Etag      string          `json:"etag"`
	Metadata  models.Metadata `json:"metadata"`
	LoadedAt  time.Time       `json:"loadedAt"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// UIResponse carries what the admin page needs to render itself
type UIResponse struct {
	Title        string                `json:"title"`
	Readonly     bool                  `json:"readonly"`
	Etag         string                `json:"etag"`
	Metadata     models.Metadata       `json:"metadata"`
	RouteCount   int                   `json:"routeCount"`
	InvalidRules []routing.InvalidRule `json:"invalidRules,omitempty"`
	AdminPrefix  string                `json:"adminPrefix"`
}

// routesPayload accepts either a bare rule array or {"routes": [...]}
type routesPayload []models.RouteRule

func (p *routesPayload) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var routes []models.RouteRule
		if err := json.Unmarshal(trimmed, &routes); err != nil {
			return err
		}
		*p = routes
		return nil
	}
	var wrapped struct {
		Routes *[]models.RouteRule `json:"routes"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return err
	}
	if wrapped.Routes == nil {
		return fmt.Errorf("field 'routes' is required")
	}
	*p = *wrapped.Routes
	return nil
}

func (h *Handlers) sendRoutes(w http.ResponseWriter, b *configcache.Bundle) {
	routes := b.Routes
	if routes == nil {
		routes = []models.RouteRule{}
	}
	w.Header().Set("ETag", b.Etag)
	h.sendJSONResponse(w, http.StatusOK, RoutesResponse{
		Routes:       routes,
		Etag:         b.Etag,
		Metadata:     b.Metadata,
		InvalidRules: b.InvalidRules,
	})
}

func (h *Handlers) sendFlags(w http.ResponseWriter, b *configcache.Bundle) {
	w.Header().Set("ETag", b.Etag)
	h.sendJSONResponse(w, http.StatusOK, FlagsResponse{Flags: b.Flags, Etag: b.Etag, Metadata: b.Metadata})
}

type breakerReporter interface {
	BreakerStats() (circuitbreaker.Stats, bool)
}

// Health reports liveness without touching the store
// @Summary Health check
// @Tags admin
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"status": "ok"}
	if b := h.cache.Current(); b != nil {
		resp["config"] = "loaded"
		resp["version"] = b.Metadata.Version
		resp["etag"] = b.Etag
	} else {
		resp["config"] = "cold"
	}
	if o, ok := h.origin.(breakerReporter); ok {
		if stats, ok := o.BreakerStats(); ok {
			resp["origin"] = stats
		}
	}
	h.sendJSONResponse(w, http.StatusOK, resp)
}

// GetRoutes returns the rule list with its etag
// @Summary List routes
// @Tags routes
// @Produce json
// @Security BearerAuth
// @Success 200 {object} RoutesResponse
// @Failure 503 {object} errors.ErrorResponse "Configuration unavailable"
// @Router /api/routes [get]
func (h *Handlers) GetRoutes(w http.ResponseWriter, r *http.Request) {
	b, err := h.admin.Routes(r.Context())
	if err != nil {
		h.sendJSONError(w, r, err, "Failed to load routes")
		return
	}
	h.sendRoutes(w, b)
}

// ReplaceRoutes swaps the whole rule list
// @Summary Replace routes
// @Tags routes
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param If-Match header string false "Etag the client last read"
// @Param routes body []models.RouteRule true "Complete rule list"
// @Success 200 {object} RoutesResponse
// @Failure 400 {object} errors.ErrorResponse "Validation failed"
// @Failure 412 {object} errors.ErrorResponse "Etag mismatch"
// @Router /api/routes [put]
func (h *Handlers) ReplaceRoutes(w http.ResponseWriter, r *http.Request) {
	var routes routesPayload
	if err := decodeJSON(w, r, &routes); err != nil {
		h.sendJSONError(w, r, err, "Invalid routes payload")
		return
	}
	b, err := h.admin.ReplaceRoutes(r.Context(), auth.Actor(r.Context()), routes, r.Header.Get("If-Match"))
	if err != nil {
		h.sendJSONError(w, r, err, "Failed to replace routes")
		return
	}
	h.sendRoutes(w, b)
}

// ValidateRoutes checks a rule list without writing it
// @Summary Validate routes
// @Tags routes
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param routes body []models.RouteRule true "Rule list"
// @Success 200 {object} admin.ValidationReport
// @Router /api/routes/validate [post]
func (h *Handlers) ValidateRoutes(w http.ResponseWriter, r *http.Request) {
	var routes routesPayload
	if err := decodeJSON(w, r, &routes); err != nil {
		h.sendJSONError(w, r, err, "Invalid routes payload")
		return
	}
	h.sendJSONResponse(w, http.StatusOK, h.admin.ValidateRoutes(routes))
}

// PatchRoute merge-patches one rule, creating it when the id is new
// @Summary Patch route
// @Tags routes
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Rule ID"
// @Param If-Match header string false "Etag the client last read"
// @Success 200 {object} RoutesResponse
// @Router /api/routes/{id} [patch]
func (h *Handlers) PatchRoute(w http.ResponseWriter, r *http.Request) {
	var patch json.RawMessage
	if err := decodeJSON(w, r, &patch); err != nil {
		h.sendJSONError(w, r, err, "Invalid route patch")
		return
	}
	id := mux.Vars(r)["id"]
	b, err := h.admin.UpsertRoute(r.Context(), auth.Actor(r.Context()), id, patch, r.Header.Get("If-Match"))
	if err != nil {
		h.sendJSONError(w, r, err, "Failed to patch route")
		return
	}
	h.sendRoutes(w, b)
}

// DeleteRoute removes one rule
// @Summary Delete route
// @Tags routes
// @Produce json
// @Security BearerAuth
// @Param id path string true "Rule ID"
// @Param If-Match header string false "Etag the client last read"
// @Success 200 {object} RoutesResponse
// @Failure 404 {object} errors.ErrorResponse "Rule not found"
// @Router /api/routes/{id} [delete]
func (h *Handlers) DeleteRoute(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	b, err := h.admin.DeleteRoute(r.Context(), auth.Actor(r.Context()), id, r.Header.Get("If-Match"))
	if err != nil {
		h.sendJSONError(w, r, err, "Failed to delete route")
		return
	}
	h.sendRoutes(w, b)
}

// GetFlags returns the runtime flags
// @Summary Get flags
// @Tags flags
// @Produce json
// @Security BearerAuth
// @Success 200 {object} FlagsResponse
// @Router /api/flags [get]
func (h *Handlers) GetFlags(w http.ResponseWriter, r *http.Request) {
	b, err := h.admin.Flags(r.Context())
	if err != nil {
		h.sendJSONError(w, r, err, "Failed to load flags")
		return
	}
	h.sendFlags(w, b)
}

// ReplaceFlags swaps the runtime flags. If-Match is ignored here.
// @Summary Replace flags
// @Tags flags
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param flags body models.FlagsConfig true "Flags"
// @Success 200 {object} FlagsResponse
// @Router /api/flags [put]
func (h *Handlers) ReplaceFlags(w http.ResponseWriter, r *http.Request) {
	var flags models.FlagsConfig
	if err := decodeJSON(w, r, &flags); err != nil {
		h.sendJSONError(w, r, err, "Invalid flags payload")
		return
	}
	b, err := h.admin.ReplaceFlags(r.Context(), auth.Actor(r.Context()), flags)
	if err != nil {
		h.sendJSONError(w, r, err, "Failed to replace flags")
		return
	}
	h.sendFlags(w, b)
}

// InvalidateCache drops the cached bundle and reloads it
// @Summary Invalidate cache
// @Tags cache
// @Produce json
// @Security BearerAuth
// @Success 200 {object} CacheResponse
// @Router /api/cache/invalidate [post]
func (h *Handlers) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	b, err := h.admin.InvalidateCache(r.Context(), auth.Actor(r.Context()))
	if err != nil {
		h.sendJSONError(w, r, err, "Failed to reload configuration")
		return
	}
	w.Header().Set("ETag", b.Etag)
	h.sendJSONResponse(w, http.StatusOK, CacheResponse{
		Etag:      b.Etag,
		Metadata:  b.Metadata,
		LoadedAt:  b.LoadedAt,
		ExpiresAt: b.ExpiresAt,
	})
}

// GetAudit lists audit entries, newest first
// @Summary Audit log
// @Tags audit
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum entries (default 50, max 500)"
// @Success 200 {array} models.AuditEntry
// @Router /api/audit [get]
func (h *Handlers) GetAudit(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.sendJSONError(w, r, errors.ValidationError("limit must be a positive integer"), "Invalid audit limit")
			return
		}
		limit = n
	}
	entries, err := h.admin.Audit(r.Context(), limit)
	if err != nil {
		h.sendJSONError(w, r, err, "Failed to read audit log")
		return
	}
	if entries == nil {
		entries = []models.AuditEntry{}
	}
	h.sendJSONResponse(w, http.StatusOK, entries)
}

// Export returns routes and flags as one importable document
// @Summary Export configuration
// @Tags config
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.ConfigExport
// @Router /api/export [get]
func (h *Handlers) Export(w http.ResponseWriter, r *http.Request) {
	doc, err := h.admin.Export(r.Context())
	if err != nil {
		h.sendJSONError(w, r, err, "Failed to export configuration")
		return
	}
	version := int64(0)
	if doc.Metadata != nil {
		version = doc.Metadata.Version
	}
	w.Header().Set("ETag", doc.Etag)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="traffic-router-config-v%d.json"`, version))
	h.sendJSONResponse(w, http.StatusOK, doc)
}

// Import replaces routes and flags from an exported document
// @Summary Import configuration
// @Tags config
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param If-Match header string false "Etag the client last read"
// @Param config body models.ConfigExport true "Exported document"
// @Success 200 {object} RoutesResponse
// @Router /api/import [post]
func (h *Handlers) Import(w http.ResponseWriter, r *http.Request) {
	var doc models.ConfigExport
	if err := decodeJSON(w, r, &doc); err != nil {
		h.sendJSONError(w, r, err, "Invalid import document")
		return
	}
	b, err := h.admin.Import(r.Context(), auth.Actor(r.Context()), doc, r.Header.Get("If-Match"))
	if err != nil {
		h.sendJSONError(w, r, err, "Failed to import configuration")
		return
	}
	h.sendRoutes(w, b)
}

// UI returns the settings the admin page renders with
// @Summary Admin UI settings
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} UIResponse
// @Router /api/ui [get]
func (h *Handlers) UI(w http.ResponseWriter, r *http.Request) {
	b, err := h.cache.Get(r.Context(), false)
	if err != nil {
		h.sendJSONError(w, r, err, "Failed to load configuration")
		return
	}
	title := b.Flags.UITitle
	if title == "" {
		title = "Traffic Router"
	}
	h.sendJSONResponse(w, http.StatusOK, UIResponse{
		Title:        title,
		Readonly:     b.Flags.UIReadonly,
		Etag:         b.Etag,
		Metadata:     b.Metadata,
		RouteCount:   len(b.Routes),
		InvalidRules: b.InvalidRules,
		AdminPrefix:  h.config.AdminPrefix,
	})
}

// NotFound answers unknown admin paths with the error envelope
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	h.sendJSONResponse(w, http.StatusNotFound, errors.NewErrorResponse(errors.NotFoundError("endpoint")))
}

// MethodNotAllowed answers known admin paths called with the wrong method
func (h *Handlers) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.sendJSONResponse(w, http.StatusMethodNotAllowed, errors.ErrorResponse{Error: errors.ErrorBody{
		Type:    errors.ErrTypeValidation,
		Message: r.Method + " is not allowed on " + r.URL.Path,
	}})
}
