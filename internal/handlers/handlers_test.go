package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"traffic-router/internal/admin"
	"traffic-router/internal/audit"
	"traffic-router/internal/classify"
	"traffic-router/internal/common/errors"
	"traffic-router/internal/common/logging"
	"traffic-router/internal/config"
	"traffic-router/internal/configcache"
	"traffic-router/internal/handlers"
	"traffic-router/internal/models"
	"traffic-router/internal/store"
	"traffic-router/internal/testutil"
)

const (
	mobileUA = "Mozilla/5.0 (Linux; Android 13; Pixel 7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Mobile Safari/537.36"
	botUA    = "Mozilla/5.0 (Linux; Android 6.0.1; Nexus 5X Build/MMB29P) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Mobile Safari/537.36 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
)

// originStub stands in for the origin and counts forwarded requests
type originStub struct {
	hits atomic.Int32
}

func (o *originStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	o.hits.Add(1)
	w.Header().Set("X-Origin", "1")
	_, _ = w.Write([]byte("origin"))
}

type testEnv struct {
	h      *handlers.Handlers
	origin *originStub
	cache  *configcache.Cache
	store  store.Store
}

func setupHandlers(t *testing.T, s store.Store) *testEnv {
	t.Helper()
	clock := testutil.NewFakeClock(testutil.Epoch)
	logger := logging.NewNopLogger()
	auditLog := audit.New(s, clock.Now, logger)
	cache := configcache.New(s, auditLog, clock.Now, logger)
	classifier := classify.New(classify.Config{
		CountryHeader:  "CF-IPCountry",
		ClientIPHeader: "CF-Connecting-IP",
	}, nil)
	svc := admin.NewService(s, cache, auditLog, clock.Now, logger)
	origin := &originStub{}
	h := handlers.New(&config.Config{AdminPrefix: "/admin"}, cache, classifier, svc, origin, logger)
	return &testEnv{h: h, origin: origin, cache: cache, store: s}
}

func edgeRequest(method, target, country, ua string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	if country != "" {
		req.Header.Set("CF-IPCountry", country)
	}
	if ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errors.ErrorResponse {
	t.Helper()
	var body errors.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func decodeRoutes(t *testing.T, rec *httptest.ResponseRecorder) handlers.RoutesResponse {
	t.Helper()
	var body handlers.RoutesResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestServeEdge(t *testing.T) {
	env := setupHandlers(t, store.NewMemoryStore())

	t.Run("casino redirect for RU mobile human", func(t *testing.T) {
		rec := httptest.NewRecorder()
		env.h.ServeEdge(rec, edgeRequest(http.MethodGet, "/casino/spins100", "RU", mobileUA))

		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "https://partner.example/go?bonus=spins100", rec.Header().Get("Location"))
		assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	})

	t.Run("bot passes through", func(t *testing.T) {
		before := env.origin.hits.Load()
		rec := httptest.NewRecorder()
		env.h.ServeEdge(rec, edgeRequest(http.MethodGet, "/casino/spins100", "RU", botUA))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "1", rec.Header().Get("X-Origin"))
		assert.Equal(t, before+1, env.origin.hits.Load())
	})

	t.Run("other country passes through", func(t *testing.T) {
		rec := httptest.NewRecorder()
		env.h.ServeEdge(rec, edgeRequest(http.MethodGet, "/casino/spins100", "DE", mobileUA))
		assert.Equal(t, "1", rec.Header().Get("X-Origin"))
	})

	t.Run("unmapped path passes through", func(t *testing.T) {
		rec := httptest.NewRecorder()
		env.h.ServeEdge(rec, edgeRequest(http.MethodGet, "/unmapped/page", "RU", mobileUA))
		assert.Equal(t, "1", rec.Header().Get("X-Origin"))
		assert.Empty(t, rec.Header().Get("Location"))
	})

	t.Run("non-GET goes to origin", func(t *testing.T) {
		rec := httptest.NewRecorder()
		env.h.ServeEdge(rec, edgeRequest(http.MethodPost, "/casino/spins100", "RU", mobileUA))
		assert.Equal(t, "1", rec.Header().Get("X-Origin"))
	})
}

func TestServeEdge_SlugMissingPassesThrough(t *testing.T) {
	s := store.NewMemoryStore()
	rule := testutil.NewRuleBuilder("slug").
		WithPath("^/go/([^/]*)").
		RedirectTo("https://partner.example/landing").
		WithSlug(models.SlugConfig{Mode: "path"}).
		Build()
	require.NoError(t, testutil.SeedConfig(context.Background(), s, []models.RouteRule{rule}, testutil.TestFlags(), 3))
	env := setupHandlers(t, s)

	rec := httptest.NewRecorder()
	env.h.ServeEdge(rec, edgeRequest(http.MethodGet, "/go/", "", ""))
	assert.Equal(t, "1", rec.Header().Get("X-Origin"))

	rec = httptest.NewRecorder()
	env.h.ServeEdge(rec, edgeRequest(http.MethodGet, "/go/abc", "", ""))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://partner.example/landing/abc", rec.Header().Get("Location"))
}

func TestServeEdge_ResponseAction(t *testing.T) {
	s := store.NewMemoryStore()
	rule := testutil.NewRuleBuilder("notice").WithPath("/maintenance").Respond(http.StatusServiceUnavailable, "<p>Back soon</p>").Build()
	require.NoError(t, testutil.SeedConfig(context.Background(), s, []models.RouteRule{rule}, testutil.TestFlags(), 1))
	env := setupHandlers(t, s)

	rec := httptest.NewRecorder()
	env.h.ServeEdge(rec, edgeRequest(http.MethodGet, "/maintenance", "", ""))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "<p>Back soon</p>", rec.Body.String())
	assert.Zero(t, env.origin.hits.Load())
}

func TestServeEdge_ConfigUnavailableGoesToOrigin(t *testing.T) {
	s := testutil.NewMockStore()
	s.SetError("Get", testutil.ErrStoreDown)
	env := setupHandlers(t, s)

	rec := httptest.NewRecorder()
	env.h.ServeEdge(rec, edgeRequest(http.MethodGet, "/casino/spins100", "RU", mobileUA))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-Origin"))
}

func TestHealth(t *testing.T) {
	env := setupHandlers(t, store.NewMemoryStore())

	rec := httptest.NewRecorder()
	env.h.Health(rec, httptest.NewRequest(http.MethodGet, "/admin/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"config":"cold"`)

	_, err := env.cache.Get(context.Background(), false)
	require.NoError(t, err)

	rec = httptest.NewRecorder()
	env.h.Health(rec, httptest.NewRequest(http.MethodGet, "/admin/health", nil))
	assert.Contains(t, rec.Body.String(), `"config":"loaded"`)
	assert.Contains(t, rec.Body.String(), `"version":1`)
}

func TestGetRoutes(t *testing.T) {
	env := setupHandlers(t, store.NewMemoryStore())

	rec := httptest.NewRecorder()
	env.h.GetRoutes(rec, httptest.NewRequest(http.MethodGet, "/admin/api/routes", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeRoutes(t, rec)
	assert.Equal(t, rec.Header().Get("ETag"), body.Etag)
	assert.Equal(t, int64(1), body.Metadata.Version)
	assert.Equal(t, models.DefaultRoutes()[0].ID, body.Routes[0].ID)
}

func TestReplaceRoutes(t *testing.T) {
	env := setupHandlers(t, store.NewMemoryStore())
	current, err := env.cache.Get(context.Background(), false)
	require.NoError(t, err)

	payload := `[{"id":"home","enabled":true,"match":{"path":"/"},"action":{"type":"redirect","target":"https://www.example/"}}]`

	t.Run("stale If-Match is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/admin/api/routes", strings.NewReader(payload))
		req.Header.Set("If-Match", `"0000"`)
		rec := httptest.NewRecorder()
		env.h.ReplaceRoutes(rec, req)

		assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
		body := decodeError(t, rec)
		assert.Equal(t, errors.ErrTypeConflict, body.Error.Type)
		assert.Equal(t, current.Etag, body.Error.Details["etag"])
	})

	t.Run("matching If-Match replaces", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/admin/api/routes", strings.NewReader(payload))
		req.Header.Set("If-Match", current.Etag)
		rec := httptest.NewRecorder()
		env.h.ReplaceRoutes(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeRoutes(t, rec)
		assert.NotEqual(t, current.Etag, body.Etag)
		assert.Equal(t, body.Etag, rec.Header().Get("ETag"))
		assert.Equal(t, int64(2), body.Metadata.Version)
		assert.Equal(t, "admin", body.Metadata.UpdatedBy)
		require.Len(t, body.Routes, 1)
		assert.Equal(t, "home", body.Routes[0].ID)
	})

	t.Run("wrapped payload without If-Match", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/admin/api/routes", strings.NewReader(`{"routes":[]}`))
		rec := httptest.NewRecorder()
		env.h.ReplaceRoutes(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, decodeRoutes(t, rec).Routes)
	})
}

func TestReplaceRoutes_ValidationFailure(t *testing.T) {
	s := testutil.NewMockStore()
	require.NoError(t, testutil.SeedConfig(context.Background(), s, models.DefaultRoutes(), testutil.TestFlags(), 1))
	env := setupHandlers(t, s)
	s.ResetCalls()

	tests := []struct {
		name    string
		payload string
	}{
		{"missing action", `[{"id":"a","match":{}}]`},
		{"bad regex", `[{"id":"a","match":{"path":"^/(x"},"action":{"type":"redirect","target":"https://x.example/"}}]`},
		{"malformed json", `[{"id":`},
		{"empty body", ``},
		{"missing routes field", `{"rules":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/admin/api/routes", strings.NewReader(tt.payload))
			rec := httptest.NewRecorder()
			env.h.ReplaceRoutes(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, errors.ErrTypeValidation, decodeError(t, rec).Error.Type)
		})
	}
	assert.Zero(t, s.Calls("Put"))
}

func TestValidateRoutes(t *testing.T) {
	env := setupHandlers(t, store.NewMemoryStore())

	req := httptest.NewRequest(http.MethodPost, "/admin/api/routes/validate",
		strings.NewReader(`[{"id":"a","match":{"path":"^/(x"},"action":{"type":"redirect","target":"https://x.example/"}}]`))
	rec := httptest.NewRecorder()
	env.h.ValidateRoutes(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var report admin.ValidationReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.False(t, report.Valid)
	require.NotEmpty(t, report.Issues)
	assert.Equal(t, "match.path[0]", report.Issues[0].Field)
}

func TestPatchAndDeleteRoute(t *testing.T) {
	env := setupHandlers(t, store.NewMemoryStore())

	req := httptest.NewRequest(http.MethodPatch, "/admin/api/routes/maintenance-notice", strings.NewReader(`{"enabled":true}`))
	req = mux.SetURLVars(req, map[string]string{"id": "maintenance-notice"})
	rec := httptest.NewRecorder()
	env.h.PatchRoute(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeRoutes(t, rec)
	require.Len(t, body.Routes, 2)
	assert.True(t, body.Routes[1].Enabled)

	req = httptest.NewRequest(http.MethodDelete, "/admin/api/routes/maintenance-notice", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "maintenance-notice"})
	rec = httptest.NewRecorder()
	env.h.DeleteRoute(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeRoutes(t, rec).Routes, 1)

	req = httptest.NewRequest(http.MethodDelete, "/admin/api/routes/maintenance-notice", nil)
	req = mux.SetURLVars(req, map[string]string{"id": "maintenance-notice"})
	rec = httptest.NewRecorder()
	env.h.DeleteRoute(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, errors.ErrTypeNotFound, decodeError(t, rec).Error.Type)
}

func TestFlagsEndpoints(t *testing.T) {
	env := setupHandlers(t, store.NewMemoryStore())

	req := httptest.NewRequest(http.MethodPut, "/admin/api/flags",
		strings.NewReader(`{"cacheTtlMs":100,"strictBots":true,"allowedAdminIps":["10.0.0.0/8"],"uiTitle":"Edge"}`))
	req.Header.Set("If-Match", `"ignored"`)
	rec := httptest.NewRecorder()
	env.h.ReplaceFlags(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body handlers.FlagsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, models.MinCacheTTLMs, body.Flags.CacheTTLMs)
	assert.True(t, body.Flags.StrictBots)
	assert.Equal(t, "Edge", body.Flags.UITitle)

	req = httptest.NewRequest(http.MethodPut, "/admin/api/flags", strings.NewReader(`{"allowedAdminIps":["nope"]}`))
	rec = httptest.NewRecorder()
	env.h.ReplaceFlags(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	env.h.GetFlags(rec, httptest.NewRequest(http.MethodGet, "/admin/api/flags", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, []string{"10.0.0.0/8"}, body.Flags.AllowedAdminIPs)
}

func TestInvalidateCacheAndAudit(t *testing.T) {
	env := setupHandlers(t, store.NewMemoryStore())

	rec := httptest.NewRecorder()
	env.h.InvalidateCache(rec, httptest.NewRequest(http.MethodPost, "/admin/api/cache/invalidate", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var cacheBody handlers.CacheResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&cacheBody))
	assert.Equal(t, int64(1), cacheBody.Metadata.Version)

	rec = httptest.NewRecorder()
	env.h.GetAudit(rec, httptest.NewRequest(http.MethodGet, "/admin/api/audit?limit=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []models.AuditEntry
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&entries))

	actions := make([]string, 0, len(entries))
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	assert.ElementsMatch(t, []string{models.AuditBootstrap, models.AuditCacheInvalidate}, actions)

	rec = httptest.NewRecorder()
	env.h.GetAudit(rec, httptest.NewRequest(http.MethodGet, "/admin/api/audit?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportImport(t *testing.T) {
	env := setupHandlers(t, store.NewMemoryStore())

	rec := httptest.NewRecorder()
	env.h.Export(rec, httptest.NewRequest(http.MethodGet, "/admin/api/export", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="traffic-router-config-v1.json"`, rec.Header().Get("Content-Disposition"))

	var doc models.ConfigExport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Len(t, doc.Routes, len(models.DefaultRoutes()))

	doc.Routes = doc.Routes[:1]
	doc.Flags.UITitle = "Imported"
	payload, err := json.Marshal(doc)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/admin/api/import", strings.NewReader(string(payload)))
	req.Header.Set("If-Match", doc.Etag)
	rec = httptest.NewRecorder()
	env.h.Import(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeRoutes(t, rec)
	assert.Len(t, body.Routes, 1)
	assert.Equal(t, int64(2), body.Metadata.Version)

	req = httptest.NewRequest(http.MethodPost, "/admin/api/import", strings.NewReader(string(payload)))
	req.Header.Set("If-Match", doc.Etag)
	rec = httptest.NewRecorder()
	env.h.Import(rec, req)
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
}

func TestUI(t *testing.T) {
	env := setupHandlers(t, store.NewMemoryStore())

	rec := httptest.NewRecorder()
	env.h.UI(rec, httptest.NewRequest(http.MethodGet, "/admin/api/ui", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body handlers.UIResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "Traffic Router", body.Title)
	assert.False(t, body.Readonly)
	assert.Equal(t, len(models.DefaultRoutes()), body.RouteCount)
	assert.Equal(t, "/admin", body.AdminPrefix)
}
