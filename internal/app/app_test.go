package app

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"traffic-router/internal/common/errors"
	"traffic-router/internal/common/logging"
	"traffic-router/internal/config"
	"traffic-router/internal/handlers"
)

const (
	testToken = "t0ken"
	mobileUA  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	yandexUA  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile (compatible; YandexMobileBot/3.0; +http://yandex.com/bots)"
)

func TestMain(m *testing.M) {
	logging.SetGlobalLogger(logging.NewNopLogger())
	os.Exit(m.Run())
}

type testApp struct {
	app     *App
	handler http.Handler

	mu   sync.Mutex
	hits []string
}

func (ta *testApp) originHits() []string {
	ta.mu.Lock()
	defer ta.mu.Unlock()
	return append([]string(nil), ta.hits...)
}

func setupApp(t *testing.T) *testApp {
	t.Helper()
	ta := &testApp{}
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ta.mu.Lock()
		ta.hits = append(ta.hits, r.Method+" "+r.URL.RequestURI())
		ta.mu.Unlock()
		w.Header().Set("X-Origin", "1")
		_, _ = w.Write([]byte("origin:" + string(body)))
	}))
	t.Cleanup(origin.Close)

	cfg := &config.Config{
		Port:                     "0",
		LogLevel:                 "info",
		OriginURL:                origin.URL,
		OriginTimeout:            "5s",
		OriginBreakerEnabled:     true,
		OriginBreakerMaxFailures: "5",
		AdminPrefix:              "/admin",
		AdminToken:               testToken,
		StoreType:                config.StoreMemory,
		CountryHeader:            "CF-IPCountry",
		ClientIPHeader:           "CF-Connecting-IP",
	}
	require.NoError(t, cfg.Validate())

	a, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(a.Cleanup)

	ta.app = a
	ta.handler = a.Handler()
	return ta
}

func (ta *testApp) do(method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ta.handler.ServeHTTP(rec, req)
	return rec
}

func adminHeaders(extra map[string]string) map[string]string {
	h := map[string]string{"Authorization": "Bearer " + testToken}
	for k, v := range extra {
		h[k] = v
	}
	return h
}

func TestRuntimeTraffic(t *testing.T) {
	ta := setupApp(t)

	rec := ta.do(http.MethodGet, "/casino/spins100", "", map[string]string{"CF-IPCountry": "ru", "User-Agent": mobileUA})
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://partner.example/go?bonus=spins100", rec.Header().Get("Location"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = ta.do(http.MethodGet, "/casino/spins100", "", map[string]string{"CF-IPCountry": "RU", "User-Agent": yandexUA})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-Origin"))

	rec = ta.do(http.MethodGet, "/unmapped/page?x=1", "", map[string]string{"CF-IPCountry": "RU", "User-Agent": mobileUA})
	assert.Equal(t, "1", rec.Header().Get("X-Origin"))

	rec = ta.do(http.MethodPost, "/casino/spins100", "form=1", map[string]string{"CF-IPCountry": "RU", "User-Agent": mobileUA})
	assert.Equal(t, "origin:form=1", rec.Body.String())

	assert.Equal(t, []string{
		"GET /casino/spins100",
		"GET /unmapped/page?x=1",
		"POST /casino/spins100",
	}, ta.originHits())
}

func TestAdminSurface(t *testing.T) {
	ta := setupApp(t)

	t.Run("health needs no token", func(t *testing.T) {
		rec := ta.do(http.MethodGet, "/admin/health", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
		assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
		assert.Contains(t, rec.Body.String(), `"state":"closed"`)
	})

	t.Run("missing token", func(t *testing.T) {
		rec := ta.do(http.MethodGet, "/admin/api/routes", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	})

	t.Run("query token", func(t *testing.T) {
		rec := ta.do(http.MethodGet, "/admin/api/routes?token="+testToken, "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("ETag"))
	})

	t.Run("wrong method", func(t *testing.T) {
		rec := ta.do(http.MethodPost, "/admin/api/routes", "[]", adminHeaders(nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		assert.Empty(t, ta.originHits(), "admin paths never reach the origin")
	})

	t.Run("unknown admin path", func(t *testing.T) {
		rec := ta.do(http.MethodGet, "/admin/nope", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		var body errors.ErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, errors.ErrTypeNotFound, body.Error.Type)
	})
}

func TestRouteReplacementTakesEffect(t *testing.T) {
	ta := setupApp(t)

	rec := ta.do(http.MethodGet, "/admin/api/routes", "", adminHeaders(nil))
	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")

	routes := `[{"id":"promo","enabled":true,"match":{"path":"/promo*"},
		"action":{"type":"redirect","target":"https://promo.example/","status":301,"appendCountry":true}}]`

	rec = ta.do(http.MethodPut, "/admin/api/routes", routes, adminHeaders(map[string]string{"If-Match": `"stale"`}))
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)

	rec = ta.do(http.MethodPut, "/admin/api/routes", routes, adminHeaders(map[string]string{
		"If-Match":         etag,
		"CF-Connecting-IP": "198.51.100.4",
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	var body handlers.RoutesResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "admin:198.51.100.4", body.Metadata.UpdatedBy)

	rec = ta.do(http.MethodGet, "/promo/summer", "", map[string]string{"CF-IPCountry": "DE"})
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "https://promo.example/?country=DE", rec.Header().Get("Location"))

	rec = ta.do(http.MethodGet, "/casino/spins100", "", map[string]string{"CF-IPCountry": "RU", "User-Agent": mobileUA})
	assert.Equal(t, "1", rec.Header().Get("X-Origin"))
}

func TestAdminAllowList(t *testing.T) {
	ta := setupApp(t)

	flags := `{"cacheTtlMs":60000,"allowedAdminIps":["10.0.0.0/8"],"uiTitle":"Edge"}`
	rec := ta.do(http.MethodPut, "/admin/api/flags", flags, adminHeaders(map[string]string{"CF-Connecting-IP": "10.1.1.1"}))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ta.do(http.MethodGet, "/admin/api/ui", "", adminHeaders(map[string]string{"CF-Connecting-IP": "192.0.2.1"}))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ta.do(http.MethodGet, "/admin/api/ui", "", adminHeaders(map[string]string{"CF-Connecting-IP": "10.9.9.9"}))
	require.Equal(t, http.StatusOK, rec.Code)
	var ui handlers.UIResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&ui))
	assert.Equal(t, "Edge", ui.Title)

	rec = ta.do(http.MethodGet, "/admin/api/audit?limit=5", "", adminHeaders(map[string]string{"CF-Connecting-IP": "10.9.9.9"}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"action":"flags.replace"`)
	assert.Contains(t, rec.Body.String(), `"actor":"admin:10.1.1.1"`)
}

func TestSplitAdmin(t *testing.T) {
	admin := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	edge := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusAccepted) })
	h := splitAdmin("/admin", admin, edge)

	for path, want := range map[string]int{
		"/admin":          http.StatusTeapot,
		"/admin/api/ui":   http.StatusTeapot,
		"/administrator":  http.StatusAccepted,
		"/":               http.StatusAccepted,
		"/casino/admin/x": http.StatusAccepted,
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, rec.Code, path)
	}
}
