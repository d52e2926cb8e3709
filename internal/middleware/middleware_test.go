package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"traffic-router/internal/common/logging"
)

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.RequestIDFromContext(r.Context())
	}))

	t.Run("assigns", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		id := rec.Header().Get(RequestIDHeader)
		assert.True(t, strings.HasPrefix(id, "req-"))
		assert.Equal(t, id, seen)
	})

	t.Run("reuses inbound", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "edge-42")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, "edge-42", rec.Header().Get(RequestIDHeader))
		assert.Equal(t, "edge-42", seen)
	})
}

func TestLogging_PassesThrough(t *testing.T) {
	h := Logging(logging.NewNopLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "https://partner.example/go")
		w.WriteHeader(http.StatusFound)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/casino/x", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://partner.example/go", rec.Header().Get("Location"))
}

func TestLogging_RedactsAdminToken(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.NewZapLogger(logging.LogConfig{Level: logging.InfoLevel, Output: &buf, JSON: true})
	require.NoError(t, err)

	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/admin/api/routes?limit=5&token=s3cr3t-admin", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/admin/api/routes?TOKEN=s3cr3t-admin", nil))

	out := buf.String()
	assert.NotContains(t, out, "s3cr3t-admin")
	assert.Contains(t, out, "token=REDACTED")
}

func TestRedactQuery(t *testing.T) {
	tests := []struct {
		raw, want string
	}{
		{"a=1&b=2", "a=1&b=2"},
		{"token=x", "token=REDACTED"},
		{"to%6Ben=x&a=1", "token=REDACTED&a=1"},
		{"tokens=x", "tokens=x"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, redactQuery(tt.raw), tt.raw)
	}
}

func TestResponseWriter_RecordsFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	_, _ = rw.Write([]byte("body"))
	assert.Equal(t, http.StatusOK, rw.statusCode)

	rw = &responseWriter{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}
	rw.WriteHeader(http.StatusTeapot)
	assert.Equal(t, http.StatusTeapot, rw.statusCode)
}

func TestAdminSecurityHeaders(t *testing.T) {
	h := AdminSecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/api/routes", nil))

	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "default-src 'none'; frame-ancestors 'none'", rec.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-referrer", rec.Header().Get("Referrer-Policy"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}
