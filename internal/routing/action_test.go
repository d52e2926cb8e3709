package routing

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"traffic-router/internal/models"
)

func matchOne(t *testing.T, r models.RouteRule, req *Request) *Match {
	t.Helper()
	m, ok := Compile([]models.RouteRule{r}, nil).Match(req)
	require.True(t, ok, "rule %s should match %s", r.ID, req.Path)
	return m
}

func TestBuildRedirectURL_DefaultCasinoRule(t *testing.T) {
	req := &Request{Path: "/casino/spins100", Country: "RU", Device: models.DeviceMobile}
	m, ok := Compile(models.DefaultRoutes(), nil).Match(req)
	require.True(t, ok)
	assert.Equal(t, "casino-ru-mobile", m.Rule.ID)

	location, err := BuildRedirectURL(m.Rule.Action, m, req)
	require.NoError(t, err)
	assert.Equal(t, "https://partner.example/go?bonus=spins100", location)

	// Same input, same output
	again, err := BuildRedirectURL(m.Rule.Action, m, req)
	require.NoError(t, err)
	assert.Equal(t, location, again)
}

func TestBuildRedirectURL_SlugPathMode(t *testing.T) {
	r := models.RouteRule{
		ID: "slug-path", Enabled: true,
		Match: &models.MatchCriteria{Path: models.PathPatterns{`^/go/(.+)$`}},
		Action: &models.Action{
			Type:   models.ActionRedirect,
			Target: "https://partner.example/landing/",
			Slug:   &models.SlugConfig{Mode: models.SlugModePath},
		},
	}
	req := &Request{Path: "/go/big win//x"}

	location, err := BuildRedirectURL(r.Action, matchOne(t, r, req), req)
	require.NoError(t, err)
	assert.Equal(t, "https://partner.example/landing/big%20win/x", location)
}

func TestBuildRedirectURL_SlugDecodedOnce(t *testing.T) {
	r := models.RouteRule{
		ID: "slug-path", Enabled: true,
		Match: &models.MatchCriteria{Path: models.PathPatterns{`^/go/(.+)$`}},
		Action: &models.Action{
			Type:   models.ActionRedirect,
			Target: "https://t.example/p",
			Slug:   &models.SlugConfig{Mode: models.SlugModePath},
		},
	}
	// net/http decodes /go/a%2520b to /go/a%20b; the literal %20 must survive
	req := &Request{Path: "/go/a%20b"}

	location, err := BuildRedirectURL(r.Action, matchOne(t, r, req), req)
	require.NoError(t, err)
	assert.Equal(t, "https://t.example/p/a%2520b", location)

	r.Action.Slug = &models.SlugConfig{Mode: models.SlugModeParam}
	location, err = BuildRedirectURL(r.Action, matchOne(t, r, req), req)
	require.NoError(t, err)
	assert.Equal(t, "https://t.example/p?slug=a%2520b", location)
}

func TestBuildRedirectURL_SlugParamMode(t *testing.T) {
	r := models.RouteRule{
		ID: "slug-param", Enabled: true,
		Match: &models.MatchCriteria{Path: models.PathPatterns{`^/casino/([^/?#]+)`}},
		Action: &models.Action{
			Type:   models.ActionRedirect,
			Target: "https://partner.example/go?aff=7",
			Slug:   &models.SlugConfig{Mode: models.SlugModeParam, Param: "code"},
		},
	}
	req := &Request{Path: "/casino/abc"}

	location, err := BuildRedirectURL(r.Action, matchOne(t, r, req), req)
	require.NoError(t, err)
	assert.Equal(t, "https://partner.example/go?aff=7&code=abc", location)
}

func TestBuildRedirectURL_StripPrefix(t *testing.T) {
	r := models.RouteRule{
		ID: "strip", Enabled: true,
		Match: &models.MatchCriteria{Path: models.PathPatterns{"/s/*"}},
		Action: &models.Action{
			Type:   models.ActionRedirect,
			Target: "https://x.example/base",
			Slug:   &models.SlugConfig{StripPrefix: "/s/"},
		},
	}
	req := &Request{Path: "/s/foo/bar"}

	location, err := BuildRedirectURL(r.Action, matchOne(t, r, req), req)
	require.NoError(t, err)
	assert.Equal(t, "https://x.example/base/foo/bar", location)
}

func TestBuildRedirectURL_SlugMissing(t *testing.T) {
	r := models.RouteRule{
		ID: "exact", Enabled: true,
		Match: &models.MatchCriteria{Path: models.PathPatterns{"/landing"}},
		Action: &models.Action{
			Type:   models.ActionRedirect,
			Target: "https://x.example/base",
			Slug:   &models.SlugConfig{},
		},
	}
	req := &Request{Path: "/landing"}
	m := matchOne(t, r, req)

	_, err := BuildRedirectURL(r.Action, m, req)
	assert.ErrorIs(t, err, ErrSlugMissing)

	r.Action.Slug.Optional = true
	location, err := BuildRedirectURL(r.Action, m, req)
	require.NoError(t, err)
	assert.Equal(t, "https://x.example/base", location)
}

func TestBuildRedirectURL_MissingPathGroup(t *testing.T) {
	r := models.RouteRule{
		ID: "exact", Enabled: true,
		Match: &models.MatchCriteria{Path: models.PathPatterns{"/landing"}},
		Action: &models.Action{
			Type:   models.ActionRedirect,
			Target: "https://x.example/",
			Query:  map[string]models.QueryValue{"bonus": models.FromGroup(1)},
		},
	}
	req := &Request{Path: "/landing"}

	_, err := BuildRedirectURL(r.Action, matchOne(t, r, req), req)
	assert.True(t, errors.Is(err, ErrSlugMissing))
}

func TestBuildRedirectURL_QueryComposition(t *testing.T) {
	action := &models.Action{
		Type:                  models.ActionRedirect,
		Target:                "https://t.example/p?src=edge",
		PreserveOriginalQuery: true,
		ExtraQuery:            map[string]string{"src": "extra"},
		Query:                 map[string]models.QueryValue{"lang": models.LiteralValue("ru")},
		AppendCountry:         true,
		AppendDevice:          true,
	}
	req := &Request{
		Path:    "/p",
		Query:   url.Values{"utm": {"a"}, "src": {"orig"}},
		Country: "RU",
		Device:  models.DeviceMobile,
	}

	location, err := BuildRedirectURL(action, &Match{}, req)
	require.NoError(t, err)
	assert.Equal(t, "https://t.example/p?country=RU&device=mobile&lang=ru&src=extra&utm=a", location)
}

func TestBuildRedirectURL_UnknownCountryIsNotAppended(t *testing.T) {
	action := &models.Action{Type: models.ActionRedirect, Target: "https://t.example/", AppendCountry: true}
	location, err := BuildRedirectURL(action, &Match{}, &Request{Path: "/"})
	require.NoError(t, err)
	assert.Equal(t, "https://t.example/", location)
}

func TestBuildRedirectURL_ProjectionsFromJSON(t *testing.T) {
	var action models.Action
	require.NoError(t, json.Unmarshal([]byte(`{
		"type": "redirect",
		"target": "https://t.example/go",
		"query": {
			"a": 5,
			"b": true,
			"c": "x",
			"d": {"literal": "y"},
			"e": {"fromPathGroup": 1}
		}
	}`), &action))

	r := models.RouteRule{
		ID: "json", Enabled: true,
		Match:  &models.MatchCriteria{Path: models.PathPatterns{`^/p/(\w+)$`}},
		Action: &action,
	}
	req := &Request{Path: "/p/val"}

	location, err := BuildRedirectURL(&action, matchOne(t, r, req), req)
	require.NoError(t, err)
	assert.Equal(t, "https://t.example/go?a=5&b=true&c=x&d=y&e=val", location)
}

func TestBuildRedirectURL_InvalidTarget(t *testing.T) {
	action := &models.Action{Type: models.ActionRedirect, Target: "/relative"}
	_, err := BuildRedirectURL(action, &Match{}, &Request{})
	assert.ErrorIs(t, err, ErrInvalidTarget)

	_, err = BuildRedirectURL(&models.Action{Type: models.ActionResponse}, &Match{}, &Request{})
	assert.ErrorIs(t, err, ErrUnsupportedAction)
}

func TestWriteAction_Redirect(t *testing.T) {
	r := models.RouteRule{
		ID: "r", Enabled: true,
		Match:  &models.MatchCriteria{},
		Action: &models.Action{Type: models.ActionRedirect, Status: 301, Target: "https://t.example/"},
	}
	req := &Request{Path: "/"}
	rec := httptest.NewRecorder()

	require.NoError(t, WriteAction(rec, matchOne(t, r, req), req))
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "https://t.example/", rec.Header().Get("Location"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestWriteAction_ErrorWritesNothing(t *testing.T) {
	r := models.RouteRule{
		ID: "r", Enabled: true,
		Match: &models.MatchCriteria{Path: models.PathPatterns{"/landing"}},
		Action: &models.Action{
			Type:   models.ActionRedirect,
			Target: "https://t.example/",
			Slug:   &models.SlugConfig{},
		},
	}
	req := &Request{Path: "/landing"}
	rec := httptest.NewRecorder()

	err := WriteAction(rec, matchOne(t, r, req), req)
	assert.ErrorIs(t, err, ErrSlugMissing)
	assert.False(t, rec.Flushed)
	assert.Empty(t, rec.Header())
	assert.Zero(t, rec.Body.Len())
}

func TestWriteResponse(t *testing.T) {
	t.Run("html with status and headers", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteResponse(rec, &models.Action{
			Type:     models.ActionResponse,
			Status:   503,
			BodyHTML: "<p>down</p>",
			Headers:  map[string]string{"Retry-After": "600"},
		})

		assert.Equal(t, 503, rec.Code)
		assert.Equal(t, "<p>down</p>", rec.Body.String())
		assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Equal(t, "600", rec.Header().Get("Retry-After"))
		assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
		assert.Equal(t, "11", rec.Header().Get("Content-Length"))
	})

	t.Run("text defaults", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteResponse(rec, &models.Action{Type: models.ActionResponse, BodyText: "ok"})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", rec.Body.String())
		assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	})

	t.Run("configured headers win", func(t *testing.T) {
		rec := httptest.NewRecorder()
		WriteResponse(rec, &models.Action{
			Type:     models.ActionResponse,
			BodyText: "{}",
			Headers:  map[string]string{"Content-Type": "application/json", "Cache-Control": "max-age=60"},
		})

		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.Equal(t, "max-age=60", rec.Header().Get("Cache-Control"))
	})
}
