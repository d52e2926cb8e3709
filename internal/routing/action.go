package routing

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"traffic-router/internal/models"
)

// BuildRedirectURL constructs the Location for a redirect action. The output is
// deterministic: query parameters are encoded sorted by key.
//
// Order: target (keeping its own query) -> slug -> original query when
// preserveOriginalQuery -> extraQuery -> per-key projections -> country/device.
func BuildRedirectURL(action *models.Action, m *Match, req *Request) (string, error) {
	if action == nil || action.Type != models.ActionRedirect {
		return "", ErrUnsupportedAction
	}
	if req == nil {
		req = &Request{}
	}

	target, err := url.Parse(action.Target)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidTarget, action.Target)
	}
	query := target.Query()

	if action.Slug != nil {
		segments := slugSegments(action.Slug, m, req.Path)
		if len(segments) == 0 {
			if !action.Slug.Optional {
				return "", ErrSlugMissing
			}
		} else if action.Slug.Mode == models.SlugModeParam {
			query.Set(action.Slug.ParamName(), strings.Join(segments, "/"))
		} else {
			appendPathSegments(target, segments)
		}
	}

	if action.PreserveOriginalQuery {
		for key, values := range req.Query {
			query[key] = append([]string(nil), values...)
		}
	}

	for key, value := range action.ExtraQuery {
		query.Set(key, value)
	}

	keys := make([]string, 0, len(action.Query))
	for key := range action.Query {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		value, err := projectQueryValue(action.Query[key], m)
		if err != nil {
			return "", err
		}
		query.Set(key, value)
	}

	if action.AppendCountry && req.Country != "" {
		query.Set("country", req.Country)
	}
	if action.AppendDevice && req.Device != "" {
		query.Set("device", string(req.Device))
	}

	target.RawQuery = query.Encode()
	return target.String(), nil
}

func projectQueryValue(value models.QueryValue, m *Match) (string, error) {
	switch {
	case value.FromPathGroup != nil:
		captured := m.Group(*value.FromPathGroup)
		if captured == "" {
			return "", fmt.Errorf("%w: group %d", ErrSlugMissing, *value.FromPathGroup)
		}
		return captured, nil
	case value.Literal != nil:
		return *value.Literal, nil
	default:
		return value.RawString(), nil
	}
}

// slugSegments derives the slug and returns its non-empty path segments.
// With stripPrefix the slug is the rest of the request path; otherwise it is the captured group.
// The request path is already percent-decoded, so segments are taken as they are.
func slugSegments(cfg *models.SlugConfig, m *Match, path string) []string {
	var raw string
	if cfg.StripPrefix != "" {
		if !strings.HasPrefix(path, cfg.StripPrefix) {
			return nil
		}
		raw = strings.TrimPrefix(path, cfg.StripPrefix)
	} else if m != nil {
		raw = m.Slug
	}

	var segments []string
	for _, segment := range strings.Split(raw, "/") {
		if segment = strings.TrimSpace(segment); segment != "" {
			segments = append(segments, segment)
		}
	}
	return segments
}

// appendPathSegments joins segments onto the target path, escaping each one
func appendPathSegments(target *url.URL, segments []string) {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	rawPath := strings.TrimRight(target.EscapedPath(), "/") + "/" + strings.Join(escaped, "/")
	if decoded, err := url.PathUnescape(rawPath); err == nil {
		target.Path = decoded
		target.RawPath = rawPath
	}
}

// WriteRedirect issues the redirect. Classification is per request, so the response is never cacheable.
func WriteRedirect(w http.ResponseWriter, action *models.Action, location string) {
	w.Header().Set("Location", location)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(action.RedirectStatus())
}

// WriteResponse renders a synthetic response action
func WriteResponse(w http.ResponseWriter, action *models.Action) {
	header := w.Header()
	for name, value := range action.Headers {
		header.Set(name, value)
	}

	body := action.BodyText
	contentType := "text/plain; charset=utf-8"
	if action.BodyHTML != "" {
		body = action.BodyHTML
		contentType = "text/html; charset=utf-8"
	}
	if header.Get("Content-Type") == "" {
		header.Set("Content-Type", contentType)
	}
	if header.Get("Cache-Control") == "" {
		header.Set("Cache-Control", "no-store")
	}
	header.Set("Content-Length", strconv.Itoa(len(body)))

	w.WriteHeader(action.ResponseStatus())
	_, _ = w.Write([]byte(body))
}

// WriteAction executes the matched rule's action. Nothing is written when an
// error is returned, so the caller can still forward the request to the origin.
func WriteAction(w http.ResponseWriter, m *Match, req *Request) error {
	action := m.Rule.Action
	if action == nil {
		return ErrUnsupportedAction
	}
	switch action.Type {
	case models.ActionRedirect:
		location, err := BuildRedirectURL(action, m, req)
		if err != nil {
			return err
		}
		WriteRedirect(w, action, location)
		return nil
	case models.ActionResponse:
		WriteResponse(w, action)
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedAction, action.Type)
	}
}
