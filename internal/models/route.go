// Package models holds the configuration records persisted in the config store:
// the ordered routing rules, the feature flags, the metadata record and the
// audit entries, together with their JSON encoding.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// DeviceClass is the coarse device category produced by the classifier
type DeviceClass string

const (
	DeviceMobile  DeviceClass = "mobile"
	DeviceDesktop DeviceClass = "desktop"
	DeviceTablet  DeviceClass = "tablet"
	DeviceAny     DeviceClass = "any"
)

// ActionType discriminates the Action union
type ActionType string

const (
	ActionRedirect ActionType = "redirect"
	ActionResponse ActionType = "response"
)

// Slug placement modes
const (
	SlugModePath  = "path"
	SlugModeParam = "param"
)

// RouteRule is a single match-criteria-plus-action entry. Position in the
// containing slice is significant: the first satisfied rule wins.
type RouteRule struct {
	ID      string         `json:"id" validate:"required"`
	Enabled bool           `json:"enabled"`
	Match   *MatchCriteria `json:"match" validate:"required"`
	Action  *Action        `json:"action" validate:"required"`
}

// UnmarshalJSON treats a missing "enabled" as true
func (r *RouteRule) UnmarshalJSON(data []byte) error {
	type plain RouteRule
	decoded := plain{Enabled: true}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	*r = RouteRule(decoded)
	return nil
}

// MatchCriteria lists the optional conditions of a rule. An absent criterion matches anything.
type MatchCriteria struct {
	Path      PathPatterns        `json:"path,omitempty"`
	Countries []string            `json:"countries,omitempty" validate:"omitempty,dive,country_code"`
	Devices   []DeviceClass       `json:"devices,omitempty" validate:"omitempty,dive,oneof=mobile desktop tablet any"`
	Bots      *bool               `json:"bots,omitempty"`
	Query     map[string][]string `json:"query,omitempty"`
	Headers   map[string][]string `json:"headers,omitempty"`
	Referrer  []string            `json:"referrer,omitempty"`
}

// PathPatterns accepts either a single pattern string or an array of patterns
type PathPatterns []string

// UnmarshalJSON implements json.Unmarshaler
func (p *PathPatterns) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var single string
		if err := json.Unmarshal(data, &single); err != nil {
			return err
		}
		*p = PathPatterns{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("path must be a string or an array of strings: %w", err)
	}
	*p = many
	return nil
}

// MarshalJSON writes a lone pattern back as a plain string
func (p PathPatterns) MarshalJSON() ([]byte, error) {
	if len(p) == 1 {
		return json.Marshal(p[0])
	}
	return json.Marshal([]string(p))
}

// Action is either a redirect or a synthetic response, selected by Type
type Action struct {
	Type   ActionType `json:"type" validate:"required,oneof=redirect response"`
	Status int        `json:"status,omitempty"`

	// Redirect
	Target                string                `json:"target,omitempty" validate:"required_if=Type redirect"`
	Query                 map[string]QueryValue `json:"query,omitempty"`
	PreserveOriginalQuery bool                  `json:"preserveOriginalQuery,omitempty"`
	ExtraQuery            map[string]string     `json:"extraQuery,omitempty"`
	AppendCountry         bool                  `json:"appendCountry,omitempty"`
	AppendDevice          bool                  `json:"appendDevice,omitempty"`
	Slug                  *SlugConfig           `json:"slug,omitempty"`

	// Response
	Headers  map[string]string `json:"headers,omitempty"`
	BodyHTML string            `json:"bodyHtml,omitempty"`
	BodyText string            `json:"bodyText,omitempty"`
}

// RedirectStatus returns the configured status or 302
func (a *Action) RedirectStatus() int {
	if a.Status == 0 {
		return 302
	}
	return a.Status
}

// ResponseStatus returns the configured status or 200
func (a *Action) ResponseStatus() int {
	if a.Status == 0 {
		return 200
	}
	return a.Status
}

// SlugConfig describes how a path-derived slug is carried into the redirect target.
// A configured slug is required unless Optional is set.
type SlugConfig struct {
	Mode        string `json:"mode,omitempty" validate:"omitempty,oneof=path param"`
	Param       string `json:"param,omitempty"`
	StripPrefix string `json:"stripPrefix,omitempty"`
	Optional    bool   `json:"optional,omitempty"`
}

// ParamName returns the query parameter used in param mode
func (s *SlugConfig) ParamName() string {
	if s.Param == "" {
		return "slug"
	}
	return s.Param
}

// QueryValue is one query projection: {"fromPathGroup": n}, {"literal": v},
// or any other JSON value which is used stringified.
type QueryValue struct {
	FromPathGroup *int
	Literal       *string
	Raw           json.RawMessage
}

// FromGroup returns a projection of capture group n
func FromGroup(n int) QueryValue { return QueryValue{FromPathGroup: &n} }

// LiteralValue returns a fixed-value projection
func LiteralValue(v string) QueryValue { return QueryValue{Literal: &v} }

// UnmarshalJSON implements json.Unmarshaler
func (q *QueryValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*q = QueryValue{}
	if len(data) > 0 && data[0] == '{' {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		if raw, ok := obj["fromPathGroup"]; ok && len(obj) == 1 {
			var n int
			if err := json.Unmarshal(raw, &n); err != nil {
				return fmt.Errorf("fromPathGroup must be an integer: %w", err)
			}
			q.FromPathGroup = &n
			return nil
		}
		if raw, ok := obj["literal"]; ok && len(obj) == 1 {
			s := stringify(raw)
			q.Literal = &s
			return nil
		}
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, data); err != nil {
		return err
	}
	q.Raw = compact.Bytes()
	return nil
}

// MarshalJSON implements json.Marshaler
func (q QueryValue) MarshalJSON() ([]byte, error) {
	switch {
	case q.FromPathGroup != nil:
		return json.Marshal(map[string]int{"fromPathGroup": *q.FromPathGroup})
	case q.Literal != nil:
		return json.Marshal(map[string]string{"literal": *q.Literal})
	case len(q.Raw) > 0:
		return q.Raw, nil
	default:
		return []byte("null"), nil
	}
}

// RawString returns the stringified form of a raw (non-projection) value
func (q QueryValue) RawString() string {
	return stringify(q.Raw)
}

// stringify renders a JSON value as a query-parameter value: strings unquoted,
// scalars verbatim, null empty, objects and arrays as compact JSON.
func stringify(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return string(raw)
	}
	if f, err := strconv.ParseFloat(compact.String(), 64); err == nil && bytes.IndexAny(compact.Bytes(), "eE") >= 0 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return compact.String()
}
