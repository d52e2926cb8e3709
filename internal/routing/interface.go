package routing

import (
	"net/http"
	"net/url"
	"regexp"

	"traffic-router/internal/models"
)

// Request is the view of an inbound request the matcher evaluates
type Request struct {
	Path    string      // Percent-decoded request path
	Query   url.Values  // Parsed query string
	Headers http.Header // Request headers
	Country string      // ISO alpha-2, uppercase; empty when unknown
	Device  models.DeviceClass
	IsBot   bool
}

// Match is the outcome of a successful evaluation
type Match struct {
	Rule   *models.RouteRule
	Groups []string // Regex capture groups, index 0 is the whole match; nil for non-regex patterns
	Slug   string   // The "slug" named group, else group 1, else empty
}

// Group returns capture group n, or "" when it does not exist
func (m *Match) Group(n int) string {
	if m == nil || n < 0 || n >= len(m.Groups) {
		return ""
	}
	return m.Groups[n]
}

// PatternKind classifies a path pattern
type PatternKind int

const (
	PatternExact PatternKind = iota
	PatternPrefix
	PatternRegex
)

func (k PatternKind) String() string {
	switch k {
	case PatternExact:
		return "exact"
	case PatternPrefix:
		return "prefix"
	case PatternRegex:
		return "regex"
	default:
		return "unknown"
	}
}

// CompiledPattern is a path pattern ready for evaluation
type CompiledPattern struct {
	Source string
	Kind   PatternKind
	Value  string         // exact path or prefix
	Regex  *regexp.Regexp // for PatternRegex
}

// CompiledRule contains pre-processed rule data for evaluation
type CompiledRule struct {
	Rule      *models.RouteRule
	Patterns  []CompiledPattern
	Countries map[string]struct{}
	Devices   map[models.DeviceClass]struct{}
	AnyDevice bool
	Headers   map[string][]string // canonical header names
	Referrers []string            // lower-cased
	Err       error               // non-nil disables the rule
}

// InvalidRule describes a rule disabled at compile time
type InvalidRule struct {
	ID      string `json:"id"`
	Index   int    `json:"index"`
	Pattern string `json:"pattern"`
	Error   string `json:"error"`
}

// RuleSet is the compiled, immutable form of an ordered rule list
type RuleSet struct {
	Rules   []*CompiledRule
	Invalid []InvalidRule
}
