package routing

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"traffic-router/internal/common/logging"
	"traffic-router/internal/models"
)

// regexMeta are the characters that turn a /.../ wrapped pattern into a regex.
// A plain path such as "/promo/" stays an exact match.
const regexMeta = `\^$()[]{}|+?`

// Compile pre-processes rules in order. Rules with an invalid pattern are kept
// in place, disabled, reported in Invalid and logged. logger may be nil.
func Compile(rules []models.RouteRule, logger logging.Logger) *RuleSet {
	set := &RuleSet{Rules: make([]*CompiledRule, 0, len(rules))}

	for i := range rules {
		compiled := CompileRule(&rules[i])
		set.Rules = append(set.Rules, compiled)

		if compiled.Err != nil {
			invalid := InvalidRule{ID: rules[i].ID, Index: i, Error: compiled.Err.Error()}
			if pe, ok := compiled.Err.(*PatternError); ok {
				invalid.Pattern = pe.Pattern
			}
			set.Invalid = append(set.Invalid, invalid)
			if logger != nil {
				logger.Warn("Rule disabled: invalid path pattern",
					logging.Field{Key: "rule_id", Value: invalid.ID},
					logging.Field{Key: "index", Value: i},
					logging.Field{Key: "pattern", Value: invalid.Pattern},
					logging.Field{Key: "error", Value: invalid.Error},
				)
			}
		}
	}

	return set
}

// PatternError reports the pattern that failed to compile
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("%v %q: %v", ErrInvalidPattern, e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() error { return ErrInvalidPattern }

// CompileRule pre-processes a single rule. Compilation problems are stored in Err.
func CompileRule(rule *models.RouteRule) *CompiledRule {
	compiled := &CompiledRule{Rule: rule}
	match := rule.Match
	if match == nil {
		return compiled
	}

	for _, source := range match.Path {
		pattern, err := CompilePattern(source)
		if err != nil {
			compiled.Err = &PatternError{Pattern: source, Err: err}
			return compiled
		}
		compiled.Patterns = append(compiled.Patterns, pattern)
	}

	if len(match.Countries) > 0 {
		compiled.Countries = make(map[string]struct{}, len(match.Countries))
		for _, c := range match.Countries {
			compiled.Countries[strings.ToUpper(strings.TrimSpace(c))] = struct{}{}
		}
	}

	if len(match.Devices) > 0 {
		compiled.Devices = make(map[models.DeviceClass]struct{}, len(match.Devices))
		for _, d := range match.Devices {
			d = models.DeviceClass(strings.ToLower(string(d)))
			if d == models.DeviceAny {
				compiled.AnyDevice = true
			}
			compiled.Devices[d] = struct{}{}
		}
	}

	if len(match.Headers) > 0 {
		compiled.Headers = make(map[string][]string, len(match.Headers))
		for name, values := range match.Headers {
			compiled.Headers[http.CanonicalHeaderKey(name)] = values
		}
	}

	for _, r := range match.Referrer {
		compiled.Referrers = append(compiled.Referrers, strings.ToLower(r))
	}

	return compiled
}

// CompilePattern classifies and compiles a path pattern.
// "^..." is a regex, "/.../" or "/.../i" wrapping regex syntax is a regex literal,
// a trailing "*" makes a prefix match, anything else is exact.
func CompilePattern(source string) (CompiledPattern, error) {
	pattern := CompiledPattern{Source: source}

	if expr, ok := regexSource(source); ok {
		re, err := regexp.Compile(expr)
		if err != nil {
			return pattern, err
		}
		pattern.Kind = PatternRegex
		pattern.Regex = re
		return pattern, nil
	}

	if strings.HasSuffix(source, "*") {
		pattern.Kind = PatternPrefix
		pattern.Value = strings.TrimSuffix(source, "*")
		return pattern, nil
	}

	pattern.Kind = PatternExact
	pattern.Value = source
	return pattern, nil
}

func regexSource(source string) (string, bool) {
	if strings.HasPrefix(source, "^") {
		return source, true
	}
	if len(source) < 3 || source[0] != '/' {
		return "", false
	}

	body, flags := source[1:], ""
	switch {
	case strings.HasSuffix(body, "/i"):
		body, flags = body[:len(body)-2], "(?i)"
	case strings.HasSuffix(body, "/"):
		body = body[:len(body)-1]
	default:
		return "", false
	}
	if body == "" || !strings.ContainsAny(body, regexMeta) {
		return "", false
	}
	return flags + body, true
}

// matchPath tests the decoded path against one pattern, returning capture groups for regexes
func (p *CompiledPattern) matchPath(path string) (bool, []string) {
	switch p.Kind {
	case PatternRegex:
		groups := p.Regex.FindStringSubmatch(path)
		if groups == nil {
			return false, nil
		}
		return true, groups
	case PatternPrefix:
		return strings.HasPrefix(path, p.Value), nil
	default:
		return path == p.Value, nil
	}
}

// Match returns the first enabled rule whose present criteria all hold
func (s *RuleSet) Match(req *Request) (*Match, bool) {
	if s == nil || req == nil {
		return nil, false
	}
	for _, rule := range s.Rules {
		if m, ok := rule.Evaluate(req); ok {
			return m, true
		}
	}
	return nil, false
}

// Evaluate tests one rule. Disabled and invalid rules never match.
func (c *CompiledRule) Evaluate(req *Request) (*Match, bool) {
	if !c.Rule.Enabled || c.Err != nil {
		return nil, false
	}

	m := &Match{Rule: c.Rule}
	criteria := c.Rule.Match
	if criteria == nil {
		return m, true
	}

	if len(c.Patterns) > 0 {
		matched := false
		for i := range c.Patterns {
			if ok, groups := c.Patterns[i].matchPath(req.Path); ok {
				matched = true
				m.Groups = groups
				m.Slug = slugGroup(c.Patterns[i].Regex, groups)
				break
			}
		}
		if !matched {
			return nil, false
		}
	}

	if c.Countries != nil {
		if req.Country == "" {
			return nil, false
		}
		if _, ok := c.Countries[strings.ToUpper(req.Country)]; !ok {
			return nil, false
		}
	}

	if c.Devices != nil && !c.AnyDevice {
		if _, ok := c.Devices[req.Device]; !ok {
			return nil, false
		}
	}

	if criteria.Bots != nil && *criteria.Bots != req.IsBot {
		return nil, false
	}

	for name, allowed := range criteria.Query {
		values, present := req.Query[name]
		if !present || !anyEqual(values, allowed, false) {
			return nil, false
		}
	}

	for name, allowed := range c.Headers {
		values, present := req.Headers[name]
		if !present || !anyEqual(values, allowed, true) {
			return nil, false
		}
	}

	if len(c.Referrers) > 0 && !referrerMatches(req.Headers.Get("Referer"), c.Referrers) {
		return nil, false
	}

	return m, true
}

// anyEqual reports whether one of values is in allowed. An empty allowed list only requires presence.
func anyEqual(values, allowed []string, foldCase bool) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, v := range values {
		for _, a := range allowed {
			if v == a || (foldCase && strings.EqualFold(v, a)) {
				return true
			}
		}
	}
	return false
}

// referrerMatches tests a case-insensitive substring; an empty entry matches a missing referrer
func referrerMatches(referrer string, allowed []string) bool {
	referrer = strings.ToLower(referrer)
	for _, a := range allowed {
		if a == "" {
			if referrer == "" {
				return true
			}
			continue
		}
		if referrer != "" && strings.Contains(referrer, a) {
			return true
		}
	}
	return false
}

func slugGroup(re *regexp.Regexp, groups []string) string {
	if re == nil || len(groups) < 2 {
		return ""
	}
	if i := re.SubexpIndex("slug"); i > 0 && i < len(groups) {
		return groups[i]
	}
	return groups[1]
}

// MatchRule evaluates rules directly against a path and classification.
// Rules are compiled on every call; the request path uses RuleSet.Match instead.
func MatchRule(rules []models.RouteRule, path, country string, device models.DeviceClass, isBot bool) (*models.RouteRule, bool) {
	m, ok := Compile(rules, nil).Match(&Request{
		Path:    path,
		Country: country,
		Device:  device,
		IsBot:   isBot,
		Query:   map[string][]string{},
		Headers: http.Header{},
	})
	if !ok {
		return nil, false
	}
	return m.Rule, true
}
