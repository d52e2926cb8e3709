// Package routing decides what happens to an inbound GET request.
//
// # Overview
//
// Routing rules come from the config cache as an ordered slice. Compile turns
// that slice into a RuleSet once per bundle load: path patterns are classified
// and regular expressions compiled up front, so request evaluation never
// compiles anything. A rule whose pattern fails to compile is reported in
// RuleSet.Invalid and never matches; the other rules are unaffected.
//
// # Path patterns
//
//   - "^/casino/([^/?#]+)" or "/casino/(\d+)/i" - regular expression, tested against the decoded path
//   - "/promo/*"                                 - prefix match (pattern minus the trailing "*")
//   - "/landing"                                 - exact match
//
// # Evaluation
//
// RuleSet.Match walks the rules in order and returns the first enabled rule
// whose present criteria all hold. Criteria are checked in a fixed order (path,
// countries, devices, bots, query, headers, referrer) and the first failure
// short-circuits the rule. The returned Match carries the regex capture groups
// for the action executor.
//
// # Actions
//
// BuildRedirectURL derives the outgoing Location from a redirect action, the
// match and the request. It returns ErrSlugMissing when the action needs a
// path-derived value that was not captured; callers treat that exactly like
// "no match" and forward to the origin. WriteAction renders either action kind.
//
// Example:
//
//	rules := routing.Compile(bundle.Routes, logger)
//	match, ok := rules.Match(&routing.Request{
//		Path:    "/casino/spins100",
//		Country: "RU",
//		Device:  models.DeviceMobile,
//	})
//	if ok {
//		location, err := routing.BuildRedirectURL(match.Rule.Action, match, req)
//		...
//	}
package routing
