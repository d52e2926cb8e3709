package admin

import (
	"fmt"
	"net/url"

	"traffic-router/internal/common/validation"
	"traffic-router/internal/models"
	"traffic-router/internal/routing"
)

// RouteIssue is one problem found in a submitted rule list
type RouteIssue struct {
	Index   int    `json:"index"`
	ID      string `json:"id,omitempty"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationReport is the result of checking a rule list without writing it
type ValidationReport struct {
	Valid  bool         `json:"valid"`
	Issues []RouteIssue `json:"issues"`
}

// CheckRoutes validates the structure of every rule, the uniqueness of ids,
// that every path pattern compiles and that every action can be executed.
func CheckRoutes(v *validation.CentralizedValidator, routes []models.RouteRule) ValidationReport {
	issues := []RouteIssue{}
	seen := make(map[string]int, len(routes))

	for i := range routes {
		rule := &routes[i]
		add := func(field, format string, args ...interface{}) {
			issues = append(issues, RouteIssue{Index: i, ID: rule.ID, Field: field, Message: fmt.Sprintf(format, args...)})
		}

		for _, fe := range v.Fields(rule) {
			add(fe.Field, "%s", fe.Message)
		}

		if rule.ID != "" {
			if first, dup := seen[rule.ID]; dup {
				add("id", "duplicate id %q (also at index %d)", rule.ID, first)
			} else {
				seen[rule.ID] = i
			}
		}

		if rule.Match != nil {
			for j, pattern := range rule.Match.Path {
				if pattern == "" {
					add(fmt.Sprintf("match.path[%d]", j), "empty path pattern")
					continue
				}
				if _, err := routing.CompilePattern(pattern); err != nil {
					add(fmt.Sprintf("match.path[%d]", j), "invalid pattern %q: %v", pattern, err)
				}
			}
		}

		if rule.Action != nil {
			checkAction(v, rule.Action, add)
		}
	}

	return ValidationReport{Valid: len(issues) == 0, Issues: issues}
}

func checkAction(v *validation.CentralizedValidator, action *models.Action, add func(field, format string, args ...interface{})) {
	switch action.Type {
	case models.ActionRedirect:
		if action.Target != "" {
			target, err := url.Parse(action.Target)
			if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
				add("action.target", "target must be an absolute http(s) URL")
			}
		}
		if err := v.ValidateVar(action.Status, "redirect_status"); err != nil {
			add("action.status", "redirect status must be one of 301, 302, 303, 307, 308")
		}
		for key, value := range action.Query {
			if key == "" {
				add("action.query", "empty query parameter name")
			}
			if value.FromPathGroup != nil && *value.FromPathGroup < 0 {
				add("action.query."+key, "fromPathGroup must not be negative")
			}
		}
		if action.Slug != nil && action.Slug.Mode == models.SlugModeParam && action.Slug.ParamName() == "" {
			add("action.slug.param", "param mode needs a parameter name")
		}
	case models.ActionResponse:
		if action.Status != 0 && (action.Status < 100 || action.Status > 599) {
			add("action.status", "response status must be between 100 and 599")
		}
		if action.BodyHTML != "" && action.BodyText != "" {
			add("action", "set bodyHtml or bodyText, not both")
		}
	}
}
