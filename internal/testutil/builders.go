package testutil

import (
	"traffic-router/internal/models"
)

// RuleBuilder helps build test route rules
type RuleBuilder struct {
	rule models.RouteRule
}

// NewRuleBuilder creates an enabled rule with empty criteria and a redirect to https://target.example/
func NewRuleBuilder(id string) *RuleBuilder {
	return &RuleBuilder{
		rule: models.RouteRule{
			ID:      id,
			Enabled: true,
			Match:   &models.MatchCriteria{},
			Action:  &models.Action{Type: models.ActionRedirect, Target: "https://target.example/"},
		},
	}
}

func (b *RuleBuilder) WithPath(patterns ...string) *RuleBuilder {
	b.rule.Match.Path = models.PathPatterns(patterns)
	return b
}

func (b *RuleBuilder) WithCountries(countries ...string) *RuleBuilder {
	b.rule.Match.Countries = countries
	return b
}

func (b *RuleBuilder) WithDevices(devices ...models.DeviceClass) *RuleBuilder {
	b.rule.Match.Devices = devices
	return b
}

func (b *RuleBuilder) WithBots(bots bool) *RuleBuilder {
	b.rule.Match.Bots = &bots
	return b
}

func (b *RuleBuilder) Disabled() *RuleBuilder {
	b.rule.Enabled = false
	return b
}

// RedirectTo replaces the action with a redirect to target
func (b *RuleBuilder) RedirectTo(target string) *RuleBuilder {
	b.rule.Action = &models.Action{Type: models.ActionRedirect, Target: target}
	return b
}

func (b *RuleBuilder) WithStatus(status int) *RuleBuilder {
	b.rule.Action.Status = status
	return b
}

func (b *RuleBuilder) WithQueryFromGroup(key string, group int) *RuleBuilder {
	if b.rule.Action.Query == nil {
		b.rule.Action.Query = make(map[string]models.QueryValue)
	}
	b.rule.Action.Query[key] = models.FromGroup(group)
	return b
}

func (b *RuleBuilder) WithSlug(slug models.SlugConfig) *RuleBuilder {
	b.rule.Action.Slug = &slug
	return b
}

// Respond replaces the action with a synthetic HTML response
func (b *RuleBuilder) Respond(status int, html string) *RuleBuilder {
	b.rule.Action = &models.Action{Type: models.ActionResponse, Status: status, BodyHTML: html}
	return b
}

func (b *RuleBuilder) Build() models.RouteRule {
	return b.rule
}
