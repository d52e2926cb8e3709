package models

func boolPtr(b bool) *bool { return &b }

// DefaultRoutes is the rule set written by bootstrap when the store is empty
func DefaultRoutes() []RouteRule {
	return []RouteRule{
		{
			ID:      "casino-ru-mobile",
			Enabled: true,
			Match: &MatchCriteria{
				Path:      PathPatterns{"^/casino/([^/?#]+)"},
				Countries: []string{"RU"},
				Devices:   []DeviceClass{DeviceMobile},
				Bots:      boolPtr(false),
			},
			Action: &Action{
				Type:   ActionRedirect,
				Target: "https://partner.example/go",
				Query: map[string]QueryValue{
					"bonus": FromGroup(1),
				},
			},
		},
		{
			ID:      "maintenance-notice",
			Enabled: false,
			Match: &MatchCriteria{
				Path: PathPatterns{"/maintenance"},
			},
			Action: &Action{
				Type:     ActionResponse,
				Status:   503,
				BodyHTML: "<!doctype html><title>Maintenance</title><p>Back soon.</p>",
				Headers:  map[string]string{"Retry-After": "600"},
			},
		},
	}
}

// DefaultFlags is the flag set written by bootstrap
func DefaultFlags() FlagsConfig {
	return FlagsConfig{
		CacheTTLMs:      DefaultCacheTTLMs,
		StrictBots:      false,
		YandexBots:      []string{"YandexBot", "YandexMobileBot", "YandexImages", "YandexAccessibilityBot"},
		GoogleBots:      []string{"Googlebot", "AdsBot-Google", "Mediapartners-Google", "Google-InspectionTool"},
		AllowedAdminIPs: []string{},
		UITitle:         "Traffic Router",
		UIReadonly:      false,
	}
}
