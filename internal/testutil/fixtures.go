package testutil

import (
	"context"
	"encoding/json"
	"time"

	"traffic-router/internal/models"
	"traffic-router/internal/store"
)

// Fixed instant used by tests that need a stable clock
var Epoch = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

// CasinoRule is the reference redirect: RU mobile humans on /casino/<slug>
// go to https://partner.example/go?bonus=<slug>
func CasinoRule() models.RouteRule {
	return NewRuleBuilder("casino-ru-mobile").
		WithPath("^/casino/([^/?#]+)").
		WithCountries("RU").
		WithDevices(models.DeviceMobile).
		WithBots(false).
		RedirectTo("https://partner.example/go").
		WithQueryFromGroup("bonus", 1).
		Build()
}

// TestFlags returns flags with the default TTL and bot lists
func TestFlags() models.FlagsConfig {
	return models.DefaultFlags()
}

// SeedConfig writes routes, flags and a metadata record at version
func SeedConfig(ctx context.Context, s store.Store, routes []models.RouteRule, flags models.FlagsConfig, version int64) error {
	routesJSON, err := json.Marshal(routes)
	if err != nil {
		return err
	}
	flagsJSON, err := json.Marshal(flags)
	if err != nil {
		return err
	}
	metaJSON, err := json.Marshal(models.Metadata{Version: version, UpdatedAt: Epoch, UpdatedBy: "seed"})
	if err != nil {
		return err
	}

	if err := s.Put(ctx, store.KeyRoutes, routesJSON); err != nil {
		return err
	}
	if err := s.Put(ctx, store.KeyFlags, flagsJSON); err != nil {
		return err
	}
	return s.Put(ctx, store.KeyMetadata, metaJSON)
}
