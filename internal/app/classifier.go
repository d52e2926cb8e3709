package app

import (
	"traffic-router/internal/classify"
	"traffic-router/internal/common/logging"
)

func (app *App) initializeClassifier() error {
	cfg := classify.Config{
		CountryHeader:   app.Config.CountryHeader,
		ASNHeader:       app.Config.ASNHeader,
		BotSignalHeader: app.Config.BotSignalHeader,
		ClientIPHeader:  app.Config.ClientIPHeader,
	}

	if app.Config.GeoIPCountryDB == "" && app.Config.GeoIPASNDB == "" {
		app.Logger.Info("GeoIP: Not configured, relying on platform headers")
		app.Classifier = classify.New(cfg, nil)
		return nil
	}

	geo, err := classify.NewGeoService(classify.GeoConfig{
		CountryDB:      app.Config.GeoIPCountryDB,
		ASNDB:          app.Config.GeoIPASNDB,
		ReloadSchedule: app.Config.GeoIPReloadSchedule,
		Logger:         app.Logger,
	})
	if err != nil {
		return err
	}
	geo.Start()
	app.Geo = geo
	app.Logger.Info("GeoIP: Enabled",
		logging.Field{Key: "country_db", Value: app.Config.GeoIPCountryDB},
		logging.Field{Key: "asn_db", Value: app.Config.GeoIPASNDB},
		logging.Field{Key: "reload_schedule", Value: app.Config.GeoIPReloadSchedule},
	)

	app.Classifier = classify.New(cfg, geo)
	return nil
}
