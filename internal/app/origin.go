package app

import (
	"fmt"
	"net/url"
	"strconv"

	"traffic-router/internal/circuitbreaker"
	"traffic-router/internal/common/logging"
	"traffic-router/internal/proxy"
)

func (app *App) initializeOrigin() error {
	target, err := url.Parse(app.Config.OriginURL)
	if err != nil {
		return fmt.Errorf("invalid ORIGIN_URL: %w", err)
	}

	var breaker *circuitbreaker.GoBreakerAdapter
	if app.Config.OriginBreakerEnabled {
		cbConfig := circuitbreaker.DefaultConfig()
		if n, err := strconv.Atoi(app.Config.OriginBreakerMaxFailures); err == nil && n > 0 {
			cbConfig.MaxFailures = n
		}
		breaker = circuitbreaker.NewGoBreaker("origin", cbConfig, app.Logger)
	}

	app.Origin = proxy.New(proxy.Config{
		Target:  target,
		Timeout: app.Config.OriginTimeoutDuration(),
		Breaker: breaker,
		Logger:  app.Logger,
	})
	app.Logger.Info("Origin configured",
		logging.Field{Key: "url", Value: target.Redacted()},
		logging.Field{Key: "breaker", Value: breaker != nil},
	)
	return nil
}
