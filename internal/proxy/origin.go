// Package proxy forwards requests the router does not act on to the origin
package proxy

import (
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"traffic-router/internal/circuitbreaker"
	"traffic-router/internal/common/logging"
)

// errOriginStatus marks a 5xx answer so the breaker counts it as a failure
var errOriginStatus = stderrors.New("origin returned a server error")

// Config configures the origin forwarder
type Config struct {
	Target  *url.URL
	Timeout time.Duration // response header timeout
	Breaker *circuitbreaker.GoBreakerAdapter
	Logger  logging.Logger
}

// Origin is an http.Handler that forwards requests verbatim to the origin
type Origin struct {
	proxy   *httputil.ReverseProxy
	breaker *circuitbreaker.GoBreakerAdapter
	logger  logging.Logger
}

// New creates the origin forwarder. Breaker may be nil.
func New(cfg Config) *Origin {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	logger = logger.WithFields(logging.Field{Key: "component", Value: "origin"})

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	base := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          200,
		MaxIdleConnsPerHost:   100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: timeout,
		ForceAttemptHTTP2:     true,
	}

	o := &Origin{breaker: cfg.Breaker, logger: logger}
	target := cfg.Target
	o.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		Transport:    &breakerTransport{base: base, breaker: cfg.Breaker},
		ErrorHandler: o.handleError,
	}
	return o
}

func (o *Origin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	o.proxy.ServeHTTP(w, r)
}

// BreakerStats reports the origin breaker counters; ok is false without a breaker
func (o *Origin) BreakerStats() (stats circuitbreaker.Stats, ok bool) {
	if o.breaker == nil {
		return circuitbreaker.Stats{}, false
	}
	return o.breaker.Stats(), true
}

func (o *Origin) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadGateway
	if stderrors.Is(err, circuitbreaker.ErrOpen) {
		status = http.StatusServiceUnavailable
	}
	o.logger.WithContext(r.Context()).Error("Origin request failed", err,
		logging.Field{Key: "method", Value: r.Method},
		logging.Field{Key: "path", Value: r.URL.Path},
		logging.Field{Key: "status", Value: status},
	)
	w.Header().Set("Cache-Control", "no-store")
	http.Error(w, http.StatusText(status), status)
}

// breakerTransport counts transport errors and 5xx answers against the breaker
type breakerTransport struct {
	base    http.RoundTripper
	breaker *circuitbreaker.GoBreakerAdapter
}

func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.breaker == nil {
		return t.base.RoundTrip(req)
	}

	var resp *http.Response
	err := t.breaker.Execute(func() error {
		var err error
		resp, err = t.base.RoundTrip(req)
		if err != nil {
			return err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%w: %d", errOriginStatus, resp.StatusCode)
		}
		return nil
	})
	if stderrors.Is(err, errOriginStatus) {
		return resp, nil
	}
	return resp, err
}
