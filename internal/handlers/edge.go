package handlers

import (
	stderrors "errors"
	"net/http"

	"traffic-router/internal/common/logging"
	"traffic-router/internal/routing"
)

// ServeEdge handles runtime traffic: GET requests are classified, matched and
// answered by the first matching rule; everything else reaches the origin.
func (h *Handlers) ServeEdge(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.origin.ServeHTTP(w, r)
		return
	}

	bundle, err := h.cache.Get(r.Context(), false)
	if err != nil {
		h.logger.WithContext(r.Context()).Warn("No configuration, forwarding to origin",
			logging.Field{Key: "path", Value: r.URL.Path},
			logging.Field{Key: "error", Value: err.Error()},
		)
		h.origin.ServeHTTP(w, r)
		return
	}

	c := h.classifier.Classify(r, bundle.Flags)
	req := &routing.Request{
		Path:    r.URL.Path,
		Query:   r.URL.Query(),
		Headers: r.Header,
		Country: c.Country,
		Device:  c.Device,
		IsBot:   c.IsBot,
	}

	m, ok := bundle.Rules.Match(req)
	if !ok {
		h.origin.ServeHTTP(w, r)
		return
	}

	if err := routing.WriteAction(w, m, req); err != nil {
		log := h.logger.WithContext(r.Context())
		fields := []logging.Field{
			{Key: "rule_id", Value: m.Rule.ID},
			{Key: "path", Value: r.URL.Path},
		}
		if stderrors.Is(err, routing.ErrSlugMissing) {
			log.Debug("Rule matched without a slug, forwarding to origin", fields...)
		} else {
			log.Error("Rule action failed, forwarding to origin", err, fields...)
		}
		h.origin.ServeHTTP(w, r)
		return
	}

	h.logger.WithContext(r.Context()).Debug("Rule applied",
		logging.Field{Key: "rule_id", Value: m.Rule.ID},
		logging.Field{Key: "country", Value: c.Country},
		logging.Field{Key: "device", Value: string(c.Device)},
		logging.Field{Key: "bot", Value: c.IsBot},
	)
}
