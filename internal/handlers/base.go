// Package handlers serves the runtime traffic path and the admin JSON API.
package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"traffic-router/internal/admin"
	"traffic-router/internal/classify"
	"traffic-router/internal/common/errors"
	"traffic-router/internal/common/logging"
	"traffic-router/internal/config"
	"traffic-router/internal/configcache"
)

// maxBodyBytes bounds admin request payloads
const maxBodyBytes = 1 << 20

type Handlers struct {
	cache      *configcache.Cache
	classifier *classify.Classifier
	admin      *admin.Service
	origin     http.Handler
	config     *config.Config
	logger     logging.Logger
}

func New(cfg *config.Config, cache *configcache.Cache, classifier *classify.Classifier, adminService *admin.Service, origin http.Handler, logger logging.Logger) *Handlers {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Handlers{
		cache:      cache,
		classifier: classifier,
		admin:      adminService,
		origin:     origin,
		config:     cfg,
		logger:     logger.WithFields(logging.Field{Key: "component", Value: "handlers"}),
	}
}

func (h *Handlers) sendJSONResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", err)
	}
}

// sendJSONError writes the error envelope with the status mapped from err
func (h *Handlers) sendJSONError(w http.ResponseWriter, r *http.Request, err error, logMsg string) {
	status := errors.HTTPStatus(err)
	log := h.logger.WithContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error(logMsg, err, logging.Field{Key: "path", Value: r.URL.Path})
	} else {
		log.Warn(logMsg, logging.Field{Key: "path", Value: r.URL.Path}, logging.Field{Key: "error", Value: err.Error()})
	}
	h.sendJSONResponse(w, status, errors.NewErrorResponse(err))
}

// decodeJSON reads a bounded JSON body into v
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return errors.ValidationError("request body too large or unreadable")
	}
	if len(body) == 0 {
		return errors.ValidationError("request body is required")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errors.ValidationError("invalid JSON: " + err.Error())
	}
	return nil
}
