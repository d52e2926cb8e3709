// Package auth guards the admin API with a shared bearer token and the
// optional IP allow-list carried in the runtime flags.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"net/netip"
	"strings"

	"traffic-router/internal/common/errors"
	"traffic-router/internal/common/logging"
	"traffic-router/internal/models"
)

// FlagsSource supplies the flags holding the admin allow-list
type FlagsSource interface {
	AdminFlags(ctx context.Context) (models.FlagsConfig, error)
}

// ClientIPFunc extracts the caller's address from a request
type ClientIPFunc func(r *http.Request) netip.Addr

type contextKey string

const actorKey contextKey = "admin_actor"

// Auth checks admin credentials
type Auth struct {
	token    []byte
	flags    FlagsSource
	clientIP ClientIPFunc
	logger   logging.Logger
}

// New creates an authenticator. An empty token rejects every request.
func New(token string, flags FlagsSource, clientIP ClientIPFunc, logger logging.Logger) *Auth {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Auth{
		token:    []byte(token),
		flags:    flags,
		clientIP: clientIP,
		logger:   logger.WithFields(logging.Field{Key: "component", Value: "auth"}),
	}
}

// Authenticate returns nil when r carries the admin token and comes from an
// allowed address. The token is checked before the allow-list is read.
func (a *Auth) Authenticate(r *http.Request) error {
	if !a.validToken(requestToken(r)) {
		return errors.AuthError("missing or invalid admin token")
	}

	flags, err := a.flags.AdminFlags(r.Context())
	if err != nil {
		return err
	}
	if len(flags.AllowedAdminIPs) == 0 {
		return nil
	}
	ip := a.clientIP(r)
	if !Allowed(ip, flags.AllowedAdminIPs) {
		return errors.ForbiddenError("caller address is not allowed").WithContext("ip", ip.String())
	}
	return nil
}

// RequireAuth rejects unauthenticated requests with the JSON error envelope and
// stores the caller's actor name in the request context otherwise.
func (a *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := a.Authenticate(r); err != nil {
			a.logger.Warn("Admin request rejected",
				logging.Field{Key: "path", Value: r.URL.Path},
				logging.Field{Key: "remote_addr", Value: r.RemoteAddr},
				logging.Field{Key: "reason", Value: err.Error()},
			)
			status := errors.HTTPStatus(err)
			if status == http.StatusUnauthorized {
				w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(errors.NewErrorResponse(err))
			return
		}

		actor := "admin"
		if ip := a.clientIP(r); ip.IsValid() {
			actor = "admin:" + ip.String()
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey, actor)))
	})
}

// Actor returns the actor name stored by RequireAuth
func Actor(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey).(string); ok {
		return actor
	}
	return "admin"
}

func (a *Auth) validToken(presented string) bool {
	if len(a.token) == 0 || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), a.token) == 1
}

// requestToken reads "Authorization: Bearer <token>", else the token query parameter
func requestToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// Allowed reports whether ip is one of the listed addresses or inside one of
// the listed CIDR ranges. Unparseable entries never match.
func Allowed(ip netip.Addr, allowed []string) bool {
	if !ip.IsValid() {
		return false
	}
	ip = ip.Unmap()
	for _, entry := range allowed {
		entry = strings.TrimSpace(entry)
		if strings.Contains(entry, "/") {
			if prefix, err := netip.ParsePrefix(entry); err == nil && prefix.Contains(ip) {
				return true
			}
			continue
		}
		if addr, err := netip.ParseAddr(entry); err == nil && addr.Unmap() == ip {
			return true
		}
	}
	return false
}
