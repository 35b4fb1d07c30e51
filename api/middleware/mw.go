package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/EO-DataHub/eodhp-directory-services/internal/appconfig"
	"github.com/EO-DataHub/eodhp-directory-services/internal/authn"
	"github.com/EO-DataHub/eodhp-directory-services/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type contextKey string

const (
	ClaimsKey contextKey = "claims"
	AccessKey contextKey = "access"
)

// Access is the privilege level of an authenticated caller.
type Access int

const (
	AccessNone Access = iota
	AccessInfo
	AccessAdmin
)

func (a Access) String() string {
	switch a {
	case AccessInfo:
		return "info"
	case AccessAdmin:
		return "admin"
	default:
		return "none"
	}
}

// AccessFrom returns the access level stored by Authenticate.
func AccessFrom(ctx context.Context) Access {
	a, _ := ctx.Value(AccessKey).(Access)
	return a
}

// Authenticate accepts HTTP basic credentials for the info and admin
// accounts, or a bearer JWT carrying the info or admin role, and stores the
// resulting access level in the request context.
func Authenticate(cfg appconfig.APIConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				logger := zerolog.Ctx(r.Context()).With().
					Str("handler", "Authenticate").Logger()

				ctx := r.Context()
				access := AccessNone

				// Get the Authorization header
				authHeader := r.Header.Get("Authorization")
				if authHeader == "" {
					logger.Debug().Msg("authorization header missing")
					unauthorized(w, r, "authorization header missing")
					return
				}

				if user, pass, ok := r.BasicAuth(); ok {
					access = basicAccess(cfg, user, pass)
					if access == AccessNone {
						logger.Warn().Str("user", user).Msg("invalid basic credentials")
						unauthorized(w, r, "invalid credentials")
						return
					}
				} else {
					token := strings.TrimPrefix(authHeader, "Bearer ")
					if token == authHeader {
						logger.Error().Msg("invalid token format")
						unauthorized(w, r, "invalid token format")
						return
					}

					// Parse the token for JWT claims
					claims, err := authn.ParseClaims(token, []byte(cfg.JWTSecret))
					if err != nil {
						logger.Error().Err(err).Msg("invalid bearer jwt token")
						unauthorized(w, r, "invalid bearer jwt token")
						return
					}

					switch {
					case claims.HasRole(cfg.AdminRole):
						access = AccessAdmin
					case claims.HasRole(cfg.InfoRole):
						access = AccessInfo
					default:
						logger.Warn().Str("user", claims.Username).Msg("token carries no directory role")
						writeError(w, r, http.StatusForbidden, "forbidden")
						return
					}
					ctx = context.WithValue(ctx, ClaimsKey, claims)
				}

				ctx = context.WithValue(ctx, AccessKey, access)
				next.ServeHTTP(w, r.WithContext(ctx))
			},
		)
	}
}

func basicAccess(cfg appconfig.APIConfig, user, pass string) Access {
	switch {
	case cfg.AdminUser != "" && equal(user, cfg.AdminUser) && equal(pass, cfg.AdminPass):
		return AccessAdmin
	case cfg.InfoUser != "" && equal(user, cfg.InfoUser) && equal(pass, cfg.InfoPass):
		return AccessInfo
	default:
		return AccessNone
	}
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("WWW-Authenticate", `Basic realm="directory"`)
	writeError(w, r, http.StatusUnauthorized, msg)
}

// writeError answers with the same JSON envelope the handlers use.
func writeError(w http.ResponseWriter, r *http.Request, statusCode int, msg string) {
	nodename, _ := os.Hostname()
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "max-age=0")
	w.WriteHeader(statusCode)

	err := json.NewEncoder(w).Encode(models.Response{
		Status:    models.StatusError,
		Msg:       msg,
		Timestamp: time.Now().UTC().Unix(),
		Nodename:  nodename,
		Request:   r.Method + " " + r.URL.Path,
	})
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to encode response")
	}
}

// WithLogger adds a logger to the context and logs request information.
func WithLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", requestID)

			logger := log.With().
				Str("request_id", requestID).
				Str("host", r.Host).
				Str("method", r.Method).
				Str("url", r.URL.String()).
				Str("remote_addr", r.RemoteAddr).
				Time("timestamp", time.Now()).
				Logger()

			// Add the logger to the context
			ctx := logger.WithContext(r.Context())
			next.ServeHTTP(w, r.WithContext(ctx))
		},
	)
}
