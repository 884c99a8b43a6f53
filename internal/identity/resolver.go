package identity

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"paywall/internal/config"
	"paywall/internal/core"
	"paywall/pkg/metrics"
)

// Resolver resolves visitor identity: an authenticated session yields the
// user id and membership tier, otherwise a durable anonymous token is read
// from (or issued to) the client. Resolution never fails closed — when no
// durable identity can be established the visitor gets a per-request token,
// degrading to "no quota memory", never "no access".
type Resolver struct {
	config  *config.Auth
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewResolver creates a new identity resolver
func NewResolver(cfg *config.Auth, logger *slog.Logger, m *metrics.Metrics) *Resolver {
	return &Resolver{
		config:  cfg,
		logger:  logger.With("component", "identity"),
		metrics: m,
	}
}

// Resolve returns the visitor identity for the request. It may set a durable
// anonymous cookie on first visit.
func (r *Resolver) Resolve(w http.ResponseWriter, req *http.Request) core.Visitor {
	if visitor, ok := r.resolveSession(req); ok {
		return visitor
	}
	return r.resolveAnonymous(w, req)
}

// resolveSession parses the session JWT from the cookie or bearer header.
// Invalid or expired sessions fall through to anonymous resolution rather
// than erroring: a broken session must not block reading.
func (r *Resolver) resolveSession(req *http.Request) (core.Visitor, bool) {
	tokenString := r.sessionToken(req)
	if tokenString == "" || r.config.Secret == "" {
		return core.Visitor{}, false
	}

	parseOpts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if r.config.Issuer != "" {
		parseOpts = append(parseOpts, jwt.WithIssuer(r.config.Issuer))
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return []byte(r.config.Secret), nil
	}, parseOpts...)
	if err != nil || !token.Valid {
		r.logger.Debug("session token rejected", "error", err)
		return core.Visitor{}, false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return core.Visitor{}, false
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return core.Visitor{}, false
	}

	tierClaim := r.config.TierClaim
	if tierClaim == "" {
		tierClaim = "tier"
	}
	tierName, _ := claims[tierClaim].(string)

	return core.Visitor{
		ID:            sub,
		Tier:          core.ParseTier(tierName),
		Authenticated: true,
	}, true
}

// resolveAnonymous reuses the anonymous cookie token or issues a new one
func (r *Resolver) resolveAnonymous(w http.ResponseWriter, req *http.Request) core.Visitor {
	cookieName := r.anonCookieName()

	if cookie, err := req.Cookie(cookieName); err == nil && cookie.Value != "" {
		return core.Visitor{ID: cookie.Value, Tier: core.TierFree}
	}

	// uuid v4 carries 122 random bits, comfortably past the collision floor
	// for visitor tokens
	token := "anon-" + uuid.NewString()

	if w != nil {
		maxAgeDays := r.config.AnonCookieMaxAgeDays
		if maxAgeDays <= 0 {
			maxAgeDays = 365
		}
		http.SetCookie(w, &http.Cookie{
			Name:     cookieName,
			Value:    token,
			Path:     "/",
			MaxAge:   maxAgeDays * int((24 * time.Hour).Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		if r.metrics != nil {
			r.metrics.AnonymousTokensIssued.Inc()
		}
	}
	// Without a response writer the token lives for this request only; the
	// visitor just gets a fresh quota window next time.

	return core.Visitor{ID: token, Tier: core.TierFree}
}

// sessionToken extracts the raw session JWT from the request
func (r *Resolver) sessionToken(req *http.Request) string {
	if auth := req.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}

	cookieName := r.config.SessionCookie
	if cookieName == "" {
		cookieName = "session"
	}
	if cookie, err := req.Cookie(cookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// anonCookieName returns the configured anonymous cookie name
func (r *Resolver) anonCookieName() string {
	if r.config.AnonCookie == "" {
		return "pw_visitor"
	}
	return r.config.AnonCookie
}
