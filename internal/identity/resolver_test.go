package identity

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"paywall/internal/config"
	"paywall/internal/core"
)

const testSecret = "test-secret"

func testResolver(cfg *config.Auth) *Resolver {
	if cfg == nil {
		cfg = &config.Auth{Secret: testSecret}
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewResolver(cfg, logger, nil)
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func TestResolve_SessionFromBearerHeader(t *testing.T) {
	r := testResolver(nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/evaluate", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.MapClaims{
		"sub":  "user-42",
		"tier": "TIER_2",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}))

	visitor := r.Resolve(httptest.NewRecorder(), req)

	if !visitor.Authenticated {
		t.Error("expected authenticated visitor")
	}
	if visitor.ID != "user-42" {
		t.Errorf("expected id user-42, got %s", visitor.ID)
	}
	if visitor.Tier != core.Tier2 {
		t.Errorf("expected TIER_2, got %s", visitor.Tier)
	}
}

func TestResolve_SessionFromCookie(t *testing.T) {
	r := testResolver(&config.Auth{Secret: testSecret, SessionCookie: "session"})

	req := httptest.NewRequest(http.MethodPost, "/v1/evaluate", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: signToken(t, jwt.MapClaims{
		"sub":  "user-7",
		"tier": "TIER_1",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})})

	visitor := r.Resolve(httptest.NewRecorder(), req)

	if visitor.ID != "user-7" || visitor.Tier != core.Tier1 {
		t.Errorf("expected user-7/TIER_1, got %s/%s", visitor.ID, visitor.Tier)
	}
}

func TestResolve_UnknownTierDefaultsToFree(t *testing.T) {
	r := testResolver(nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/evaluate", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.MapClaims{
		"sub":  "user-1",
		"tier": "PLATINUM",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}))

	visitor := r.Resolve(httptest.NewRecorder(), req)

	if !visitor.Authenticated {
		t.Error("expected authenticated visitor")
	}
	if visitor.Tier != core.TierFree {
		t.Errorf("expected unknown tier to map to FREE, got %s", visitor.Tier)
	}
}

func TestResolve_InvalidSessionFallsBackToAnonymous(t *testing.T) {
	tests := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{
			name: "wrong signature",
			token: func(t *testing.T) string {
				s, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user-1"}).SignedString([]byte("other-secret"))
				return s
			},
		},
		{
			name: "expired",
			token: func(t *testing.T) string {
				return signToken(t, jwt.MapClaims{"sub": "user-1", "exp": time.Now().Add(-time.Hour).Unix()})
			},
		},
		{
			name: "missing subject",
			token: func(t *testing.T) string {
				return signToken(t, jwt.MapClaims{"tier": "TIER_1", "exp": time.Now().Add(time.Hour).Unix()})
			},
		},
		{
			name:  "garbage",
			token: func(t *testing.T) string { return "not-a-jwt" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := testResolver(nil)
			req := httptest.NewRequest(http.MethodPost, "/v1/evaluate", nil)
			req.Header.Set("Authorization", "Bearer "+tt.token(t))

			visitor := r.Resolve(httptest.NewRecorder(), req)

			if visitor.Authenticated {
				t.Error("expected anonymous fallback, got authenticated visitor")
			}
			if !strings.HasPrefix(visitor.ID, "anon-") {
				t.Errorf("expected anonymous token, got %s", visitor.ID)
			}
		})
	}
}

func TestResolve_IssuesAnonymousCookie(t *testing.T) {
	r := testResolver(&config.Auth{AnonCookie: "pw_visitor", AnonCookieMaxAgeDays: 365})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/evaluate", nil)

	visitor := r.Resolve(rec, req)

	if visitor.Authenticated {
		t.Error("expected anonymous visitor")
	}
	if !strings.HasPrefix(visitor.ID, "anon-") {
		t.Errorf("expected anon- prefix, got %s", visitor.ID)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	cookie := cookies[0]
	if cookie.Name != "pw_visitor" || cookie.Value != visitor.ID {
		t.Errorf("expected cookie carrying the visitor token, got %s=%s", cookie.Name, cookie.Value)
	}
	if !cookie.HttpOnly {
		t.Error("expected HttpOnly cookie")
	}
	if cookie.MaxAge != 365*24*60*60 {
		t.Errorf("expected one year max age, got %d", cookie.MaxAge)
	}
}

func TestResolve_ReusesAnonymousCookie(t *testing.T) {
	r := testResolver(&config.Auth{AnonCookie: "pw_visitor"})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/evaluate", nil)
	req.AddCookie(&http.Cookie{Name: "pw_visitor", Value: "anon-existing"})

	visitor := r.Resolve(rec, req)

	if visitor.ID != "anon-existing" {
		t.Errorf("expected the existing token to be reused, got %s", visitor.ID)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Error("expected no new cookie when one already exists")
	}
}

func TestResolve_NilWriterYieldsPerRequestToken(t *testing.T) {
	r := testResolver(&config.Auth{})

	req := httptest.NewRequest(http.MethodPost, "/v1/evaluate", nil)

	first := r.Resolve(nil, req)
	second := r.Resolve(nil, req)

	if !strings.HasPrefix(first.ID, "anon-") || !strings.HasPrefix(second.ID, "anon-") {
		t.Errorf("expected anonymous tokens, got %s and %s", first.ID, second.ID)
	}
	if first.ID == second.ID {
		t.Error("expected distinct per-request tokens without a response writer")
	}
}

func TestResolve_IssuerMismatchRejected(t *testing.T) {
	r := testResolver(&config.Auth{Secret: testSecret, Issuer: "members.example.com"})

	req := httptest.NewRequest(http.MethodPost, "/v1/evaluate", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, jwt.MapClaims{
		"sub": "user-1",
		"iss": "evil.example.com",
		"exp": time.Now().Add(time.Hour).Unix(),
	}))

	visitor := r.Resolve(httptest.NewRecorder(), req)

	if visitor.Authenticated {
		t.Error("expected issuer mismatch to fall back to anonymous")
	}
}
