package config

import (
	"slices"
	"time"
)

// Config holds paywall service configuration
type Config struct {
	Server    Server    `yaml:"server"`
	Admin     Admin     `yaml:"admin"`
	Paywall   Paywall   `yaml:"paywall"`
	Store     StoreCfg  `yaml:"store"`
	Auth      Auth      `yaml:"auth"`
	Analytics Analytics `yaml:"analytics"`
	Telemetry Telemetry `yaml:"telemetry"`
}

// Server configuration for the evaluation endpoint
type Server struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ReadTimeout  int    `yaml:"readTimeout"`
	WriteTimeout int    `yaml:"writeTimeout"`
}

// Admin configuration for the management API
type Admin struct {
	Enabled   bool   `yaml:"enabled"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	BasePath  string `yaml:"basePath"`
	AuthToken string `yaml:"authToken"`
}

// Paywall is the hot-reloadable gating configuration. Readers always see a
// complete snapshot; refresh swaps the enclosing Config pointer wholesale.
type Paywall struct {
	Enabled            bool     `yaml:"enabled"`
	FreeArticleLimit   int      `yaml:"freeArticleLimit"`
	ResetPeriodDays    int      `yaml:"resetPeriodDays"`
	BypassedCategories []string `yaml:"bypassedCategories"`
	BypassedArticles   []string `yaml:"bypassedArticles"`
	CTA                CTA      `yaml:"cta"`
}

// CTA is the paywall overlay copy shown on denial
type CTA struct {
	Title       string `yaml:"title"`
	Message     string `yaml:"message"`
	ButtonLabel string `yaml:"buttonLabel"`
	ButtonURL   string `yaml:"buttonUrl"`
}

// StoreCfg selects and configures the quota store backend
type StoreCfg struct {
	// Type is "memory" or "redis"
	Type string `yaml:"type"`
	// Timeout bounds each store call in milliseconds; a slow store is
	// treated as unavailable (fail-open), never left to block the render
	Timeout int   `yaml:"timeout"`
	Redis   Redis `yaml:"redis"`
}

// Redis connection configuration
type Redis struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Auth configures session parsing and anonymous token issuance
type Auth struct {
	// Secret is the HS256 key for session JWTs
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
	// TierClaim is the JWT claim carrying the membership-tier signal
	TierClaim string `yaml:"tierClaim"`
	// SessionCookie is the cookie carrying the session JWT
	SessionCookie string `yaml:"sessionCookie"`
	// AnonCookie is the cookie carrying the anonymous visitor token
	AnonCookie string `yaml:"anonCookie"`
	// AnonCookieMaxAgeDays is the anonymous cookie lifetime
	AnonCookieMaxAgeDays int `yaml:"anonCookieMaxAgeDays"`
}

// Analytics configures the external event sink
type Analytics struct {
	// Endpoint is the collector URL; empty disables delivery
	Endpoint string `yaml:"endpoint"`
	// BufferSize is the in-flight event buffer; overflow drops events
	BufferSize int `yaml:"bufferSize"`
	// Timeout bounds each delivery in milliseconds
	Timeout int `yaml:"timeout"`
}

// Telemetry configures tracing
type Telemetry struct {
	Enabled bool    `yaml:"enabled"`
	Service string  `yaml:"service"`
	Version string  `yaml:"version"`
	Tracing Tracing `yaml:"tracing"`
}

// Tracing configuration
type Tracing struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`
	SampleRate float64 `yaml:"sampleRate"`
}

// ResetPeriod returns the rolling quota window as a duration
func (p *Paywall) ResetPeriod() time.Duration {
	return time.Duration(p.ResetPeriodDays) * 24 * time.Hour
}

// BypassesArticle reports whether the content id is on the bypass list
func (p *Paywall) BypassesArticle(contentID string) bool {
	return slices.Contains(p.BypassedArticles, contentID)
}

// BypassesCategory reports whether any category slug is on the bypass list
func (p *Paywall) BypassesCategory(slugs []string) bool {
	for _, slug := range slugs {
		if slices.Contains(p.BypassedCategories, slug) {
			return true
		}
	}
	return false
}

// StoreTimeout returns the per-call store timeout
func (s *StoreCfg) StoreTimeout() time.Duration {
	if s.Timeout <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(s.Timeout) * time.Millisecond
}
