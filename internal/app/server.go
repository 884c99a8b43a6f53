// Package app wires the paywall components together and runs the servers:
// the evaluation endpoint consumed by the page-rendering layer and the admin
// API consumed by the staff console.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"paywall/internal/admin"
	"paywall/internal/analytics"
	"paywall/internal/config"
	"paywall/internal/core"
	"paywall/internal/gateway"
	"paywall/internal/identity"
	"paywall/internal/quota"
	quotamemory "paywall/internal/quota/memory"
	quotaredis "paywall/internal/quota/redis"
	"paywall/internal/telemetry"
	"paywall/pkg/metrics"
)

// Server is the assembled paywall service
type Server struct {
	configs   *config.Store
	watcher   *config.Watcher
	quota     core.QuotaStore
	sink      core.EventSink
	gateway   *gateway.Gateway
	adminAPI  *admin.API
	telemetry *telemetry.Telemetry
	metrics   *metrics.Metrics
	frontend  *http.Server
	logger    *slog.Logger
}

// NewServer builds the service from configuration
func NewServer(configPath string, logger *slog.Logger) (*Server, error) {
	loader := config.NewLoader(configPath)
	configs := config.NewStore(loader, logger)
	if err := configs.Refresh(); err != nil {
		// Boot continues on the embedded defaults; the watcher or a manual
		// refresh picks up the file once it is valid
		logger.Warn("initial config load failed, using defaults", "error", err)
	}
	cfg := configs.Current()

	m := metrics.New()

	tel, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	quotaStore := buildQuotaStore(configs, logger)

	var sink core.EventSink
	if cfg.Analytics.Endpoint != "" {
		sink = analytics.NewHTTPSink(&cfg.Analytics, logger, m)
	} else {
		sink = analytics.NopSink{}
	}

	resolver := identity.NewResolver(&cfg.Auth, logger, m)
	gw := gateway.New(resolver, configs, quotaStore, sink, logger, m, tel)
	adminAPI := admin.NewAPI(&cfg.Admin, loader.Path(), configs, quotaStore, logger)

	s := &Server{
		configs:   configs,
		quota:     quotaStore,
		sink:      sink,
		gateway:   gw,
		adminAPI:  adminAPI,
		telemetry: tel,
		metrics:   m,
		logger:    logger.With("component", "server"),
	}

	watcher, err := config.NewWatcher(configPath, &config.WatcherConfig{
		DebounceDuration: 500 * time.Millisecond,
		OnChange: func(newConfig *config.Config) error {
			configs.Swap(newConfig)
			m.ConfigReloads.WithLabelValues("success").Inc()
			m.ConfigLastReloadTS.SetToCurrentTime()
			return nil
		},
		OnError: func(err error) {
			m.ConfigReloads.WithLabelValues("failure").Inc()
		},
	}, logger)
	if err != nil {
		// The service still works without hot reload; admin refresh remains
		logger.Warn("config watcher unavailable", "error", err)
	} else {
		s.watcher = watcher
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/evaluate", s.handleEvaluate)
	s.frontend = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	return s, nil
}

// buildQuotaStore selects the quota backend. An unreachable redis at boot
// falls back to the in-process store: degraded quota memory beats refusing
// to serve content.
func buildQuotaStore(configs *config.Store, logger *slog.Logger) core.QuotaStore {
	cfg := configs.Current()
	quotaCfg := &quota.Config{
		Window: func() time.Duration { return configs.Paywall().ResetPeriod() },
	}

	if cfg.Store.Type == "redis" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Store.Redis.Address,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, falling back to memory quota store",
				"address", cfg.Store.Redis.Address, "error", err)
			client.Close()
			return quotamemory.NewStore(quotaCfg)
		}

		logger.Info("using redis quota store", "address", cfg.Store.Redis.Address)
		return quotaredis.NewStore(quotaredis.NewClientAdapter(client), quotaCfg)
	}

	logger.Info("using in-memory quota store")
	return quotamemory.NewStore(quotaCfg)
}

// evaluateRequest is the payload from the page-rendering layer
type evaluateRequest struct {
	ContentID       string   `json:"contentId"`
	Categories      []string `json:"categories"`
	TierRequirement string   `json:"tierRequirement"`
}

// evaluateResponse is the decision plus overlay copy on denial
type evaluateResponse struct {
	core.AccessDecision
	CTA *config.CTA `json:"cta,omitempty"`
}

// handleEvaluate is the synchronous evaluation entry point
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ContentID == "" {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	content := core.ContentDescriptor{
		ID:              req.ContentID,
		Categories:      req.Categories,
		TierRequirement: core.ParseTier(req.TierRequirement),
	}

	decision := s.gateway.Evaluate(r.Context(), w, r, content)

	resp := evaluateResponse{AccessDecision: decision}
	if !decision.Allowed() {
		cta := s.configs.Paywall().CTA
		resp.CTA = &cta
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("failed to encode evaluation response", "error", err)
	}
}

// Start starts the servers and the config watcher
func (s *Server) Start(ctx context.Context) error {
	if s.watcher != nil {
		s.watcher.Start()
	}

	if err := s.adminAPI.Start(ctx); err != nil {
		return fmt.Errorf("failed to start admin API: %w", err)
	}

	go func() {
		s.logger.Info("Starting evaluation endpoint", "address", s.frontend.Addr)
		if err := s.frontend.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Evaluation endpoint error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts the service down
func (s *Server) Stop(ctx context.Context) error {
	var firstErr error

	if err := s.frontend.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.adminAPI.Stop(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := s.sink.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.quota.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.telemetry.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}

	return firstErr
}
