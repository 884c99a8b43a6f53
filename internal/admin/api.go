// Package admin exposes the management API consumed by the staff console:
// paywall configuration read/write, forced refresh, visitor quota inspection
// and operational endpoints. It listens on a side port, separate from the
// evaluation endpoint.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"

	"paywall/internal/config"
	"paywall/internal/core"
)

// API provides runtime management endpoints
type API struct {
	config     *config.Admin
	configPath string
	configs    *config.Store
	quota      core.QuotaStore
	logger     *slog.Logger
	server     *http.Server
	mux        *http.ServeMux
	startTime  time.Time
}

// NewAPI creates a new management API
func NewAPI(cfg *config.Admin, configPath string, configs *config.Store, quotaStore core.QuotaStore, logger *slog.Logger) *API {
	api := &API{
		config:     cfg,
		configPath: configPath,
		configs:    configs,
		quota:      quotaStore,
		logger:     logger.With("component", "admin-api"),
		mux:        http.NewServeMux(),
		startTime:  time.Now(),
	}

	api.setupRoutes()
	return api
}

// setupRoutes configures all management endpoints
func (api *API) setupRoutes() {
	basePath := api.config.BasePath
	if basePath == "" {
		basePath = "/paywall"
	}

	api.mux.HandleFunc(basePath+"/health", api.handleHealth)
	api.mux.HandleFunc(basePath+"/health/live", api.handleLiveness)

	api.mux.HandleFunc(basePath+"/config", api.handleConfig)
	api.mux.HandleFunc(basePath+"/config/refresh", api.handleConfigRefresh)

	api.mux.HandleFunc(basePath+"/quota/", api.handleQuota)

	api.mux.Handle("/metrics", promhttp.Handler())
}

// Handler returns the API handler with auth applied. Exposed for tests.
func (api *API) Handler() http.Handler {
	handler := http.Handler(api.mux)
	if api.config.AuthToken != "" {
		handler = api.authMiddleware(handler)
	}
	return handler
}

// Start starts the management API server
func (api *API) Start(ctx context.Context) error {
	if !api.config.Enabled {
		return nil
	}

	addr := fmt.Sprintf("%s:%d", api.config.Host, api.config.Port)
	api.server = &http.Server{
		Addr:    addr,
		Handler: api.Handler(),
	}

	go func() {
		api.logger.Info("Starting admin API", "address", addr)
		if err := api.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			api.logger.Error("Admin API error", "error", err)
		}
	}()

	return nil
}

// Stop stops the management API server
func (api *API) Stop(ctx context.Context) error {
	if api.server == nil {
		return nil
	}

	api.logger.Info("Stopping admin API")
	return api.server.Shutdown(ctx)
}

// authMiddleware enforces the configured bearer token
func (api *API) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("Authorization")
		if token != "Bearer "+api.config.AuthToken && token != api.config.AuthToken {
			api.writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HealthResponse is the health endpoint payload
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
}

// QuotaResponse is the visitor quota inspection payload
type QuotaResponse struct {
	VisitorID string `json:"visitorId"`
	ViewCount int    `json:"viewCount"`
	Limit     int    `json:"freeArticleLimit"`
	Exceeded  bool   `json:"exceeded"`
}

func (api *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	api.writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Uptime:    time.Since(api.startTime).String(),
	})
}

func (api *API) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// handleConfig serves the gating config: GET returns the current snapshot,
// PUT validates, persists and applies a new one.
func (api *API) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		api.writeJSON(w, http.StatusOK, api.configs.Paywall())

	case http.MethodPut:
		var updated config.Paywall
		if err := json.NewDecoder(r.Body).Decode(&updated); err != nil {
			api.writeError(w, http.StatusBadRequest, "invalid config body")
			return
		}
		if err := config.ValidatePaywall(&updated); err != nil {
			api.writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		if err := api.apply(&updated); err != nil {
			api.logger.Error("Failed to apply config update", "error", err)
			api.writeError(w, http.StatusInternalServerError, "failed to apply config")
			return
		}

		api.logger.Info("Paywall config updated",
			"enabled", updated.Enabled,
			"freeArticleLimit", updated.FreeArticleLimit,
			"resetPeriodDays", updated.ResetPeriodDays,
		)
		api.writeJSON(w, http.StatusOK, api.configs.Paywall())

	default:
		api.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// apply persists the new gating section to the config file and swaps the
// snapshot. The write is atomic (temp file + rename) so the watcher never
// observes a torn file.
func (api *API) apply(updated *config.Paywall) error {
	next := *api.configs.Current()
	next.Paywall = *updated

	data, err := yaml.Marshal(&next)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	tmp := filepath.Join(filepath.Dir(api.configPath), ".paywall-config.tmp")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp, api.configPath); err != nil {
		return fmt.Errorf("failed to replace config: %w", err)
	}

	api.configs.Swap(&next)
	return nil
}

// handleConfigRefresh forces a reload from the config file
func (api *API) handleConfigRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := api.configs.Refresh(); err != nil {
		api.writeError(w, http.StatusInternalServerError, "refresh failed, previous config retained")
		return
	}
	api.writeJSON(w, http.StatusOK, api.configs.Paywall())
}

// handleQuota returns the current-window quota state for one visitor
func (api *API) handleQuota(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	basePath := api.config.BasePath
	if basePath == "" {
		basePath = "/paywall"
	}
	visitorID := strings.TrimPrefix(r.URL.Path, basePath+"/quota/")
	if visitorID == "" {
		api.writeError(w, http.StatusBadRequest, "visitor id required")
		return
	}

	count, err := api.quota.Count(r.Context(), visitorID)
	if err != nil {
		api.writeError(w, http.StatusServiceUnavailable, "quota store unavailable")
		return
	}

	limit := api.configs.Paywall().FreeArticleLimit
	api.writeJSON(w, http.StatusOK, QuotaResponse{
		VisitorID: visitorID,
		ViewCount: count,
		Limit:     limit,
		Exceeded:  count >= limit,
	})
}

// Helper methods
func (api *API) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		api.logger.Error("Failed to encode response", "error", err)
	}
}

func (api *API) writeError(w http.ResponseWriter, status int, message string) {
	api.writeJSON(w, status, map[string]string{
		"error": message,
	})
}
