package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"paywall/internal/config"
	"paywall/internal/core"
	"paywall/internal/quota"
	"paywall/internal/quota/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// failingQuotaStore reports the store as unavailable
type failingQuotaStore struct{}

func (failingQuotaStore) HasViewed(ctx context.Context, visitorID, contentID string) (bool, error) {
	return false, errors.New("store down")
}

func (failingQuotaStore) RecordView(ctx context.Context, visitorID, contentID string) (*core.QuotaRecord, error) {
	return nil, errors.New("store down")
}

func (failingQuotaStore) Count(ctx context.Context, visitorID string) (int, error) {
	return 0, errors.New("store down")
}

func (failingQuotaStore) RecordBlocked(ctx context.Context, visitorID string) error {
	return errors.New("store down")
}

func (failingQuotaStore) Close() error { return nil }

func testAPI(t *testing.T, adminCfg *config.Admin, quotaStore core.QuotaStore) (*API, *config.Store, string) {
	t.Helper()

	configPath := filepath.Join(t.TempDir(), "paywall.yaml")
	if err := os.WriteFile(configPath, []byte("paywall:\n  freeArticleLimit: 3\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	configs := config.NewStore(config.NewLoader(configPath).WithEnvVars(false), testLogger())
	if err := configs.Refresh(); err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if adminCfg == nil {
		adminCfg = &config.Admin{Enabled: true, BasePath: "/paywall"}
	}
	if quotaStore == nil {
		store := memory.NewStore(&quota.Config{Window: func() time.Duration { return time.Hour }})
		t.Cleanup(func() { store.Close() })
		quotaStore = store
	}

	return NewAPI(adminCfg, configPath, configs, quotaStore, testLogger()), configs, configPath
}

func TestAPI_GetConfig(t *testing.T) {
	api, _, _ := testAPI(t, nil, nil)

	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/paywall/config", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var got config.Paywall
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.FreeArticleLimit != 3 {
		t.Errorf("expected limit 3, got %d", got.FreeArticleLimit)
	}
}

func TestAPI_PutConfig(t *testing.T) {
	api, configs, configPath := testAPI(t, nil, nil)

	updated := config.Paywall{
		Enabled:          true,
		FreeArticleLimit: 5,
		ResetPeriodDays:  14,
		BypassedArticles: []string{"article-sponsored"},
	}
	body, _ := json.Marshal(updated)

	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/paywall/config", bytes.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// Applied to the live snapshot
	if configs.Paywall().FreeArticleLimit != 5 {
		t.Errorf("expected live limit 5, got %d", configs.Paywall().FreeArticleLimit)
	}

	// Persisted: a fresh load from the file sees the update
	reloaded, err := config.NewLoader(configPath).WithEnvVars(false).Load()
	if err != nil {
		t.Fatalf("failed to reload config file: %v", err)
	}
	if reloaded.Paywall.ResetPeriodDays != 14 {
		t.Errorf("expected persisted reset period 14, got %d", reloaded.Paywall.ResetPeriodDays)
	}
}

func TestAPI_PutConfigRejectsInvalid(t *testing.T) {
	api, configs, _ := testAPI(t, nil, nil)

	body, _ := json.Marshal(config.Paywall{FreeArticleLimit: 3, ResetPeriodDays: 0})

	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/paywall/config", bytes.NewReader(body)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if configs.Paywall().ResetPeriodDays != 30 {
		t.Errorf("expected snapshot unchanged, got reset period %d", configs.Paywall().ResetPeriodDays)
	}
}

func TestAPI_ConfigRefresh(t *testing.T) {
	api, configs, configPath := testAPI(t, nil, nil)

	if err := os.WriteFile(configPath, []byte("paywall:\n  freeArticleLimit: 9\n"), 0644); err != nil {
		t.Fatalf("failed to update config file: %v", err)
	}

	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/paywall/config/refresh", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if configs.Paywall().FreeArticleLimit != 9 {
		t.Errorf("expected refreshed limit 9, got %d", configs.Paywall().FreeArticleLimit)
	}
}

func TestAPI_ConfigRefreshFailure(t *testing.T) {
	api, configs, configPath := testAPI(t, nil, nil)

	if err := os.WriteFile(configPath, []byte("paywall: [broken"), 0644); err != nil {
		t.Fatalf("failed to corrupt config file: %v", err)
	}

	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/paywall/config/refresh", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if configs.Paywall().FreeArticleLimit != 3 {
		t.Errorf("expected previous config retained, got limit %d", configs.Paywall().FreeArticleLimit)
	}
}

func TestAPI_QuotaInspection(t *testing.T) {
	store := memory.NewStore(&quota.Config{Window: func() time.Duration { return time.Hour }})
	defer store.Close()
	api, _, _ := testAPI(t, nil, store)

	ctx := context.Background()
	store.RecordView(ctx, "anon-1", "article-1")
	store.RecordView(ctx, "anon-1", "article-2")
	store.RecordView(ctx, "anon-1", "article-3")

	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/paywall/quota/anon-1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var got QuotaResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.VisitorID != "anon-1" || got.ViewCount != 3 {
		t.Errorf("expected anon-1 with 3 views, got %s with %d", got.VisitorID, got.ViewCount)
	}
	if !got.Exceeded {
		t.Error("expected quota exceeded at the limit")
	}
}

func TestAPI_QuotaMissingVisitor(t *testing.T) {
	api, _, _ := testAPI(t, nil, nil)

	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/paywall/quota/", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAPI_QuotaStoreUnavailable(t *testing.T) {
	api, _, _ := testAPI(t, nil, failingQuotaStore{})

	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/paywall/quota/anon-1", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestAPI_Health(t *testing.T) {
	api, _, _ := testAPI(t, nil, nil)

	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/paywall/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var got HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.Status != "healthy" {
		t.Errorf("expected healthy status, got %s", got.Status)
	}
}

func TestAPI_AuthMiddleware(t *testing.T) {
	api, _, _ := testAPI(t, &config.Admin{Enabled: true, BasePath: "/paywall", AuthToken: "secret-token"}, nil)

	t.Run("missing token", func(t *testing.T) {
		rec := httptest.NewRecorder()
		api.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/paywall/config", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("wrong token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/paywall/config", nil)
		req.Header.Set("Authorization", "Bearer wrong")
		rec := httptest.NewRecorder()
		api.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("valid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/paywall/config", nil)
		req.Header.Set("Authorization", "Bearer secret-token")
		rec := httptest.NewRecorder()
		api.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})
}

func TestAPI_MethodNotAllowed(t *testing.T) {
	api, _, _ := testAPI(t, nil, nil)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodDelete, "/paywall/config"},
		{http.MethodGet, "/paywall/config/refresh"},
		{http.MethodPost, "/paywall/quota/anon-1"},
		{http.MethodPost, "/paywall/health"},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		api.Handler().ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: expected 405, got %d", tt.method, tt.path, rec.Code)
		}
	}
}
