package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/zenostudy/zeno/internal/adapter/outbound/memory"
	"github.com/zenostudy/zeno/internal/config"
	"github.com/zenostudy/zeno/internal/domain/adminauth"
	"github.com/zenostudy/zeno/internal/domain/ratelimit"
	"github.com/zenostudy/zeno/internal/service"
)

const testAdminKey = "test-admin-key"

func newTestAdmin(t *testing.T, rateMax int) (http.Handler, *service.MaintenanceState, *ratelimit.Limiter, *config.Config) {
	t.Helper()

	cfg := &config.Config{}
	cfg.Backend.APIKey = "backend-secret"
	cfg.EmailCheck.APIKey = "oracle-secret"
	cfg.Admin.KeyHashes = []string{"sha256:" + adminauth.HashKey(testAdminKey)}
	cfg.SetDefaults()
	if rateMax > 0 {
		cfg.Admin.RateMax = rateMax
	}

	state := service.NewMaintenanceState(false, nil)
	limiter := ratelimit.NewLimiter(memory.NewRateLimitStore())
	verifier := adminauth.NewVerifier(cfg.Admin.KeyHashes...)

	h := NewAdminHandler(verifier, state, limiter, cfg, nil, discardLogger())
	return h.Routes(), state, limiter, cfg
}

func adminRequest(handler http.Handler, method, path, key, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAdmin_RequiresKey(t *testing.T) {
	t.Parallel()
	handler, _, _, _ := newTestAdmin(t, 0)

	if rec := adminRequest(handler, http.MethodGet, "/admin/api/maintenance", "", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("no key: status = %d, want 401", rec.Code)
	}
	if rec := adminRequest(handler, http.MethodGet, "/admin/api/maintenance", "wrong-key", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: status = %d, want 401", rec.Code)
	}
	if rec := adminRequest(handler, http.MethodGet, "/admin/api/maintenance", testAdminKey, ""); rec.Code != http.StatusOK {
		t.Errorf("valid key: status = %d, want 200", rec.Code)
	}
}

func TestAdmin_MaintenanceToggle(t *testing.T) {
	t.Parallel()
	handler, state, _, _ := newTestAdmin(t, 0)

	rec := adminRequest(handler, http.MethodPost, "/admin/api/maintenance", testAdminKey, `{"enabled":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var out struct {
		Enabled  bool `json:"enabled"`
		Previous bool `json:"previous"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if !out.Enabled || out.Previous {
		t.Errorf("toggle response = %+v", out)
	}
	if !state.Enabled() {
		t.Error("state not enabled after toggle")
	}

	// Missing field is a 400, not a silent disable.
	rec = adminRequest(handler, http.MethodPost, "/admin/api/maintenance", testAdminKey, `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty body: status = %d, want 400", rec.Code)
	}
	if !state.Enabled() {
		t.Error("bad request changed the flag")
	}
}

func TestAdmin_RateLimitReset(t *testing.T) {
	t.Parallel()
	handler, _, limiter, _ := newTestAdmin(t, 0)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := limiter.Check(ctx, "alice@example.com", ratelimit.Login); err != nil {
			t.Fatal(err)
		}
	}
	check, err := limiter.Check(ctx, "alice@example.com", ratelimit.Login)
	if err != nil {
		t.Fatal(err)
	}
	if check.Allowed {
		t.Fatal("expected counter to be exhausted before reset")
	}

	rec := adminRequest(handler, http.MethodPost, "/admin/api/ratelimit/reset", testAdminKey,
		`{"operation":"login","identifier":"alice@example.com"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("reset: status = %d: %s", rec.Code, rec.Body.String())
	}

	check, err = limiter.Check(ctx, "alice@example.com", ratelimit.Login)
	if err != nil {
		t.Fatal(err)
	}
	if !check.Allowed {
		t.Error("counter still exhausted after reset")
	}
}

func TestAdmin_RateLimitResetUnknownOperation(t *testing.T) {
	t.Parallel()
	handler, _, _, _ := newTestAdmin(t, 0)

	rec := adminRequest(handler, http.MethodPost, "/admin/api/ratelimit/reset", testAdminKey,
		`{"operation":"teleport","identifier":"x"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "login") {
		t.Errorf("body should list known operations: %s", rec.Body.String())
	}
}

func TestAdmin_ConfigDumpRedactsSecrets(t *testing.T) {
	t.Parallel()
	handler, _, _, cfg := newTestAdmin(t, 0)

	rec := adminRequest(handler, http.MethodGet, "/admin/api/config", testAdminKey, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	body := rec.Body.String()
	for _, secret := range []string{"backend-secret", "oracle-secret", adminauth.HashKey(testAdminKey)} {
		if strings.Contains(body, secret) {
			t.Errorf("config dump leaks %q", secret)
		}
	}
	if !strings.Contains(body, "[redacted]") {
		t.Error("config dump has no redaction markers")
	}
	if !strings.Contains(body, cfg.Server.HTTPAddr) {
		t.Error("config dump missing non-secret fields")
	}
}

func TestAdmin_PerIPRateLimit(t *testing.T) {
	t.Parallel()
	handler, _, _, _ := newTestAdmin(t, 3)

	for i := 0; i < 3; i++ {
		if rec := adminRequest(handler, http.MethodGet, "/admin/api/maintenance", testAdminKey, ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i+1, rec.Code)
		}
	}

	rec := adminRequest(handler, http.MethodGet, "/admin/api/maintenance", testAdminKey, "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("no Retry-After header")
	}
}
