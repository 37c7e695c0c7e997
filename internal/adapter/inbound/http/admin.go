package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zenostudy/zeno/internal/adapter/outbound/memory"
	"github.com/zenostudy/zeno/internal/config"
	"github.com/zenostudy/zeno/internal/domain/adminauth"
	"github.com/zenostudy/zeno/internal/domain/ratelimit"
	"github.com/zenostudy/zeno/internal/service"
)

// adminOperation names the admin API's own rate limit key-space. It is
// deliberately not one of the public submission operations.
const adminOperation = "admin_api"

// AdminHandler serves the operator API: the maintenance toggle, rate limit
// resets, and a redacted config dump. Every route requires a Bearer admin key
// and is itself rate limited per client IP.
type AdminHandler struct {
	verifier *adminauth.Verifier
	state    *service.MaintenanceState
	limiter  *ratelimit.Limiter
	cfg      *config.Config

	// ipLimiter throttles admin requests per IP, authenticated or not, so a
	// stolen-key guesser burns its budget before reaching the verifier.
	ipLimiter *ratelimit.Limiter
	ipLimit   ratelimit.Config

	metrics *Metrics
	logger  *slog.Logger
}

// NewAdminHandler creates the handler. limiter is the public submission
// limiter whose counters the reset endpoint clears.
func NewAdminHandler(verifier *adminauth.Verifier, state *service.MaintenanceState, limiter *ratelimit.Limiter, cfg *config.Config, metrics *Metrics, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &AdminHandler{
		verifier:  verifier,
		state:     state,
		limiter:   limiter,
		cfg:       cfg,
		ipLimiter: ratelimit.NewLimiter(memory.NewRateLimitStore()),
		ipLimit: ratelimit.Config{
			Operation:   adminOperation,
			MaxAttempts: cfg.Admin.RateMax,
			Window:      cfg.AdminRateWindow(),
		},
		metrics: metrics,
		logger:  logger,
	}
	if state != nil && metrics != nil && state.Enabled() {
		metrics.MaintenanceMode.Set(1)
	}
	return h
}

// Routes returns the admin route table with auth and rate limiting applied.
func (h *AdminHandler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /admin/api/maintenance", h.handleMaintenanceStatus)
	mux.HandleFunc("POST /admin/api/maintenance", h.handleMaintenanceToggle)
	mux.HandleFunc("POST /admin/api/ratelimit/reset", h.handleRateLimitReset)
	mux.HandleFunc("GET /admin/api/config", h.handleConfigDump)

	return h.rateLimitMiddleware(h.authMiddleware(mux))
}

// authMiddleware enforces the Bearer admin key on every admin route.
func (h *AdminHandler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := bearerToken(r)
		if key == "" {
			h.respondError(w, http.StatusUnauthorized, "admin key required")
			return
		}
		if !h.verifier.Verify(key) {
			h.logger.Warn("admin auth rejected", "ip", ClientIP(r), "path", r.URL.Path)
			h.respondError(w, http.StatusUnauthorized, "invalid admin key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware throttles admin requests per client IP.
func (h *AdminHandler) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		check, err := h.ipLimiter.Check(r.Context(), ClientIP(r), h.ipLimit)
		if err != nil {
			h.logger.Error("admin rate limit check failed", "error", err)
			h.respondError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if !check.Allowed {
			retry := check.RetryAfter(time.Now())
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			h.respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *AdminHandler) handleMaintenanceStatus(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]bool{"enabled": h.state.Enabled()})
}

func (h *AdminHandler) handleMaintenanceToggle(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize)).Decode(&in); err != nil || in.Enabled == nil {
		h.respondError(w, http.StatusBadRequest, `body must be {"enabled": true|false}`)
		return
	}

	previous := h.state.Set(*in.Enabled)
	if h.metrics != nil {
		if *in.Enabled {
			h.metrics.MaintenanceMode.Set(1)
		} else {
			h.metrics.MaintenanceMode.Set(0)
		}
	}
	h.logger.Info("maintenance mode toggled",
		"enabled", *in.Enabled,
		"previous", previous,
		"ip", ClientIP(r),
	)

	h.respondJSON(w, http.StatusOK, map[string]bool{
		"enabled":  *in.Enabled,
		"previous": previous,
	})
}

func (h *AdminHandler) handleRateLimitReset(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Operation  string `json:"operation"`
		Identifier string `json:"identifier"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize)).Decode(&in); err != nil {
		h.respondError(w, http.StatusBadRequest, "request body must be valid JSON")
		return
	}
	if in.Identifier == "" {
		h.respondError(w, http.StatusBadRequest, "identifier is required")
		return
	}

	limit, ok := ratelimit.Policies[in.Operation]
	if !ok {
		h.respondError(w, http.StatusBadRequest, "unknown operation, expected one of: "+strings.Join(operationNames(), ", "))
		return
	}

	if err := h.limiter.Reset(r.Context(), in.Identifier, limit); err != nil {
		h.logger.Error("rate limit reset failed", "operation", in.Operation, "error", err)
		h.respondError(w, http.StatusInternalServerError, "reset failed")
		return
	}

	h.logger.Info("rate limit counter reset",
		"operation", in.Operation,
		"ip", ClientIP(r),
	)
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// handleConfigDump returns the effective config as YAML with secrets redacted.
func (h *AdminHandler) handleConfigDump(w http.ResponseWriter, r *http.Request) {
	redacted := *h.cfg
	if redacted.Backend.APIKey != "" {
		redacted.Backend.APIKey = "[redacted]"
	}
	if redacted.EmailCheck.APIKey != "" {
		redacted.EmailCheck.APIKey = "[redacted]"
	}
	redacted.Admin.KeyHashes = make([]string, len(h.cfg.Admin.KeyHashes))
	for i := range h.cfg.Admin.KeyHashes {
		redacted.Admin.KeyHashes[i] = "[redacted]"
	}

	out, err := yaml.Marshal(redacted)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to encode config")
		return
	}

	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func (h *AdminHandler) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *AdminHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

// operationNames lists the public operations in stable order.
func operationNames() []string {
	names := make([]string, 0, len(ratelimit.Policies))
	for name := range ratelimit.Policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
