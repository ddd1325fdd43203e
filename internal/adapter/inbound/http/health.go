package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"

	"github.com/assay-dev/assay/internal/adapter/outbound/memory"
)

// HealthResponse is the JSON response from the /health endpoint.
type HealthResponse struct {
	Status  string            `json:"status"`            // "healthy" or "unhealthy"
	Checks  map[string]string `json:"checks"`            // Component check results
	Version string            `json:"version,omitempty"` // Optional version info
}

// StorePinger is satisfied by the sqlite-backed result/cache store. Kept as
// a narrow interface here so the HTTP adapter doesn't import the storage
// package just to ask "are you alive".
type StorePinger interface {
	Ping() error
}

// HealthChecker verifies component health for the `assay doctor` command and
// the optional `run --metrics-addr` /health endpoint.
type HealthChecker struct {
	store       StorePinger
	rateLimiter *memory.MemoryRateLimiter
	cacheDir    string
	version     string
}

// NewHealthChecker creates a HealthChecker with optional components.
// Pass nil for components that aren't available.
func NewHealthChecker(
	store StorePinger,
	rateLimiter *memory.MemoryRateLimiter,
	cacheDir string,
	version string,
) *HealthChecker {
	return &HealthChecker{
		store:       store,
		rateLimiter: rateLimiter,
		cacheDir:    cacheDir,
		version:     version,
	}
}

// Check performs health checks on all components.
func (h *HealthChecker) Check() HealthResponse {
	checks := make(map[string]string)
	healthy := true

	if h.store != nil {
		if err := h.store.Ping(); err != nil {
			checks["store"] = fmt.Sprintf("unreachable: %v", err)
			healthy = false
		} else {
			checks["store"] = "ok"
		}
	} else {
		checks["store"] = "not configured"
	}

	if h.rateLimiter != nil {
		checks["judge_rate_limiter"] = fmt.Sprintf("ok: %d tracked keys", h.rateLimiter.Size())
	} else {
		checks["judge_rate_limiter"] = "not configured"
	}

	if h.cacheDir != "" {
		if err := checkWritable(h.cacheDir); err != nil {
			checks["cache_dir"] = fmt.Sprintf("not writable: %v", err)
			healthy = false
		} else {
			checks["cache_dir"] = "ok: " + h.cacheDir
		}
	} else {
		checks["cache_dir"] = "not configured"
	}

	checks["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())

	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	return HealthResponse{
		Status:  status,
		Checks:  checks,
		Version: h.version,
	}
}

// checkWritable verifies dir exists (creating it if missing) and accepts a
// probe file write.
func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	probe := filepath.Join(dir, ".assay-health-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return err
	}
	return os.Remove(probe)
}

// Handler returns an HTTP handler for the health endpoint.
func (h *HealthChecker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		health := h.Check()

		w.Header().Set("Content-Type", "application/json")
		if health.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable) // 503
		} else {
			w.WriteHeader(http.StatusOK) // 200
		}

		_ = json.NewEncoder(w).Encode(health)
	})
}
