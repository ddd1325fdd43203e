package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/assay-dev/assay/internal/adapter/outbound/memory"
)

type fakePinger struct{ err error }

func (f fakePinger) Ping() error { return f.err }

func TestHealthChecker_Healthy(t *testing.T) {
	rateLimiter := memory.NewRateLimiter()
	defer rateLimiter.Stop()

	cacheDir := t.TempDir()
	hc := NewHealthChecker(fakePinger{}, rateLimiter, cacheDir, "test-version")

	health := hc.Check()

	if health.Status != "healthy" {
		t.Errorf("Status = %q, want healthy", health.Status)
	}
	if health.Version != "test-version" {
		t.Errorf("Version = %q, want test-version", health.Version)
	}
	if health.Checks["store"] != "ok" {
		t.Errorf("store check = %q, want ok", health.Checks["store"])
	}
	if health.Checks["judge_rate_limiter"] == "" {
		t.Error("judge_rate_limiter check should be present")
	}
}

func TestHealthChecker_NilComponents(t *testing.T) {
	hc := NewHealthChecker(nil, nil, "", "")
	health := hc.Check()

	if health.Status != "healthy" {
		t.Errorf("Status = %q, want healthy", health.Status)
	}
	if health.Checks["store"] != "not configured" {
		t.Errorf("store = %q, want 'not configured'", health.Checks["store"])
	}
	if health.Checks["judge_rate_limiter"] != "not configured" {
		t.Errorf("judge_rate_limiter = %q, want 'not configured'", health.Checks["judge_rate_limiter"])
	}
	if health.Checks["cache_dir"] != "not configured" {
		t.Errorf("cache_dir = %q, want 'not configured'", health.Checks["cache_dir"])
	}
}

func TestHealthChecker_Handler_HTTP(t *testing.T) {
	hc := NewHealthChecker(fakePinger{}, nil, t.TempDir(), "1.0.0")

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()

	hc.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Status code = %d, want %d", rec.Code, http.StatusOK)
	}

	contentType := rec.Header().Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", contentType)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if resp.Status != "healthy" {
		t.Errorf("Response status = %q, want healthy", resp.Status)
	}
	if resp.Version != "1.0.0" {
		t.Errorf("Response version = %q, want 1.0.0", resp.Version)
	}
}

func TestHealthChecker_Unhealthy_StoreUnreachable(t *testing.T) {
	hc := NewHealthChecker(fakePinger{err: errors.New("database is locked")}, nil, "", "")
	health := hc.Check()

	if health.Status != "unhealthy" {
		t.Errorf("Status = %q, want unhealthy (store unreachable)", health.Status)
	}
}

func TestHealthChecker_Handler_Unhealthy_503(t *testing.T) {
	hc := NewHealthChecker(fakePinger{err: errors.New("database is locked")}, nil, "", "")

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()

	hc.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Status code = %d, want %d (503 Service Unavailable)", rec.Code, http.StatusServiceUnavailable)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if resp.Status != "unhealthy" {
		t.Errorf("Response status = %q, want unhealthy", resp.Status)
	}
}

func TestHealthChecker_GoroutineCount(t *testing.T) {
	hc := NewHealthChecker(nil, nil, "", "")
	health := hc.Check()

	if health.Checks["goroutines"] == "" {
		t.Error("goroutines check should be present")
	}
	if health.Checks["goroutines"] == "0" {
		t.Error("goroutines count should be > 0")
	}
}
