package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kozaktomas/faceverify/internal/cache"
	"github.com/kozaktomas/faceverify/internal/verify"
)

func TestCacheHandler_Stats(t *testing.T) {
	fc := &fakeCache{stats: cache.Stats{Size: 3, Capacity: 500, TTL: 30 * time.Minute, Hits: 10, Misses: 4}}
	handler := NewCacheHandler(fc)

	rec := httptest.NewRecorder()
	handler.Stats(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["size"] != float64(3) || body["capacity"] != float64(500) || body["ttlSeconds"] != float64(1800) {
		t.Errorf("unexpected stats %v", body)
	}
}

func TestCacheHandler_ClearAndInvalidate(t *testing.T) {
	fc := &fakeCache{entries: map[int64]bool{5: true}}
	handler := NewCacheHandler(fc)

	rec := httptest.NewRecorder()
	handler.Invalidate(rec, requestWithChiParams(httptest.NewRequest(http.MethodDelete, "/", nil), map[string]string{"employeeId": "5"}))
	if rec.Code != http.StatusOK || decodeBody(t, rec)["removed"] != true {
		t.Errorf("expected removed=true, got %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.Invalidate(rec, requestWithChiParams(httptest.NewRequest(http.MethodDelete, "/", nil), map[string]string{"employeeId": "5"}))
	if decodeBody(t, rec)["removed"] != false {
		t.Error("expected removed=false for a missing entry")
	}

	rec = httptest.NewRecorder()
	handler.Clear(rec, httptest.NewRequest(http.MethodDelete, "/", nil))
	if rec.Code != http.StatusNoContent || !fc.cleared {
		t.Errorf("expected cache to be cleared, got %d", rec.Code)
	}
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name   string
		status verify.ModelStatus
		want   string
	}{
		{"loaded", verify.ModelStatus{Backend: "remote", Detector: "fast", Loaded: true}, "ok"},
		{"loading", verify.ModelStatus{Backend: "remote"}, "loading"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewHealthHandler(&fakeCache{modelStatus: tc.status})
			rec := httptest.NewRecorder()
			handler.Health(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			body := decodeBody(t, rec)
			if body["status"] != tc.want {
				t.Errorf("expected status %q, got %v", tc.want, body["status"])
			}
			models, _ := body["models"].(map[string]any)
			if models["backend"] != tc.status.Backend {
				t.Errorf("unexpected models %v", models)
			}
		})
	}
}
