package web

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/faceverify/internal/cache"
	"github.com/kozaktomas/faceverify/internal/config"
	"github.com/kozaktomas/faceverify/internal/database/mock"
	"github.com/kozaktomas/faceverify/internal/imaging"
	"github.com/kozaktomas/faceverify/internal/recognition"
	"github.com/kozaktomas/faceverify/internal/recognition/recognitiontest"
	"github.com/kozaktomas/faceverify/internal/storage/local"
	"github.com/kozaktomas/faceverify/internal/verify"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Load()
	cfg.Web.RateLimit = 1000

	store, err := local.New(t.TempDir(), "")
	if err != nil {
		t.Fatalf("local.New failed: %v", err)
	}
	refs := mock.NewReferenceStore()

	rt := recognition.NewRuntime(recognitiontest.New(), recognition.PreferAuto, time.Second)
	orch := verify.NewOrchestrator(
		cache.New(cfg.Cache.Capacity, cfg.Cache.TTL),
		recognition.NewComputer(rt),
		imaging.NewAcquirer(imaging.Options{MaxSize: cfg.Face.MaxImageSize}),
		cfg.Face.Threshold,
	)
	service := verify.NewService(orch, refs, store, time.Hour)
	references := verify.NewReferences(orch, refs, store, time.Hour)
	return NewServer(cfg, service, references)
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestRoutes_VerifyFlow(t *testing.T) {
	s := newTestServer(t)
	face := base64.StdEncoding.EncodeToString(recognitiontest.FaceImage(4))

	// No reference yet.
	rec := doRequest(t, s, http.MethodPost, "/api/v1/verify-face", map[string]any{"employeeId": 42, "imageBase64": face})
	if rec.Code != http.StatusBadRequest || decode(t, rec)["kind"] != "reference_not_found" {
		t.Fatalf("expected reference_not_found, got %d %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, s, http.MethodPut, "/api/v1/employees/42/biometric-face", map[string]any{"imageBase64": face})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected reference upload to succeed, got %d %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, s, http.MethodPost, "/api/v1/verify-face", map[string]any{"employeeId": 42, "imageBase64": face})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	if body := decode(t, rec); body["match"] != true {
		t.Errorf("expected match, got %v", body)
	}

	other := base64.StdEncoding.EncodeToString(recognitiontest.FaceImage(5))
	rec = doRequest(t, s, http.MethodPost, "/api/v1/verify-face", map[string]any{"employeeId": 42, "imageBase64": other})
	if body := decode(t, rec); rec.Code != http.StatusOK || body["match"] != false {
		t.Errorf("expected no match, got %d %v", rec.Code, body)
	}

	blank := base64.StdEncoding.EncodeToString(recognitiontest.BlankImage())
	rec = doRequest(t, s, http.MethodPost, "/api/v1/verify-face", map[string]any{"employeeId": 42, "imageBase64": blank})
	if body := decode(t, rec); rec.Code != http.StatusBadRequest || body["side"] != "input" {
		t.Errorf("expected input-side no face, got %d %v", rec.Code, body)
	}

	rec = doRequest(t, s, http.MethodGet, "/api/v1/face-cache/stats", nil)
	if body := decode(t, rec); body["size"] != float64(1) {
		t.Errorf("expected one cached descriptor, got %v", body)
	}

	rec = doRequest(t, s, http.MethodDelete, "/api/v1/employees/42/biometric-face", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	rec = doRequest(t, s, http.MethodGet, "/api/v1/employees/42/biometric-face", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rec.Code)
	}
}

func TestRoutes_HealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := decode(t, rec); body["status"] != "loading" {
		t.Errorf("expected models not loaded yet, got %v", body)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}

	rec = doRequest(t, s, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Errorf("expected prometheus output, got %d", rec.Code)
	}
}

func TestRoutes_CacheAdmin(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodDelete, "/api/v1/face-cache/7", nil)
	if body := decode(t, rec); rec.Code != http.StatusOK || body["removed"] != false {
		t.Errorf("expected removed=false, got %d %v", rec.Code, body)
	}

	rec = doRequest(t, s, http.MethodDelete, "/api/v1/face-cache", nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func TestServer_Shutdown(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown of an unstarted server failed: %v", err)
	}
}
