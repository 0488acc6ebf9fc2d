package azure

import (
	"context"
	"encoding/base64"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/faceverify/internal/config"
)

func testConfig() config.StorageConfig {
	return config.StorageConfig{
		Driver:   "azure",
		RootPath: "prod",
		Azure: config.AzureConfig{
			AccountName:   "faceverify",
			AccountKey:    base64.StdEncoding.EncodeToString([]byte("not-a-real-key")),
			ContainerName: "photos",
		},
	}
}

func TestNew_RequiresCredentials(t *testing.T) {
	cfg := testConfig()
	cfg.Azure.AccountKey = ""

	if _, err := New(cfg, ""); err == nil {
		t.Error("expected error for missing account key")
	}
}

func TestSignedURL(t *testing.T) {
	s, err := New(testConfig(), "")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	raw, err := s.SignedURL(context.Background(), "prod/biometric/a b.jpg", time.Hour)
	if err != nil {
		t.Fatalf("SignedURL failed: %v", err)
	}

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("invalid URL %q: %v", raw, err)
	}
	if u.Host != "faceverify.blob.core.windows.net" {
		t.Errorf("unexpected host %q", u.Host)
	}
	if u.Path != "/photos/prod/biometric/a b.jpg" {
		t.Errorf("unexpected path %q", u.Path)
	}

	q := u.Query()
	if q.Get("sp") != "r" {
		t.Errorf("expected read-only permission, got %q", q.Get("sp"))
	}
	if q.Get("sig") == "" {
		t.Error("expected a signature")
	}
	expiry, err := time.Parse(time.RFC3339, q.Get("se"))
	if err != nil {
		t.Fatalf("invalid expiry %q: %v", q.Get("se"), err)
	}
	if d := time.Until(expiry); d < 55*time.Minute || d > 61*time.Minute {
		t.Errorf("expected expiry about an hour out, got %s", d)
	}
}

func TestSignedURL_ServiceOverride(t *testing.T) {
	s, err := New(testConfig(), "http://127.0.0.1:10000/faceverify/")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	raw, err := s.SignedURL(context.Background(), "k.jpg", time.Minute)
	if err != nil {
		t.Fatalf("SignedURL failed: %v", err)
	}
	if !strings.HasPrefix(raw, "http://127.0.0.1:10000/faceverify/photos/k.jpg?") {
		t.Errorf("unexpected URL %q", raw)
	}
}
