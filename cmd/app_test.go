package cmd

import (
	"testing"

	"github.com/kozaktomas/faceverify/internal/config"
)

func TestSourceFor(t *testing.T) {
	tests := []struct {
		in      string
		wantURL bool
	}{
		{"https://example.com/a.jpg", true},
		{"http://localhost:9000/a.jpg", true},
		{"./photos/a.jpg", false},
		{"/tmp/a.jpg", false},
		{"file:///tmp/a.jpg", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			src := sourceFor(tt.in)
			if tt.wantURL && src.URL != tt.in {
				t.Errorf("expected URL source, got %+v", src)
			}
			if !tt.wantURL && src.Path != tt.in {
				t.Errorf("expected path source, got %+v", src)
			}
		})
	}
}

func TestParseEmployeeID(t *testing.T) {
	if id, err := parseEmployeeID("42"); err != nil || id != 42 {
		t.Errorf("parseEmployeeID(42) = %d, %v", id, err)
	}
	for _, bad := range []string{"", "abc", "0", "-3"} {
		if _, err := parseEmployeeID(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestNewOrchestrator_RemoteBackend(t *testing.T) {
	cfg := config.Load()
	cfg.Face.Backend = "remote"
	cfg.Face.Detector = "fast"

	o, err := newOrchestrator(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name := o.Runtime().Backend().Name(); name != "remote" {
		t.Errorf("expected remote backend, got %s", name)
	}
	if o.Runtime().Loaded() {
		t.Error("expected models to load lazily")
	}
	if o.Threshold() != cfg.Face.Threshold {
		t.Errorf("expected threshold %v, got %v", cfg.Face.Threshold, o.Threshold())
	}
}

func TestNewOrchestrator_RejectsUnknownDetector(t *testing.T) {
	cfg := config.Load()
	cfg.Face.Detector = "best"

	if _, err := newOrchestrator(cfg); err == nil {
		t.Error("expected error for unknown detector preference")
	}
}

func TestNewStore_Local(t *testing.T) {
	cfg := config.Load()
	cfg.Storage.Driver = "local"
	cfg.Storage.LocalDir = t.TempDir()

	if _, err := newStore(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewStore_AzureRequiresCredentials(t *testing.T) {
	cfg := config.Load()
	cfg.Storage.Driver = "azure"
	cfg.Storage.Azure = config.AzureConfig{}

	if _, err := newStore(cfg); err == nil {
		t.Error("expected error without azure credentials")
	}
}
