package storage

import (
	"strings"
	"testing"
)

func TestBuildKey(t *testing.T) {
	tests := []struct {
		name     string
		root     string
		folder   string
		object   string
		expected string
	}{
		{"all parts", "prod", "biometric", "a.jpg", "prod/biometric/a.jpg"},
		{"no root", "", "biometric", "a.jpg", "biometric/a.jpg"},
		{"slashes trimmed", "/prod/", "/biometric/", "a.jpg", "prod/biometric/a.jpg"},
		{"nested root", "tenant/1", "biometric", "a.jpg", "tenant/1/biometric/a.jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildKey(tt.root, tt.folder, tt.object, "image/jpeg")
			if got != tt.expected {
				t.Errorf("BuildKey() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestBuildKey_GeneratesName(t *testing.T) {
	a := BuildKey("", "biometric", "", "image/png")
	b := BuildKey("", "biometric", "", "image/png")

	if a == b {
		t.Errorf("expected generated names to differ, both were %q", a)
	}
	if !strings.HasPrefix(a, "biometric/") || !strings.HasSuffix(a, ".png") {
		t.Errorf("unexpected generated key %q", a)
	}
}
