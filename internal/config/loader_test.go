package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mirevald/daybook/internal/config"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "daybook.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfigFile(t, sampleYAML)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("server.listen_addr: got %q, want :9090", cfg.Server.ListenAddr)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
	if !strings.Contains(err.Error(), "open") {
		t.Errorf("error should mention the open failure, got: %v", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfigFile(t, "server: [not a mapping")

	_, err := config.Load(path)
	if err == nil {
		t.Fatal("expected error for malformed yaml, got nil")
	}
}

func TestKnownProviderNames(t *testing.T) {
	if len(config.KnownProviderNames) == 0 {
		t.Fatal("KnownProviderNames should not be empty")
	}
	found := false
	for _, n := range config.KnownProviderNames {
		if n == "openai" {
			found = true
			break
		}
	}
	if !found {
		t.Error(`KnownProviderNames should contain "openai"`)
	}
}
