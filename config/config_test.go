package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := ReadConfig(filepath.Join(t.TempDir(), "no-such.yaml"))
	if err != nil {
		t.Fatalf("missing file should not be an error, got %v", err)
	}
	def := DefaultConfig()
	if *cfg != *def {
		t.Errorf("expected defaults %+v, got %+v", def, cfg)
	}
}

func TestReadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "windowSize: 16\ndataTimeoutMs: 250\ndebug: true\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := ReadConfig(path)
	if err != nil {
		t.Fatalf("ReadConfig: %v", err)
	}
	if cfg.WindowSize != 16 {
		t.Errorf("WindowSize = %d, want 16", cfg.WindowSize)
	}
	if cfg.DataTimeoutMs != 250 {
		t.Errorf("DataTimeoutMs = %d, want 250", cfg.DataTimeoutMs)
	}
	if !cfg.Debug {
		t.Error("Debug should be true")
	}
	// untouched keys keep their defaults
	if cfg.HandshakeTimeoutMs != 800 {
		t.Errorf("HandshakeTimeoutMs = %d, want default 800", cfg.HandshakeTimeoutMs)
	}
}

func TestReadConfigBadYaml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(":\t not yaml ["), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadConfig(path); err == nil {
		t.Error("expected parse error for malformed yaml")
	}
}
