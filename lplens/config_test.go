package lplens

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigFile_KeepsDefaults(t *testing.T) {
	// WHAT: keys absent from the file keep their defaults; booleans that
	// default to true survive a file that does not mention them.
	path := filepath.Join(t.TempDir(), "lplens.yaml")
	data := "language: en\nbrowser:\n  remote_url: ws://chrome:9222\nreasoning:\n  protocol: openai\n  endpoint: http://vllm:8000/v1/chat/completions\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Language != "en" || cfg.Reasoning.Protocol != "openai" || cfg.Browser.RemoteURL != "ws://chrome:9222" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if !cfg.Browser.Stealth || !cfg.Scheduler.Enabled {
		t.Error("default-on switches were reset")
	}
	if cfg.Browser.Width != 1280 || cfg.Browser.Height != 900 || cfg.Metadata.Timeout != 10*time.Second {
		t.Errorf("defaults lost: %+v", cfg.Browser)
	}
	if cfg.Reasoning.Model != "claude-opus-4-5" || cfg.Reasoning.ImageMaxTokens != 4096 {
		t.Errorf("reasoning defaults lost: %+v", cfg.Reasoning)
	}
}

func TestLoadConfigFile_Errors(t *testing.T) {
	if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("browser: [unclosed"), 0o600)
	if _, err := LoadConfigFile(path); err == nil {
		t.Error("expected error for malformed yaml")
	}
}
