package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIBaseURL != "http://localhost:8780" {
		t.Fatalf("unexpected api base url: %q", cfg.APIBaseURL)
	}
	if cfg.Transport != "multi" {
		t.Fatalf("unexpected transport: %q", cfg.Transport)
	}
	if !cfg.Features.Typing {
		t.Fatalf("typing indicator should default on")
	}
	if cfg.Typing.MaxMS != 3000 || cfg.Typing.GapMS != 1500 {
		t.Fatalf("unexpected pacing defaults: %+v", cfg.Typing)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
api_base_url: https://chat.example.com
agent_id: leo
transport: stream
features:
  polling: true
typing:
  gap_ms: 200
stub:
  addr: ":9999"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIBaseURL != "https://chat.example.com" {
		t.Fatalf("file value not applied: %q", cfg.APIBaseURL)
	}
	if cfg.AgentID != "leo" || cfg.Transport != "stream" {
		t.Fatalf("unexpected agent/transport: %q %q", cfg.AgentID, cfg.Transport)
	}
	if !cfg.Features.Polling {
		t.Fatalf("polling flag not applied")
	}
	if cfg.Typing.GapMS != 200 {
		t.Fatalf("gap override not applied: %d", cfg.Typing.GapMS)
	}
	// untouched keys keep their defaults
	if cfg.Typing.MaxMS != 3000 {
		t.Fatalf("default lost after partial file: %d", cfg.Typing.MaxMS)
	}
	if cfg.Stub.Addr != ":9999" {
		t.Fatalf("stub addr not applied: %q", cfg.Stub.Addr)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("api_base_url: https://file.example.com\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PARLEY_API_URL", "https://env.example.com")
	t.Setenv("PARLEY_TRANSPORT", "single")
	t.Setenv("PARLEY_DEMO", "true")
	t.Setenv("PARLEY_TYPING_MAX_MS", "100")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIBaseURL != "https://env.example.com" {
		t.Fatalf("env should win over file, got %q", cfg.APIBaseURL)
	}
	if cfg.Transport != "single" || !cfg.Demo || cfg.Typing.MaxMS != 100 {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PARLEY_TRANSPORT", "carrier-pigeon")

	_, err := Load("")
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "transport") {
		t.Fatalf("error does not name the bad key: %v", err)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("api_base_url: [unclosed\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for an explicitly named missing file")
	}
}
