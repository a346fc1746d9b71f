package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  address: "127.0.0.1"
  port: 9090
  db_path: "/var/lib/colloquy"
provider:
  endpoint: "https://llm.example.com/v1"
  model: "m-large"
  max_retries: 5
  system_prompt: "You are a careful assistant."
hydration:
  window_size: 3
  max_resource_size: "1MB"
tools:
  user_dirs: ["/etc/colloquy/tools"]
  remote_servers:
    - id: "srv1"
      endpoint: "https://tools.example.com"
sweep:
  enabled: true
  cron: "0 4 * * *"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr() != "127.0.0.1:9090" {
		t.Fatalf("addr = %q", cfg.Addr())
	}
	if cfg.Provider.Endpoint != "https://llm.example.com/v1" || cfg.Provider.MaxRetries != 5 {
		t.Fatalf("provider = %+v", cfg.Provider)
	}
	if cfg.Provider.SystemPrompt != "You are a careful assistant." {
		t.Fatalf("system prompt = %q", cfg.Provider.SystemPrompt)
	}
	if cfg.Hydration.WindowSize != 3 {
		t.Fatalf("window = %d", cfg.Hydration.WindowSize)
	}
	if len(cfg.Tools.RemoteServers) != 1 || cfg.Tools.RemoteServers[0].ID != "srv1" {
		t.Fatalf("remote servers = %+v", cfg.Tools.RemoteServers)
	}
	if !cfg.Sweep.Enabled || cfg.Sweep.Cron != "0 4 * * *" {
		t.Fatalf("sweep = %+v", cfg.Sweep)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadEffectiveDefaults(t *testing.T) {
	cfg, err := LoadEffective(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadEffective: %v", err)
	}
	if cfg.Hydration.WindowSize != 2 {
		t.Fatalf("default window = %d", cfg.Hydration.WindowSize)
	}
	if cfg.Hydration.MaxResourceSize != "512KB" {
		t.Fatalf("default size = %q", cfg.Hydration.MaxResourceSize)
	}
	if cfg.Provider.MaxRetries != 3 {
		t.Fatalf("default retries = %d", cfg.Provider.MaxRetries)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("default level = %q", cfg.Logging.Level)
	}
	if cfg.Addr() != "0.0.0.0:8080" {
		t.Fatalf("default addr = %q", cfg.Addr())
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("COLLOQUY_ADDR", "10.0.0.1:7070")
	t.Setenv("COLLOQUY_DB_PATH", "/data/db")
	t.Setenv("COLLOQUY_MODEL", "m-small")
	t.Setenv("COLLOQUY_PROVIDER_ENDPOINT", "https://other.example.com")
	t.Setenv("COLLOQUY_TOOL_DIRS", "/a, /b ,")
	t.Setenv("COLLOQUY_HYDRATION_WINDOW", "7")
	t.Setenv("COLLOQUY_SWEEP_CRON", "30 2 * * *")

	cfg := &Config{}
	if !LoadEnvOverrides(cfg) {
		t.Fatalf("env overrides not detected")
	}
	if cfg.Server.Address != "10.0.0.1" || cfg.Server.Port != 7070 {
		t.Fatalf("addr = %s:%d", cfg.Server.Address, cfg.Server.Port)
	}
	if cfg.Server.DBPath != "/data/db" || cfg.Provider.Model != "m-small" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Provider.Endpoint != "https://other.example.com" {
		t.Fatalf("endpoint = %q", cfg.Provider.Endpoint)
	}
	if len(cfg.Tools.UserDirs) != 2 || cfg.Tools.UserDirs[1] != "/b" {
		t.Fatalf("tool dirs = %v", cfg.Tools.UserDirs)
	}
	if cfg.Hydration.WindowSize != 7 {
		t.Fatalf("window = %d", cfg.Hydration.WindowSize)
	}
	if !cfg.Sweep.Enabled || cfg.Sweep.Cron != "30 2 * * *" {
		t.Fatalf("sweep = %+v", cfg.Sweep)
	}
}

func TestResolveConfigPath(t *testing.T) {
	if got := ResolveConfigPath("/flag.yaml", true); got != "/flag.yaml" {
		t.Fatalf("explicit flag ignored: %q", got)
	}
	t.Setenv("COLLOQUY_CONFIG", "/env.yaml")
	if got := ResolveConfigPath("/default.yaml", false); got != "/env.yaml" {
		t.Fatalf("env not honored: %q", got)
	}
	os.Unsetenv("COLLOQUY_CONFIG")
	if got := ResolveConfigPath("/default.yaml", false); got != "/default.yaml" {
		t.Fatalf("default not used: %q", got)
	}
}

func TestParseSize(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"", 0},
		{"512KB", 512 * 1000},
		{"2 MiB", 2 * 1024 * 1024},
		{"100", 100},
	}
	for _, tc := range cases {
		got, err := ParseSize(tc.in)
		if err != nil {
			t.Fatalf("ParseSize(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseSize(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
	if _, err := ParseSize("lots"); err == nil {
		t.Fatalf("garbage size accepted")
	}
}

func TestMaxResourceBytes(t *testing.T) {
	cfg := &Config{}
	cfg.Hydration.MaxResourceSize = "1KB"
	if got := cfg.MaxResourceBytes(); got != 1000 {
		t.Fatalf("MaxResourceBytes = %d", got)
	}
	cfg.Hydration.MaxResourceSize = "bad"
	if got := cfg.MaxResourceBytes(); got != 0 {
		t.Fatalf("invalid size should yield 0, got %d", got)
	}
}
