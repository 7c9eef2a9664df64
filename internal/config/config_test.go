package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// noEnv is a LookupFunc that reports every variable as unset.
func noEnv(string) (string, bool) { return "", false }

// envMap builds a LookupFunc from a map.
func envMap(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

// --- Default ---

func TestDefault_MatchesLauncherDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Launcher.Mode != ModeBoth {
		t.Errorf("Launcher.Mode = %s, want both", cfg.Launcher.Mode)
	}
	if cfg.Launcher.Port != 8001 {
		t.Errorf("Launcher.Port = %d, want 8001", cfg.Launcher.Port)
	}
	if cfg.Launcher.GracePeriod != 5*time.Second {
		t.Errorf("GracePeriod = %v, want 5s", cfg.Launcher.GracePeriod)
	}
	if !cfg.Web.EnableMCP {
		t.Error("Web.EnableMCP should default to true")
	}
	if cfg.MCP.Transport != TransportStdio {
		t.Errorf("MCP.Transport = %s, want stdio", cfg.MCP.Transport)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestDefault_ProvidersComplete(t *testing.T) {
	cfg := Default()
	for _, name := range []string{"google", "openai", "openrouter", "ollama", "anthropic"} {
		p, ok := cfg.Provider(name)
		if !ok {
			t.Errorf("provider %s missing", name)
			continue
		}
		if p.DefaultModel == "" {
			t.Errorf("provider %s has no default model", name)
		}
	}
}

// --- File loading ---

func TestMergeFile_YAML(t *testing.T) {
	path := writeFile(t, "deepwiki.yaml", `
data_dir: /tmp/dw
launcher:
  mode: web
  port: 9000
  grace_period: 2s
providers:
  openai:
    default_model: gpt-4.1
`)
	cfg := Default()
	if err := cfg.mergeFile(path); err != nil {
		t.Fatalf("mergeFile: %v", err)
	}
	cfg.fillDefaults()

	if cfg.DataDir != "/tmp/dw" {
		t.Errorf("DataDir = %s, want /tmp/dw", cfg.DataDir)
	}
	if cfg.Launcher.Mode != ModeWeb || cfg.Launcher.Port != 9000 {
		t.Errorf("launcher = %+v", cfg.Launcher)
	}
	if cfg.Launcher.GracePeriod != 2*time.Second {
		t.Errorf("GracePeriod = %v, want 2s", cfg.Launcher.GracePeriod)
	}
	// Untouched keys keep their defaults.
	if cfg.Launcher.PollInterval != time.Second {
		t.Errorf("PollInterval = %v, want 1s", cfg.Launcher.PollInterval)
	}
	openai := cfg.Providers["openai"]
	if openai.DefaultModel != "gpt-4.1" {
		t.Errorf("openai model = %s, want gpt-4.1", openai.DefaultModel)
	}
	if openai.APIKeyEnv != "OPENAI_API_KEY" {
		t.Errorf("openai api key env lost after partial override: %q", openai.APIKeyEnv)
	}
	if _, ok := cfg.Providers["google"]; !ok {
		t.Error("google provider should survive a partial providers section")
	}
}

func TestMergeFile_TOML(t *testing.T) {
	path := writeFile(t, "deepwiki.toml", `
data_dir = "/srv/deepwiki"

[launcher]
mode = "mcp"
split = true
grace_period = "3s"

[mcp]
transport = "http"
port = 9100
`)
	cfg := Default()
	if err := cfg.mergeFile(path); err != nil {
		t.Fatalf("mergeFile: %v", err)
	}

	if cfg.DataDir != "/srv/deepwiki" {
		t.Errorf("DataDir = %s", cfg.DataDir)
	}
	if cfg.Launcher.Mode != ModeMCP || !cfg.Launcher.Split {
		t.Errorf("launcher = %+v", cfg.Launcher)
	}
	if cfg.Launcher.GracePeriod != 3*time.Second {
		t.Errorf("GracePeriod = %v, want 3s", cfg.Launcher.GracePeriod)
	}
	if cfg.MCP.Transport != TransportHTTP || cfg.MCP.Port != 9100 {
		t.Errorf("mcp = %+v", cfg.MCP)
	}
}

func TestMergeFile_UnsupportedExtension(t *testing.T) {
	path := writeFile(t, "deepwiki.ini", "x=1")
	err := Default().mergeFile(path)
	if err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Errorf("expected unsupported format error, got %v", err)
	}
}

func TestMergeFile_Missing(t *testing.T) {
	err := Default().mergeFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Error("expected error for missing file")
	}
}

// --- Environment overlay ---

func TestApplyEnv_PortAndMCPFlag(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"PORT":              "8100",
		"ENABLE_MCP_SERVER": "false",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Web.Port != 8100 || cfg.Launcher.Port != 8100 {
		t.Errorf("ports = web %d launcher %d, want 8100", cfg.Web.Port, cfg.Launcher.Port)
	}
	if cfg.Web.EnableMCP {
		t.Error("ENABLE_MCP_SERVER=false should disable MCP")
	}
}

func TestApplyEnv_EnableMCPIsCaseInsensitive(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"TRUE", true},
		{" True ", true},
		{"false", false},
		{"yes", false},
		{"1", false},
	}
	for _, tt := range tests {
		cfg := Default()
		if err := cfg.ApplyEnv(envMap(map[string]string{"ENABLE_MCP_SERVER": tt.value})); err != nil {
			t.Fatalf("ApplyEnv(%q): %v", tt.value, err)
		}
		if cfg.Web.EnableMCP != tt.want {
			t.Errorf("ENABLE_MCP_SERVER=%q -> %v, want %v", tt.value, cfg.Web.EnableMCP, tt.want)
		}
	}
}

func TestApplyEnv_InvalidPort(t *testing.T) {
	err := Default().ApplyEnv(envMap(map[string]string{"PORT": "eighty"}))
	if err == nil {
		t.Error("expected error for non-numeric PORT")
	}
}

func TestApplyEnv_OllamaHostAndGrace(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"OLLAMA_HOST":           "http://gpu-box:11434",
		"DEEPWIKI_GRACE_PERIOD": "750ms",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if got := cfg.Providers["ollama"].BaseURL; got != "http://gpu-box:11434" {
		t.Errorf("ollama base url = %s", got)
	}
	if got := cfg.Providers["ollama"].DefaultModel; got == "" {
		t.Error("ollama default model lost when only the host is overridden")
	}
	if cfg.Launcher.GracePeriod != 750*time.Millisecond {
		t.Errorf("GracePeriod = %v", cfg.Launcher.GracePeriod)
	}
}

func TestApplyEnv_NothingSet(t *testing.T) {
	cfg := Default()
	if err := cfg.ApplyEnv(noEnv); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Web.Port != DefaultPort {
		t.Errorf("Web.Port = %d, want %d", cfg.Web.Port, DefaultPort)
	}
}

// --- Validate ---

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad mode", func(c *Config) { c.Launcher.Mode = "all" }, "launcher.mode"},
		{"bad transport", func(c *Config) { c.MCP.Transport = "grpc" }, "mcp.transport"},
		{"zero grace", func(c *Config) { c.Launcher.GracePeriod = 0 }, "grace_period"},
		{"port range", func(c *Config) { c.Web.Port = 70000 }, "web.port"},
		{"unknown provider", func(c *Config) { c.Engine.DefaultProvider = "bard" }, "default_provider"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

// --- Paths & example ---

func TestPaths_UnderDataDir(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/data"
	if cfg.ReposDir() != filepath.Join("/data", "repos") {
		t.Errorf("ReposDir = %s", cfg.ReposDir())
	}
	if cfg.WikiCachePath() != filepath.Join("/data", "wikicache.db") {
		t.Errorf("WikiCachePath = %s", cfg.WikiCachePath())
	}
	if cfg.LockPath() != filepath.Join("/data", "launcher.lock") {
		t.Errorf("LockPath = %s", cfg.LockPath())
	}
}

func TestExample_RoundTrips(t *testing.T) {
	path := writeFile(t, "example.yaml", Example())
	cfg := Default()
	if err := cfg.mergeFile(path); err != nil {
		t.Fatalf("example config does not parse: %v", err)
	}
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		t.Errorf("example config does not validate: %v", err)
	}
	if strings.HasPrefix(cfg.DataDir, "~") {
		t.Errorf("DataDir should be home-expanded, got %s", cfg.DataDir)
	}
}
