// Package config loads deepwiki settings from a YAML or TOML file and
// overlays the environment variables the launcher and hosts exchange.
//
// Precedence, lowest first: built-in defaults, config file, environment.
// The launcher relies on the environment layer: it starts child processes
// with PORT and ENABLE_MCP_SERVER set, and the children pick them up here.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Launcher modes.
const (
	ModeWeb  = "web"
	ModeMCP  = "mcp"
	ModeBoth = "both"
)

// MCP transports.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
	TransportSSE   = "sse"
)

// DefaultPort is the web API port used when nothing else is configured.
const DefaultPort = 8001

// Config is the full deepwiki configuration.
type Config struct {
	// DataDir holds cloned repositories, the wiki cache database and the
	// launcher lock file (default ~/.deepwiki).
	DataDir string `yaml:"data_dir" toml:"data_dir"`

	Log       LogConfig                 `yaml:"log" toml:"log"`
	Launcher  LauncherConfig            `yaml:"launcher" toml:"launcher"`
	Web       WebConfig                 `yaml:"web" toml:"web"`
	MCP       MCPConfig                 `yaml:"mcp" toml:"mcp"`
	Engine    EngineConfig              `yaml:"engine" toml:"engine"`
	Providers map[string]ProviderConfig `yaml:"providers" toml:"providers"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`   // debug, info, warn, error
	Format string `yaml:"format" toml:"format"` // text or json
	// File, when set, receives a copy of every log line.
	File string `yaml:"file" toml:"file"`
}

// LauncherConfig controls the process supervisor used by "deepwiki start".
type LauncherConfig struct {
	Mode string `yaml:"mode" toml:"mode"`
	Port int    `yaml:"port" toml:"port"`
	// Split runs mode "both" as two independent child processes instead
	// of one process hosting both interfaces.
	Split        bool          `yaml:"split" toml:"split"`
	GracePeriod  time.Duration `yaml:"grace_period" toml:"grace_period"`
	PollInterval time.Duration `yaml:"poll_interval" toml:"poll_interval"`
}

// WebConfig controls the web host.
type WebConfig struct {
	Port            int           `yaml:"port" toml:"port"`
	EnableMCP       bool          `yaml:"enable_mcp" toml:"enable_mcp"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// MCPConfig controls the standalone MCP server.
type MCPConfig struct {
	Transport string `yaml:"transport" toml:"transport"`
	Port      int    `yaml:"port" toml:"port"`
}

// EngineConfig tunes the query engines created per repository.
type EngineConfig struct {
	DefaultProvider string `yaml:"default_provider" toml:"default_provider"`
	DefaultLanguage string `yaml:"default_language" toml:"default_language"`
	TopK            int    `yaml:"top_k" toml:"top_k"`
	ChunkLines      int    `yaml:"chunk_lines" toml:"chunk_lines"`
	MaxFileBytes    int64  `yaml:"max_file_bytes" toml:"max_file_bytes"`
}

// ProviderConfig describes one generation provider.
type ProviderConfig struct {
	DefaultModel string `yaml:"default_model" toml:"default_model"`
	BaseURL      string `yaml:"base_url" toml:"base_url"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env" toml:"api_key_env"`
}

// Default returns a Config populated with built-in defaults.
func Default() *Config {
	return &Config{
		DataDir: defaultDataDir(),
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Launcher: LauncherConfig{
			Mode:         ModeBoth,
			Port:         DefaultPort,
			GracePeriod:  5 * time.Second,
			PollInterval: time.Second,
		},
		Web: WebConfig{
			Port:            DefaultPort,
			EnableMCP:       true,
			ShutdownTimeout: 10 * time.Second,
		},
		MCP: MCPConfig{
			Transport: TransportStdio,
			Port:      DefaultPort + 1,
		},
		Engine: EngineConfig{
			DefaultProvider: "google",
			DefaultLanguage: "en",
			TopK:            5,
			ChunkLines:      60,
			MaxFileBytes:    1 << 20,
		},
		Providers: DefaultProviders(),
	}
}

// DefaultProviders returns the built-in provider table.
func DefaultProviders() map[string]ProviderConfig {
	return map[string]ProviderConfig{
		"google": {
			DefaultModel: "gemini-2.0-flash",
			APIKeyEnv:    "GOOGLE_API_KEY",
		},
		"openai": {
			DefaultModel: "gpt-4o",
			APIKeyEnv:    "OPENAI_API_KEY",
		},
		"openrouter": {
			DefaultModel: "openai/gpt-4o",
			BaseURL:      "https://openrouter.ai/api/v1",
			APIKeyEnv:    "OPENROUTER_API_KEY",
		},
		"ollama": {
			DefaultModel: "qwen3:1.7b",
			BaseURL:      "http://localhost:11434",
		},
		"anthropic": {
			DefaultModel: "claude-sonnet-4-5",
			APIKeyEnv:    "ANTHROPIC_API_KEY",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".deepwiki"
	}
	return filepath.Join(home, ".deepwiki")
}

// Load builds a Config from defaults, the optional file at path, and the
// process environment. An empty path skips the file layer.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeFile decodes path over the receiver. Keys absent from the file keep
// their current values.
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(c); err != nil {
			return fmt.Errorf("parsing config %s: %w", path, err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parsing config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported config format %q (use .yaml or .toml)", filepath.Ext(path))
	}
	return nil
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays environment variables onto the receiver.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	if v, ok := lookup("DEEPWIKI_DATA_DIR"); ok && v != "" {
		c.DataDir = v
	}
	if v, ok := lookup("DEEPWIKI_LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup("DEEPWIKI_LOG_FORMAT"); ok && v != "" {
		c.Log.Format = v
	}
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Web.Port = port
		c.Launcher.Port = port
	}
	if v, ok := lookup("ENABLE_MCP_SERVER"); ok && v != "" {
		// Anything other than "true" disables the integration.
		c.Web.EnableMCP = strings.EqualFold(strings.TrimSpace(v), "true")
	}
	if v, ok := lookup("DEEPWIKI_GRACE_PERIOD"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid DEEPWIKI_GRACE_PERIOD %q: %w", v, err)
		}
		c.Launcher.GracePeriod = d
	}
	if v, ok := lookup("OLLAMA_HOST"); ok && v != "" {
		p := c.Providers["ollama"]
		p.BaseURL = v
		if c.Providers == nil {
			c.Providers = map[string]ProviderConfig{}
		}
		c.Providers["ollama"] = p
	}
	return nil
}

// fillDefaults restores zero values a partial config file may leave behind.
func (c *Config) fillDefaults() {
	d := Default()
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	c.DataDir = ExpandHome(c.DataDir)
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Launcher.Mode == "" {
		c.Launcher.Mode = d.Launcher.Mode
	}
	if c.Launcher.Port == 0 {
		c.Launcher.Port = d.Launcher.Port
	}
	if c.Launcher.GracePeriod == 0 {
		c.Launcher.GracePeriod = d.Launcher.GracePeriod
	}
	if c.Launcher.PollInterval == 0 {
		c.Launcher.PollInterval = d.Launcher.PollInterval
	}
	if c.Web.Port == 0 {
		c.Web.Port = d.Web.Port
	}
	if c.Web.ShutdownTimeout == 0 {
		c.Web.ShutdownTimeout = d.Web.ShutdownTimeout
	}
	if c.MCP.Transport == "" {
		c.MCP.Transport = d.MCP.Transport
	}
	if c.MCP.Port == 0 {
		c.MCP.Port = d.MCP.Port
	}
	if c.Engine.DefaultProvider == "" {
		c.Engine.DefaultProvider = d.Engine.DefaultProvider
	}
	if c.Engine.DefaultLanguage == "" {
		c.Engine.DefaultLanguage = d.Engine.DefaultLanguage
	}
	if c.Engine.TopK <= 0 {
		c.Engine.TopK = d.Engine.TopK
	}
	if c.Engine.ChunkLines <= 0 {
		c.Engine.ChunkLines = d.Engine.ChunkLines
	}
	if c.Engine.MaxFileBytes <= 0 {
		c.Engine.MaxFileBytes = d.Engine.MaxFileBytes
	}
	if c.Providers == nil {
		c.Providers = map[string]ProviderConfig{}
	}
	for name, p := range d.Providers {
		cur, ok := c.Providers[name]
		if !ok {
			c.Providers[name] = p
			continue
		}
		if cur.DefaultModel == "" {
			cur.DefaultModel = p.DefaultModel
		}
		if cur.BaseURL == "" {
			cur.BaseURL = p.BaseURL
		}
		if cur.APIKeyEnv == "" {
			cur.APIKeyEnv = p.APIKeyEnv
		}
		c.Providers[name] = cur
	}
}

// Validate reports every invalid setting, joined.
func (c *Config) Validate() error {
	var errs []error
	switch c.Launcher.Mode {
	case ModeWeb, ModeMCP, ModeBoth:
	default:
		errs = append(errs, fmt.Errorf("launcher.mode must be one of web, mcp, both (got %q)", c.Launcher.Mode))
	}
	switch c.MCP.Transport {
	case TransportStdio, TransportHTTP, TransportSSE:
	default:
		errs = append(errs, fmt.Errorf("mcp.transport must be one of stdio, http, sse (got %q)", c.MCP.Transport))
	}
	for name, port := range map[string]int{"launcher.port": c.Launcher.Port, "web.port": c.Web.Port, "mcp.port": c.MCP.Port} {
		if port < 1 || port > 65535 {
			errs = append(errs, fmt.Errorf("%s out of range: %d", name, port))
		}
	}
	if c.Launcher.GracePeriod <= 0 {
		errs = append(errs, fmt.Errorf("launcher.grace_period must be positive"))
	}
	if c.Launcher.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("launcher.poll_interval must be positive"))
	}
	if c.Web.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("web.shutdown_timeout must be positive"))
	}
	if _, ok := c.Providers[c.Engine.DefaultProvider]; !ok {
		errs = append(errs, fmt.Errorf("engine.default_provider %q is not a configured provider", c.Engine.DefaultProvider))
	}
	return errors.Join(errs...)
}

// Provider returns the settings for name and whether it is configured.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	p, ok := c.Providers[name]
	return p, ok
}

// ReposDir is where remote repositories are cloned.
func (c *Config) ReposDir() string {
	return filepath.Join(c.DataDir, "repos")
}

// WikiCachePath is the SQLite database backing the wiki cache.
func (c *Config) WikiCachePath() string {
	return filepath.Join(c.DataDir, "wikicache.db")
}

// LockPath is the launcher's single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.DataDir, "launcher.lock")
}

// Example returns a commented YAML config suitable for "deepwiki config init".
func Example() string {
	return `# deepwiki configuration
# Environment variables PORT, ENABLE_MCP_SERVER, DEEPWIKI_DATA_DIR,
# DEEPWIKI_LOG_LEVEL, DEEPWIKI_GRACE_PERIOD and OLLAMA_HOST override
# the values below.

data_dir: ~/.deepwiki

log:
  level: info
  format: text
  file: ""

launcher:
  mode: both          # web, mcp or both
  port: 8001
  split: false        # run "both" as two independent processes
  grace_period: 5s
  poll_interval: 1s

web:
  port: 8001
  enable_mcp: true
  shutdown_timeout: 10s

mcp:
  transport: stdio    # stdio, http or sse
  port: 8002

engine:
  default_provider: google
  default_language: en
  top_k: 5
  chunk_lines: 60
  max_file_bytes: 1048576

# API keys are read from the environment variables named here.
providers:
  google:
    default_model: gemini-2.0-flash
    api_key_env: GOOGLE_API_KEY
  openai:
    default_model: gpt-4o
    api_key_env: OPENAI_API_KEY
  openrouter:
    default_model: openai/gpt-4o
    base_url: https://openrouter.ai/api/v1
    api_key_env: OPENROUTER_API_KEY
  ollama:
    default_model: qwen3:1.7b
    base_url: http://localhost:11434
  anthropic:
    default_model: claude-sonnet-4-5
    api_key_env: ANTHROPIC_API_KEY
`
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
