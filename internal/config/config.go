// Package config handles loading and validating ai-messenger configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Defaults shared by config parsing, CLI flags and tests.
const (
	DefaultHost           = "127.0.0.1"
	DefaultPort           = 8080
	DefaultBasePath       = ""
	DefaultLLMProvider    = "ollama"
	DefaultAdapterVersion = "latest"
)

// appDir is the per-user directory holding config and data by default.
const appDir = ".ai-messenger"

// Config is the root configuration for ai-messenger.
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Storage  StorageConfig  `json:"storage" yaml:"storage"`
	Adapters AdaptersConfig `json:"adapters" yaml:"adapters"`

	Observability *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled

	// configDir anchors relative data/cache paths to the config file location.
	configDir string
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	BasePath  string           `json:"base_path,omitempty" yaml:"base_path,omitempty"`   // URL prefix, e.g. "api". Default: "".
	Host      string           `json:"host,omitempty" yaml:"host,omitempty"`             // Default: 127.0.0.1.
	Port      int              `json:"port,omitempty" yaml:"port,omitempty"`             // Default: 8080.
	RateLimit *RateLimitConfig `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"` // nil = no rate limiting.
}

// RateLimitConfig configures per-sender rate limiting on the message
// endpoints.
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute"`
	BurstSize         int `json:"burst_size,omitempty" yaml:"burst_size,omitempty"` // Default: requests_per_minute.
}

// ListenAddr returns the host:port bind address.
func (s ServerConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig holds optional directory overrides. Paths support ~ expansion
// and, when relative, resolve against the config file's directory.
type StorageConfig struct {
	DataDir  string `json:"data_dir,omitempty" yaml:"data_dir,omitempty"`   // Default: ~/.ai-messenger/data. Override: AI_MESSENGER_DATA_DIR.
	CacheDir string `json:"cache_dir,omitempty" yaml:"cache_dir,omitempty"` // Default: ~/.ai-messenger/cache. Override: AI_MESSENGER_CACHE_DIR.
}

// ObservabilityConfig configures metrics and tracing. Nil disables both.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"` // Default: "/metrics".
}

// TracingConfig configures OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`                             // OTLP endpoint, e.g. "localhost:4317".
	Protocol    string  `json:"protocol,omitempty" yaml:"protocol,omitempty"`         // "grpc" (default) or "http".
	ServiceName string  `json:"service_name,omitempty" yaml:"service_name,omitempty"` // Default: "ai-messenger".
	SampleRate  float64 `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`   // 0.0–1.0. Default: 1.0.
	Insecure    bool    `json:"insecure,omitempty" yaml:"insecure,omitempty"`         // Skip TLS for dev.
}

// ServiceAdapterConfig configures one service's adapter module.
type ServiceAdapterConfig struct {
	Provider string         `json:"provider" yaml:"provider"`
	Version  string         `json:"version" yaml:"version"`
	Config   map[string]any `json:"config,omitempty" yaml:"config,omitempty"` // Opaque, passed to the module's init call.
}

// ModulePath derives the adapter module location:
// <data_dir>/adapters/<service>/<provider>/<version>/adapter.wasm.
func (s *ServiceAdapterConfig) ModulePath(dataDir, service string) string {
	return filepath.Join(dataDir, "adapters", service, s.Provider, s.Version, "adapter.wasm")
}

// ManifestPath derives the version-pinned manifest location.
func (s *ServiceAdapterConfig) ManifestPath(dataDir, service string) string {
	return filepath.Join(dataDir, "adapters", service, s.Provider, s.Version, "manifest.json")
}

// LatestManifestPath derives the unpinned manifest location, which takes
// precedence over the version-pinned one when present.
func (s *ServiceAdapterConfig) LatestManifestPath(dataDir, service string) string {
	return filepath.Join(dataDir, "adapters", service, s.Provider, "latest", "manifest.json")
}

// ConfigJSON encodes the opaque adapter configuration for the module's init
// call. An absent config becomes an empty JSON object.
func (s *ServiceAdapterConfig) ConfigJSON() (string, error) {
	if s.Config == nil {
		return "{}", nil
	}
	data, err := json.Marshal(s.Config)
	if err != nil {
		return "", fmt.Errorf("encoding adapter config for %s: %w", s.Provider, err)
	}
	return string(data), nil
}

// AdaptersConfig maps service names to adapter configs, preserving the order
// services were declared in. Registry initialization follows this order.
type AdaptersConfig struct {
	services map[string]*ServiceAdapterConfig
	order    []string
}

// Service returns the adapter config for a service name.
func (a *AdaptersConfig) Service(name string) (*ServiceAdapterConfig, bool) {
	sc, ok := a.services[name]
	return sc, ok
}

// Names returns service names in declared order.
func (a *AdaptersConfig) Names() []string {
	return append([]string(nil), a.order...)
}

// Len returns the number of configured services.
func (a *AdaptersConfig) Len() int { return len(a.services) }

// Set inserts or replaces a service entry, appending to the declared order
// when new. Used by defaults and tests.
func (a *AdaptersConfig) Set(name string, sc *ServiceAdapterConfig) {
	if a.services == nil {
		a.services = make(map[string]*ServiceAdapterConfig)
	}
	if _, exists := a.services[name]; !exists {
		a.order = append(a.order, name)
	}
	a.services[name] = sc
}

// UnmarshalYAML decodes the adapters mapping keeping declaration order.
func (a *AdaptersConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("adapters: expected a mapping, got %v", node.Tag)
	}
	a.services = make(map[string]*ServiceAdapterConfig, len(node.Content)/2)
	a.order = a.order[:0]
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		var sc ServiceAdapterConfig
		if err := node.Content[i+1].Decode(&sc); err != nil {
			return fmt.Errorf("adapters.%s: %w", name, err)
		}
		a.Set(name, &sc)
	}
	return nil
}

// UnmarshalJSON decodes the adapters mapping. JSON objects carry no order, so
// services fall back to sorted-name order.
func (a *AdaptersConfig) UnmarshalJSON(data []byte) error {
	var m map[string]*ServiceAdapterConfig
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	a.services = make(map[string]*ServiceAdapterConfig, len(m))
	a.order = a.order[:0]
	for _, name := range names {
		a.Set(name, m[name])
	}
	return nil
}

// MarshalJSON encodes the adapters mapping.
func (a AdaptersConfig) MarshalJSON() ([]byte, error) {
	if a.services == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(a.services)
}

// DefaultConfigPath returns the default config file path
// (~/.ai-messenger/config.yaml).
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "configs/ai-messenger.yaml" // fallback for environments without a home dir
	}
	return filepath.Join(home, appDir, "config.yaml")
}

// Load reads a YAML or JSON config file and returns a validated Config.
// The format is detected by file extension: .yml/.yaml for YAML, everything
// else for JSON. Environment variables take precedence over file values.
// A missing file yields the built-in defaults.
func Load(path string) (*Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}

	var cfg Config
	data, err := os.ReadFile(resolved)
	switch {
	case err == nil:
		switch ext := strings.ToLower(filepath.Ext(resolved)); ext {
		case ".yml", ".yaml":
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parsing YAML config %s: %w", resolved, err)
			}
		default:
			if err := json.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parsing JSON config %s: %w", resolved, err)
			}
		}
		cfg.configDir = filepath.Dir(resolved)
	case os.IsNotExist(err):
		// No config file: run on defaults.
	default:
		return nil, fmt.Errorf("reading config %s: %w", resolved, err)
	}

	cfg.applyDefaults()

	// Environment variable overrides — env vars take precedence over config values.
	if envDir := os.Getenv("AI_MESSENGER_DATA_DIR"); envDir != "" {
		cfg.Storage.DataDir = envDir
	}
	if envDir := os.Getenv("AI_MESSENGER_CACHE_DIR"); envDir != "" {
		cfg.Storage.CacheDir = envDir
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// applyDefaults fills unset fields, including the built-in ollama LLM adapter
// when no adapters are configured at all.
func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Adapters.Len() == 0 {
		c.Adapters.Set("llm", &ServiceAdapterConfig{
			Provider: DefaultLLMProvider,
			Version:  DefaultAdapterVersion,
		})
	}
	for _, name := range c.Adapters.Names() {
		sc, _ := c.Adapters.Service(name)
		if sc.Provider == "" {
			sc.Provider = DefaultLLMProvider
		}
		if sc.Version == "" {
			sc.Version = DefaultAdapterVersion
		}
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if rl := c.Server.RateLimit; rl != nil {
		if rl.RequestsPerMinute < 0 || rl.BurstSize < 0 {
			return fmt.Errorf("server.rate_limit values must not be negative")
		}
	}
	for _, name := range c.Adapters.Names() {
		sc, _ := c.Adapters.Service(name)
		for field, v := range map[string]string{"provider": sc.Provider, "version": sc.Version} {
			if v == ".." || strings.ContainsAny(v, `/\`) {
				return fmt.Errorf("adapters.%s.%s %q must be a single path segment", name, field, v)
			}
		}
	}
	return nil
}

// ResolvedDataDir returns the effective data directory for persistent data
// (adapter modules, manifests).
func (c *Config) ResolvedDataDir() string {
	return c.resolveDir(c.Storage.DataDir, "data")
}

// ResolvedCacheDir returns the effective cache directory (module compilation
// cache).
func (c *Config) ResolvedCacheDir() string {
	return c.resolveDir(c.Storage.CacheDir, "cache")
}

// resolveDir expands a configured directory: ~ expands to the home directory,
// relative paths anchor at the config file's directory. Empty falls back to
// ~/.ai-messenger/<name>.
func (c *Config) resolveDir(configured, name string) string {
	if configured == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return name
		}
		return filepath.Join(home, appDir, name)
	}

	path := configured
	if strings.HasPrefix(path, "~/") || path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	if !filepath.IsAbs(path) && c.configDir != "" {
		path = filepath.Join(c.configDir, path)
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}

// resolvePath expands ~ to the user home directory and returns an absolute path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}
