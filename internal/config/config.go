// Package config owns the gateway's yaml configuration schema.
//
// DESIGN: config is loaded once in cmd and handed around read-only. API
// keys support ${VAR} expansion so secrets stay in the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider types recognized by the dispatch layer. Any other type fails
// fast, before a network call.
const (
	ProviderTypeOpenAI    = "openai_compatible"
	ProviderTypeAnthropic = "anthropic"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Official  OfficialConfig  `yaml:"official"`
	Timeouts  TimeoutConfig   `yaml:"timeouts"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Routing   RoutingConfig   `yaml:"routing"`
	Providers []Provider      `yaml:"providers"`
	Summarize SummarizeConfig `yaml:"summarize"`
}

// ServerConfig configures the HTTP front.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// OfficialConfig points at the official backend used for get-models and as
// the fallback for unhandled endpoints.
type OfficialConfig struct {
	CompletionURL string `yaml:"completion_url"`
	APIToken      string `yaml:"api_token"`
}

// TimeoutConfig holds upstream call timeouts.
type TimeoutConfig struct {
	UpstreamMs int64 `yaml:"upstream_ms"`
}

// Upstream returns the configured upstream timeout as a duration.
func (t TimeoutConfig) Upstream() time.Duration {
	if t.UpstreamMs <= 0 {
		return DefaultUpstreamTimeout
	}
	return time.Duration(t.UpstreamMs) * time.Millisecond
}

// TelemetryConfig lists endpoints whose calls are answered with stubs
// instead of reaching any provider.
type TelemetryConfig struct {
	DisabledEndpoints []string `yaml:"disabled_endpoints"`
}

// Disabled reports whether the endpoint is telemetry-disabled.
func (t TelemetryConfig) Disabled(endpoint string) bool {
	for _, e := range t.DisabledEndpoints {
		if e == endpoint {
			return true
		}
	}
	return false
}

// RoutingConfig decides which provider answers which endpoint.
type RoutingConfig struct {
	DefaultProviderID string                   `yaml:"default_provider_id"`
	Endpoints         map[string]EndpointRoute `yaml:"endpoints"`
}

// EndpointRoute is a per-endpoint routing override.
type EndpointRoute struct {
	Mode       string `yaml:"mode"` // official | byok | disabled; empty means byok
	ProviderID string `yaml:"provider_id"`
	Model      string `yaml:"model"`
}

// Provider is one user-supplied model provider.
type Provider struct {
	ID              string            `yaml:"id"`
	Type            string            `yaml:"type"`
	BaseURL         string            `yaml:"base_url"`
	APIKey          string            `yaml:"api_key"`
	Headers         map[string]string `yaml:"headers"`
	RequestDefaults map[string]any    `yaml:"request_defaults"`
	DefaultModel    string            `yaml:"default_model"`
	Models          []string          `yaml:"models"`
}

// ResolveDefaultModel returns the provider's default model, falling back to
// its first listed model.
func (p *Provider) ResolveDefaultModel() string {
	if m := strings.TrimSpace(p.DefaultModel); m != "" {
		return m
	}
	if len(p.Models) > 0 {
		return strings.TrimSpace(p.Models[0])
	}
	return ""
}

// SummarizeConfig configures the best-effort auto-summarization that runs
// before a chat stream.
type SummarizeConfig struct {
	Enabled             bool   `yaml:"enabled"`
	TriggerTokens       int    `yaml:"trigger_tokens"`
	KeepRecentExchanges int    `yaml:"keep_recent_exchanges"`
	CachePath           string `yaml:"cache_path"`
	Model               string `yaml:"model"`
}

// ProviderByID returns the provider with the given id, or nil.
func (c *Config) ProviderByID(id string) *Provider {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	for i := range c.Providers {
		if strings.TrimSpace(c.Providers[i].ID) == id {
			return &c.Providers[i]
		}
	}
	return nil
}

// DefaultProvider returns the routing default provider, falling back to the
// first configured provider.
func (c *Config) DefaultProvider() *Provider {
	if p := c.ProviderByID(c.Routing.DefaultProviderID); p != nil {
		return p
	}
	if len(c.Providers) > 0 {
		return &c.Providers[0]
	}
	return nil
}

// Load reads and validates a yaml config file. API keys and the official
// token expand ${VAR} references against the environment.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	for i := range cfg.Providers {
		cfg.Providers[i].APIKey = os.ExpandEnv(cfg.Providers[i].APIKey)
	}
	cfg.Official.APIToken = os.ExpandEnv(cfg.Official.APIToken)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a config with defaults applied and no providers.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}
	if c.Server.ReadTimeout <= 0 {
		c.Server.ReadTimeout = DefaultServerReadTimeout
	}
	if c.Server.WriteTimeout <= 0 {
		c.Server.WriteTimeout = DefaultServerWriteTimeout
	}
	if c.Timeouts.UpstreamMs <= 0 {
		c.Timeouts.UpstreamMs = DefaultUpstreamTimeout.Milliseconds()
	}
	if c.Summarize.TriggerTokens <= 0 {
		c.Summarize.TriggerTokens = DefaultSummaryTriggerTokens
	}
	if c.Summarize.KeepRecentExchanges <= 0 {
		c.Summarize.KeepRecentExchanges = DefaultKeepRecentExchanges
	}
}

func (c *Config) validate() error {
	seen := make(map[string]bool)
	for i := range c.Providers {
		p := &c.Providers[i]
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return fmt.Errorf("provider %d: missing id", i)
		}
		if seen[id] {
			return fmt.Errorf("provider %q: duplicate id", id)
		}
		seen[id] = true
		switch p.Type {
		case ProviderTypeOpenAI, ProviderTypeAnthropic:
		default:
			return fmt.Errorf("provider %q: unknown type %q", id, p.Type)
		}
		if strings.TrimSpace(p.BaseURL) == "" {
			return fmt.Errorf("provider %q: missing base_url", id)
		}
	}
	return nil
}
