// Package config declares the modguard configuration file format and its
// loading logic.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/modguard/modguard/pkg/domain"
)

// Config is the root of a modguard.yaml file.
type Config struct {
	// Layers re-declares the layer ordering, highest first. Empty keeps the
	// built-in ordering.
	Layers  []domain.Layer `yaml:"layers"`
	Modules []ModuleConfig `yaml:"modules"`
	Rules   RulesConfig    `yaml:"rules"`
	Server  ServerConfig   `yaml:"server"`

	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`

	// dir is the directory of the config file, used to resolve relative
	// policy paths. Not serialized.
	dir string
}

// ModuleConfig declares one module and its outgoing imports.
type ModuleConfig struct {
	Name       string            `yaml:"name"`
	Domain     string            `yaml:"domain"`
	Layer      domain.Layer      `yaml:"layer"`
	Visibility domain.Visibility `yaml:"visibility"`
	Imports    []string          `yaml:"imports"`
}

// Module converts the declaration to the domain type, applying the private
// default for visibility.
func (m ModuleConfig) Module() domain.Module {
	vis := m.Visibility
	if vis == "" {
		vis = domain.VisibilityPrivate
	}
	return domain.Module{
		Name:       m.Name,
		Domain:     m.Domain,
		Layer:      m.Layer,
		Visibility: vis,
	}
}

// RulesConfig holds the extension rules applied after the builtins.
type RulesConfig struct {
	Expressions []ExpressionRuleConfig `yaml:"expressions"`
	Rego        []RegoModuleConfig     `yaml:"rego"`
	// CacheMaxEntries bounds the Rego decision cache. Zero keeps the
	// default; negative disables caching.
	CacheMaxEntries int `yaml:"cache_max_entries"`
}

// ExpressionRuleConfig is a deny expression with its reason identifier.
type ExpressionRuleConfig struct {
	Reason string `yaml:"reason"`
	Deny   string `yaml:"deny"`
}

// RegoModuleConfig points at a Rego policy file, or carries the source
// inline.
type RegoModuleConfig struct {
	Name   string `yaml:"name"`
	Path   string `yaml:"path"`
	Source string `yaml:"source"`
}

// ServerConfig configures the watch-mode HTTP endpoint.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// TelemetryConfig holds configuration for OpenTelemetry.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from a file and applies environment variable
// overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{
		// Defaults
		Server: ServerConfig{
			Address: ":8099",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}

	//nolint:gosec // Config file path is controlled by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	cfg.dir = filepath.Dir(path)

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("MODGUARD_SERVER_ADDR"); val != "" {
		cfg.Server.Address = val
	}
	if val := os.Getenv("MODGUARD_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
	}
	if val := os.Getenv("MODGUARD_OTLP_INSECURE"); val == "true" {
		cfg.Telemetry.Insecure = true
	}
	if val := os.Getenv("MODGUARD_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
}

// Validate checks structural consistency: layers well formed, modules
// declared against the effective layer set, imports non-empty strings.
// Unknown import targets are not an error here; the graph builder reports
// them with full context.
func (c *Config) Validate() error {
	layers := c.EffectiveLayers()
	seen := make(map[domain.Layer]struct{}, len(layers))
	for _, l := range layers {
		if l == "" {
			return fmt.Errorf("%w: empty layer name", domain.ErrConfigInvalid)
		}
		if _, dup := seen[l]; dup {
			return fmt.Errorf("%w: layer %q declared twice", domain.ErrConfigInvalid, l)
		}
		seen[l] = struct{}{}
	}

	if len(c.Modules) == 0 {
		return fmt.Errorf("%w: no modules declared", domain.ErrConfigInvalid)
	}
	for _, mc := range c.Modules {
		if err := mc.Module().Validate(layers); err != nil {
			return err
		}
		for _, imp := range mc.Imports {
			if strings.TrimSpace(imp) == "" {
				return fmt.Errorf("%w: module %q has an empty import", domain.ErrConfigInvalid, mc.Name)
			}
		}
	}

	for _, er := range c.Rules.Expressions {
		if er.Reason == "" {
			return fmt.Errorf("%w: expression rule without reason", domain.ErrConfigInvalid)
		}
		if strings.TrimSpace(er.Deny) == "" {
			return fmt.Errorf("%w: expression rule %q has no deny expression", domain.ErrConfigInvalid, er.Reason)
		}
	}
	for _, rm := range c.Rules.Rego {
		if rm.Name == "" {
			return fmt.Errorf("%w: rego module without name", domain.ErrConfigInvalid)
		}
		if rm.Path == "" && rm.Source == "" {
			return fmt.Errorf("%w: rego module %q has neither path nor source", domain.ErrConfigInvalid, rm.Name)
		}
		if rm.Path != "" && rm.Source != "" {
			return fmt.Errorf("%w: rego module %q has both path and source", domain.ErrConfigInvalid, rm.Name)
		}
	}

	return nil
}

// EffectiveLayers returns the configured layer ordering, or the default.
func (c *Config) EffectiveLayers() []domain.Layer {
	if len(c.Layers) > 0 {
		return c.Layers
	}
	return domain.DefaultLayerOrder
}

// RegoSources resolves the configured Rego modules to name -> source,
// reading path-based modules relative to the config file directory.
func (c *Config) RegoSources() (map[string]string, error) {
	if len(c.Rules.Rego) == 0 {
		return nil, nil
	}

	sources := make(map[string]string, len(c.Rules.Rego))
	for _, rm := range c.Rules.Rego {
		if rm.Source != "" {
			sources[rm.Name] = rm.Source
			continue
		}
		path := rm.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(c.dir, path)
		}
		//nolint:gosec // Policy paths come from the operator's config file
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read rego module %q: %w", rm.Name, err)
		}
		sources[rm.Name] = string(data)
	}
	return sources, nil
}
