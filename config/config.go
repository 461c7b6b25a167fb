// Package config loads deployment manifests for Parley. A manifest is a
// single YAML document declaring the agents to register, the MCP servers to
// bridge, and runtime settings for logging and the engine.
//
// Field values may reference environment variables as ${VAR}, $VAR, or
// ${VAR:-default}. References are expanded before the document is parsed,
// so every field supports them.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/parleyhq/parley/agent"
)

// Model providers accepted in an agent's provider field.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config is the root of a deployment manifest.
type Config struct {
	Logging LoggingConfig  `yaml:"logging"`
	Engine  EngineConfig   `yaml:"engine"`
	MCP     MCPConfig      `yaml:"mcp"`
	Agents  []agent.Config `yaml:"agents"`
}

// LoggingConfig selects the log level and output format.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string `yaml:"level"`
	// Format is text or json. Defaults to text.
	Format string `yaml:"format"`
}

// EngineConfig tunes the conversation engine.
type EngineConfig struct {
	// MaxDelegationDepth bounds agent-to-agent hops per top-level turn.
	// Zero means the engine default.
	MaxDelegationDepth int `yaml:"max_delegation_depth"`
	// Stream requests streaming generation from model backends. Unset
	// means the engine default.
	Stream *bool `yaml:"stream"`
}

// MCPConfig describes the MCP servers to bridge at startup. Intervals are
// given in seconds.
type MCPConfig struct {
	// HealthCheckInterval is the delay between background probe sweeps.
	// Zero means the pool default; a negative value disables the checker.
	HealthCheckInterval int `yaml:"health_check_interval"`
	// MaxIdle is how long a session may sit unused before a sweep closes
	// it. Zero means the pool default.
	MaxIdle int `yaml:"max_idle"`
	// Servers lists the server scripts to connect and register.
	Servers []ServerConfig `yaml:"servers"`
}

// ServerConfig identifies one MCP server script.
type ServerConfig struct {
	// Path is the server script on disk. Scripts ending in .py run under
	// python, anything else under node.
	Path string `yaml:"path"`
	// Resources controls whether server resources are exposed as read_*
	// tools. Unset means true.
	Resources *bool `yaml:"resources"`
	// AllowedAgents restricts the bridged tools to the named agents.
	// Empty means every agent may call them.
	AllowedAgents []string `yaml:"allowed_agents"`
}

// Load reads, expands, parses, and validates the manifest at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse expands environment references in raw, parses the result as YAML,
// applies defaults, and validates.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(ExpandEnv(string(raw))), &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	for i := range c.Agents {
		if c.Agents[i].Provider == "" {
			c.Agents[i].Provider = ProviderOpenAI
		}
	}
}

// Validate reports the first problem that would make the manifest unusable.
func (c *Config) Validate() error {
	if len(c.Agents) == 0 {
		return errors.New("no agents configured")
	}
	if c.Engine.MaxDelegationDepth < 0 {
		return errors.New("engine: max_delegation_depth must not be negative")
	}

	names := make(map[string]struct{}, len(c.Agents))
	ids := make(map[string]struct{}, len(c.Agents))
	for i, a := range c.Agents {
		if strings.TrimSpace(a.Name) == "" {
			return fmt.Errorf("agents[%d]: name is required", i)
		}
		if _, ok := names[a.Name]; ok {
			return fmt.Errorf("agents[%d]: duplicate name %q", i, a.Name)
		}
		names[a.Name] = struct{}{}
		if a.ID != "" {
			if _, ok := ids[a.ID]; ok {
				return fmt.Errorf("agents[%d]: duplicate id %q", i, a.ID)
			}
			ids[a.ID] = struct{}{}
		}
		switch a.Provider {
		case ProviderOpenAI, ProviderAnthropic:
		default:
			return fmt.Errorf("agents[%d]: unknown provider %q", i, a.Provider)
		}
	}

	paths := make(map[string]struct{}, len(c.MCP.Servers))
	for i, s := range c.MCP.Servers {
		if strings.TrimSpace(s.Path) == "" {
			return fmt.Errorf("mcp.servers[%d]: path is required", i)
		}
		if _, ok := paths[s.Path]; ok {
			return fmt.Errorf("mcp.servers[%d]: duplicate path %q", i, s.Path)
		}
		paths[s.Path] = struct{}{}
	}

	return nil
}
