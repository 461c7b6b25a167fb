// Package parley provides a high-level façade over the conversation engine
// and its services (agent directory, tool catalog, MCP sessions & logging)
// enabling rapid construction of multi-agent systems. Most applications
// interact with this package by:
//  1. Creating a Parley via New() (or NewFromConfig() for manifest-driven setups)
//  2. Registering agents, local tools, and MCP servers
//  3. Running top-level conversation turns with Run()
//
// The façade delegates orchestration to engine.Engine while keeping setup and
// usage ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply a structured logger and an
// output sink.
package parley

import (
	"context"
	"fmt"
	"os"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/parleyhq/parley/agent"
	"github.com/parleyhq/parley/config"
	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/engine"
	"github.com/parleyhq/parley/logging"
	"github.com/parleyhq/parley/mcp"
	"github.com/parleyhq/parley/model"
	"github.com/parleyhq/parley/model/anthropic"
	"github.com/parleyhq/parley/model/openai"
	"github.com/parleyhq/parley/tool"
)

// Options configures the Parley instance.
type Options struct {
	// Logger receives structured events from the engine, the tool catalog,
	// and the MCP session pool. Defaults to NoOp.
	Logger logging.Logger

	// Sink receives agent output. Defaults to a silent sink; interactive
	// callers typically pass core.NewWriterSink(os.Stdout).
	Sink core.OutputSink

	// MaxDelegationDepth bounds agent-to-agent hops per top-level turn.
	MaxDelegationDepth int

	// Stream requests streaming generation so sinks receive text while the
	// backend produces it.
	Stream bool

	// Pool overrides the MCP session pool. Mainly for tests; when nil the
	// instance owns a fresh pool wired to Logger.
	Pool *mcp.SessionPool
}

// Parley is the high-level façade aggregating the engine, the agent
// directory, the tool catalog, and the MCP session pool.
type Parley struct {
	catalog   *tool.Catalog
	directory *agent.Directory
	engine    *engine.Engine
	pool      *mcp.SessionPool
	logger    logging.Logger
}

// New creates a new Parley instance with optional overrides.
func New(optFns ...func(o *Options)) *Parley {
	opts := Options{
		Logger:             logging.NoOpLogger{},
		Sink:               core.NoOpSink{},
		MaxDelegationDepth: engine.DefaultMaxDelegationDepth,
		Stream:             true,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	directory := agent.NewDirectory()
	catalog := tool.NewCatalog(func(o *tool.CatalogOptions) {
		o.Logger = opts.Logger
		o.Aliases = directory
	})

	eng := engine.New(catalog, directory, func(o *engine.Options) {
		o.Logger = opts.Logger
		o.Sink = opts.Sink
		o.MaxDelegationDepth = opts.MaxDelegationDepth
		o.Stream = opts.Stream
	})

	pool := opts.Pool
	if pool == nil {
		pool = mcp.NewSessionPool(func(o *mcp.Options) {
			o.Logger = opts.Logger
		})
	}

	// Peer discovery is part of the standard surface. The catalog is fresh,
	// so the registration cannot collide.
	_ = catalog.Register(engine.NewListAgentsTool(directory))

	return &Parley{
		catalog:   catalog,
		directory: directory,
		engine:    eng,
		pool:      pool,
		logger:    opts.Logger,
	}
}

// NewFromConfig builds a fully wired Parley from a deployment manifest:
// structured logging, engine settings, every configured agent with its
// backend model, and every MCP server. The pool's health checker starts when
// the manifest lists servers and does not disable it. Later optFns win over
// manifest-derived settings, so callers can still override the sink or the
// logger in code.
func NewFromConfig(ctx context.Context, cfg *config.Config, optFns ...func(o *Options)) (*Parley, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	logger := logging.NewStructuredLogger(os.Stderr, level, cfg.Logging.Format)

	pool := mcp.NewSessionPool(func(o *mcp.Options) {
		o.Logger = logger
		if cfg.MCP.MaxIdle > 0 {
			o.MaxIdle = time.Duration(cfg.MCP.MaxIdle) * time.Second
		}
	})

	fns := append([]func(o *Options){func(o *Options) {
		o.Logger = logger
		o.Pool = pool
		if cfg.Engine.MaxDelegationDepth > 0 {
			o.MaxDelegationDepth = cfg.Engine.MaxDelegationDepth
		}
		if cfg.Engine.Stream != nil {
			o.Stream = *cfg.Engine.Stream
		}
	}}, optFns...)

	p := New(fns...)

	for _, ac := range cfg.Agents {
		llm, err := newModel(ac)
		if err != nil {
			return nil, err
		}
		if _, err := p.RegisterAgent(ac, llm); err != nil {
			return nil, err
		}
	}

	for _, server := range cfg.MCP.Servers {
		_, err := p.RegisterMCPServer(ctx, server.Path, func(o *mcp.RegisterOptions) {
			if server.Resources != nil {
				o.Resources = *server.Resources
			}
			o.AllowedAgents = server.AllowedAgents
		})
		if err != nil {
			p.Shutdown()
			return nil, err
		}
	}

	if len(cfg.MCP.Servers) > 0 && cfg.MCP.HealthCheckInterval >= 0 {
		p.StartHealthCheck(time.Duration(cfg.MCP.HealthCheckInterval) * time.Second)
	}

	return p, nil
}

// newModel constructs the backend client for one agent entry.
func newModel(cfg agent.Config) (model.Model, error) {
	switch cfg.Provider {
	case "", config.ProviderOpenAI:
		return openai.NewModel(func(o *openai.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		}), nil
	case config.ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.Model != "" {
				o.Model = anthropicsdk.Model(cfg.Model)
			}
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		}), nil
	default:
		return nil, fmt.Errorf("agent %q: unknown provider %q", cfg.Name, cfg.Provider)
	}
}

// RegisterAgent builds an agent from its configuration and backend model and
// adds it to the directory under both its id and its name.
func (p *Parley) RegisterAgent(cfg agent.Config, llm model.Model) (*agent.Agent, error) {
	a, err := agent.New(cfg, llm)
	if err != nil {
		return nil, err
	}
	if err := p.directory.Register(a); err != nil {
		return nil, err
	}
	return a, nil
}

// RegisterTool adds a local tool to the catalog. An empty allowedAgents set
// means every agent may call it.
func (p *Parley) RegisterTool(t tool.Tool, allowedAgents ...string) error {
	return p.catalog.Register(t, allowedAgents...)
}

// RegisterMCPServer connects to the MCP server script at path and registers
// its tools, plus one read_* tool per server resource, in the catalog. It
// returns the number of catalog entries added. Reconnection is lazy: a
// server that dies later is redialed on the next call that needs it.
func (p *Parley) RegisterMCPServer(ctx context.Context, path string, optFns ...func(o *mcp.RegisterOptions)) (int, error) {
	return p.pool.RegisterTools(ctx, p.catalog, path, optFns...)
}

// Run executes one top-level conversation turn for the agent addressed by
// key (UUID or display name) and returns the agent's final output.
func (p *Parley) Run(ctx context.Context, agentKey, message string, optFns ...func(o *engine.RunOptions)) (string, error) {
	return p.engine.Run(ctx, agentKey, message, optFns...)
}

// Delegate sends a message to an agent on behalf of the caller and waits for
// the final answer. It is Run under a name that reads naturally at call
// sites that fan work out; agent-to-agent delegation inside a turn goes
// through the ask_for_help tool instead.
func (p *Parley) Delegate(ctx context.Context, agentKey, message string) (string, error) {
	return p.engine.Run(ctx, agentKey, message)
}

// Lookup resolves an agent by UUID or display name.
func (p *Parley) Lookup(key string) (*agent.Agent, error) {
	return p.directory.Lookup(key)
}

// Agents returns the registered agents sorted by display name.
func (p *Parley) Agents() []*agent.Agent {
	return p.directory.List()
}

// StartHealthCheck launches the MCP pool's background probe loop. Zero or
// negative intervals select the pool default.
func (p *Parley) StartHealthCheck(interval time.Duration) {
	p.pool.StartHealthCheck(interval)
}

// MCPSessions reports the state of every pooled MCP session.
func (p *Parley) MCPSessions() []mcp.SessionInfo {
	return p.pool.Info()
}

// Shutdown stops the MCP health checker and closes every pooled session. It
// returns the number of sessions that were still open. Agents and tools stay
// registered; a later MCP call would reconnect.
func (p *Parley) Shutdown() int {
	p.pool.StopHealthCheck()
	return p.pool.CloseAll()
}

// Catalog exposes the underlying tool catalog.
func (p *Parley) Catalog() *tool.Catalog { return p.catalog }

// Directory exposes the underlying agent directory.
func (p *Parley) Directory() *agent.Directory { return p.directory }

// Pool exposes the underlying MCP session pool.
func (p *Parley) Pool() *mcp.SessionPool { return p.pool }
