package tool

import (
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/internal/util"
	"github.com/parleyhq/parley/logging"
)

// AliasResolver resolves an agent key to every key that denotes the same
// agent (stable identifier and display name). Allowed-agent lists may name
// agents either way; the catalog consults the resolver so a permission check
// with an agent's UUID also matches an entry listing its display name.
// agent.Directory satisfies this interface.
type AliasResolver interface {
	Aliases(key string) []string
}

// CatalogOptions configures a Catalog.
type CatalogOptions struct {
	// Logger receives registration and dispatch events. Defaults to NoOp.
	Logger logging.Logger

	// Aliases translates agent keys for permission checks. Optional; without
	// it allowed lists match the requesting key literally.
	Aliases AliasResolver
}

// Catalog is the process-wide tool registry the conversation engine
// dispatches through.
//
// Responsibilities:
//   - Registration: insert tools once, under a unique name, with an optional
//     allowed-agent set (empty set = callable by every agent)
//   - Resolution: name + requesting agent -> tool, enforcing the allowed set
//   - Invocation: schema validation, execution, and uniform wrapping of
//     handler faults (error returns and panics) so a misbehaving tool never
//     crashes the calling conversation loop
//
// Concurrency:
//
//	Reads (Resolve, Invoke, ToolsFor, Names) take a shared lock and never
//	block each other. Writes (Register, including MCP hot-registration while
//	conversations run) are exclusive and become visible atomically.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]*catalogEntry
	aliases AliasResolver
	logger  logging.Logger
}

type catalogEntry struct {
	tool    Tool
	allowed map[string]struct{} // empty => unrestricted
}

// NewCatalog creates an empty catalog.
func NewCatalog(optFns ...func(o *CatalogOptions)) *Catalog {
	opts := CatalogOptions{
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Catalog{
		entries: make(map[string]*catalogEntry),
		aliases: opts.Aliases,
		logger:  opts.Logger,
	}
}

// Register inserts a tool. The allowedAgents list restricts invocation to the
// named agents (by identifier or display name); an empty list leaves the tool
// unrestricted. Registering a name twice fails with *DuplicateToolError.
func (c *Catalog) Register(t Tool, allowedAgents ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	name := t.Name()
	if _, exists := c.entries[name]; exists {
		return &DuplicateToolError{Name: name}
	}

	allowed := make(map[string]struct{}, len(allowedAgents))
	for _, key := range allowedAgents {
		if key != "" {
			allowed[key] = struct{}{}
		}
	}

	c.entries[name] = &catalogEntry{tool: t, allowed: allowed}

	c.logger.Info("catalog.tool.registered", "tool", name, "restricted", len(allowed) > 0)

	return nil
}

// Resolve returns the tool registered under name if the requesting agent may
// call it. Absent names fail with *ToolNotFoundError, present but restricted
// ones with *ToolNotPermittedError. The handler is never touched here.
func (c *Catalog) Resolve(name, agentKey string) (Tool, error) {
	c.mu.RLock()
	entry, exists := c.entries[name]
	c.mu.RUnlock()

	if !exists {
		return nil, &ToolNotFoundError{Name: name}
	}

	if !c.permitted(entry, agentKey) {
		return nil, &ToolNotPermittedError{Name: name, AgentKey: agentKey}
	}

	return entry.tool, nil
}

// Invoke resolves the tool, validates args against its declared schema and
// executes it. Validation failures surface as *InvalidArgumentsError; handler
// error returns and recovered panics surface as *ToolExecutionError. The
// result is whatever the handler returned.
func (c *Catalog) Invoke(toolCtx *core.ToolContext, name, agentKey string, args map[string]any) (any, error) {
	t, err := c.Resolve(name, agentKey)
	if err != nil {
		c.logger.Warn("catalog.dispatch.rejected", "tool", name, "agent", agentKey, "error", err.Error())
		return nil, err
	}

	// Inline-tag calls deliver every argument as a string; align them with the
	// declared schema before validating.
	args = util.CoerceArguments(args, t.Parameters())

	if err := util.ValidateParameters(args, t.Parameters()); err != nil {
		c.logger.Warn("catalog.dispatch.invalid_args", "tool", name, "agent", agentKey, "error", err.Error())
		return nil, &InvalidArgumentsError{Tool: name, Err: err}
	}

	start := time.Now()

	result, err := c.safeCall(t, toolCtx, args)
	if err != nil {
		c.logger.Error("catalog.dispatch.failed", "tool", name, "agent", agentKey, "error", err.Error())
		return nil, err
	}

	c.logger.Debug("catalog.dispatch.completed", "tool", name, "agent", agentKey, "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}

// safeCall shields the caller from handler panics.
func (c *Catalog) safeCall(t Tool, toolCtx *core.ToolContext, args map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("catalog.dispatch.panic", "tool", t.Name(), "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			err = &ToolExecutionError{Tool: t.Name(), Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	result, err = t.Call(toolCtx, args)
	if err != nil {
		switch err.(type) {
		case *ToolExecutionError, *InvalidArgumentsError:
			return nil, err
		default:
			return nil, &ToolExecutionError{Tool: t.Name(), Err: err}
		}
	}

	return result, nil
}

// ToolsFor returns the tools the given agent may invoke, sorted by name. The
// engine uses this to build the model-facing definition list and to report
// available tools after a failed lookup.
func (c *Catalog) ToolsFor(agentKey string) []Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tools := make([]Tool, 0, len(c.entries))
	for _, entry := range c.entries {
		if c.permitted(entry, agentKey) {
			tools = append(tools, entry.tool)
		}
	}

	sort.Slice(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })

	return tools
}

// Names returns all registered tool names, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Len returns the number of registered tools.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// Has reports whether a tool is registered under name, ignoring permissions.
func (c *Catalog) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.entries[name]

	return ok
}

// permitted reports whether agentKey (or any of its aliases) is in the
// entry's allowed set. Entries are immutable after insertion, so no lock is
// required to read them.
func (c *Catalog) permitted(entry *catalogEntry, agentKey string) bool {
	if len(entry.allowed) == 0 {
		return true
	}
	if _, ok := entry.allowed[agentKey]; ok {
		return true
	}
	if c.aliases != nil {
		for _, alias := range c.aliases.Aliases(agentKey) {
			if _, ok := entry.allowed[alias]; ok {
				return true
			}
		}
	}

	return false
}
