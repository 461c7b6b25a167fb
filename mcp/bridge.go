package mcp

import (
	"context"
	"fmt"
	"strings"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/tool"
)

// RegisterOptions holds configuration overrides passed to RegisterTools().
type RegisterOptions struct {
	// Resources also exposes the server's resources as parameterless read_*
	// tools. On by default.
	Resources bool
	// AllowedAgents restricts every registered tool to the given agent keys.
	// Empty means unrestricted.
	AllowedAgents []string
}

// RegisterTools connects to the server, walks its remote catalog and
// registers each entry as a local tool whose handler forwards through the
// pooled session. Returns the number of tools registered. A name collision
// with an existing catalog entry aborts registration and reports the count
// reached so far; an unreachable server surfaces as *SessionUnavailableError
// without touching the catalog.
func (p *SessionPool) RegisterTools(ctx context.Context, catalog *tool.Catalog, serverPath string, optFns ...func(o *RegisterOptions)) (int, error) {
	opts := RegisterOptions{Resources: true}

	for _, fn := range optFns {
		fn(&opts)
	}

	s, err := p.Acquire(ctx, serverPath)
	if err != nil {
		return 0, err
	}

	registered := 0
	for _, t := range s.Tools() {
		description := t.Description
		if description == "" {
			description = fmt.Sprintf("MCP tool %s", t.Name)
		}

		rt := &remoteTool{
			pool:        p,
			serverPath:  serverPath,
			name:        t.Name,
			description: description,
			parameters:  toolParameters(t.InputSchema),
		}
		if err := catalog.Register(rt, opts.AllowedAgents...); err != nil {
			return registered, err
		}
		registered++
		p.logger.Debug("mcp.tool.registered", "server", serverPath, "tool", t.Name)
	}

	if opts.Resources {
		for _, r := range s.Resources() {
			rt := &resourceTool{
				pool:       p,
				serverPath: serverPath,
				name:       resourceToolName(r.URI),
				uri:        r.URI,
			}
			if err := catalog.Register(rt, opts.AllowedAgents...); err != nil {
				return registered, err
			}
			registered++
			p.logger.Debug("mcp.resource.registered", "server", serverPath, "tool", rt.name, "uri", r.URI)
		}
	}

	p.logger.Info("mcp.tools.registered", "server", serverPath, "count", registered)
	return registered, nil
}

// remoteTool adapts one remote MCP tool to the local tool interface. Every
// call re-acquires the session, so a connection lost since registration is
// redialed transparently.
type remoteTool struct {
	pool        *SessionPool
	serverPath  string
	name        string
	description string
	parameters  map[string]any
}

func (t *remoteTool) Name() string { return t.name }

func (t *remoteTool) Description() string { return t.description }

func (t *remoteTool) Parameters() map[string]any { return t.parameters }

func (t *remoteTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	s, err := t.pool.Acquire(toolCtx.Context(), t.serverPath)
	if err != nil {
		return nil, err
	}
	return s.CallTool(toolCtx.Context(), t.name, args)
}

// resourceTool exposes one remote resource as a parameterless tool that
// returns the resource's text contents.
type resourceTool struct {
	pool       *SessionPool
	serverPath string
	name       string
	uri        string
}

func (t *resourceTool) Name() string { return t.name }

func (t *resourceTool) Description() string {
	return fmt.Sprintf("Read MCP resource %s", t.uri)
}

func (t *resourceTool) Parameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
		"required":   []string{},
	}
}

func (t *resourceTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	s, err := t.pool.Acquire(toolCtx.Context(), t.serverPath)
	if err != nil {
		return nil, err
	}
	return s.ReadResource(toolCtx.Context(), t.uri)
}

// toolParameters normalizes a remote input schema into the catalog's
// JSON-schema shape, filling in the object envelope the validator expects.
func toolParameters(schema mcpgo.ToolInputSchema) map[string]any {
	properties := schema.Properties
	if properties == nil {
		properties = map[string]any{}
	}
	required := schema.Required
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// resourceToolName derives a tool name from a resource URI: the scheme is
// dropped and path separators become underscores, so file://notes/todo.txt
// registers as read_notes_todo_txt.
func resourceToolName(uri string) string {
	name := uri
	if i := strings.Index(name, "://"); i >= 0 {
		name = name[i+3:]
	}
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, ".", "_")
	return "read_" + name
}
