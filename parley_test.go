package parley

import (
	"bytes"
	"context"
	"errors"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/agent"
	"github.com/parleyhq/parley/config"
	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/logging"
	"github.com/parleyhq/parley/mcp"
	"github.com/parleyhq/parley/model"
	"github.com/parleyhq/parley/tool"
)

func addMockAgent(t *testing.T, p *Parley, name string) (*agent.Agent, *model.MockModel) {
	t.Helper()
	m := model.NewMockModel("scripted", "mock")
	a, err := p.RegisterAgent(agent.Config{Name: name, Prompt: "You are " + name + "."}, m)
	require.NoError(t, err)
	return a, m
}

// stubConn satisfies mcp.Conn with a single tool and no resources.
type stubConn struct{}

func (stubConn) Ping(ctx context.Context) error { return nil }

func (stubConn) ListTools(ctx context.Context, req mcpgo.ListToolsRequest) (*mcpgo.ListToolsResult, error) {
	return &mcpgo.ListToolsResult{Tools: []mcpgo.Tool{{Name: "remote_ping", Description: "Ping the remote server."}}}, nil
}

func (stubConn) ListResources(ctx context.Context, req mcpgo.ListResourcesRequest) (*mcpgo.ListResourcesResult, error) {
	return &mcpgo.ListResourcesResult{}, nil
}

func (stubConn) ReadResource(ctx context.Context, req mcpgo.ReadResourceRequest) (*mcpgo.ReadResourceResult, error) {
	return &mcpgo.ReadResourceResult{}, nil
}

func (stubConn) CallTool(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return mcpgo.NewToolResultText("pong"), nil
}

func (stubConn) Close() error { return nil }

func TestNewRegistersListAgents(t *testing.T) {
	p := New()

	assert.True(t, p.Catalog().Has("list_agents"))
	assert.Zero(t, p.Directory().Len())
}

func TestRunByNameAndByID(t *testing.T) {
	p := New()
	a, m := addMockAgent(t, p, "echo")

	m.EnqueueText("hello from echo")
	out, err := p.Run(context.Background(), "echo", "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello from echo", out)

	m.EnqueueText("hello again")
	out, err = p.Run(context.Background(), a.ID(), "hi again")
	require.NoError(t, err)
	assert.Equal(t, "hello again", out)
}

func TestRunUnknownAgent(t *testing.T) {
	p := New()

	_, err := p.Run(context.Background(), "ghost", "hi")

	var notFound *agent.AgentNotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestDelegateMatchesRun(t *testing.T) {
	p := New()
	_, m := addMockAgent(t, p, "echo")

	m.EnqueueText("delegated answer")
	out, err := p.Delegate(context.Background(), "echo", "please")
	require.NoError(t, err)
	assert.Equal(t, "delegated answer", out)
}

func TestSinkOptionReceivesOutput(t *testing.T) {
	var buf bytes.Buffer
	p := New(func(o *Options) {
		o.Sink = core.NewWriterSink(&buf)
		o.Stream = false
	})
	_, m := addMockAgent(t, p, "echo")

	m.EnqueueText("printed output")
	_, err := p.Run(context.Background(), "echo", "hi")
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "printed output")
}

func TestRegisterToolDuplicate(t *testing.T) {
	p := New()
	clock := tool.NewFunctionTool(
		"get_time",
		"Report the current time.",
		map[string]any{"type": "object", "properties": map[string]any{}, "required": []string{}},
		func(*core.ToolContext, map[string]any) (any, error) { return "11:03", nil },
	)

	require.NoError(t, p.RegisterTool(clock))

	var dup *tool.DuplicateToolError
	require.ErrorAs(t, p.RegisterTool(clock), &dup)
}

func TestNewFromConfigBuildsAgents(t *testing.T) {
	cfg, err := config.Parse([]byte(`
agents:
  - id: 8841cd45eef54217bc8122cafebe5fd6
    name: planner
    prompt: You plan.
    provider: anthropic
    model: claude-sonnet-4-0
  - name: helper
    prompt: You help.
    model: gpt-4o-mini
`))
	require.NoError(t, err)

	p, err := NewFromConfig(context.Background(), cfg, func(o *Options) {
		o.Logger = logging.NoOpLogger{}
	})
	require.NoError(t, err)

	agents := p.Agents()
	require.Len(t, agents, 2)
	assert.Equal(t, "helper", agents[0].Name())
	assert.Equal(t, "planner", agents[1].Name())

	a, err := p.Lookup("8841cd45eef54217bc8122cafebe5fd6")
	require.NoError(t, err)
	assert.Equal(t, "planner", a.Name())

	assert.Zero(t, p.Shutdown())
}

func TestNewFromConfigUnknownProvider(t *testing.T) {
	cfg := &config.Config{Agents: []agent.Config{{Name: "x", Provider: "cohere"}}}

	_, err := NewFromConfig(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown provider "cohere"`)
}

func TestNewFromConfigRegistersMCPServers(t *testing.T) {
	pool := mcp.NewSessionPool(func(o *mcp.Options) {
		o.Dial = func(ctx context.Context, serverPath string) (mcp.Conn, error) { return stubConn{}, nil }
	})
	cfg, err := config.Parse([]byte(`
agents:
  - name: solo
    prompt: You are on your own.
mcp:
  health_check_interval: -1
  servers:
    - path: ./weather.py
`))
	require.NoError(t, err)

	p, err := NewFromConfig(context.Background(), cfg, func(o *Options) {
		o.Logger = logging.NoOpLogger{}
		o.Pool = pool
	})
	require.NoError(t, err)

	assert.True(t, p.Catalog().Has("remote_ping"))

	infos := p.MCPSessions()
	require.Len(t, infos, 1)
	assert.Equal(t, mcp.StateHealthy, infos[0].State)

	assert.Equal(t, 1, p.Shutdown())
	assert.Zero(t, p.Shutdown())
}

func TestNewFromConfigMCPFailure(t *testing.T) {
	pool := mcp.NewSessionPool(func(o *mcp.Options) {
		o.Dial = func(ctx context.Context, serverPath string) (mcp.Conn, error) { return nil, errors.New("boom") }
	})
	cfg, err := config.Parse([]byte(`
agents:
  - name: solo
    prompt: You are on your own.
mcp:
  servers:
    - path: ./dead.py
`))
	require.NoError(t, err)

	_, err = NewFromConfig(context.Background(), cfg, func(o *Options) {
		o.Logger = logging.NoOpLogger{}
		o.Pool = pool
	})
	require.Error(t, err)

	var unavailable *mcp.SessionUnavailableError
	assert.ErrorAs(t, err, &unavailable)
}
