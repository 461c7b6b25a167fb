package mcp

import (
	"context"
	"errors"
	"testing"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/tool"
)

func testToolContext() *core.ToolContext {
	return core.NewToolContext(context.Background(), core.AgentInfo{ID: "agent-1", Name: "tester"}, "run-1", "call-1", nil)
}

func remoteCatalogDialer() *fakeDialer {
	return &fakeDialer{setup: func(c *fakeConn) {
		c.tools = []mcpgo.Tool{
			{
				Name:        "remote_echo",
				Description: "Echo text back",
				InputSchema: mcpgo.ToolInputSchema{
					Type:       "object",
					Properties: map[string]any{"text": map[string]any{"type": "string"}},
					Required:   []string{"text"},
				},
			},
			{Name: "remote_time"},
			{Name: "remote_weather", Description: "Report weather"},
		}
		c.resources = []mcpgo.Resource{{URI: "file://notes/todo.txt", Name: "todo"}}
		c.readText = "buy milk"
	}}
}

func TestRegisterToolsCountsToolsAndResources(t *testing.T) {
	pool := newTestPool(remoteCatalogDialer())
	catalog := tool.NewCatalog()

	count, err := pool.RegisterTools(context.Background(), catalog, "server.py")
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	for _, name := range []string{"remote_echo", "remote_time", "remote_weather", "read_notes_todo_txt"} {
		assert.True(t, catalog.Has(name), "expected %q in catalog", name)
	}
}

func TestRegisterToolsWithoutResources(t *testing.T) {
	pool := newTestPool(remoteCatalogDialer())
	catalog := tool.NewCatalog()

	count, err := pool.RegisterTools(context.Background(), catalog, "server.py",
		func(o *RegisterOptions) { o.Resources = false })
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.False(t, catalog.Has("read_notes_todo_txt"))
}

func TestRegisterToolsNormalizesSchema(t *testing.T) {
	pool := newTestPool(remoteCatalogDialer())
	catalog := tool.NewCatalog()

	_, err := pool.RegisterTools(context.Background(), catalog, "server.py")
	require.NoError(t, err)

	echo, err := catalog.Resolve("remote_echo", "agent-1")
	require.NoError(t, err)
	params := echo.Parameters()
	assert.Equal(t, "object", params["type"])
	assert.Contains(t, params["properties"], "text")
	assert.Equal(t, []string{"text"}, params["required"])

	// A tool with no declared schema gets the empty object envelope.
	bare, err := catalog.Resolve("remote_time", "agent-1")
	require.NoError(t, err)
	params = bare.Parameters()
	assert.Equal(t, "object", params["type"])
	assert.Empty(t, params["properties"])
	assert.Empty(t, params["required"])
	assert.Equal(t, "MCP tool remote_time", bare.Description())
}

func TestRemoteToolForwardsThroughSession(t *testing.T) {
	dialer := remoteCatalogDialer()
	pool := newTestPool(dialer)
	catalog := tool.NewCatalog()

	_, err := pool.RegisterTools(context.Background(), catalog, "server.py")
	require.NoError(t, err)

	result, err := catalog.Invoke(testToolContext(), "remote_echo", "agent-1", map[string]any{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)

	conn := dialer.last()
	require.Len(t, conn.calls, 1)
	assert.Equal(t, "remote_echo", conn.calls[0].Params.Name)
	assert.Equal(t, map[string]any{"text": "hi"}, conn.calls[0].Params.Arguments)
}

func TestResourceToolReadsResource(t *testing.T) {
	dialer := remoteCatalogDialer()
	pool := newTestPool(dialer)
	catalog := tool.NewCatalog()

	_, err := pool.RegisterTools(context.Background(), catalog, "server.py")
	require.NoError(t, err)

	result, err := catalog.Invoke(testToolContext(), "read_notes_todo_txt", "agent-1", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "buy milk", result)

	conn := dialer.last()
	require.Len(t, conn.reads, 1)
	assert.Equal(t, "file://notes/todo.txt", conn.reads[0])
}

func TestRegisterToolsNameCollision(t *testing.T) {
	pool := newTestPool(remoteCatalogDialer())
	catalog := tool.NewCatalog()

	local := tool.NewFunctionTool("remote_time", "Local clock", map[string]any{
		"type": "object", "properties": map[string]any{}, "required": []string{},
	}, func(*core.ToolContext, map[string]any) (any, error) { return "11:03", nil })
	require.NoError(t, catalog.Register(local))

	count, err := pool.RegisterTools(context.Background(), catalog, "server.py")

	var dup *tool.DuplicateToolError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "remote_time", dup.Name)
	// remote_echo registered before the collision.
	assert.Equal(t, 1, count)
}

func TestRegisterToolsUnavailableServer(t *testing.T) {
	dialer := &fakeDialer{err: errors.New("no such file")}
	pool := newTestPool(dialer)
	catalog := tool.NewCatalog()

	count, err := pool.RegisterTools(context.Background(), catalog, "missing.py")

	var unavailable *SessionUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, 0, count)
	assert.Equal(t, 0, catalog.Len())
}

func TestRegisterToolsAllowedAgents(t *testing.T) {
	pool := newTestPool(remoteCatalogDialer())
	catalog := tool.NewCatalog()

	_, err := pool.RegisterTools(context.Background(), catalog, "server.py",
		func(o *RegisterOptions) { o.AllowedAgents = []string{"agent-1"} })
	require.NoError(t, err)

	_, err = catalog.Resolve("remote_echo", "agent-1")
	assert.NoError(t, err)

	var denied *tool.ToolNotPermittedError
	_, err = catalog.Resolve("remote_echo", "outsider")
	require.ErrorAs(t, err, &denied)
}

func TestRemoteToolUnavailableSessionRecovers(t *testing.T) {
	dialer := remoteCatalogDialer()
	pool := newTestPool(dialer)
	catalog := tool.NewCatalog()

	_, err := pool.RegisterTools(context.Background(), catalog, "server.py")
	require.NoError(t, err)

	// Kill the pool and make redial fail: the handler must degrade to a
	// recoverable error, not a panic or a hang.
	pool.CloseAll()
	dialer.mu.Lock()
	dialer.err = errors.New("server gone")
	dialer.mu.Unlock()

	_, err = catalog.Invoke(testToolContext(), "remote_echo", "agent-1", map[string]any{"text": "hi"})

	var unavailable *SessionUnavailableError
	require.ErrorAs(t, err, &unavailable)
}

func TestResourceToolName(t *testing.T) {
	assert.Equal(t, "read_test_txt", resourceToolName("file://test.txt"))
	assert.Equal(t, "read_notes_todo_txt", resourceToolName("file://notes/todo.txt"))
	assert.Equal(t, "read_plain", resourceToolName("plain"))
}
