package mcp

import (
	"context"
	"fmt"
	"os"
	"strings"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

const (
	protocolVersion = "2024-11-05"
	clientName      = "parley"
	clientVersion   = "0.1.0"
)

// Conn is the subset of an MCP client the pool depends on. *client.Client
// from mcp-go satisfies it; tests substitute an in-memory fake.
type Conn interface {
	Ping(ctx context.Context) error
	ListTools(ctx context.Context, req mcpgo.ListToolsRequest) (*mcpgo.ListToolsResult, error)
	ListResources(ctx context.Context, req mcpgo.ListResourcesRequest) (*mcpgo.ListResourcesResult, error)
	ReadResource(ctx context.Context, req mcpgo.ReadResourceRequest) (*mcpgo.ReadResourceResult, error)
	CallTool(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error)
	Close() error
}

// Dialer establishes a ready-to-use connection to the server identified by
// serverPath. Implementations must return an initialized client; listing the
// remote catalog is the pool's job.
type Dialer func(ctx context.Context, serverPath string) (Conn, error)

// stdioDial launches the server script as a subprocess and speaks MCP over
// its stdin/stdout. Python scripts run under python, everything else under
// node, mirroring the usual single-file server layout.
func stdioDial(ctx context.Context, serverPath string) (Conn, error) {
	if _, err := os.Stat(serverPath); err != nil {
		return nil, fmt.Errorf("mcp server script %q: %w", serverPath, err)
	}

	command := "node"
	if strings.HasSuffix(serverPath, ".py") {
		command = "python"
	}

	c, err := mcpclient.NewStdioMCPClient(command, nil, serverPath)
	if err != nil {
		return nil, fmt.Errorf("failed to launch mcp server: %w", err)
	}

	if err := c.Start(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to start mcp client: %w", err)
	}

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = protocolVersion
	initReq.Params.ClientInfo = mcpgo.Implementation{
		Name:    clientName,
		Version: clientVersion,
	}

	if _, err := c.Initialize(ctx, initReq); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to initialize mcp session: %w", err)
	}

	return c, nil
}
