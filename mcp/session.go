package mcp

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
)

// State is the lifecycle phase of a pooled session.
type State int

const (
	// StateConnecting marks a session whose transport is being established.
	StateConnecting State = iota
	// StateHealthy marks a session ready for dispatch.
	StateHealthy
	// StateUnhealthy marks a session whose last probe or call failed; the
	// next acquire reconnects it.
	StateUnhealthy
	// StateClosed marks a session whose transport has been released. Closed
	// sessions are never revived; acquiring the same server key again
	// creates a fresh session.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHealthy:
		return "healthy"
	case StateUnhealthy:
		return "unhealthy"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one pooled connection to an MCP server, together with the
// remote catalog cached at connect time. All methods are safe for concurrent
// use; the internal lock is held for bookkeeping only, never across a remote
// call, so a slow tool invocation cannot block the health checker for longer
// than one probe.
type Session struct {
	serverPath string

	mu        sync.Mutex
	state     State
	conn      Conn
	tools     []mcpgo.Tool
	resources []mcpgo.Resource
	lastUsed  time.Time
	lastProbe time.Time
}

// SessionInfo is a point-in-time summary of one pooled session.
type SessionInfo struct {
	ServerPath    string
	State         State
	ToolCount     int
	ResourceCount int
	Tools         []string
	Resources     []string
	LastUsed      time.Time
	LastProbe     time.Time
}

// ServerPath returns the server key this session was created for.
func (s *Session) ServerPath() string { return s.serverPath }

// State returns the session's current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Tools returns a copy of the remote tool catalog cached at connect time.
func (s *Session) Tools() []mcpgo.Tool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]mcpgo.Tool, len(s.tools))
	copy(out, s.tools)
	return out
}

// Resources returns a copy of the remote resource list cached at connect time.
func (s *Session) Resources() []mcpgo.Resource {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]mcpgo.Resource, len(s.resources))
	copy(out, s.resources)
	return out
}

// CallTool forwards one tool invocation through the session. A transport
// failure marks the session unhealthy so the next acquire reconnects; a
// tool-level failure comes back as a plain error without touching the state.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	conn, err := s.checkout()
	if err != nil {
		return "", err
	}

	req := mcpgo.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := conn.CallTool(ctx, req)
	if err != nil {
		s.markUnhealthy()
		return "", err
	}

	return flattenToolResult(res)
}

// ReadResource fetches a resource through the session and returns its text
// contents, concatenated when the server answers with multiple chunks.
func (s *Session) ReadResource(ctx context.Context, uri string) (string, error) {
	conn, err := s.checkout()
	if err != nil {
		return "", err
	}

	req := mcpgo.ReadResourceRequest{}
	req.Params.URI = uri

	res, err := conn.ReadResource(ctx, req)
	if err != nil {
		s.markUnhealthy()
		return "", err
	}

	var parts []string
	for _, c := range res.Contents {
		if tc, ok := c.(mcpgo.TextResourceContents); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// checkout snapshots the connection and stamps last use. The lock is
// released before any remote call happens.
func (s *Session) checkout() (Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil || s.state == StateClosed {
		return nil, &SessionUnavailableError{
			ServerPath: s.serverPath,
			Err:        errors.New("session is not connected"),
		}
	}
	s.lastUsed = time.Now()
	return s.conn, nil
}

func (s *Session) markUnhealthy() {
	s.mu.Lock()
	if s.state == StateHealthy {
		s.state = StateUnhealthy
	}
	s.mu.Unlock()
}

// info summarizes the session under its lock.
func (s *Session) info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := SessionInfo{
		ServerPath:    s.serverPath,
		State:         s.state,
		ToolCount:     len(s.tools),
		ResourceCount: len(s.resources),
		LastUsed:      s.lastUsed,
		LastProbe:     s.lastProbe,
	}
	for _, t := range s.tools {
		info.Tools = append(info.Tools, t.Name)
	}
	for _, r := range s.resources {
		info.Resources = append(info.Resources, r.URI)
	}
	return info
}

// flattenToolResult joins the text blocks of a tool result. A result flagged
// as an error becomes a Go error carrying the same text, so the caller's
// conversation replays it like any other tool failure.
func flattenToolResult(res *mcpgo.CallToolResult) (string, error) {
	var parts []string
	for _, c := range res.Content {
		if tc, ok := c.(mcpgo.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	text := strings.Join(parts, "\n")

	if res.IsError {
		if text == "" {
			text = "unknown error"
		}
		return "", errors.New(text)
	}
	return text, nil
}
