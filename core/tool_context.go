package core

import (
	"context"
	"fmt"

	"github.com/parleyhq/parley/logging"
)

// AgentInfo identifies the agent on whose behalf a tool runs.
type AgentInfo struct {
	ID   string // Stable identifier (UUID)
	Name string // Human-readable display name
}

// ToolContext provides a constrained, auditable surface for tool / function
// implementations invoked during a conversation turn. It carries the
// cancellation context of the originating run, the identity of the calling
// agent and the function call id the result will answer.
type ToolContext struct {
	ctx            context.Context
	runID          string
	functionCallID string
	caller         AgentInfo

	*loggerAdapter
}

// NewToolContext constructs a tool context bound to a run and a unique
// functionCallID.
func NewToolContext(ctx context.Context, caller AgentInfo, runID, functionCallID string, logger logging.Logger) *ToolContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ToolContext{
		ctx:            ctx,
		runID:          runID,
		functionCallID: functionCallID,
		caller:         caller,
		loggerAdapter:  newLoggerAdapter(logger),
	}
}

// Context returns the context associated with the tool invocation. Blocking
// tool implementations must honor its cancellation.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// RunID returns the run ID associated with the tool invocation.
func (tc *ToolContext) RunID() string { return tc.runID }

// FunctionCallID returns the function call ID associated with the tool invocation.
func (tc *ToolContext) FunctionCallID() string { return tc.functionCallID }

// AgentID returns the identifier of the calling agent.
func (tc *ToolContext) AgentID() string { return tc.caller.ID }

// AgentName returns the display name of the calling agent.
func (tc *ToolContext) AgentName() string { return tc.caller.Name }

// Logger returns the logger associated with the tool invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.loggerAdapter.Logger() }

// Validate performs a structural sanity check of the context.
func (tc *ToolContext) Validate() error {
	if tc.ctx == nil || tc.functionCallID == "" {
		return fmt.Errorf("invalid ToolContext")
	}
	return nil
}

// IsValid reports whether Validate would succeed (fast path).
func (tc *ToolContext) IsValid() bool {
	return tc.ctx != nil && tc.functionCallID != ""
}
