package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/parleyhq/parley/agent"
	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/tool"
)

// DefaultMaxDelegationDepth bounds the number of agent-to-agent hops a single
// top-level turn may take when no explicit depth is configured.
const DefaultMaxDelegationDepth = 5

// DelegationContext carries cycle and depth protection across nested
// delegations. It lives only for the duration of one top-level turn and is
// passed by value: extending it for a hop copies the visited set, so sibling
// delegations never observe each other's chains.
type DelegationContext struct {
	visited map[string]struct{}
	depth   int
}

// NewDelegationContext seeds the call chain with the root agent's identifier
// and the remaining hop budget.
func NewDelegationContext(rootAgentID string, depth int) DelegationContext {
	return DelegationContext{
		visited: map[string]struct{}{rootAgentID: {}},
		depth:   depth,
	}
}

// Visited reports whether the agent is already part of the call chain.
func (dc DelegationContext) Visited(agentID string) bool {
	_, ok := dc.visited[agentID]
	return ok
}

// Depth returns the remaining hop budget.
func (dc DelegationContext) Depth() int { return dc.depth }

// extend returns a copy with the target recorded and one hop consumed.
func (dc DelegationContext) extend(agentID string) DelegationContext {
	visited := make(map[string]struct{}, len(dc.visited)+1)
	for k := range dc.visited {
		visited[k] = struct{}{}
	}
	visited[agentID] = struct{}{}

	return DelegationContext{visited: visited, depth: dc.depth - 1}
}

// Router resolves ask_for_help calls against the directory and re-enters the
// engine on the target agent's own history.
type Router struct {
	engine    *Engine
	directory *agent.Directory
}

// Delegate forwards the call's message to the agent addressed by its agent_id
// argument and returns the target's final output. Missing arguments, unknown
// targets, revisits, and exhausted depth all come back as errors the engine
// replays to the model; none of them aborts the source conversation. The
// cycle and depth checks run before the target's backend is ever contacted.
func (r *Router) Delegate(ctx context.Context, source *agent.Agent, call core.ToolCall, dc DelegationContext) (string, error) {
	targetKey, _ := call.Argument("agent_id")
	targetKey = strings.TrimSpace(targetKey)
	if targetKey == "" {
		return "", &tool.InvalidArgumentsError{Tool: ToolAskForHelp, Err: errors.New("missing required field agent_id")}
	}

	message, _ := call.Argument("message")
	message = strings.TrimSpace(message)
	if message == "" {
		return "", &tool.InvalidArgumentsError{Tool: ToolAskForHelp, Err: errors.New("missing required field message")}
	}

	target, err := r.directory.Lookup(targetKey)
	if err != nil {
		return "", err
	}

	if dc.Visited(target.ID()) {
		return "", &RecursionLimitExceededError{
			SourceAgent: source.Name(),
			TargetKey:   targetKey,
			Reason:      "target is already part of the delegation chain",
		}
	}
	if dc.Depth() <= 0 {
		return "", &RecursionLimitExceededError{
			SourceAgent: source.Name(),
			TargetKey:   targetKey,
			Reason:      "delegation depth exhausted",
		}
	}

	r.engine.logger.Info("engine.delegation.start",
		"source", source.Name(),
		"target", target.Name(),
		"depth_remaining", dc.Depth()-1,
	)

	start := time.Now()

	out, err := r.engine.runTurn(ctx, target, message, nil, dc.extend(target.ID()))
	if err != nil {
		r.engine.logger.Error("engine.delegation.failed",
			"source", source.Name(),
			"target", target.Name(),
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err.Error(),
		)
		return "", err
	}

	r.engine.logger.Info("engine.delegation.completed",
		"source", source.Name(),
		"target", target.Name(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return out, nil
}
