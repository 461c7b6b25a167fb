// Package agent defines the agent record, its append-only conversation
// history and the dual-key Directory that resolves agents by identifier or
// display name.
package agent

import (
	"fmt"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/model"
)

// Agent bundles a system prompt, a backend model and a tool-call mode under a
// stable identity. Agents are immutable after construction except for their
// conversation history, which the conversation engine appends to turn by
// turn. One Agent owns exactly one History; other agents reach it only
// through delegation, never by touching the history directly.
type Agent struct {
	id              string
	name            string
	prompt          string
	functionCalling bool
	llm             model.Model
	sink            core.OutputSink
	history         *History
}

// New constructs an Agent from its configuration and backend model. The ID is
// generated when the config leaves it empty.
func New(cfg Config, llm model.Model) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if llm == nil {
		return nil, fmt.Errorf("agent %q: model is required", cfg.Name)
	}

	id := cfg.ID
	if id == "" {
		id = core.NewID()
	}

	return &Agent{
		id:              id,
		name:            cfg.Name,
		prompt:          cfg.Prompt,
		functionCalling: cfg.FunctionCalling,
		llm:             llm,
		sink:            cfg.Sink,
		history:         NewHistory(),
	}, nil
}

// ID returns the stable identifier.
func (a *Agent) ID() string { return a.id }

// Name returns the display name.
func (a *Agent) Name() string { return a.name }

// Prompt returns the system instructions.
func (a *Agent) Prompt() string { return a.prompt }

// FunctionCalling reports whether the agent uses the structured function-call
// encoding (true) or inline tags (false).
func (a *Agent) FunctionCalling() bool { return a.functionCalling }

// Model returns the backend model handle.
func (a *Agent) Model() model.Model { return a.llm }

// Sink returns the agent's output sink override, or nil when the agent uses
// the process-wide default.
func (a *Agent) Sink() core.OutputSink { return a.sink }

// History returns the agent's conversation history.
func (a *Agent) History() *History { return a.history }

// Info returns the identity passed into tool contexts.
func (a *Agent) Info() core.AgentInfo {
	return core.AgentInfo{ID: a.id, Name: a.name}
}
