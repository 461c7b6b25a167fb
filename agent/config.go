package agent

import (
	"fmt"

	"github.com/parleyhq/parley/core"
)

// Config is the immutable configuration of a single agent. It enumerates
// every per-agent setting the framework understands; there are no free-form
// attributes. A Config is consumed once at registration time, after which the
// only mutable per-agent state is the conversation history.
type Config struct {
	// ID is the stable identifier. Generated (UUID) when empty.
	ID string `yaml:"id"`

	// Name is the human-readable display name. Required and unique; it
	// resolves through the directory exactly like the ID does.
	Name string `yaml:"name"`

	// Prompt holds the system instructions sent ahead of the conversation.
	Prompt string `yaml:"prompt"`

	// BaseURL is the backend endpoint the agent talks to. Used by the config
	// loader to construct the model client; empty means the provider default.
	BaseURL string `yaml:"base_url"`

	// Model is the backend model identifier (for example gpt-4o-mini).
	Model string `yaml:"model"`

	// APIKey is the backend credential. The config loader resolves it from
	// the environment when omitted.
	APIKey string `yaml:"api_key"`

	// Provider selects the backend adapter ("openai" or "anthropic").
	// Defaults to openai, which also covers OpenAI-compatible endpoints.
	Provider string `yaml:"provider"`

	// FunctionCalling selects the tool-call encoding: true for the
	// structured function-call channel, false for inline tags embedded in
	// free text.
	FunctionCalling bool `yaml:"function_calling"`

	// Sink overrides the process-wide output sink for this agent. Optional.
	Sink core.OutputSink `yaml:"-"`
}

// Validate reports configuration errors that would leave the agent unusable.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("agent config: name is required")
	}
	return nil
}
