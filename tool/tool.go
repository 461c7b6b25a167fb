// Package tool implements the function / tool calling subsystem that lets agents
// invoke structured capabilities (APIs, computations, side effects) with schema
// validated arguments, consistent error handling and rich metadata for LLM guidance.
// The Catalog is the process-wide registry the conversation engine dispatches
// through; per-tool allowed-agent sets restrict who may call what.
package tool

import (
	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/internal/util"
)

// Tool defines the interface for extending agent capabilities with external functions.
//
// Tools are registered in a Catalog to enable function calling, allowing
// agents to perform actions beyond text generation such as API calls, calculations,
// database queries, or any other programmatic operations.
//
// All tools receive a ToolContext carrying the run's cancellation context, the
// calling agent's identity and a logger.
//
// Tool implementations should:
//   - Provide clear, descriptive names and descriptions
//   - Define proper JSON schema for parameters
//   - Handle errors gracefully
//   - Be thread-safe if used concurrently
//   - Follow consistent naming conventions
type Tool interface {
	// Name returns the unique identifier for this tool.
	// Names should be descriptive and follow function naming conventions (snake_case recommended).
	Name() string

	// Description returns a human-readable description of what this tool does.
	// This description is provided to the LLM to help it understand when and how to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected input format.
	// This schema is used for parameter validation and LLM function calling.
	Parameters() map[string]interface{}

	// Call executes the tool with structured arguments and ToolContext.
	// Arguments have been decoded from the wire encoding and validated against
	// the tool's schema before this method runs.
	Call(toolCtx *core.ToolContext, args map[string]interface{}) (interface{}, error)
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError
