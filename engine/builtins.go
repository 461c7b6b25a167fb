package engine

import (
	"fmt"
	"strings"

	"github.com/parleyhq/parley/agent"
	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/model"
	"github.com/parleyhq/parley/tool"
)

// Reserved tool names the engine intercepts before catalog dispatch. A
// catalog entry under one of these names is never reached.
const (
	// ToolAskForHelp routes a message to another registered agent and returns
	// that agent's final answer as the tool result.
	ToolAskForHelp = "ask_for_help"
	// ToolAttemptCompletion ends the turn immediately, carrying its
	// report_content payload as the final output.
	ToolAttemptCompletion = "attempt_completion"
)

// builtinDefinitions exposes the reserved tools to function-calling backends
// alongside the agent's catalog tools.
func builtinDefinitions() []model.ToolDefinition {
	return []model.ToolDefinition{
		{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        ToolAskForHelp,
				Description: "Ask another registered agent for help and wait for its answer.",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"agent_id": map[string]interface{}{
							"type":        "string",
							"description": "UUID or display name of the target agent",
						},
						"message": map[string]interface{}{
							"type":        "string",
							"description": "The request to send",
						},
					},
					"required": []string{"agent_id", "message"},
				},
			},
		},
		{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        ToolAttemptCompletion,
				Description: "Mark the task as finished and end the conversation.",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"report_content": map[string]interface{}{
							"type":        "string",
							"description": "Final report to deliver, may be empty",
						},
					},
					"required": []string{},
				},
			},
		},
	}
}

// builtinPromptLines describes the reserved tools for the system prompt.
func builtinPromptLines() []string {
	return []string{
		"- " + ToolAskForHelp + ": Ask another registered agent for help. Parameters: agent_id (UUID or display name of the target), message (the request).",
		"- " + ToolAttemptCompletion + ": Mark the task as finished and end the conversation. Parameters: report_content (final report, optional).",
	}
}

// NewListAgentsTool builds the peer-discovery tool backed by the directory.
// Register it in the catalog without an allowed-agents list so every agent
// can look up its collaborators.
func NewListAgentsTool(directory *agent.Directory) tool.Tool {
	return tool.NewFunctionTool(
		"list_agents",
		"List every registered agent with its display name and UUID.",
		map[string]any{
			"type":       "object",
			"properties": map[string]any{},
			"required":   []string{},
		},
		func(toolCtx *core.ToolContext, args map[string]any) (any, error) {
			agents := directory.List()
			lines := make([]string, 0, len(agents))
			for _, a := range agents {
				lines = append(lines, fmt.Sprintf("- %s (UUID: %s)", a.Name(), a.ID()))
			}
			return "Available agents:\n" + strings.Join(lines, "\n"), nil
		},
	)
}
