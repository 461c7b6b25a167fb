package core

import (
	"fmt"
	"strings"
)

// Conversation roles. Stored as plain strings so provider adapters can map
// them without an enum translation layer.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Content holds role + ordered parts. A conversation history is an append-only
// ordered sequence of Content values owned by exactly one agent.
type Content struct {
	Role  string `json:"role,omitempty"` // Conversation role (user, assistant, tool, system)
	Parts []Part `json:"parts"`          // Ordered heterogeneous parts
}

// NewUserContent builds a user message from text plus optional image parts.
func NewUserContent(text string, images ...ImagePart) Content {
	parts := make([]Part, 0, 1+len(images))
	if text != "" {
		parts = append(parts, TextPart{Text: text})
	}
	for _, img := range images {
		parts = append(parts, img)
	}
	return Content{Role: RoleUser, Parts: parts}
}

// NewAssistantContent builds an assistant message from plain text.
func NewAssistantContent(text string) Content {
	return Content{Role: RoleAssistant, Parts: []Part{TextPart{Text: text}}}
}

// NewSystemContent builds a system message from plain text. Mid-conversation
// system messages carry tool results back to models that speak no structured
// tool protocol.
func NewSystemContent(text string) Content {
	return Content{Role: RoleSystem, Parts: []Part{TextPart{Text: text}}}
}

// NewAssistantToolCalls builds the assistant message recording the tool calls
// a model response requested, preserving their order.
func NewAssistantToolCalls(calls []FunctionCall) Content {
	parts := make([]Part, 0, len(calls))
	for _, call := range calls {
		parts = append(parts, FunctionCallPart{FunctionCall: call})
	}
	return Content{Role: RoleAssistant, Parts: parts}
}

// NewToolResult builds the tool-role message carrying a tool's return value
// back into the conversation.
func NewToolResult(callID, name string, result any) Content {
	return Content{Role: RoleTool, Parts: []Part{FunctionResponsePart{
		FunctionResponse: FunctionResponse{ID: callID, Name: name, Response: result},
	}}}
}

// NewToolError builds the tool-role message reporting a failed tool call. The
// error text is what the model sees on its next turn, so it should name the
// tool and the reason.
func NewToolError(callID, name string, err error) Content {
	return Content{Role: RoleTool, Parts: []Part{FunctionResponsePart{
		FunctionResponse: FunctionResponse{
			ID:       callID,
			Name:     name,
			Response: "Error: " + err.Error(),
			Error:    err.Error(),
		},
	}}}
}

// Text concatenates the text parts of the content in order.
func (c Content) Text() string {
	var sb strings.Builder
	for _, p := range c.Parts {
		if tp, ok := p.(TextPart); ok {
			sb.WriteString(tp.Text)
		}
	}
	return sb.String()
}

// FunctionCalls returns the function call parts of the content in order.
func (c Content) FunctionCalls() []FunctionCall {
	var calls []FunctionCall
	for _, p := range c.Parts {
		if fcp, ok := p.(FunctionCallPart); ok {
			calls = append(calls, fcp.FunctionCall)
		}
	}
	return calls
}

// ToolResultText renders a tool response the way it is replayed to inline-tag
// mode models, which have no native tool role: "<name> results: <value>".
func ToolResultText(name string, result any) string {
	return fmt.Sprintf("%s results: %v", name, result)
}
