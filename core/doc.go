// Package core provides the shared domain vocabulary used across parley. It
// defines the foundational types for:
//
//   - Conversation content (role tagged messages built from typed parts)
//   - The normalized tool call representation both wire encodings reduce to
//   - ToolContext (the constrained surface handed to tool implementations)
//   - Output sinks (streamed model text, tool notices, token usage)
//
// The package intentionally keeps implementation concerns (registries, model
// transports, the conversation loop) out of scope. Higher level packages
// (tool, agent, model, engine, mcp) depend on core; core depends only on
// logging.
package core
