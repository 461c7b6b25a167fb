package agent

import "fmt"

// DuplicateAgentError reports a registration whose identifier or display name
// is already taken. Registration happens at startup, so this error is fatal
// rather than recovered mid-conversation.
type DuplicateAgentError struct {
	Key string
}

func (e *DuplicateAgentError) Error() string {
	return fmt.Sprintf("agent key %q is already registered", e.Key)
}

// AgentNotFoundError reports a lookup for a key that resolves to no agent.
// During delegation this surfaces as a tool-error result, not a crash.
type AgentNotFoundError struct {
	Key string
}

func (e *AgentNotFoundError) Error() string {
	return fmt.Sprintf("agent %q not found", e.Key)
}
