package engine

import "fmt"

// MalformedToolCallError reports a tool invocation that could not be decoded
// from model output: an unclosed inline tag, broken parameter nesting, or
// function-call arguments that are not valid JSON. The engine recovers it
// in-turn by appending a tool-error message to history, giving the model a
// chance to correct itself.
type MalformedToolCallError struct {
	Tool   string // tool or tag name, may be empty
	Reason string
}

func (e *MalformedToolCallError) Error() string {
	if e.Tool == "" {
		return fmt.Sprintf("malformed tool call: %s", e.Reason)
	}
	return fmt.Sprintf("malformed tool call %q: %s", e.Tool, e.Reason)
}

// RecursionLimitExceededError reports a delegation that would revisit an
// agent already on the call chain or overdraw the configured depth budget.
// It surfaces to the model as a tool-error result, never as a crash.
type RecursionLimitExceededError struct {
	SourceAgent string
	TargetKey   string
	Reason      string
}

func (e *RecursionLimitExceededError) Error() string {
	return fmt.Sprintf("delegation from %q to %q rejected: %s", e.SourceAgent, e.TargetKey, e.Reason)
}
