package tool

import "fmt"

// DuplicateToolError reports a registration attempt under a name that is
// already taken. Registration is a configuration-time concern, so this error
// is fatal to startup rather than recovered in a conversation turn.
type DuplicateToolError struct {
	Name string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("tool %q is already registered", e.Name)
}

// ToolNotFoundError reports a dispatch against a name absent from the catalog.
type ToolNotFoundError struct {
	Name string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("tool %q not found", e.Name)
}

// ToolNotPermittedError reports a dispatch by an agent outside the tool's
// allowed set. The tool exists; the caller may not use it.
type ToolNotPermittedError struct {
	Name     string
	AgentKey string
}

func (e *ToolNotPermittedError) Error() string {
	return fmt.Sprintf("agent %q is not permitted to call tool %q", e.AgentKey, e.Name)
}

// InvalidArgumentsError reports arguments that failed validation against the
// tool's declared parameter schema.
type InvalidArgumentsError struct {
	Tool string
	Err  error
}

func (e *InvalidArgumentsError) Error() string {
	return fmt.Sprintf("invalid arguments for tool %q: %v", e.Tool, e.Err)
}

func (e *InvalidArgumentsError) Unwrap() error { return e.Err }

// ToolExecutionError wraps a failure (error return or recovered panic) from a
// tool handler. Handler faults never crash the calling conversation loop;
// they surface as this error and flow back into the conversation history.
type ToolExecutionError struct {
	Tool string
	Err  error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %q failed: %v", e.Tool, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }
