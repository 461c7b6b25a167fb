package core

// ToolCall is the single normalized tool invocation representation. Both wire
// encodings reduce to this shape before dispatch: the function-calling parser
// decodes the serialized argument payload, the inline-tag parser collects tag
// children as key/value pairs. Dispatch logic never sees the encoding.
type ToolCall struct {
	ID        string         // Provider call id, or synthesized for inline-tag calls
	Name      string         // Tool name, or the reserved delegation/completion name
	Arguments map[string]any // Decoded arguments
}

// Argument returns the named argument rendered as a string, with ok reporting
// presence. Inline-tag parameters arrive as strings already; other values are
// rejected.
func (tc ToolCall) Argument(name string) (string, bool) {
	v, ok := tc.Arguments[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
