package core

import (
	"fmt"
	"io"
	"sync"
)

// TokenUsage captures token accounting reported by a backend for one call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// OutputEvent is one unit of user-visible output produced by a conversation
// run: a streamed text chunk, a tool dispatch notice, a usage report or a
// turn-completion marker. Exactly one of Text, ToolName, Usage or TurnDone is
// meaningful per event.
type OutputEvent struct {
	AgentID   string
	AgentName string

	Text     string         // Streamed or final assistant text
	ToolName string         // Set when announcing a tool dispatch
	ToolArgs map[string]any // Arguments of the announced dispatch
	Usage    *TokenUsage    // Set when the backend reports usage
	TurnDone bool           // Marks the end of one model turn
}

// OutputSink receives the output stream of a conversation run. Each agent may
// carry its own sink; the engine falls back to a process-wide default. Sinks
// must tolerate concurrent writers, one per running engine.
type OutputSink interface {
	Write(ev OutputEvent)
}

// WriterSink renders output events as plain text on an io.Writer. Text chunks
// are written as-is (they already carry the model's spacing), tool notices and
// usage reports get their own lines.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink creates a WriterSink on w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Write implements OutputSink.
func (s *WriterSink) Write(ev OutputEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case ev.ToolName != "":
		fmt.Fprintf(s.w, "\n[%s] calling tool %s %v\n", ev.AgentName, ev.ToolName, ev.ToolArgs)
	case ev.Usage != nil:
		fmt.Fprintf(s.w, "\n[%s] tokens: prompt %d, completion %d, total %d\n",
			ev.AgentName, ev.Usage.PromptTokens, ev.Usage.CompletionTokens, ev.Usage.TotalTokens)
	case ev.TurnDone:
		fmt.Fprintln(s.w)
	case ev.Text != "":
		fmt.Fprint(s.w, ev.Text)
	}
}

// NoOpSink discards all output events.
type NoOpSink struct{}

// Write implements OutputSink.
func (NoOpSink) Write(OutputEvent) {}
