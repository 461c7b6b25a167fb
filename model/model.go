package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/parleyhq/parley/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"` // JSON Schema
}

// Request captures the normalized model input produced by the engine.
type Request struct {
	Instructions string           `json:"instructions"` // Instructions for the model
	Contents     []core.Content   `json:"contents"`     // Higher-level content converted to provider messages
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Stream       bool             `json:"stream,omitempty"`
}

// Response is a (partial or final) chunk emitted by a streaming model.
type Response struct {
	ID           string           `json:"id"`
	Partial      bool             `json:"partial"` // Indicates if this is a partial response
	Content      core.Content     `json:"content"`
	FinishReason string           `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *core.TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by the engine to drive generation.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// BackendError reports a failure reaching or reading a model provider. It is
// not recoverable inside a conversation turn: the engine surfaces it to the
// caller instead of feeding it back to the model.
type BackendError struct {
	Provider string
	Err      error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("model backend %q: %v", e.Provider, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// MockModel is a lightweight in‑memory Model useful for tests & examples.
// It supports two modes: prompt-keyed canned completions (AddResponse) and a
// scripted FIFO of full responses (Enqueue and friends) consumed one per
// Generate call. Scripted responses take precedence. Every Request passed to
// Generate is recorded for later inspection.
type MockModel struct {
	mu        sync.Mutex
	info      Info
	responses map[string]string
	scripted  []Response
	requests  []Request
	failWith  error
}

// NewMockModel constructs a MockModel with basic tool support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info: Info{
			Name:          name,
			Provider:      provider,
			SupportsTools: true,
		},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// Enqueue appends a scripted response returned verbatim by the next Generate call.
func (m *MockModel) Enqueue(resp Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripted = append(m.scripted, resp)
}

// EnqueueText scripts a plain assistant text turn.
func (m *MockModel) EnqueueText(text string) {
	m.Enqueue(Response{
		Content:      core.NewAssistantContent(text),
		FinishReason: "stop",
	})
}

// EnqueueToolCalls scripts an assistant turn requesting the given function calls.
func (m *MockModel) EnqueueToolCalls(calls ...core.FunctionCall) {
	m.Enqueue(Response{
		Content:      core.NewAssistantToolCalls(calls),
		FinishReason: "tool_calls",
	})
}

// FailWith makes the next Generate call report err instead of a response.
func (m *MockModel) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// Requests returns a copy of every Request seen so far, in call order.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Generate implements Model; emits optional streaming char chunks then final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.requests = append(m.requests, req)
	var next *Response
	if len(m.scripted) > 0 {
		r := m.scripted[0]
		m.scripted = m.scripted[1:]
		next = &r
	}
	failErr := m.failWith
	m.failWith = nil
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)
		if failErr != nil {
			errCh <- failErr
			return
		}
		if next != nil {
			respCh <- *next
			return
		}
		if len(req.Contents) == 0 {
			errCh <- fmt.Errorf("no contents provided")
			return
		}
		last := req.Contents[len(req.Contents)-1]
		var inputText string
		for _, p := range last.Parts {
			if tp, ok := p.(core.TextPart); ok {
				inputText += tp.Text
			}
		}
		m.mu.Lock()
		full := m.responses[inputText]
		m.mu.Unlock()
		if full == "" {
			full = fmt.Sprintf("Mock response to: %s", inputText)
		}
		if req.Stream {
			for _, r := range full {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{
					Partial: true,
					Content: core.Content{
						Role:  core.RoleAssistant,
						Parts: []core.Part{core.TextPart{Text: string(r)}},
					},
				}:
				}
			}
		}
		respCh <- Response{
			Partial:      false,
			Content:      core.NewAssistantContent(full),
			FinishReason: "stop",
		}
	}()
	return respCh, errCh
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
