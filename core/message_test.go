package core

import (
	"errors"
	"testing"
)

func TestNewUserContentParts(t *testing.T) {
	c := NewUserContent("describe this", ImagePart{URL: "https://example.com/cat.png"}, ImagePart{Base64: "aGVsbG8="})

	if c.Role != RoleUser {
		t.Fatalf("expected role %q, got %q", RoleUser, c.Role)
	}
	if len(c.Parts) != 3 {
		t.Fatalf("expected 3 parts, got %d", len(c.Parts))
	}
	if got := c.Text(); got != "describe this" {
		t.Fatalf("unexpected text: %q", got)
	}
}

func TestNewUserContentNoText(t *testing.T) {
	c := NewUserContent("", ImagePart{URL: "https://example.com/cat.png"})
	if len(c.Parts) != 1 {
		t.Fatalf("expected image-only content, got %d parts", len(c.Parts))
	}
}

func TestAssistantToolCallsOrder(t *testing.T) {
	calls := []FunctionCall{
		{ID: "call_1", Name: "get_time"},
		{ID: "call_2", Name: "get_weather", Arguments: `{"city":"Berlin"}`},
	}

	c := NewAssistantToolCalls(calls)
	if c.Role != RoleAssistant {
		t.Fatalf("expected assistant role, got %q", c.Role)
	}

	got := c.FunctionCalls()
	if len(got) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(got))
	}
	if got[0].Name != "get_time" || got[1].Name != "get_weather" {
		t.Fatalf("call order not preserved: %+v", got)
	}
}

func TestToolResultAndError(t *testing.T) {
	res := NewToolResult("call_1", "get_time", "11:03")
	if res.Role != RoleTool {
		t.Fatalf("expected tool role, got %q", res.Role)
	}
	frp, ok := res.Parts[0].(FunctionResponsePart)
	if !ok {
		t.Fatalf("expected FunctionResponsePart, got %T", res.Parts[0])
	}
	if frp.FunctionResponse.Response != "11:03" || frp.FunctionResponse.Error != "" {
		t.Fatalf("unexpected response: %+v", frp.FunctionResponse)
	}

	fail := NewToolError("call_2", "get_time", errors.New("clock offline"))
	frp, ok = fail.Parts[0].(FunctionResponsePart)
	if !ok {
		t.Fatalf("expected FunctionResponsePart, got %T", fail.Parts[0])
	}
	if frp.FunctionResponse.Error != "clock offline" {
		t.Fatalf("unexpected error text: %q", frp.FunctionResponse.Error)
	}
}

func TestToolResultText(t *testing.T) {
	if got := ToolResultText("get_time", "11:03"); got != "get_time results: 11:03" {
		t.Fatalf("unexpected rendering: %q", got)
	}
}

func TestToolCallArgument(t *testing.T) {
	tc := ToolCall{Name: "ask_for_help", Arguments: map[string]any{"agent_id": "time_agent", "count": 3}}

	if v, ok := tc.Argument("agent_id"); !ok || v != "time_agent" {
		t.Fatalf("expected agent_id lookup to succeed, got %q %v", v, ok)
	}
	if _, ok := tc.Argument("missing"); ok {
		t.Fatal("expected missing argument to report !ok")
	}
	if _, ok := tc.Argument("count"); ok {
		t.Fatal("expected non-string argument to report !ok")
	}
}
