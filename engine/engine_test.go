package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/parleyhq/parley/agent"
	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/model"
	"github.com/parleyhq/parley/tool"
)

// recordSink captures every output event for assertions.
type recordSink struct {
	mu     sync.Mutex
	events []core.OutputEvent
}

func (s *recordSink) Write(ev core.OutputEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordSink) all() []core.OutputEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.OutputEvent, len(s.events))
	copy(out, s.events)
	return out
}

type fixture struct {
	catalog   *tool.Catalog
	directory *agent.Directory
	engine    *Engine
	sink      *recordSink
}

func newFixture(t *testing.T, optFns ...func(o *Options)) *fixture {
	t.Helper()
	directory := agent.NewDirectory()
	catalog := tool.NewCatalog(func(o *tool.CatalogOptions) { o.Aliases = directory })
	sink := &recordSink{}
	all := append([]func(o *Options){func(o *Options) { o.Sink = sink }}, optFns...)
	return &fixture{
		catalog:   catalog,
		directory: directory,
		engine:    New(catalog, directory, all...),
		sink:      sink,
	}
}

func (f *fixture) addAgent(t *testing.T, name string, functionCalling bool) (*agent.Agent, *model.MockModel) {
	t.Helper()
	m := model.NewMockModel("scripted", "mock")
	a, err := agent.New(agent.Config{Name: name, Prompt: "You are " + name + ".", FunctionCalling: functionCalling}, m)
	if err != nil {
		t.Fatalf("failed to build agent: %v", err)
	}
	if err := f.directory.Register(a); err != nil {
		t.Fatalf("failed to register agent: %v", err)
	}
	return a, m
}

func emptySchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
		"required":   []string{},
	}
}

func timeTool() tool.Tool {
	return tool.NewFunctionTool("get_time", "Report the current time", emptySchema(),
		func(*core.ToolContext, map[string]any) (any, error) { return "11:03", nil })
}

func toolResponseOf(t *testing.T, c core.Content) core.FunctionResponse {
	t.Helper()
	for _, p := range c.Parts {
		if fr, ok := p.(core.FunctionResponsePart); ok {
			return fr.FunctionResponse
		}
	}
	t.Fatalf("content has no function response part: %+v", c)
	return core.FunctionResponse{}
}

func TestRunFunctionCallingToolLoop(t *testing.T) {
	f := newFixture(t)
	a, m := f.addAgent(t, "clock_watcher", true)
	if err := f.catalog.Register(timeTool()); err != nil {
		t.Fatalf("register: %v", err)
	}

	m.EnqueueToolCalls(core.FunctionCall{ID: "call_1", Name: "get_time", Arguments: "{}"})
	m.EnqueueText("It is 11:03.")

	out, err := f.engine.Run(context.Background(), "clock_watcher", "what time is it?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "It is 11:03." {
		t.Fatalf("expected final answer, got %q", out)
	}

	// user, assistant tool call, tool result, final assistant answer
	h := a.History().Snapshot()
	if len(h) != 4 {
		t.Fatalf("expected 4 history messages, got %d", len(h))
	}
	if h[0].Role != core.RoleUser || h[1].Role != core.RoleAssistant || h[2].Role != core.RoleTool || h[3].Role != core.RoleAssistant {
		t.Fatalf("unexpected role sequence: %s %s %s %s", h[0].Role, h[1].Role, h[2].Role, h[3].Role)
	}
	fr := toolResponseOf(t, h[2])
	if fr.ID != "call_1" || fr.Name != "get_time" || fr.Response != "11:03" {
		t.Fatalf("unexpected tool response: %+v", fr)
	}

	// The second backend call must have seen the replayed tool result.
	reqs := m.Requests()
	if len(reqs) != 2 {
		t.Fatalf("expected 2 backend calls, got %d", len(reqs))
	}
	if len(reqs[1].Contents) != 3 {
		t.Fatalf("expected 3 contents in second call, got %d", len(reqs[1].Contents))
	}
	if len(reqs[0].Tools) == 0 {
		t.Fatalf("function-calling agent should advertise tool definitions")
	}
}

func TestRunInlineTagToolLoop(t *testing.T) {
	f := newFixture(t)
	a, m := f.addAgent(t, "clock_watcher", false)
	if err := f.catalog.Register(timeTool()); err != nil {
		t.Fatalf("register: %v", err)
	}

	m.EnqueueText("Checking. <get_time></get_time>")
	m.EnqueueText("The time is 11:03.")

	out, err := f.engine.Run(context.Background(), "clock_watcher", "what time is it?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "The time is 11:03." {
		t.Fatalf("expected final answer, got %q", out)
	}

	h := a.History().Snapshot()
	if len(h) != 4 {
		t.Fatalf("expected 4 history messages, got %d", len(h))
	}
	if h[2].Role != core.RoleSystem {
		t.Fatalf("inline-tag results replay as system messages, got role %q", h[2].Role)
	}
	if h[2].Text() != "get_time results: 11:03" {
		t.Fatalf("unexpected replay text: %q", h[2].Text())
	}

	// Inline-tag agents get no structured tool definitions.
	if len(m.Requests()[0].Tools) != 0 {
		t.Fatalf("inline-tag agent should not advertise tool definitions")
	}
}

func TestRunAttemptCompletionShortCircuit(t *testing.T) {
	f := newFixture(t)
	_, m := f.addAgent(t, "finisher", true)

	m.EnqueueToolCalls(core.FunctionCall{ID: "call_1", Name: ToolAttemptCompletion, Arguments: `{"report_content":"All done."}`})
	m.EnqueueText("never reached")

	out, err := f.engine.Run(context.Background(), "finisher", "finish up")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "All done." {
		t.Fatalf("expected completion payload, got %q", out)
	}
	if len(m.Requests()) != 1 {
		t.Fatalf("completion must not trigger another backend call, got %d", len(m.Requests()))
	}
}

func TestRunInlineAttemptCompletionBrokenTag(t *testing.T) {
	f := newFixture(t)
	_, m := f.addAgent(t, "finisher", false)

	m.EnqueueText("Task finished. <attempt_completion>")

	out, err := f.engine.Run(context.Background(), "finisher", "finish up")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Task finished.") {
		t.Fatalf("expected assistant text as final output, got %q", out)
	}
	if len(m.Requests()) != 1 {
		t.Fatalf("broken completion tag must still end the turn, got %d backend calls", len(m.Requests()))
	}
}

func TestRunMalformedInlineCallRecovers(t *testing.T) {
	f := newFixture(t)
	a, m := f.addAgent(t, "clock_watcher", false)
	if err := f.catalog.Register(timeTool()); err != nil {
		t.Fatalf("register: %v", err)
	}

	m.EnqueueText("<get_time>")
	m.EnqueueText("Sorry, let me answer directly: no idea.")

	out, err := f.engine.Run(context.Background(), "clock_watcher", "what time is it?")
	if err != nil {
		t.Fatalf("malformed call must not abort the run: %v", err)
	}
	if out != "Sorry, let me answer directly: no idea." {
		t.Fatalf("unexpected final output: %q", out)
	}

	h := a.History().Snapshot()
	// user, assistant, error replay, assistant
	if len(h) != 4 {
		t.Fatalf("expected 4 history messages, got %d", len(h))
	}
	if !strings.Contains(h[2].Text(), "missing closing tag") {
		t.Fatalf("expected malformed-call explanation, got %q", h[2].Text())
	}
	if len(m.Requests()) != 2 {
		t.Fatalf("expected recovery turn, got %d backend calls", len(m.Requests()))
	}
}

func TestRunUnknownInlineToolListsAvailable(t *testing.T) {
	f := newFixture(t)
	a, m := f.addAgent(t, "clock_watcher", false)
	if err := f.catalog.Register(timeTool()); err != nil {
		t.Fatalf("register: %v", err)
	}

	m.EnqueueText("<fly_to_moon></fly_to_moon>")
	m.EnqueueText("I cannot do that.")

	if _, err := f.engine.Run(context.Background(), "clock_watcher", "go"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	h := a.History().Snapshot()
	replay := h[2].Text()
	if !strings.Contains(replay, `"fly_to_moon" not found`) {
		t.Fatalf("expected not-found message, got %q", replay)
	}
	for _, name := range []string{"get_time", ToolAskForHelp, ToolAttemptCompletion} {
		if !strings.Contains(replay, name) {
			t.Fatalf("expected %q in the available tool list, got %q", name, replay)
		}
	}
}

func TestRunRestrictedToolDeniedInTurn(t *testing.T) {
	f := newFixture(t)
	a, m := f.addAgent(t, "outsider", true)

	invoked := false
	secret := tool.NewFunctionTool("launch", "Restricted", emptySchema(),
		func(*core.ToolContext, map[string]any) (any, error) { invoked = true; return "ok", nil })
	if err := f.catalog.Register(secret, "somebody_else"); err != nil {
		t.Fatalf("register: %v", err)
	}

	m.EnqueueToolCalls(core.FunctionCall{ID: "call_1", Name: "launch", Arguments: "{}"})
	m.EnqueueText("Understood.")

	out, err := f.engine.Run(context.Background(), "outsider", "launch it")
	if err != nil {
		t.Fatalf("permission failure must stay in-turn: %v", err)
	}
	if out != "Understood." {
		t.Fatalf("unexpected final output: %q", out)
	}
	if invoked {
		t.Fatal("restricted handler must not run")
	}

	fr := toolResponseOf(t, a.History().Snapshot()[2])
	if fr.Error == "" || !strings.Contains(fr.Error, "not permitted") {
		t.Fatalf("expected permission error replay, got %+v", fr)
	}
}

func TestRunOrderedMultiCallDispatch(t *testing.T) {
	f := newFixture(t)
	a, m := f.addAgent(t, "sequencer", true)

	var order []string
	var lens []int
	record := func(name string) tool.Tool {
		return tool.NewFunctionTool(name, "Record call order", emptySchema(),
			func(*core.ToolContext, map[string]any) (any, error) {
				order = append(order, name)
				lens = append(lens, a.History().Len())
				return name + " done", nil
			})
	}
	if err := f.catalog.Register(record("first_step")); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := f.catalog.Register(record("second_step")); err != nil {
		t.Fatalf("register: %v", err)
	}

	m.EnqueueToolCalls(
		core.FunctionCall{ID: "call_1", Name: "first_step", Arguments: "{}"},
		core.FunctionCall{ID: "call_2", Name: "second_step", Arguments: "{}"},
	)
	m.EnqueueText("Both done.")

	if _, err := f.engine.Run(context.Background(), "sequencer", "run both"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(order) != 2 || order[0] != "first_step" || order[1] != "second_step" {
		t.Fatalf("calls must dispatch in response order, got %v", order)
	}
	// The second handler must observe the first result already appended.
	if len(lens) != 2 || lens[1] != lens[0]+1 {
		t.Fatalf("each result must append before the next call runs, got history lengths %v", lens)
	}
}

func TestRunBackendErrorIsFatal(t *testing.T) {
	f := newFixture(t)
	a, m := f.addAgent(t, "doomed", true)
	m.FailWith(errors.New("connection reset"))

	_, err := f.engine.Run(context.Background(), "doomed", "hello")
	var backend *model.BackendError
	if !errors.As(err, &backend) {
		t.Fatalf("expected BackendError, got %v", err)
	}
	if backend.Provider != "mock" {
		t.Fatalf("expected provider from model info, got %q", backend.Provider)
	}
	// The user message stays recorded even though the turn failed.
	if a.History().Len() != 1 {
		t.Fatalf("expected only the user message, got %d", a.History().Len())
	}
}

func TestRunUnknownAgent(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Run(context.Background(), "nobody", "hi")
	var notFound *agent.AgentNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected AgentNotFoundError, got %v", err)
	}
}

func TestRunSinkReceivesOutput(t *testing.T) {
	f := newFixture(t)
	_, m := f.addAgent(t, "talker", true)

	m.Enqueue(model.Response{
		Content:      core.NewAssistantContent("hello there"),
		FinishReason: "stop",
		Usage:        &core.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	})

	if _, err := f.engine.Run(context.Background(), "talker", "hi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	events := f.sink.all()
	if len(events) != 3 {
		t.Fatalf("expected text, usage and turn-done events, got %+v", events)
	}
	if events[0].Text != "hello there" || events[0].AgentName != "talker" {
		t.Fatalf("unexpected text event: %+v", events[0])
	}
	if events[1].Usage == nil || events[1].Usage.TotalTokens != 15 {
		t.Fatalf("unexpected usage event: %+v", events[1])
	}
	if !events[2].TurnDone {
		t.Fatalf("expected turn-done event, got %+v", events[2])
	}
}

func TestRunEmitsToolEvents(t *testing.T) {
	f := newFixture(t)
	_, m := f.addAgent(t, "clock_watcher", true)
	if err := f.catalog.Register(timeTool()); err != nil {
		t.Fatalf("register: %v", err)
	}

	m.EnqueueToolCalls(core.FunctionCall{ID: "call_1", Name: "get_time", Arguments: "{}"})
	m.EnqueueText("It is 11:03.")

	if _, err := f.engine.Run(context.Background(), "clock_watcher", "time?"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var sawTool bool
	for _, ev := range f.sink.all() {
		if ev.ToolName == "get_time" {
			sawTool = true
		}
	}
	if !sawTool {
		t.Fatal("expected a tool event for get_time")
	}
}

func TestInstructionsIncludeToolsAndIdentity(t *testing.T) {
	f := newFixture(t)
	a, _ := f.addAgent(t, "clock_watcher", false)
	if err := f.catalog.Register(timeTool()); err != nil {
		t.Fatalf("register: %v", err)
	}

	instructions := f.engine.instructionsFor(a)
	for _, want := range []string{
		"You are clock_watcher.",
		"get_time: Report the current time",
		ToolAskForHelp,
		ToolAttemptCompletion,
		"<tool_name><param>value</param></tool_name>",
		"Your agent id is " + a.ID(),
	} {
		if !strings.Contains(instructions, want) {
			t.Fatalf("instructions missing %q:\n%s", want, instructions)
		}
	}
}

func TestListAgentsTool(t *testing.T) {
	f := newFixture(t)
	f.addAgent(t, "bravo", true)
	f.addAgent(t, "alpha", true)

	lister := NewListAgentsTool(f.directory)
	result, err := lister.Call(core.NewToolContext(context.Background(), core.AgentInfo{ID: "x", Name: "alpha"}, "run", "call", nil), map[string]any{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	text, ok := result.(string)
	if !ok {
		t.Fatalf("expected string result, got %T", result)
	}
	if !strings.HasPrefix(text, "Available agents:") {
		t.Fatalf("unexpected listing header: %q", text)
	}
	alphaAt := strings.Index(text, "- alpha (UUID: ")
	bravoAt := strings.Index(text, "- bravo (UUID: ")
	if alphaAt < 0 || bravoAt < 0 || alphaAt > bravoAt {
		t.Fatalf("expected sorted agent lines, got %q", text)
	}
}
