package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/parleyhq/parley/agent"
	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/logging"
	"github.com/parleyhq/parley/model"
	"github.com/parleyhq/parley/tool"
)

// Options configure an Engine.
type Options struct {
	// Logger receives structured engine events. Defaults to NoOp.
	Logger logging.Logger
	// Sink receives output for agents without their own sink override.
	// Defaults to a silent sink.
	Sink core.OutputSink
	// MaxDelegationDepth bounds agent-to-agent hops per top-level turn.
	// Defaults to DefaultMaxDelegationDepth.
	MaxDelegationDepth int
	// Stream requests streaming generation from backends so sinks receive
	// text while it is produced.
	Stream bool
}

// Engine runs conversation turns for the agents of one directory. It owns no
// per-agent state itself: histories live on the agents, so engines may run
// turns for different agents concurrently. Two turns for the same agent must
// not run concurrently.
type Engine struct {
	catalog   *tool.Catalog
	directory *agent.Directory
	router    *Router
	logger    logging.Logger
	sink      core.OutputSink
	maxDepth  int
	stream    bool
}

// New creates an engine over the given catalog and directory.
func New(catalog *tool.Catalog, directory *agent.Directory, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Logger:             logging.NoOpLogger{},
		Sink:               core.NoOpSink{},
		MaxDelegationDepth: DefaultMaxDelegationDepth,
		Stream:             true,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	e := &Engine{
		catalog:   catalog,
		directory: directory,
		logger:    opts.Logger,
		sink:      opts.Sink,
		maxDepth:  opts.MaxDelegationDepth,
		stream:    opts.Stream,
	}
	e.router = &Router{engine: e, directory: directory}

	return e
}

// Router returns the delegation router bound to this engine.
func (e *Engine) Router() *Router { return e.router }

// RunOptions configure a single top-level turn.
type RunOptions struct {
	// Images attach to the user message for vision-capable backends.
	Images []core.ImagePart
}

// Run executes one top-level conversation turn for the agent addressed by
// key (identifier or display name) and returns the agent's final output.
func (e *Engine) Run(ctx context.Context, agentKey, message string, optFns ...func(o *RunOptions)) (string, error) {
	opts := RunOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	a, err := e.directory.Lookup(agentKey)
	if err != nil {
		return "", err
	}

	return e.runTurn(ctx, a, message, opts.Images, NewDelegationContext(a.ID(), e.maxDepth))
}

// runTurn appends the user message to the agent's history and loops through
// model calls and tool dispatches until the turn completes. Delegated turns
// enter here directly with the delegation context of their chain.
func (e *Engine) runTurn(ctx context.Context, a *agent.Agent, message string, images []core.ImagePart, dc DelegationContext) (string, error) {
	runID := core.NewID()
	sink := e.sinkFor(a)
	start := time.Now()

	e.logger.Info("engine.turn.start",
		"agent", a.Name(),
		"agent_id", a.ID(),
		"run_id", runID,
		"function_calling", a.FunctionCalling(),
		"depth_remaining", dc.Depth(),
	)

	a.History().Append(core.NewUserContent(message, images...))

	state := stateAwaitingTurn
	for {
		e.setState(&state, stateModelCallPending, runID)

		resp, err := e.callModel(ctx, a, sink)
		if err != nil {
			return "", e.fail(a, &state, runID, start, err)
		}
		e.setState(&state, stateResponseReceived, runID)

		if resp.Usage != nil {
			sink.Write(core.OutputEvent{AgentID: a.ID(), AgentName: a.Name(), Usage: resp.Usage})
		}

		text := resp.Content.Text()
		e.appendAssistantTurn(a, resp.Content, text)

		calls, perr := e.extractCalls(a, resp.Content)
		if perr != nil {
			var malformed *MalformedToolCallError
			if errors.As(perr, &malformed) && malformed.Tool == ToolAttemptCompletion {
				// Even a broken completion tag means the model wants out;
				// looping would stall the conversation.
				e.setState(&state, stateCompleted, runID)
				return e.complete(a, text, sink, runID, start, "attempt_completion_tag")
			}
			e.logger.Warn("engine.parse.malformed", "agent", a.Name(), "run_id", runID, "error", perr.Error())
			var failedCall core.ToolCall
			if malformed != nil {
				failedCall.Name = malformed.Tool
			}
			e.appendToolFailure(a, failedCall, perr)
			e.setState(&state, stateAwaitingTurn, runID)
			continue
		}

		if len(calls) == 0 {
			e.setState(&state, stateCompleted, runID)
			return e.complete(a, text, sink, runID, start, "final_response")
		}

		e.setState(&state, stateToolDispatch, runID)

		report, done, err := e.dispatchCalls(ctx, a, calls, dc, sink, runID)
		if err != nil {
			return "", e.fail(a, &state, runID, start, err)
		}
		if done {
			e.setState(&state, stateCompleted, runID)
			return e.complete(a, report, sink, runID, start, "attempt_completion")
		}

		e.setState(&state, stateAwaitingTurn, runID)
	}
}

// setState advances the turn state machine and records the transition.
func (e *Engine) setState(state *turnState, next turnState, runID string) {
	*state = next
	e.logger.Debug("engine.turn.state", "run_id", runID, "state", next.String())
}

// fail moves the turn into its terminal failed state and returns err.
func (e *Engine) fail(a *agent.Agent, state *turnState, runID string, start time.Time, err error) error {
	*state = stateFailed
	e.logger.Error("engine.turn.failed",
		"agent", a.Name(),
		"run_id", runID,
		"state", state.String(),
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err.Error(),
	)
	return err
}

// complete finishes a turn, emitting the turn-done event and the summary log.
func (e *Engine) complete(a *agent.Agent, finalOutput string, sink core.OutputSink, runID string, start time.Time, reason string) (string, error) {
	sink.Write(core.OutputEvent{AgentID: a.ID(), AgentName: a.Name(), TurnDone: true})

	e.logger.Info("engine.turn.completed",
		"agent", a.Name(),
		"run_id", runID,
		"reason", reason,
		"duration_ms", time.Since(start).Milliseconds(),
		"history_len", a.History().Len(),
	)

	return finalOutput, nil
}

// callModel sends the agent's full history to its backend and returns the
// terminal response. Partial text is forwarded to the sink as it arrives;
// when the backend streams nothing, the final text is forwarded instead so
// sinks see the same output either way.
func (e *Engine) callModel(ctx context.Context, a *agent.Agent, sink core.OutputSink) (model.Response, error) {
	req := model.Request{
		Instructions: e.instructionsFor(a),
		Contents:     a.History().Snapshot(),
		Stream:       e.stream,
	}
	if a.FunctionCalling() {
		req.Tools = e.toolDefinitionsFor(a)
	}

	start := time.Now()
	respCh, errCh := a.Model().Generate(ctx, req)

	var final *model.Response
	streamedText := false
	for resp := range respCh {
		if resp.Partial {
			if text := resp.Content.Text(); text != "" {
				streamedText = true
				sink.Write(core.OutputEvent{AgentID: a.ID(), AgentName: a.Name(), Text: text})
			}
			continue
		}
		r := resp
		final = &r
	}

	if err := <-errCh; err != nil {
		var backend *model.BackendError
		if !errors.As(err, &backend) {
			err = &model.BackendError{Provider: a.Model().Info().Provider, Err: err}
		}
		return model.Response{}, err
	}
	if final == nil {
		return model.Response{}, &model.BackendError{
			Provider: a.Model().Info().Provider,
			Err:      errors.New("backend closed the stream without a final response"),
		}
	}

	e.logger.Debug("engine.model.responded",
		"agent", a.Name(),
		"model", a.Model().Info().Name,
		"finish_reason", final.FinishReason,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if !streamedText {
		if text := final.Content.Text(); text != "" {
			sink.Write(core.OutputEvent{AgentID: a.ID(), AgentName: a.Name(), Text: text})
		}
	}

	return *final, nil
}

// appendAssistantTurn records the model's reply. Function-calling content is
// kept intact so call parts replay to the backend; inline-tag replies are
// plain text to the wire.
func (e *Engine) appendAssistantTurn(a *agent.Agent, content core.Content, text string) {
	if a.FunctionCalling() {
		a.History().Append(content)
		return
	}
	a.History().Append(core.NewAssistantContent(text))
}

// extractCalls normalizes the response into tool calls using the agent's
// configured encoding.
func (e *Engine) extractCalls(a *agent.Agent, content core.Content) ([]core.ToolCall, error) {
	if a.FunctionCalling() {
		return parseFunctionCalls(content)
	}
	return parseInlineCalls(stripWrapperTags(content.Text()), e.dispatchable)
}

// dispatchable reports whether name is something the engine can run: one of
// the reserved tools or any catalog entry.
func (e *Engine) dispatchable(name string) bool {
	if name == ToolAskForHelp || name == ToolAttemptCompletion {
		return true
	}
	return e.catalog.Has(name)
}

// dispatchCalls executes tool calls in response order, appending each result
// to history before the next call runs. It reports completion when an
// attempt_completion call is reached; calls after it never execute. The only
// error it returns is a fatal backend failure bubbling out of a delegated
// turn; every per-call failure is replayed into history instead.
func (e *Engine) dispatchCalls(ctx context.Context, a *agent.Agent, calls []core.ToolCall, dc DelegationContext, sink core.OutputSink, runID string) (string, bool, error) {
	for _, call := range calls {
		sink.Write(core.OutputEvent{
			AgentID:   a.ID(),
			AgentName: a.Name(),
			ToolName:  call.Name,
			ToolArgs:  call.Arguments,
		})

		if call.Name == ToolAttemptCompletion {
			report, _ := call.Argument("report_content")
			if report != "" {
				sink.Write(core.OutputEvent{AgentID: a.ID(), AgentName: a.Name(), Text: report})
			}
			return report, true, nil
		}

		result, err := e.dispatchOne(ctx, a, call, dc, runID)
		if err != nil {
			var backend *model.BackendError
			if errors.As(err, &backend) {
				return "", false, err
			}
			e.appendToolFailure(a, call, err)
			continue
		}
		e.appendToolResult(a, call, result)
	}

	return "", false, nil
}

// dispatchOne routes a single call to the delegation router or the catalog.
func (e *Engine) dispatchOne(ctx context.Context, a *agent.Agent, call core.ToolCall, dc DelegationContext, runID string) (any, error) {
	if call.Name == ToolAskForHelp {
		return e.router.Delegate(ctx, a, call, dc)
	}

	start := time.Now()
	toolCtx := core.NewToolContext(ctx, a.Info(), runID, call.ID, e.logger)
	result, err := e.catalog.Invoke(toolCtx, call.Name, a.ID(), call.Arguments)

	e.logger.Info("engine.tool.executed",
		"agent", a.Name(),
		"tool", call.Name,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err != nil,
	)

	return result, err
}

// appendToolResult replays a successful tool result into history in the form
// the agent's wire mode expects: a proper tool message for function calling,
// a system message for inline-tag conversations.
func (e *Engine) appendToolResult(a *agent.Agent, call core.ToolCall, result any) {
	if a.FunctionCalling() && call.ID != "" {
		a.History().Append(core.NewToolResult(call.ID, call.Name, result))
		return
	}
	a.History().Append(core.NewSystemContent(core.ToolResultText(call.Name, result)))
}

// appendToolFailure replays a recoverable dispatch failure into history so
// the model can adapt on its next turn.
func (e *Engine) appendToolFailure(a *agent.Agent, call core.ToolCall, err error) {
	e.logger.Warn("engine.tool.error", "agent", a.Name(), "tool", call.Name, "error", err.Error())

	if a.FunctionCalling() && call.ID != "" {
		a.History().Append(core.NewToolError(call.ID, call.Name, err))
		return
	}
	a.History().Append(core.NewSystemContent(e.inlineFailureText(a, call, err)))
}

// inlineFailureText renders a failure for inline-tag conversations. Unknown
// tools additionally list what is available, which models reliably act on.
func (e *Engine) inlineFailureText(a *agent.Agent, call core.ToolCall, err error) string {
	var notFound *tool.ToolNotFoundError
	if errors.As(err, &notFound) {
		if names := e.availableToolNames(a); len(names) > 0 {
			return fmt.Sprintf("Tool error: tool %q not found. You can use the following tools: %s",
				call.Name, strings.Join(names, ", "))
		}
	}
	return fmt.Sprintf("Tool error: %s", err.Error())
}

// availableToolNames lists the catalog tools this agent may call plus the
// reserved tools, sorted for stable prompts.
func (e *Engine) availableToolNames(a *agent.Agent) []string {
	tools := e.catalog.ToolsFor(a.ID())
	names := make([]string, 0, len(tools)+2)
	for _, t := range tools {
		names = append(names, t.Name())
	}
	names = append(names, ToolAskForHelp, ToolAttemptCompletion)
	return names
}

// instructionsFor assembles the system prompt: the agent's own prompt, the
// permission-filtered tool list with the reserved tools, tag syntax guidance
// for inline-tag agents, and the agent's id so it can identify itself to
// peers.
func (e *Engine) instructionsFor(a *agent.Agent) string {
	var sb strings.Builder
	sb.WriteString(a.Prompt())

	sb.WriteString("\n\nYou can use the following tools:\n")
	for _, t := range e.catalog.ToolsFor(a.ID()) {
		fmt.Fprintf(&sb, "- %s: %s\n", t.Name(), t.Description())
	}
	for _, line := range builtinPromptLines() {
		sb.WriteString(line)
		sb.WriteString("\n")
	}

	if !a.FunctionCalling() {
		sb.WriteString("\nInvoke a tool by writing <tool_name><param>value</param></tool_name> in your reply.\n")
	}

	fmt.Fprintf(&sb, "\nYour agent id is %s.", a.ID())

	return sb.String()
}

// toolDefinitionsFor builds the function definitions advertised to a
// function-calling backend.
func (e *Engine) toolDefinitionsFor(a *agent.Agent) []model.ToolDefinition {
	tools := e.catalog.ToolsFor(a.ID())
	defs := make([]model.ToolDefinition, 0, len(tools)+2)
	for _, t := range tools {
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return append(defs, builtinDefinitions()...)
}

// sinkFor returns the agent's sink override or the engine default.
func (e *Engine) sinkFor(a *agent.Agent) core.OutputSink {
	if s := a.Sink(); s != nil {
		return s
	}
	return e.sink
}
