package engine

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/parleyhq/parley/core"
)

// Both tool-call encodings normalize into core.ToolCall so that dispatch
// stays encoding-agnostic: parseFunctionCalls handles the structured
// function-calling wire shape, parseInlineCalls the tag blocks embedded in
// free text.

// wrapperTagRe matches the presentation wrappers some models emit around
// their visible text. They are stripped before tag extraction.
var wrapperTagRe = regexp.MustCompile(`</?(?:out_text|thinking)>`)

// openTagRe matches a candidate inline tag opening.
var openTagRe = regexp.MustCompile(`<(\w+)>`)

// parseFunctionCalls decodes the function-call parts of an assistant message.
// An empty arguments payload counts as no arguments; anything else must be a
// JSON object.
func parseFunctionCalls(content core.Content) ([]core.ToolCall, error) {
	var calls []core.ToolCall
	for _, fc := range content.FunctionCalls() {
		args := map[string]any{}
		if raw := strings.TrimSpace(fc.Arguments); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return nil, &MalformedToolCallError{Tool: fc.Name, Reason: "arguments are not a JSON object: " + err.Error()}
			}
		}
		calls = append(calls, core.ToolCall{ID: fc.ID, Name: fc.Name, Arguments: args})
	}
	return calls, nil
}

// stripWrapperTags removes <out_text> and <thinking> wrappers from model text.
func stripWrapperTags(text string) string {
	return wrapperTagRe.ReplaceAllString(text, "")
}

// parseInlineCalls extracts tool invocations written as inline tag blocks, in
// the order they appear. A block is a tag whose children are key/value
// parameter pairs:
//
//	<ask_for_help><agent_id>time_agent</agent_id><message>now?</message></ask_for_help>
//
// Any closed top-level tag becomes a call (unknown names surface later as
// tool-not-found results, which is more instructive to the model than silence).
// An unclosed tag is prose unless known reports it as a dispatchable tool
// name, in which case the block is malformed.
func parseInlineCalls(text string, known func(name string) bool) ([]core.ToolCall, error) {
	var calls []core.ToolCall
	rest := text
	for {
		loc := openTagRe.FindStringSubmatchIndex(rest)
		if loc == nil {
			return calls, nil
		}
		name := rest[loc[2]:loc[3]]
		bodyStart := loc[1]
		closing := "</" + name + ">"
		end := strings.Index(rest[bodyStart:], closing)
		if end < 0 {
			if known(name) {
				return calls, &MalformedToolCallError{Tool: name, Reason: "missing closing tag"}
			}
			rest = rest[bodyStart:]
			continue
		}
		args, err := parseTagChildren(name, rest[bodyStart:bodyStart+end])
		if err != nil {
			return calls, err
		}
		calls = append(calls, core.ToolCall{Name: name, Arguments: args})
		rest = rest[bodyStart+end+len(closing):]
	}
}

// parseTagChildren reads the key/value parameter pairs nested in a tag body.
// Values stay textual; schema-driven coercion happens at dispatch. Text
// between children is ignored, matching how models interleave prose and
// parameters.
func parseTagChildren(tool, body string) (map[string]any, error) {
	args := map[string]any{}
	rest := body
	for {
		loc := openTagRe.FindStringSubmatchIndex(rest)
		if loc == nil {
			return args, nil
		}
		name := rest[loc[2]:loc[3]]
		valStart := loc[1]
		closing := "</" + name + ">"
		end := strings.Index(rest[valStart:], closing)
		if end < 0 {
			return nil, &MalformedToolCallError{Tool: tool, Reason: "parameter <" + name + "> is missing its closing tag"}
		}
		args[name] = rest[valStart : valStart+end]
		rest = rest[valStart+end+len(closing):]
	}
}
