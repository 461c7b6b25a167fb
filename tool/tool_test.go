package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/parleyhq/parley/core"
	"github.com/parleyhq/parley/internal/util"
	"github.com/parleyhq/parley/logging"
)

var _ Tool = (*FunctionTool)(nil)

func testToolContext(fcID string) *core.ToolContext {
	return core.NewToolContext(context.Background(), core.AgentInfo{ID: "agent-1", Name: "Tester"}, "run-1", fcID, logging.NoOpLogger{})
}

// -------------------- Schema & Validation Tests --------------------

type sampleSchema struct {
	A string `json:"a" description:"Field A"`
	B *int   `json:"b" description:"Optional pointer field"`
	C int    `json:"c,omitempty" description:"Omit empty field"`
}

func TestCreateSchema(t *testing.T) {
	schema := util.CreateSchema(sampleSchema{})
	props, ok := schema["properties"].(map[string]any)
	assert.True(t, ok)
	// Properties present
	assert.Contains(t, props, "a")
	assert.Contains(t, props, "b")
	assert.Contains(t, props, "c")
	// Required only includes non-pointer, non-omitempty exported fields
	assert.ElementsMatch(t, []string{"a"}, util.RequiredFields(schema))
}

func TestValidateParameters(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"x": map[string]any{"type": "integer"},
		},
		// Use []any to mirror possible JSON decoded schema shape
		"required": []any{"x"},
	}

	// Success
	err := util.ValidateParameters(map[string]any{"x": 5}, schema)
	assert.NoError(t, err)

	// Missing required
	err = util.ValidateParameters(map[string]any{}, schema)
	assert.Error(t, err)
	if vErr, ok := err.(*ValidationError); ok {
		assert.Equal(t, "x", vErr.Field)
	} else {
		t.Fatalf("expected ValidationError, got %T", err)
	}

	// Wrong type
	err = util.ValidateParameters(map[string]any{"x": "not-int"}, schema)
	assert.Error(t, err)
	if vErr, ok := err.(*ValidationError); ok {
		assert.Contains(t, vErr.Message, "expected type integer")
	} else {
		t.Fatalf("expected ValidationError, got %T", err)
	}
}

func TestValidateParametersStringRequiredList(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"city": map[string]any{"type": "string"},
		},
		"required": []string{"city"},
	}

	assert.NoError(t, util.ValidateParameters(map[string]any{"city": "Berlin"}, schema))
	assert.Error(t, util.ValidateParameters(map[string]any{}, schema))
}

func TestCoerceArguments(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"count":   map[string]any{"type": "integer"},
			"ratio":   map[string]any{"type": "number"},
			"enabled": map[string]any{"type": "boolean"},
			"label":   map[string]any{"type": "string"},
		},
	}

	args := util.CoerceArguments(map[string]any{
		"count":   "42",
		"ratio":   "0.5",
		"enabled": "true",
		"label":   "seven",
	}, schema)

	assert.Equal(t, float64(42), args["count"])
	assert.Equal(t, 0.5, args["ratio"])
	assert.Equal(t, true, args["enabled"])
	assert.Equal(t, "seven", args["label"])

	// Unparseable values stay untouched so validation reports them
	args = util.CoerceArguments(map[string]any{"count": "many"}, schema)
	assert.Equal(t, "many", args["count"])
}

// -------------------- FunctionTool Tests --------------------

func TestFunctionTool_Success(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
			"b": map[string]any{"type": "number"},
		},
		"required": []string{"a", "b"},
	}

	sumTool := NewFunctionTool("sum", "Add numbers", params, func(_ *core.ToolContext, args map[string]any) (any, error) {
		a := args["a"].(float64)
		b := args["b"].(float64)
		return a + b, nil
	})

	result, err := sumTool.Call(testToolContext("fc1"), map[string]any{"a": 2.0, "b": 3.0})
	assert.NoError(t, err)
	assert.Equal(t, 5.0, result)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"a": map[string]any{"type": "number"},
		},
		"required": []any{"a"},
	}
	tTool := NewFunctionTool("test", "Test", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return 0, nil
	})

	_, err := tTool.Call(testToolContext("fc2"), map[string]any{})
	assert.Error(t, err)

	var argErr *InvalidArgumentsError
	assert.True(t, errors.As(err, &argErr))
	assert.Equal(t, "test", argErr.Tool)

	var vErr *ValidationError
	assert.True(t, errors.As(err, &vErr))
	assert.Equal(t, "a", vErr.Field)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	execTool := NewFunctionTool("fail", "Fails", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, errors.New("boom")
	})

	_, err := execTool.Call(testToolContext("fc3"), map[string]any{})
	assert.Error(t, err)

	var execErr *ToolExecutionError
	assert.True(t, errors.As(err, &execErr))
	assert.Equal(t, "fail", execErr.Tool)
	assert.EqualError(t, execErr.Err, "boom")
}

func TestFunctionTool_TypedErrorPassthrough(t *testing.T) {
	params := map[string]any{"type": "object", "properties": map[string]any{}}
	inner := &ToolExecutionError{Tool: "fail", Err: errors.New("downstream")}
	execTool := NewFunctionTool("fail", "Fails", params, func(_ *core.ToolContext, _ map[string]any) (any, error) {
		return nil, inner
	})

	_, err := execTool.Call(testToolContext("fc4"), map[string]any{})
	assert.ErrorIs(t, err, inner)
}

func TestFunctionToolFromStruct(t *testing.T) {
	type args struct {
		City string `json:"city" description:"City name"`
	}

	weather := NewFunctionToolFromStruct("get_weather", "Look up weather", args{}, func(_ *core.ToolContext, a map[string]any) (any, error) {
		return "sunny in " + a["city"].(string), nil
	})

	result, err := weather.Call(testToolContext("fc5"), map[string]any{"city": "Berlin"})
	assert.NoError(t, err)
	assert.Equal(t, "sunny in Berlin", result)

	_, err = weather.Call(testToolContext("fc6"), map[string]any{})
	var argErr *InvalidArgumentsError
	assert.True(t, errors.As(err, &argErr))
}

// -------------------- Error Formatting --------------------

func TestErrorFormatting(t *testing.T) {
	assert.Contains(t, (&DuplicateToolError{Name: "sum"}).Error(), "sum")
	assert.Contains(t, (&ToolNotFoundError{Name: "ghost"}).Error(), "ghost")

	npErr := &ToolNotPermittedError{Name: "get_time", AgentKey: "intruder"}
	assert.Contains(t, npErr.Error(), "get_time")
	assert.Contains(t, npErr.Error(), "intruder")

	execErr := &ToolExecutionError{Tool: "sum", Err: errors.New("boom")}
	assert.Contains(t, execErr.Error(), "boom")
	assert.EqualError(t, errors.Unwrap(execErr), "boom")
}
