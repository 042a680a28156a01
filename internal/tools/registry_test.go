package tools

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forfd8960/postgres-agent/pkg/models"
)

// echoTool returns its arguments after an optional delay.
type echoTool struct {
	name  string
	delay time.Duration
	err   error
}

func (t *echoTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        t.name,
		Description: "echoes its input",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"value": map[string]any{"type": "string"},
				"count": map[string]any{"type": "integer"},
			},
			"required": []string{"value"},
		},
	}
}

func (t *echoTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	if t.delay > 0 {
		select {
		case <-time.After(t.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if t.err != nil {
		return nil, t.err
	}
	return map[string]any{"echo": args["value"]}, nil
}

func TestRegistryRegisterAndDefinitions(t *testing.T) {
	r := NewRegistry()
	r.Register(&echoTool{name: "b_tool"})
	r.Register(&echoTool{name: "a_tool"})

	defs := r.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "a_tool", defs[0].Name)
	assert.Equal(t, "b_tool", defs[1].Name)

	// Duplicate registration replaces.
	r.Register(&echoTool{name: "a_tool", delay: time.Millisecond})
	assert.Len(t, r.Definitions(), 2)
}

func TestExecuteSuccess(t *testing.T) {
	r := NewRegistry()
	r.Register(&echoTool{name: "echo"})

	res := r.Execute(context.Background(), models.ToolCall{
		Name:      "echo",
		Arguments: map[string]any{"value": "hi"},
		CallID:    "c1",
	}, Context{})

	assert.True(t, res.Success)
	assert.Equal(t, "c1", res.CallID)
	assert.Equal(t, "echo", res.Tool)
	assert.GreaterOrEqual(t, res.DurationMS, int64(0))
}

func TestExecuteNotFound(t *testing.T) {
	r := NewRegistry()
	res := r.Execute(context.Background(), models.ToolCall{Name: "missing", CallID: "c1"}, Context{})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "tool not found")
}

func TestExecuteInvalidArguments(t *testing.T) {
	r := NewRegistry()
	r.Register(&echoTool{name: "echo"})

	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing required", map[string]any{}},
		{"wrong type", map[string]any{"value": 42}},
		{"unknown argument", map[string]any{"value": "x", "bogus": 1}},
		{"non-integer count", map[string]any{"value": "x", "count": 1.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Execute(context.Background(), models.ToolCall{Name: "echo", Arguments: tt.args, CallID: "c1"}, Context{})
			assert.False(t, res.Success)
			assert.Contains(t, res.Error, "invalid tool arguments")
		})
	}

	// JSON-decoded numbers arrive as float64; integral values pass an
	// integer schema.
	res := r.Execute(context.Background(), models.ToolCall{
		Name:      "echo",
		Arguments: map[string]any{"value": "x", "count": float64(3)},
		CallID:    "c2",
	}, Context{})
	assert.True(t, res.Success)
}

func TestExecuteTimeout(t *testing.T) {
	r := NewRegistry()
	r.Register(&echoTool{name: "slow", delay: 200 * time.Millisecond})

	res := r.Execute(context.Background(), models.ToolCall{
		Name:      "slow",
		Arguments: map[string]any{"value": "x"},
		CallID:    "c1",
	}, Context{Timeout: 10 * time.Millisecond})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "timed out")
}

func TestExecuteToolError(t *testing.T) {
	r := NewRegistry()
	r.Register(&echoTool{name: "broken", err: errors.New("boom")})

	res := r.Execute(context.Background(), models.ToolCall{
		Name:      "broken",
		Arguments: map[string]any{"value": "x"},
		CallID:    "c1",
	}, Context{})

	assert.False(t, res.Success)
	assert.Equal(t, "boom", res.Error)
}

// Parallel dispatch preserves input order even when later calls finish
// first, and failures do not short-circuit the batch.
func TestExecuteParallelOrder(t *testing.T) {
	r := NewRegistry()
	r.Register(&echoTool{name: "slow", delay: 100 * time.Millisecond})
	r.Register(&echoTool{name: "fast"})

	calls := []models.ToolCall{
		{Name: "slow", Arguments: map[string]any{"value": "first"}, CallID: "c1"},
		{Name: "fast", Arguments: map[string]any{"value": "second"}, CallID: "c2"},
	}

	results := r.ExecuteParallel(context.Background(), calls, Context{})
	require.Len(t, results, 2)
	assert.Equal(t, "c1", results[0].CallID)
	assert.Equal(t, "c2", results[1].CallID)
	assert.True(t, results[0].Success)
	assert.True(t, results[1].Success)
}

func TestExecuteParallelPartialFailure(t *testing.T) {
	r := NewRegistry()
	r.Register(&echoTool{name: "good"})
	r.Register(&echoTool{name: "bad", err: errors.New("boom")})

	calls := make([]models.ToolCall, 0, 6)
	for i := 0; i < 6; i++ {
		name := "good"
		if i%2 == 1 {
			name = "bad"
		}
		calls = append(calls, models.ToolCall{
			Name:      name,
			Arguments: map[string]any{"value": "v"},
			CallID:    fmt.Sprintf("c%d", i),
		})
	}

	results := r.ExecuteParallel(context.Background(), calls, Context{})
	require.Len(t, results, 6)
	for i, res := range results {
		assert.Equal(t, fmt.Sprintf("c%d", i), res.CallID)
		assert.Equal(t, i%2 == 0, res.Success)
	}
}

func TestRenderResult(t *testing.T) {
	ok := models.SuccessResult("c1", "echo", map[string]any{"rows": 3}, 5)
	assert.JSONEq(t, `{"rows":3}`, RenderResult(ok))

	failed := models.FailureResult("c1", "echo", "boom", 5)
	assert.JSONEq(t, `{"error":"boom"}`, RenderResult(failed))
}
