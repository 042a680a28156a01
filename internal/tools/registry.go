package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/forfd8960/postgres-agent/pkg/models"
)

// Registry maps tool names to capabilities. The catalog is fixed at
// agent construction and not mutated during a turn.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register inserts a tool by its unique name. Registering the same name
// again replaces the previous tool.
func (r *Registry) Register(t Tool) {
	r.tools[t.Definition().Name] = t
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns all tool definitions sorted by name.
func (r *Registry) Definitions() []models.ToolDefinition {
	defs := make([]models.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, t.Definition())
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute dispatches a single tool call: lookup, argument validation,
// invocation under the per-call deadline, and timing capture. All
// failures surface as a failed ToolResult rather than an error.
func (r *Registry) Execute(ctx context.Context, call models.ToolCall, tc Context) models.ToolResult {
	start := time.Now()

	tool, ok := r.tools[call.Name]
	if !ok {
		return models.FailureResult(call.CallID, call.Name,
			fmt.Sprintf("%v: %s", ErrNotFound, call.Name), elapsedMS(start))
	}

	if err := validateArgs(tool.Definition(), call.Arguments); err != nil {
		return models.FailureResult(call.CallID, call.Name, err.Error(), elapsedMS(start))
	}

	runCtx := ctx
	if tc.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, tc.Timeout)
		defer cancel()
	}

	result, err := tool.Execute(runCtx, call.Arguments)
	duration := elapsedMS(start)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			err = ErrTimeout
		}
		log.Debug().
			Str("tool", call.Name).
			Str("callId", call.CallID).
			Int64("durationMs", duration).
			Err(err).
			Msg("Tool call failed")
		return models.FailureResult(call.CallID, call.Name, err.Error(), duration)
	}

	log.Debug().
		Str("tool", call.Name).
		Str("callId", call.CallID).
		Int64("durationMs", duration).
		Msg("Tool call completed")

	return models.SuccessResult(call.CallID, call.Name, result, duration)
}

// ExecuteParallel dispatches calls concurrently and returns results in
// the input order regardless of completion order. Individual failures
// surface as failed results; the batch never short-circuits.
func (r *Registry) ExecuteParallel(ctx context.Context, calls []models.ToolCall, tc Context) []models.ToolResult {
	results := make([]models.ToolResult, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = r.Execute(gctx, call, tc)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// RenderResult serializes a tool result payload for the observation
// message appended to context.
func RenderResult(res models.ToolResult) string {
	if !res.Success {
		data, _ := json.Marshal(map[string]string{"error": res.Error})
		return string(data)
	}
	data, err := json.Marshal(res.Result)
	if err != nil {
		return fmt.Sprintf(`{"error":"unserializable result: %v"}`, err)
	}
	return string(data)
}

func elapsedMS(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
