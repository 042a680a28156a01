// Package tools provides the tool registry, the dispatch pipeline with
// argument validation and timeouts, and the built-in database tools the
// agent exposes to the LLM.
package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/forfd8960/postgres-agent/pkg/models"
)

var (
	// ErrNotFound is returned when no tool is registered under the name.
	ErrNotFound = errors.New("tool not found")
	// ErrInvalidArguments is returned when arguments fail schema validation.
	ErrInvalidArguments = errors.New("invalid tool arguments")
	// ErrTimeout is returned when a tool call exceeds its deadline.
	ErrTimeout = errors.New("tool execution timed out")
)

// Context carries per-call execution parameters.
type Context struct {
	// Timeout bounds the tool action; zero means no per-call deadline.
	Timeout time.Duration
	// RequestID is an optional id for tracing.
	RequestID string
}

// Tool is a named capability invokable from a model decision.
type Tool interface {
	// Definition returns the metadata the LLM needs to use the tool.
	Definition() models.ToolDefinition

	// Execute runs the tool. Arguments have already been validated
	// against the declared schema.
	Execute(ctx context.Context, args map[string]any) (any, error)
}

// validateArgs checks an argument object against the subset of JSON
// Schema the tool definitions use: required properties and primitive
// property types.
func validateArgs(def models.ToolDefinition, args map[string]any) error {
	props, _ := def.Parameters["properties"].(map[string]any)

	for _, name := range requiredNames(def.Parameters["required"]) {
		if _, present := args[name]; !present {
			return fmt.Errorf("%w: missing required argument %q", ErrInvalidArguments, name)
		}
	}

	for name, value := range args {
		spec, ok := props[name].(map[string]any)
		if !ok {
			return fmt.Errorf("%w: unknown argument %q", ErrInvalidArguments, name)
		}
		if err := checkType(name, spec, value); err != nil {
			return err
		}
	}
	return nil
}

// requiredNames accepts both []string (schemas authored in Go) and
// []any (schemas decoded from JSON).
func requiredNames(v any) []string {
	switch req := v.(type) {
	case []string:
		return req
	case []any:
		names := make([]string, 0, len(req))
		for _, n := range req {
			if s, ok := n.(string); ok {
				names = append(names, s)
			}
		}
		return names
	}
	return nil
}

func checkType(name string, spec map[string]any, value any) error {
	want, _ := spec["type"].(string)
	if want == "" || value == nil {
		return nil
	}
	ok := true
	switch want {
	case "string":
		_, ok = value.(string)
	case "number":
		switch value.(type) {
		case float64, int, int64:
		default:
			ok = false
		}
	case "integer":
		switch v := value.(type) {
		case int, int64:
		case float64:
			ok = v == float64(int64(v))
		default:
			ok = false
		}
	case "boolean":
		_, ok = value.(bool)
	case "object":
		_, ok = value.(map[string]any)
	case "array":
		_, ok = value.([]any)
	}
	if !ok {
		return fmt.Errorf("%w: argument %q must be %s", ErrInvalidArguments, name, want)
	}
	return nil
}
