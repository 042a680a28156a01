package tools

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/forfd8960/postgres-agent/internal/db"
	"github.com/forfd8960/postgres-agent/pkg/models"
)

// RegisterBuiltins registers the database tool catalog against the given
// executor.
func RegisterBuiltins(r *Registry, exec db.Executor) {
	r.Register(&QueryTool{exec: exec})
	r.Register(&SchemaTool{exec: exec})
	r.Register(&ListTablesTool{exec: exec})
	r.Register(&DescribeTableTool{exec: exec})
	r.Register(&ExplainTool{exec: exec})
}

// QueryTool executes a read query and returns rows in JSON form.
type QueryTool struct {
	exec db.Executor
}

func (t *QueryTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "execute_query",
		Description: "Execute a SQL SELECT query and return results in JSON format. Only SELECT queries are allowed.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"sql": map[string]any{
					"type":        "string",
					"description": "The SQL SELECT query to execute",
				},
			},
			"required": []string{"sql"},
		},
	}
}

func (t *QueryTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	sql, _ := args["sql"].(string)
	log.Debug().Str("sql", sql).Msg("Executing query")

	result, err := t.exec.ExecuteQuery(ctx, sql)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"columns":           result.Columns,
		"rows":              result.Rows,
		"row_count":         result.RowCount,
		"truncated":         result.Truncated,
		"execution_time_ms": result.ExecutionTimeMS,
	}, nil
}

// SchemaTool returns tables and columns, optionally prefix-filtered.
type SchemaTool struct {
	exec db.Executor
}

func (t *SchemaTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "get_schema",
		Description: "Get the database schema including all tables and their columns. Optionally filter by table name prefix.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"tableFilter": map[string]any{
					"type":        "string",
					"description": "Optional table name prefix filter",
				},
			},
		},
	}
}

func (t *SchemaTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	filter, _ := args["tableFilter"].(string)
	log.Debug().Str("filter", filter).Msg("Introspecting schema")
	return t.exec.GetSchema(ctx, filter)
}

// ListTablesTool lists table names in one schema.
type ListTablesTool struct {
	exec db.Executor
}

func (t *ListTablesTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "list_tables",
		Description: "List table names in a schema (defaults to 'public').",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"schema": map[string]any{
					"type":        "string",
					"description": "Schema name, defaults to 'public'",
				},
			},
		},
	}
}

func (t *ListTablesTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	schema, _ := args["schema"].(string)
	if schema == "" {
		schema = "public"
	}
	tables, err := t.exec.ListTables(ctx, schema)
	if err != nil {
		return nil, err
	}
	return map[string]any{"schema": schema, "tables": tables}, nil
}

// DescribeTableTool returns column metadata for one table.
type DescribeTableTool struct {
	exec db.Executor
}

func (t *DescribeTableTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "describe_table",
		Description: "Describe a table: column names, types, nullability and defaults.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"tableName": map[string]any{
					"type":        "string",
					"description": "Name of the table to describe",
				},
			},
			"required": []string{"tableName"},
		},
	}
}

func (t *DescribeTableTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	name, _ := args["tableName"].(string)
	if name == "" {
		return nil, fmt.Errorf("%w: tableName must not be empty", ErrInvalidArguments)
	}
	cols, err := t.exec.DescribeTable(ctx, name)
	if err != nil {
		return nil, err
	}
	out := map[string]any{"table": name, "columns": cols}
	// Row counts are best-effort metadata; not every executor provides them.
	if counter, ok := t.exec.(interface {
		TableRowCount(context.Context, string) (int64, error)
	}); ok {
		if n, err := counter.TableRowCount(ctx, name); err == nil {
			out["row_count"] = n
		}
	}
	return out, nil
}

// ExplainTool returns the query plan for a statement.
type ExplainTool struct {
	exec db.Executor
}

func (t *ExplainTool) Definition() models.ToolDefinition {
	return models.ToolDefinition{
		Name:        "explain_query",
		Description: "Show the PostgreSQL query plan for a SELECT statement.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"sql": map[string]any{
					"type":        "string",
					"description": "The SQL query to explain",
				},
			},
			"required": []string{"sql"},
		},
	}
}

func (t *ExplainTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	sql, _ := args["sql"].(string)
	plan, err := t.exec.ExplainQuery(ctx, sql)
	if err != nil {
		return nil, err
	}
	return map[string]any{"plan": plan}, nil
}
