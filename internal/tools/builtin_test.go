package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forfd8960/postgres-agent/internal/db"
	"github.com/forfd8960/postgres-agent/pkg/models"
)

// stubExecutor records calls and returns canned data.
type stubExecutor struct {
	lastSQL    string
	lastFilter string
	lastSchema string
	lastTable  string
	rowCount   int64
}

func (s *stubExecutor) ExecuteQuery(ctx context.Context, sql string) (*models.QueryResult, error) {
	s.lastSQL = sql
	return &models.QueryResult{
		Columns:  []string{"id"},
		Rows:     [][]any{{1}, {2}},
		RowCount: 2,
	}, nil
}

func (s *stubExecutor) ExecuteQueryLimited(ctx context.Context, sql string, limit int) (*models.QueryResult, error) {
	return s.ExecuteQuery(ctx, sql)
}

func (s *stubExecutor) GetSchema(ctx context.Context, tableFilter string) (*models.DatabaseSchema, error) {
	s.lastFilter = tableFilter
	return &models.DatabaseSchema{
		Tables:  []models.SchemaTable{{TableName: "users", TableSchema: "public", TableType: "BASE TABLE"}},
		Columns: map[string][]models.ColumnInfo{"users": {{ColumnName: "id", DataType: "integer"}}},
	}, nil
}

func (s *stubExecutor) ListTables(ctx context.Context, schema string) ([]string, error) {
	s.lastSchema = schema
	return []string{"users", "orders"}, nil
}

func (s *stubExecutor) DescribeTable(ctx context.Context, tableName string) ([]models.ColumnInfo, error) {
	s.lastTable = tableName
	return []models.ColumnInfo{{ColumnName: "id", DataType: "integer"}}, nil
}

func (s *stubExecutor) ExplainQuery(ctx context.Context, sql string) ([]string, error) {
	s.lastSQL = sql
	return []string{"Seq Scan on users"}, nil
}

func (s *stubExecutor) HealthCheck(ctx context.Context) error { return nil }

func (s *stubExecutor) TableRowCount(ctx context.Context, tableName string) (int64, error) {
	return s.rowCount, nil
}

var _ db.Executor = (*stubExecutor)(nil)

func builtinRegistry(exec db.Executor) *Registry {
	r := NewRegistry()
	RegisterBuiltins(r, exec)
	return r
}

func TestBuiltinCatalog(t *testing.T) {
	r := builtinRegistry(&stubExecutor{})
	defs := r.Definitions()
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	assert.Equal(t, []string{"describe_table", "execute_query", "explain_query", "get_schema", "list_tables"}, names)
}

func TestExecuteQueryTool(t *testing.T) {
	exec := &stubExecutor{}
	r := builtinRegistry(exec)

	res := r.Execute(context.Background(), models.ToolCall{
		Name:      "execute_query",
		Arguments: map[string]any{"sql": "SELECT id FROM users"},
		CallID:    "c1",
	}, Context{})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "SELECT id FROM users", exec.lastSQL)
	payload := res.Result.(map[string]any)
	assert.Equal(t, 2, payload["row_count"])
	assert.Equal(t, []string{"id"}, payload["columns"])
}

func TestExecuteQueryToolRequiresSQL(t *testing.T) {
	r := builtinRegistry(&stubExecutor{})
	res := r.Execute(context.Background(), models.ToolCall{
		Name:      "execute_query",
		Arguments: map[string]any{},
		CallID:    "c1",
	}, Context{})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "sql")
}

func TestGetSchemaTool(t *testing.T) {
	exec := &stubExecutor{}
	r := builtinRegistry(exec)

	res := r.Execute(context.Background(), models.ToolCall{
		Name:      "get_schema",
		Arguments: map[string]any{"tableFilter": "use"},
		CallID:    "c1",
	}, Context{})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "use", exec.lastFilter)
}

func TestListTablesDefaultSchema(t *testing.T) {
	exec := &stubExecutor{}
	r := builtinRegistry(exec)

	res := r.Execute(context.Background(), models.ToolCall{
		Name:      "list_tables",
		Arguments: map[string]any{},
		CallID:    "c1",
	}, Context{})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "public", exec.lastSchema)
	payload := res.Result.(map[string]any)
	assert.Equal(t, []string{"users", "orders"}, payload["tables"])
}

func TestDescribeTableTool(t *testing.T) {
	exec := &stubExecutor{rowCount: 42}
	r := builtinRegistry(exec)

	res := r.Execute(context.Background(), models.ToolCall{
		Name:      "describe_table",
		Arguments: map[string]any{"tableName": "users"},
		CallID:    "c1",
	}, Context{})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "users", exec.lastTable)
	payload := res.Result.(map[string]any)
	assert.Equal(t, int64(42), payload["row_count"])
}

func TestExplainQueryTool(t *testing.T) {
	exec := &stubExecutor{}
	r := builtinRegistry(exec)

	res := r.Execute(context.Background(), models.ToolCall{
		Name:      "explain_query",
		Arguments: map[string]any{"sql": "SELECT 1"},
		CallID:    "c1",
	}, Context{})

	require.True(t, res.Success, res.Error)
	payload := res.Result.(map[string]any)
	assert.Equal(t, []string{"Seq Scan on users"}, payload["plan"])
}
