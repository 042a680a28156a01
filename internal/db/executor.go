// Package db defines the database capability the agent's tools run
// against, and its PostgreSQL implementation.
package db

import (
	"context"
	"errors"

	"github.com/forfd8960/postgres-agent/pkg/models"
)

// DefaultRowLimit caps rows returned by ExecuteQuery.
const DefaultRowLimit = 1000

// ErrNonSelect is returned when a non-read statement reaches the
// executor. The safety validator is the primary gate; this is defense in
// depth at the driver boundary.
var ErrNonSelect = errors.New("only SELECT queries may be executed")

// Executor is the read-side database capability. Implementations are
// internally synchronized and safe to share between agents.
type Executor interface {
	// ExecuteQuery runs a read query with the default row limit.
	ExecuteQuery(ctx context.Context, sql string) (*models.QueryResult, error)

	// ExecuteQueryLimited runs a read query returning at most limit rows,
	// marking the result truncated when more were available.
	ExecuteQueryLimited(ctx context.Context, sql string, limit int) (*models.QueryResult, error)

	// GetSchema introspects tables and columns, optionally filtered by
	// table-name prefix.
	GetSchema(ctx context.Context, tableFilter string) (*models.DatabaseSchema, error)

	// ListTables lists table names in the given schema (default public).
	ListTables(ctx context.Context, schema string) ([]string, error)

	// DescribeTable returns column metadata for one table.
	DescribeTable(ctx context.Context, tableName string) ([]models.ColumnInfo, error)

	// ExplainQuery returns the query plan for a statement.
	ExplainQuery(ctx context.Context, sql string) ([]string, error)

	// HealthCheck verifies the connection is alive.
	HealthCheck(ctx context.Context) error
}
