package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/forfd8960/postgres-agent/pkg/models"
)

// PostgresExecutor implements Executor over a pgx connection pool.
type PostgresExecutor struct {
	pool *pgxpool.Pool
}

// NewPostgresExecutor connects a pool for the given DSN.
func NewPostgresExecutor(ctx context.Context, dsn string, maxConns int32) (*PostgresExecutor, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresExecutor{pool: pool}, nil
}

// Close releases the connection pool.
func (e *PostgresExecutor) Close() {
	e.pool.Close()
}

// ExecuteQuery runs a read query with the default row limit.
func (e *PostgresExecutor) ExecuteQuery(ctx context.Context, sql string) (*models.QueryResult, error) {
	return e.ExecuteQueryLimited(ctx, sql, DefaultRowLimit)
}

// ExecuteQueryLimited runs a read query returning at most limit rows.
func (e *PostgresExecutor) ExecuteQueryLimited(ctx context.Context, sql string, limit int) (*models.QueryResult, error) {
	if !IsReadStatement(sql) {
		return nil, ErrNonSelect
	}
	if limit <= 0 {
		limit = DefaultRowLimit
	}

	start := time.Now()
	rows, err := e.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	result := &models.QueryResult{
		Columns: fieldNames(rows.FieldDescriptions()),
	}
	for rows.Next() {
		if result.RowCount >= limit {
			result.Truncated = true
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		result.Rows = append(result.Rows, values)
		result.RowCount++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	result.ExecutionTimeMS = time.Since(start).Milliseconds()

	log.Debug().
		Int("rows", result.RowCount).
		Bool("truncated", result.Truncated).
		Int64("durationMs", result.ExecutionTimeMS).
		Msg("Query executed")

	return result, nil
}

// GetSchema introspects tables and columns from information_schema.
func (e *PostgresExecutor) GetSchema(ctx context.Context, tableFilter string) (*models.DatabaseSchema, error) {
	schema := &models.DatabaseSchema{Columns: make(map[string][]models.ColumnInfo)}

	tableSQL := `SELECT table_name, table_schema, table_type
		FROM information_schema.tables
		WHERE table_schema NOT IN ('pg_catalog', 'information_schema')`
	args := []any{}
	if tableFilter != "" {
		tableSQL += ` AND table_name LIKE $1`
		args = append(args, tableFilter+"%")
	}
	tableSQL += ` ORDER BY table_schema, table_name`

	rows, err := e.pool.Query(ctx, tableSQL, args...)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	tables, err := pgx.CollectRows(rows, pgx.RowToStructByPos[models.SchemaTable])
	if err != nil {
		return nil, fmt.Errorf("collect tables: %w", err)
	}
	schema.Tables = tables

	for _, t := range tables {
		cols, err := e.DescribeTable(ctx, t.TableName)
		if err != nil {
			return nil, err
		}
		schema.Columns[t.TableName] = cols
	}
	return schema, nil
}

// ListTables lists table names in the given schema.
func (e *PostgresExecutor) ListTables(ctx context.Context, schemaName string) ([]string, error) {
	if schemaName == "" {
		schemaName = "public"
	}
	rows, err := e.pool.Query(ctx,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = $1 ORDER BY table_name`, schemaName)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// DescribeTable returns column metadata for one table.
func (e *PostgresExecutor) DescribeTable(ctx context.Context, tableName string) ([]models.ColumnInfo, error) {
	rows, err := e.pool.Query(ctx,
		`SELECT column_name, data_type, is_nullable = 'YES',
		        column_default, character_maximum_length,
		        numeric_precision, numeric_scale
		 FROM information_schema.columns
		 WHERE table_name = $1
		 ORDER BY ordinal_position`, tableName)
	if err != nil {
		return nil, fmt.Errorf("describe table: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[models.ColumnInfo])
}

// TableRowCount returns the number of rows in a table. The identifier is
// quoted since count targets cannot be parameterized.
func (e *PostgresExecutor) TableRowCount(ctx context.Context, tableName string) (int64, error) {
	var count int64
	sql := "SELECT count(*) FROM " + pq.QuoteIdentifier(tableName)
	if err := e.pool.QueryRow(ctx, sql).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return count, nil
}

// ExplainQuery returns the textual query plan for a statement.
func (e *PostgresExecutor) ExplainQuery(ctx context.Context, sql string) ([]string, error) {
	if !IsReadStatement(sql) {
		return nil, ErrNonSelect
	}
	// EXPLAIN takes the statement inline; the statement itself was already
	// validated, so only the EXPLAIN keyword is prepended here.
	rows, err := e.pool.Query(ctx, "EXPLAIN "+sql)
	if err != nil {
		return nil, fmt.Errorf("explain query: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// HealthCheck verifies the pool can reach the database.
func (e *PostgresExecutor) HealthCheck(ctx context.Context) error {
	return e.pool.Ping(ctx)
}

// IsReadStatement reports whether the statement's leading keyword is a
// read. The driver boundary rejects everything else.
func IsReadStatement(sql string) bool {
	op := models.ClassifyStatement(sql)
	return op == models.OpRead
}

func fieldNames(fields []pgconn.FieldDescription) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}
