package models

// QueryResult holds the rows returned by a read query.
type QueryResult struct {
	Columns         []string `json:"columns"`
	Rows            [][]any  `json:"rows"`
	RowCount        int      `json:"row_count"`
	Truncated       bool     `json:"truncated"`
	ExecutionTimeMS int64    `json:"execution_time_ms"`
}

// ColumnInfo describes a single table column.
type ColumnInfo struct {
	ColumnName             string  `json:"column_name"`
	DataType               string  `json:"data_type"`
	IsNullable             bool    `json:"is_nullable"`
	ColumnDefault          *string `json:"column_default,omitempty"`
	CharacterMaximumLength *int64  `json:"character_maximum_length,omitempty"`
	NumericPrecision       *int64  `json:"numeric_precision,omitempty"`
	NumericScale           *int64  `json:"numeric_scale,omitempty"`
}

// SchemaTable identifies a table within a schema.
type SchemaTable struct {
	TableName   string `json:"table_name"`
	TableSchema string `json:"table_schema"`
	TableType   string `json:"table_type"`
}

// DatabaseSchema is the introspected shape of the database: tables plus
// per-table column metadata.
type DatabaseSchema struct {
	Tables  []SchemaTable           `json:"tables"`
	Columns map[string][]ColumnInfo `json:"columns"`
}
