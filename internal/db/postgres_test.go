package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// The driver boundary only lets read statements through.
func TestIsReadStatement(t *testing.T) {
	tests := []struct {
		sql  string
		want bool
	}{
		{"SELECT * FROM users", true},
		{"  select 1", true},
		{"WITH t AS (SELECT 1) SELECT * FROM t", true},
		{"EXPLAIN SELECT 1", true},
		{"SHOW server_version", true},
		{"INSERT INTO users VALUES (1)", false},
		{"UPDATE users SET x=1 WHERE id=1", false},
		{"DELETE FROM users WHERE id=1", false},
		{"DROP TABLE users", false},
		{"VACUUM users", false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsReadStatement(tt.sql), tt.sql)
	}
}
