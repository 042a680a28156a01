package safety

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forfd8960/postgres-agent/pkg/models"
)

var blacklisted = []string{
	"DROP TABLE users",
	"drop database prod",
	"DROP SCHEMA public",
	"DROP INDEX idx_users",
	"DROP VIEW v_users",
	"TRUNCATE users",
	"truncate table users",
	"DELETE FROM users",
	"delete from users;",
	"GRANT ALL ON users TO bob",
	"REVOKE SELECT ON users FROM bob",
	"EXECUTE ('rm -rf')",
	"SELECT execute('x')",
}

// Blacklisted SQL is denied at every safety level.
func TestBlacklistDeniedAtAllLevels(t *testing.T) {
	v := NewValidator()
	levels := []models.SafetyLevel{models.LevelReadOnly, models.LevelBalanced, models.LevelPermissive}

	for _, sql := range blacklisted {
		for _, level := range levels {
			res := v.Validate(sql, Context{Level: level})
			assert.False(t, res.Allowed, "%s at %s", sql, level)
			assert.NotEmpty(t, res.Error)
		}
	}
}

func TestBlacklistMatchKeyword(t *testing.T) {
	b := NewBlacklist()

	kw, hit := b.Match("DROP TABLE users")
	require.True(t, hit)
	assert.Equal(t, "DROP", kw)

	kw, hit = b.Match("DELETE FROM users")
	require.True(t, hit)
	assert.Equal(t, "DELETE", kw)

	_, hit = b.Match("DELETE FROM users WHERE id = 1")
	assert.False(t, hit)

	_, hit = b.Match("SELECT * FROM users")
	assert.False(t, hit)
}

// Anything allowed in read-only mode must classify as a read.
func TestReadOnlyAllowsOnlyReads(t *testing.T) {
	v := NewValidator()
	statements := []string{
		"SELECT 1",
		"WITH t AS (SELECT 1) SELECT * FROM t",
		"INSERT INTO users VALUES (1)",
		"UPDATE users SET x = 1 WHERE id = 1",
		"DELETE FROM users WHERE id = 1",
		"CREATE TABLE t (id int)",
		"VACUUM users",
		"EXPLAIN SELECT 1",
	}

	for _, sql := range statements {
		res := v.Validate(sql, Context{Level: models.LevelReadOnly})
		if res.Allowed {
			assert.Equal(t, models.OpRead, res.OpType, sql)
		}
	}
}

func TestBalancedPolicy(t *testing.T) {
	v := NewValidator()

	res := v.Validate("DELETE FROM users WHERE id = 1", Context{Level: models.LevelBalanced})
	assert.True(t, res.Allowed)
	assert.True(t, res.RequiresConfirmation)
	assert.Equal(t, models.OpDelete, res.OpType)

	res = v.Validate("CREATE TABLE t (id int)", Context{Level: models.LevelBalanced})
	assert.False(t, res.Allowed)

	res = v.Validate("SELECT 1", Context{Level: models.LevelBalanced})
	assert.True(t, res.Allowed)
	assert.False(t, res.RequiresConfirmation)
}

func TestPermissivePolicy(t *testing.T) {
	v := NewValidator()

	res := v.Validate("INSERT INTO users VALUES (1)", Context{Level: models.LevelPermissive})
	assert.True(t, res.Allowed)
	assert.False(t, res.RequiresConfirmation)

	res = v.Validate("CREATE TABLE t (id int)", Context{Level: models.LevelPermissive})
	assert.True(t, res.Allowed)
	assert.False(t, res.RequiresConfirmation)

	// The blacklist still wins at permissive.
	res = v.Validate("DROP TABLE users", Context{Level: models.LevelPermissive})
	assert.False(t, res.Allowed)
}

func TestReadOnlySessionFlag(t *testing.T) {
	v := NewValidator()
	res := v.Validate("INSERT INTO users VALUES (1)", Context{Level: models.LevelPermissive, ReadOnly: true})
	assert.False(t, res.Allowed)
	assert.Contains(t, res.Error, "read-only")
}

func TestMaxQueryLength(t *testing.T) {
	v := NewValidator()
	long := "SELECT '" + strings.Repeat("x", DefaultMaxQueryLength) + "'"
	res := v.Validate(long, Context{Level: models.LevelPermissive})
	assert.False(t, res.Allowed)
	assert.Contains(t, res.Error, "maximum length")
}

func TestValidatorWarnings(t *testing.T) {
	v := NewValidator()

	res := v.Validate("WITH d AS (SELECT 1) SELECT * FROM d", Context{Level: models.LevelReadOnly})
	assert.True(t, res.Allowed)
	assert.NotEmpty(t, res.Warnings)

	res = v.Validate("LISTEN events", Context{Level: models.LevelPermissive})
	assert.True(t, res.Allowed)
	assert.NotEmpty(t, res.Warnings)
}
