package safety

import (
	"fmt"
	"strings"

	"github.com/forfd8960/postgres-agent/pkg/models"
)

// DefaultMaxQueryLength bounds the SQL text a single validation accepts.
const DefaultMaxQueryLength = 10_000

// Context carries the per-session inputs to validation.
type Context struct {
	Level models.SafetyLevel
	// ReadOnly denies any mutation regardless of level.
	ReadOnly bool
}

// ValidationResult is the outcome of validating one SQL statement.
type ValidationResult struct {
	Allowed              bool                 `json:"allowed"`
	OpType               models.OperationType `json:"op_type"`
	Warnings             []string             `json:"warnings,omitempty"`
	Error                string               `json:"error,omitempty"`
	RequiresConfirmation bool                 `json:"requires_confirmation"`
}

// Validator applies the blacklist and the safety-level policy to SQL
// statements. It is pure and synchronous.
type Validator struct {
	blacklist      *Blacklist
	maxQueryLength int
}

// NewValidator creates a validator with the default blacklist.
func NewValidator() *Validator {
	return &Validator{blacklist: NewBlacklist(), maxQueryLength: DefaultMaxQueryLength}
}

// Validate classifies the SQL and decides whether it may run under the
// given context, and whether confirmation is required first.
func (v *Validator) Validate(sql string, ctx Context) ValidationResult {
	op := models.ClassifyStatement(sql)
	res := ValidationResult{Allowed: true, OpType: op}

	if len(sql) > v.maxQueryLength {
		res.Allowed = false
		res.Error = fmt.Sprintf("query exceeds maximum length (%d chars)", v.maxQueryLength)
		return res
	}

	if kw, hit := v.blacklist.Match(sql); hit {
		res.Allowed = false
		res.Error = "BlacklistedPattern: " + kw
		return res
	}

	if !ctx.Level.Allows(op) {
		res.Allowed = false
		res.Error = fmt.Sprintf("%s not allowed at safety level %s", op, ctx.Level)
		return res
	}

	if ctx.ReadOnly && op.IsMutation() {
		res.Allowed = false
		res.Error = "mutations not allowed in read-only session"
		return res
	}

	if op == models.OpOther {
		res.Warnings = append(res.Warnings, "unrecognized statement type")
	}
	if op == models.OpRead && strings.HasPrefix(strings.ToUpper(strings.TrimSpace(sql)), "WITH") {
		res.Warnings = append(res.Warnings, "CTE classified by leading keyword only")
	}

	res.RequiresConfirmation = ctx.Level.RequiresConfirmation(op)
	return res
}
