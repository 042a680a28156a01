// Package agent implements the Reason-Act-Observe loop, its conversation
// context, and the decision parser for the PostgreSQL agent.
package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyQuery is returned before any LLM call when the user query
	// is empty or whitespace.
	ErrEmptyQuery = errors.New("query must not be empty")

	// ErrNotIdle is returned when Run is invoked while a turn is already
	// in progress.
	ErrNotIdle = errors.New("agent is not idle")

	// ErrContextTooLarge is returned when pruning cannot bring the
	// context back under its token cap. Fatal for the current turn.
	ErrContextTooLarge = errors.New("context exceeds token limit after pruning")

	// ErrCancelled is returned when the loop observes external
	// cancellation between iterations.
	ErrCancelled = errors.New("agent run cancelled")

	// ErrNoPendingConfirmation is returned when Confirm, ConfirmTyped,
	// AdminApprove or Reject is called without a pending confirmation.
	ErrNoPendingConfirmation = errors.New("no pending confirmation")
)

// MaxIterationsError reports that the loop cap was reached without a
// final answer. It preserves the original query.
type MaxIterationsError struct {
	Iterations int
	Query      string
}

func (e *MaxIterationsError) Error() string {
	return fmt.Sprintf("maximum iterations (%d) exceeded for query", e.Iterations)
}

// InvalidToolCallError reports a tool call the parser rejected.
// Recoverable: the loop folds it into context as an observation.
type InvalidToolCallError struct {
	Details string
}

func (e *InvalidToolCallError) Error() string {
	return fmt.Sprintf("invalid tool call: %s", e.Details)
}
