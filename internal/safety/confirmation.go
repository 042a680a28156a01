package safety

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ConfirmationLevel is the approval semantics required for a pending
// operation.
type ConfirmationLevel string

const (
	ConfirmNone ConfirmationLevel = "none"
	// ConfirmSimple is a plain yes/no approval.
	ConfirmSimple ConfirmationLevel = "simple"
	// ConfirmTyped requires the caller to type the expected match string
	// (the operation keyword, e.g. "DELETE").
	ConfirmTyped ConfirmationLevel = "typed"
	// ConfirmAdmin requires explicit admin approval.
	ConfirmAdmin ConfirmationLevel = "admin_approval"
)

// RequestTTL is how long a pending request stays approvable.
const RequestTTL = 5 * time.Minute

var (
	// ErrAlreadyPending is returned when a request is made while another
	// is still pending.
	ErrAlreadyPending = errors.New("a confirmation request is already pending")
	// ErrNoPending is returned by approval methods when nothing is pending.
	ErrNoPending = errors.New("no pending confirmation request")
	// ErrExpired is returned when the pending request is older than RequestTTL.
	ErrExpired = errors.New("confirmation request expired")
	// ErrTypedMismatch is returned when the typed value does not equal the
	// expected match string.
	ErrTypedMismatch = errors.New("typed confirmation does not match")
	// ErrWrongLevel is returned when the approval method does not match the
	// request's level.
	ErrWrongLevel = errors.New("approval method does not match confirmation level")
)

// ConfirmationRequest is a held, expiring approval ticket for one risky
// operation.
type ConfirmationRequest struct {
	ID            string            `json:"id"`
	Operation     string            `json:"operation"`
	SQL           string            `json:"sql"`
	Level         ConfirmationLevel `json:"level"`
	ExpectedMatch string            `json:"expected_match,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	ExpiresAt     time.Time         `json:"expires_at"`
}

// Workflow holds at most one pending confirmation request. Single-writer:
// the owning agent accesses it one turn at a time.
type Workflow struct {
	pending *ConfirmationRequest
	now     func() time.Time
}

// NewWorkflow creates an empty confirmation workflow.
func NewWorkflow() *Workflow {
	return &Workflow{now: time.Now}
}

// Request stores a pending request. Fails with ErrAlreadyPending when an
// unexpired request is still held.
func (w *Workflow) Request(operation, sql string, level ConfirmationLevel, expectedMatch string) (*ConfirmationRequest, error) {
	if w.pendingAlive() {
		return nil, ErrAlreadyPending
	}
	created := w.now()
	req := &ConfirmationRequest{
		ID:            uuid.NewString(),
		Operation:     operation,
		SQL:           sql,
		Level:         level,
		ExpectedMatch: expectedMatch,
		CreatedAt:     created,
		ExpiresAt:     created.Add(RequestTTL),
	}
	w.pending = req
	return req, nil
}

// IsPending reports whether an unexpired request is held.
func (w *Workflow) IsPending() bool {
	return w.pendingAlive()
}

// Pending returns the held request, or nil.
func (w *Workflow) Pending() *ConfirmationRequest {
	if !w.pendingAlive() {
		return nil
	}
	return w.pending
}

// Confirm approves a Simple-level request and clears the pending slot.
func (w *Workflow) Confirm() error {
	req, err := w.take(ConfirmSimple)
	if err != nil {
		return err
	}
	_ = req
	return nil
}

// ConfirmTyped approves a Typed-level request iff the value equals the
// expected match string (case-sensitive). On mismatch the request stays
// pending.
func (w *Workflow) ConfirmTyped(value string) error {
	if err := w.check(ConfirmTyped); err != nil {
		return err
	}
	if value != w.pending.ExpectedMatch {
		return ErrTypedMismatch
	}
	w.pending = nil
	return nil
}

// AdminApprove approves an AdminApproval-level request.
func (w *Workflow) AdminApprove() error {
	_, err := w.take(ConfirmAdmin)
	return err
}

// Cancel discards the pending request, if any.
func (w *Workflow) Cancel() {
	w.pending = nil
}

func (w *Workflow) pendingAlive() bool {
	if w.pending == nil {
		return false
	}
	if w.now().After(w.pending.ExpiresAt) {
		// Expired requests are treated as rejected.
		w.pending = nil
		return false
	}
	return true
}

func (w *Workflow) check(level ConfirmationLevel) error {
	if w.pending == nil {
		return ErrNoPending
	}
	if w.now().After(w.pending.ExpiresAt) {
		w.pending = nil
		return ErrExpired
	}
	if w.pending.Level != level {
		return ErrWrongLevel
	}
	return nil
}

func (w *Workflow) take(level ConfirmationLevel) (*ConfirmationRequest, error) {
	if err := w.check(level); err != nil {
		return nil, err
	}
	req := w.pending
	w.pending = nil
	return req, nil
}
