package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/forfd8960/postgres-agent/internal/audit"
	"github.com/forfd8960/postgres-agent/internal/llm"
	"github.com/forfd8960/postgres-agent/internal/safety"
	"github.com/forfd8960/postgres-agent/internal/tools"
	"github.com/forfd8960/postgres-agent/pkg/models"
)

const (
	// DefaultMaxIterations bounds the reasoning loop.
	DefaultMaxIterations = 10
	// llmRetryBudget caps transport/rate-limit retries per model call.
	llmRetryBudget = 3
)

// Config holds per-agent settings.
type Config struct {
	MaxIterations     int
	SafetyLevel       models.SafetyLevel
	ReadOnly          bool
	OperationTimeout  time.Duration
	ToolTimeout       time.Duration
	Model             string
	Temperature       float64
	MaxResponseTokens int
	// User and Database label audit events.
	User     string
	Database string
}

// ResponseKind discriminates the outcomes of a run.
type ResponseKind string

const (
	// KindAnswer carries the final answer text.
	KindAnswer ResponseKind = "answer"
	// KindPendingConfirmation is the cooperative suspension point: the
	// caller must resolve the confirmation and resume.
	KindPendingConfirmation ResponseKind = "pending_confirmation"
	// KindRejected reports that the pending operation was rejected or
	// expired and the turn ended.
	KindRejected ResponseKind = "rejected"
)

// Response is the outcome of Run or a resume call.
type Response struct {
	Kind         ResponseKind
	Answer       string
	Confirmation *safety.ConfirmationRequest
}

// pendingDispatch is the tool call held while awaiting confirmation.
type pendingDispatch struct {
	call      models.ToolCall
	sql       string
	op        models.OperationType
	iteration int
}

// Agent drives the Reason-Act-Observe loop. It exclusively owns its
// context, registry reference and confirmation workflow; the LLM client
// and audit sink are shared capabilities. Not safe for concurrent Run
// calls on the same instance.
type Agent struct {
	context   *ConversationContext
	registry  *tools.Registry
	client    llm.Client
	validator *safety.Validator
	workflow  *safety.Workflow
	sink      audit.Sink
	cfg       Config

	state        models.AgentState
	pending      *pendingDispatch
	parseRetried bool
}

// New creates an agent. A nil sink falls back to a no-op sink.
func New(ctx *ConversationContext, registry *tools.Registry, client llm.Client, sink audit.Sink, cfg Config) *Agent {
	if cfg.MaxIterations < 1 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.SafetyLevel == "" {
		cfg.SafetyLevel = models.LevelReadOnly
	}
	if sink == nil {
		sink = audit.NopSink{}
	}
	return &Agent{
		context:   ctx,
		registry:  registry,
		client:    client,
		validator: safety.NewValidator(),
		workflow:  safety.NewWorkflow(),
		sink:      sink,
		cfg:       cfg,
		state:     models.StateIdle,
	}
}

// State returns the current lifecycle state.
func (a *Agent) State() models.AgentState {
	return a.state
}

// Context exposes the conversation context for stats and persistence.
func (a *Agent) Context() *ConversationContext {
	return a.context
}

// Pending returns the confirmation request the agent is suspended on.
func (a *Agent) Pending() *safety.ConfirmationRequest {
	return a.workflow.Pending()
}

// Run executes one turn for the query. It returns a final answer, a
// pending confirmation (cooperative suspension), or an error.
func (a *Agent) Run(ctx context.Context, query string) (*Response, error) {
	switch a.state {
	case models.StateIdle, models.StateCompleted, models.StateError:
	default:
		return nil, ErrNotIdle
	}
	if isBlank(query) {
		return nil, ErrEmptyQuery
	}

	a.state = models.StateThinking
	a.parseRetried = false
	if err := a.context.Append(models.UserMessage(query)); err != nil {
		a.state = models.StateError
		return nil, err
	}

	return a.runLoop(ctx, 1, query)
}

// Confirm approves a Simple-level pending operation and resumes the loop.
func (a *Agent) Confirm(ctx context.Context) (*Response, error) {
	return a.resolveAndResume(ctx, a.workflow.Confirm)
}

// ConfirmTyped approves a Typed-level pending operation iff value equals
// the expected match string. On mismatch the request stays pending and
// the agent remains suspended.
func (a *Agent) ConfirmTyped(ctx context.Context, value string) (*Response, error) {
	return a.resolveAndResume(ctx, func() error { return a.workflow.ConfirmTyped(value) })
}

// AdminApprove approves an AdminApproval-level pending operation.
func (a *Agent) AdminApprove(ctx context.Context) (*Response, error) {
	return a.resolveAndResume(ctx, a.workflow.AdminApprove)
}

// Reject discards the pending operation and returns the agent to idle.
func (a *Agent) Reject(ctx context.Context) (*Response, error) {
	if a.state != models.StateAwaitingConfirmation {
		return nil, ErrNoPendingConfirmation
	}
	a.workflow.Cancel()
	a.pending = nil
	a.state = models.StateIdle
	return &Response{Kind: KindRejected}, nil
}

func (a *Agent) resolveAndResume(ctx context.Context, approve func() error) (*Response, error) {
	if a.state != models.StateAwaitingConfirmation || a.pending == nil {
		return nil, ErrNoPendingConfirmation
	}
	if err := approve(); err != nil {
		if errors.Is(err, safety.ErrExpired) || errors.Is(err, safety.ErrNoPending) {
			// Expiry is a rejection.
			a.pending = nil
			a.state = models.StateIdle
			return nil, safety.ErrExpired
		}
		// Typed mismatch or wrong method: stay suspended.
		return nil, err
	}

	pending := a.pending
	a.pending = nil
	a.state = models.StateExecutingTool
	a.dispatch(ctx, pending.call, pending.sql, pending.op, true)
	a.state = models.StateThinking

	query := ""
	if m, ok := a.context.LastUserMessage(); ok {
		query = m.Content
	}
	return a.runLoop(ctx, pending.iteration+1, query)
}

// runLoop is the Reason-Act-Observe cycle starting at the given
// iteration. Deterministic given identical LLM outputs.
func (a *Agent) runLoop(ctx context.Context, startIter int, query string) (*Response, error) {
	for i := startIter; i <= a.cfg.MaxIterations; i++ {
		select {
		case <-ctx.Done():
			a.state = models.StateIdle
			return nil, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
		default:
		}

		decision, err := a.decide(ctx)
		if err != nil {
			recoverable, ferr := a.foldError(err)
			if !recoverable {
				a.state = models.StateError
				return nil, ferr
			}
			continue
		}

		log.Debug().
			Int("iteration", i).
			Str("decision", string(decision.Type)).
			Msg("Decision parsed")

		switch decision.Type {
		case models.DecisionFinalAnswer:
			if err := a.context.Append(models.AssistantMessage(decision.Content)); err != nil {
				a.state = models.StateError
				return nil, err
			}
			a.state = models.StateCompleted
			return &Response{Kind: KindAnswer, Answer: decision.Content}, nil

		case models.DecisionReasoning:
			if err := a.context.Append(models.AssistantMessage(decision.Thought)); err != nil {
				a.state = models.StateError
				return nil, err
			}

		case models.DecisionToolCall:
			// The call itself is recorded as an assistant message so the
			// transcript shows what the model asked for.
			rendered, rerr := decision.Render()
			if rerr == nil {
				msg := models.AssistantMessage(string(rendered))
				if sql, ok := decision.ToolCall.Arguments["sql"].(string); ok && sql != "" {
					msg = msg.WithSQL(sql)
				}
				if err := a.context.Append(msg); err != nil {
					a.state = models.StateError
					return nil, err
				}
			}
			resp, err := a.handleToolCall(ctx, *decision.ToolCall, i)
			if err != nil {
				a.state = models.StateError
				return nil, err
			}
			if resp != nil {
				return resp, nil
			}
		}
	}

	a.state = models.StateError
	return nil, &MaxIterationsError{Iterations: a.cfg.MaxIterations, Query: query}
}

// handleToolCall validates, optionally suspends for confirmation, and
// dispatches one tool call. A non-nil Response means the loop yielded.
func (a *Agent) handleToolCall(ctx context.Context, call models.ToolCall, iteration int) (*Response, error) {
	sql, _ := call.Arguments["sql"].(string)
	op := models.OpRead

	if sql != "" {
		vres := a.validator.Validate(sql, safety.Context{Level: a.cfg.SafetyLevel, ReadOnly: a.cfg.ReadOnly})
		op = vres.OpType

		if !vres.Allowed {
			a.sink.Log(audit.SafetyViolationEvent(a.cfg.User, sql, vres.Error, string(a.cfg.SafetyLevel)))
			obs := models.ToolMessage(fmt.Sprintf(`{"error":%q}`, vres.Error), call.CallID).WithSQL(sql)
			if err := a.context.Append(obs); err != nil {
				return nil, err
			}
			return nil, nil
		}

		if vres.RequiresConfirmation {
			level, match := confirmationFor(op)
			req, err := a.workflow.Request(string(op), sql, level, match)
			if err != nil {
				return nil, fmt.Errorf("request confirmation: %w", err)
			}
			a.pending = &pendingDispatch{call: call, sql: sql, op: op, iteration: iteration}
			a.state = models.StateAwaitingConfirmation
			a.sink.Log(audit.ConfirmationRequestEvent(a.cfg.User, string(op), sql, string(level)))
			return &Response{Kind: KindPendingConfirmation, Confirmation: req}, nil
		}
	}

	a.state = models.StateExecutingTool
	a.dispatch(ctx, call, sql, op, false)
	a.state = models.StateThinking
	return nil, nil
}

// dispatch runs the tool call, audits it, and appends the observation.
func (a *Agent) dispatch(ctx context.Context, call models.ToolCall, sql string, op models.OperationType, approved bool) {
	result := a.registry.Execute(ctx, call, tools.Context{Timeout: a.cfg.ToolTimeout})

	if sql != "" {
		if op.IsMutation() {
			a.sink.Log(audit.SchemaChangeEvent(a.cfg.User, a.cfg.Database, string(op), sql, approved))
		} else {
			a.sink.Log(audit.QueryEvent(a.cfg.User, a.cfg.Database, sql, result.Success, result.DurationMS, rowCount(result)))
		}
	}

	obs := models.ToolMessage(tools.RenderResult(result), call.CallID)
	if sql != "" {
		obs = obs.WithSQL(sql)
	}
	// The append error is dropped here; a context that pruning cannot
	// bring under its cap makes the loop's next Append fail with
	// ErrContextTooLarge.
	_ = a.context.Append(obs)
}

// decide performs one model call with retry and parses the decision.
func (a *Agent) decide(ctx context.Context) (models.Decision, error) {
	req := llm.BuildRequest(
		a.cfg.Model,
		a.cfg.Temperature,
		a.cfg.MaxResponseTokens,
		a.context.Messages(),
		a.registry.Definitions(),
		a.context.DatabaseSchema(),
	)

	resp, err := a.callModel(ctx, req)
	if err != nil {
		return models.Decision{}, err
	}
	return ParseDecision(resp)
}

// callModel invokes the provider under the operation timeout, retrying
// transport failures with exponential backoff and rate limits per hint.
func (a *Agent) callModel(ctx context.Context, req llm.Request) (*llm.Response, error) {
	backoff := 500 * time.Millisecond
	var lastErr error

	for attempt := 0; attempt <= llmRetryBudget; attempt++ {
		callCtx := ctx
		var cancel context.CancelFunc
		if a.cfg.OperationTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, a.cfg.OperationTimeout)
		}
		resp, err := a.client.GenerateDecision(callCtx, req)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var lerr *llm.Error
		if !errors.As(err, &lerr) {
			return nil, err
		}
		switch lerr.Kind {
		case llm.KindTransport:
			if !sleepCtx(ctx, backoff) {
				return nil, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
			}
			backoff *= 2
		case llm.KindRateLimited:
			wait := backoff
			if lerr.RetryAfterSeconds > 0 {
				wait = time.Duration(lerr.RetryAfterSeconds) * time.Second
			}
			if !sleepCtx(ctx, wait) {
				return nil, fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
			}
		default:
			// Parse/empty errors are not retried here; the loop decides.
			return nil, err
		}
	}
	return nil, lastErr
}

// foldError decides whether a decide() error is recoverable; recoverable
// errors are appended as synthetic tool observations so the model can
// self-correct.
func (a *Agent) foldError(err error) (bool, error) {
	var itc *InvalidToolCallError
	if errors.As(err, &itc) {
		_ = a.context.Append(models.ToolMessage(fmt.Sprintf(`{"error":%q}`, itc.Error()), ""))
		return true, nil
	}

	var lerr *llm.Error
	if errors.As(err, &lerr) && (lerr.Kind == llm.KindParse || lerr.Kind == llm.KindEmpty) {
		if a.parseRetried {
			return false, err
		}
		a.parseRetried = true
		_ = a.context.Append(models.ToolMessage(fmt.Sprintf(`{"error":%q}`, lerr.Error()), ""))
		return true, nil
	}

	return false, err
}

// confirmationFor maps an operation to its confirmation semantics:
// destructive DML is typed against the operation keyword, other
// mutations take a simple yes/no.
func confirmationFor(op models.OperationType) (safety.ConfirmationLevel, string) {
	switch op {
	case models.OpDelete, models.OpUpdate:
		return safety.ConfirmTyped, op.Keyword()
	default:
		return safety.ConfirmSimple, ""
	}
}

// sleepCtx waits for the duration unless the context ends first.
// Returns false on cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func rowCount(result models.ToolResult) *int {
	payload, ok := result.Result.(map[string]any)
	if !ok {
		return nil
	}
	switch v := payload["row_count"].(type) {
	case int:
		return &v
	case float64:
		n := int(v)
		return &n
	}
	return nil
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
