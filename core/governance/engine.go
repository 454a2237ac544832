package governance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"trustgate/core/audit"
	"trustgate/core/budget"
	"trustgate/core/consent"
	"trustgate/core/trust"
	storeaudit "trustgate/storage/audit"
)

// Metrics is the optional instrumentation hook the engine calls on every
// evaluation and check. A nil Metrics is a no-op.
type Metrics interface {
	ObserveEvaluation(outcome string, d time.Duration)
	RecordTrustCheck(permitted bool)
	RecordBudgetCheck(category, reason string)
	RecordConsentCheck(granted bool)
	RecordChainAppend()
}

// Config wires an Engine's collaborators together.
type Config struct {
	Trust   *trust.Ladder
	Budget  *budget.Enforcer
	Consent *consent.Checker
	Chain   *audit.HashChain
	Store   storeaudit.Store

	Logger  *slog.Logger
	Metrics Metrics

	// Now returns the current wall-clock time in milliseconds since the
	// Unix epoch. Defaults to time.Now.
	Now func() int64
}

func (c Config) resolve() Config {
	if c.Chain == nil {
		c.Chain = audit.NewHashChain()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = func() int64 { return time.Now().UnixMilli() }
	}
	return c
}

// Engine is the sequential governance pipeline: trust, then budget, then
// consent, short-circuiting to DENY on the first failing check, and
// emitting exactly one audit record regardless of outcome.
type Engine struct {
	cfg Config

	// emitMu serializes the (HashChain, AuditStore) append pair so
	// concurrent Evaluate calls still produce a linear, valid chain.
	emitMu sync.Mutex
}

// New constructs an Engine from the supplied Config. Trust, Budget, and
// Consent must be non-nil; Store must be non-nil.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg.resolve()}
}

// Evaluate runs the governance pipeline for action, appending exactly one
// audit record, and returns the resulting Decision. It is the
// cooperative-suspension surface and accepts ctx, but the Store interface
// takes no context: ctx is not passed to the storage append, and a
// caller-imposed deadline neither interrupts it nor fails the evaluation.
func (e *Engine) Evaluate(ctx context.Context, action Action) (Decision, error) {
	if action.AgentID == "" {
		return Decision{}, ErrInvalidAgentID
	}

	start := time.Now()
	var reasons []string
	outcome := Allow

	var effectiveTrust *int
	var budgetUsed, budgetRemaining *float64

	if action.RequiredTrustLevel != nil {
		result, err := e.cfg.Trust.Check(action.AgentID, *action.RequiredTrustLevel, action.Scope)
		if err != nil {
			return Decision{}, fmt.Errorf("governance: trust check: %w", err)
		}
		level := int(result.Effective)
		effectiveTrust = &level
		reasons = append(reasons, trustReason(result))
		e.recordMetric(func(m Metrics) { m.RecordTrustCheck(result.Permitted) })

		if !result.Permitted {
			outcome = Deny
			return e.emit(ctx, action, outcome, reasons, effectiveTrust, budgetUsed, budgetRemaining, start)
		}
	}

	if action.BudgetCategory != nil {
		result := e.cfg.Budget.Check(*action.BudgetCategory, action.BudgetAmount)
		used := action.BudgetAmount
		budgetUsed = &used
		avail := result.Available
		budgetRemaining = &avail
		reasons = append(reasons, budgetReason(*action.BudgetCategory, result))
		e.recordMetric(func(m Metrics) { m.RecordBudgetCheck(*action.BudgetCategory, string(result.Reason)) })

		if !result.Permitted {
			outcome = Deny
			return e.emit(ctx, action, outcome, reasons, effectiveTrust, budgetUsed, budgetRemaining, start)
		}
	}

	if action.DataType != nil {
		result := e.cfg.Consent.Check(action.AgentID, *action.DataType, action.Purpose)
		reasons = append(reasons, result.Reason)
		e.recordMetric(func(m Metrics) { m.RecordConsentCheck(result.Granted) })

		if !result.Granted {
			outcome = Deny
			return e.emit(ctx, action, outcome, reasons, effectiveTrust, budgetUsed, budgetRemaining, start)
		}
	}

	return e.emit(ctx, action, outcome, reasons, effectiveTrust, budgetUsed, budgetRemaining, start)
}

// EvaluateSync is the synchronous surface for callers that hold their own
// scheduler and cannot thread a context through.
func (e *Engine) EvaluateSync(action Action) (Decision, error) {
	return e.Evaluate(context.Background(), action)
}

func (e *Engine) emit(
	ctx context.Context,
	action Action,
	outcome Outcome,
	reasons []string,
	effectiveTrust *int,
	budgetUsed, budgetRemaining *float64,
	start time.Time,
) (Decision, error) {
	record := audit.Record{
		ID:                 uuid.NewString(),
		TimestampMS:        e.cfg.Now(),
		AgentID:            action.AgentID,
		Action:             actionLabel(action),
		Permitted:          outcome == Allow,
		TrustLevel:         effectiveTrust,
		RequiredTrustLevel: requiredLevelInt(action.RequiredTrustLevel),
		BudgetUsed:         budgetUsed,
		BudgetRemaining:    budgetRemaining,
		Metadata:           buildContext(action),
	}
	if len(reasons) > 0 {
		joined := joinReasons(reasons)
		record.Reason = &joined
	}

	e.emitMu.Lock()
	completed, err := e.cfg.Chain.Prepare(record)
	if err == nil {
		if err = e.cfg.Store.Append(completed); err == nil {
			e.cfg.Chain.Commit(completed)
		}
	}
	e.emitMu.Unlock()

	if err != nil {
		return Decision{}, fmt.Errorf("governance: emit audit record: %w", err)
	}

	e.recordMetric(func(m Metrics) { m.RecordChainAppend() })
	e.recordMetric(func(m Metrics) { m.ObserveEvaluation(string(outcome), time.Since(start)) })

	e.cfg.Logger.Info("governance evaluation",
		"agent_id", action.AgentID,
		"outcome", string(outcome),
		"record_id", completed.ID,
		"record_hash", completed.RecordHash,
	)

	return Decision{
		Outcome:       outcome,
		Allowed:       outcome == Allow || outcome == AllowWithCaveat,
		Reasons:       reasons,
		AuditRecordID: completed.ID,
		Action:        action,
	}, nil
}

func (e *Engine) recordMetric(fn func(Metrics)) {
	if e.cfg.Metrics == nil {
		return
	}
	fn(e.cfg.Metrics)
}

func trustReason(result trust.CheckResult) string {
	if result.Permitted {
		return fmt.Sprintf("trust: effective level %s satisfies required level %s", result.Effective, result.Required)
	}
	return fmt.Sprintf("trust: effective level %s is below required level %s", result.Effective, result.Required)
}

func budgetReason(category string, result budget.CheckResult) string {
	return fmt.Sprintf("budget: category %q requested %.4f available %.4f (%s)", category, result.Requested, result.Available, result.Reason)
}

func actionLabel(action Action) string {
	if action.ActionType != "" {
		return action.ActionType
	}
	return "evaluate"
}

func requiredLevelInt(level *trust.Level) *int {
	if level == nil {
		return nil
	}
	v := int(*level)
	return &v
}

func buildContext(action Action) map[string]any {
	ctx := map[string]any{}
	if action.ActionType != "" {
		ctx["actionType"] = action.ActionType
	}
	if action.Resource != "" {
		ctx["resource"] = action.Resource
	}
	if action.Scope != "" {
		ctx["scope"] = action.Scope
	}
	if action.BudgetCategory != nil {
		ctx["budgetCategory"] = *action.BudgetCategory
	}
	if action.DataType != nil {
		ctx["dataType"] = *action.DataType
	}
	if action.Purpose != "" {
		ctx["purpose"] = action.Purpose
	}
	if len(action.Extra) > 0 {
		ctx["extra"] = action.Extra
	}
	if len(ctx) == 0 {
		return nil
	}
	return ctx
}

func joinReasons(reasons []string) string {
	out := reasons[0]
	for _, r := range reasons[1:] {
		out += "; " + r
	}
	return out
}
