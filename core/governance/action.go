// Package governance composes TrustLadder, BudgetEnforcer, and the
// consent Checker into the sequential pipeline that produces one
// allow/deny Decision per Action and emits exactly one audit record per
// evaluation.
package governance

import "trustgate/core/trust"

// Action describes one candidate agent action to evaluate. AgentID is the
// only required field; every other field is optional and the engine skips
// the corresponding check when it is absent.
type Action struct {
	AgentID string

	// RequiredTrustLevel, when non-nil, triggers the trust check.
	RequiredTrustLevel *trust.Level
	Scope              string

	// BudgetCategory, when non-nil, triggers the budget check.
	BudgetCategory *string
	BudgetAmount   float64

	// DataType, when non-nil, triggers the consent check.
	DataType *string
	Purpose  string

	ActionType string
	Resource   string
	Extra      map[string]any
}
