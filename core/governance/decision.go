package governance

// Outcome is the engine's decision value. AllowWithCaveat is reserved for
// future use — the current pipeline only ever emits Allow or Deny.
type Outcome string

const (
	Allow           Outcome = "allow"
	Deny            Outcome = "deny"
	AllowWithCaveat Outcome = "allow_with_caveat"
)

// Decision is the engine's structured response to an Action.
type Decision struct {
	Outcome       Outcome
	Allowed       bool
	Reasons       []string
	AuditRecordID string
	Action        Action
}
