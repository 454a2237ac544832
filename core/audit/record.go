// Package audit implements the hash-chained audit record and its
// tamper-evident chain: each record carries a SHA-256 digest linking it to
// its predecessor, and a verifier re-derives the chain to detect mutation.
package audit

// Record is an immutable audit entry. Optional fields use pointers so the
// canonical serializer can tell "absent" from "zero value" — an omitted
// field never appears in the hashed representation.
type Record struct {
	ID                 string
	TimestampMS        int64
	AgentID            string
	Action             string
	Permitted          bool
	TrustLevel         *int
	RequiredTrustLevel *int
	BudgetUsed         *float64
	BudgetRemaining    *float64
	Reason             *string
	Metadata           map[string]any
	PreviousHash       string
	RecordHash         string
}
