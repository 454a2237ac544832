package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Canonicalize renders r's hashed fields (everything except RecordHash) as
// deterministic UTF-8 JSON: keys sorted lexicographically, no inter-token
// whitespace, non-ASCII preserved literally, and absent optional fields
// fully omitted rather than nulled. Go's json.Marshal already sorts
// map[string]any keys, emits compact separators, and writes non-ASCII as
// literal UTF-8 (except U+2028 and U+2029, which it always escapes);
// HTML-escaping is disabled so '<', '>' and '&' stay literal as well.
func Canonicalize(r Record) ([]byte, error) {
	fields := map[string]any{
		"id":        r.ID,
		"timestamp": time.UnixMilli(r.TimestampMS).UTC().Format(time.RFC3339Nano),
		"agentId":   r.AgentID,
		"action":    r.Action,
		"permitted": r.Permitted,
	}
	if r.TrustLevel != nil {
		fields["trustLevel"] = *r.TrustLevel
	}
	if r.RequiredTrustLevel != nil {
		fields["requiredLevel"] = *r.RequiredTrustLevel
	}
	if r.BudgetUsed != nil {
		fields["budgetUsed"] = *r.BudgetUsed
	}
	if r.BudgetRemaining != nil {
		fields["budgetRemaining"] = *r.BudgetRemaining
	}
	if r.Reason != nil {
		fields["reason"] = *r.Reason
	}
	if len(r.Metadata) > 0 {
		if err := validateCanonicalValue(r.Metadata); err != nil {
			return nil, fmt.Errorf("audit: metadata: %w", err)
		}
		fields["metadata"] = r.Metadata
	}
	fields["previousHash"] = r.PreviousHash

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(fields); err != nil {
		return nil, fmt.Errorf("audit: canonicalize: %w", err)
	}
	// json.Encoder.Encode appends a trailing newline; the canonical form
	// has none.
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// validateCanonicalValue rejects metadata values that cannot be
// canonicalized deterministically (anything outside JSON primitives,
// slices, and string-keyed maps of the same).
func validateCanonicalValue(v any) error {
	switch val := v.(type) {
	case nil, bool, string, float64, float32,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return nil
	case map[string]any:
		for _, elem := range val {
			if err := validateCanonicalValue(elem); err != nil {
				return err
			}
		}
		return nil
	case []any:
		for _, elem := range val {
			if err := validateCanonicalValue(elem); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported metadata value type %T", v)
	}
}
