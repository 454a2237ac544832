package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// MarshalNDJSON renders the complete record (including RecordHash, unlike
// Canonicalize which hashes everything else) as one canonical-JSON line,
// the on-disk format the NDJSON file backend appends.
func MarshalNDJSON(r Record) ([]byte, error) {
	fields := map[string]any{
		"id":           r.ID,
		"timestamp":    time.UnixMilli(r.TimestampMS).UTC().Format(time.RFC3339Nano),
		"agentId":      r.AgentID,
		"action":       r.Action,
		"permitted":    r.Permitted,
		"previousHash": r.PreviousHash,
		"recordHash":   r.RecordHash,
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
		fields["metadata"] = r.Metadata
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(fields); err != nil {
		return nil, fmt.Errorf("audit: marshal ndjson: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnmarshalNDJSON parses one NDJSON line back into a Record. Callers that
// read a file of these lines should skip any line that fails to parse —
// the chain verifier will detect any resulting gap.
func UnmarshalNDJSON(line []byte) (Record, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(line, &raw); err != nil {
		return Record{}, err
	}

	var rec Record
	if err := unmarshalString(raw, "id", &rec.ID); err != nil {
		return Record{}, err
	}
	var ts string
	if err := unmarshalString(raw, "timestamp", &ts); err != nil {
		return Record{}, err
	}
	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return Record{}, fmt.Errorf("audit: parse timestamp: %w", err)
	}
	rec.TimestampMS = parsed.UnixMilli()

	if err := unmarshalString(raw, "agentId", &rec.AgentID); err != nil {
		return Record{}, err
	}
	if err := unmarshalString(raw, "action", &rec.Action); err != nil {
		return Record{}, err
	}
	if v, ok := raw["permitted"]; ok {
		if err := json.Unmarshal(v, &rec.Permitted); err != nil {
			return Record{}, err
		}
	}
	if err := unmarshalString(raw, "previousHash", &rec.PreviousHash); err != nil {
		return Record{}, err
	}
	if err := unmarshalString(raw, "recordHash", &rec.RecordHash); err != nil {
		return Record{}, err
	}

	if v, ok := raw["trustLevel"]; ok {
		var level int
		if err := json.Unmarshal(v, &level); err != nil {
			return Record{}, err
		}
		rec.TrustLevel = &level
	}
	if v, ok := raw["requiredLevel"]; ok {
		var level int
		if err := json.Unmarshal(v, &level); err != nil {
			return Record{}, err
		}
		rec.RequiredTrustLevel = &level
	}
	if v, ok := raw["budgetUsed"]; ok {
		var amount float64
		if err := json.Unmarshal(v, &amount); err != nil {
			return Record{}, err
		}
		rec.BudgetUsed = &amount
	}
	if v, ok := raw["budgetRemaining"]; ok {
		var amount float64
		if err := json.Unmarshal(v, &amount); err != nil {
			return Record{}, err
		}
		rec.BudgetRemaining = &amount
	}
	if v, ok := raw["reason"]; ok {
		var reason string
		if err := json.Unmarshal(v, &reason); err != nil {
			return Record{}, err
		}
		rec.Reason = &reason
	}
	if v, ok := raw["metadata"]; ok {
		var metadata map[string]any
		if err := json.Unmarshal(v, &metadata); err != nil {
			return Record{}, err
		}
		rec.Metadata = metadata
	}

	return rec, nil
}

func unmarshalString(raw map[string]json.RawMessage, key string, out *string) error {
	v, ok := raw[key]
	if !ok {
		return fmt.Errorf("audit: missing required field %q", key)
	}
	return json.Unmarshal(v, out)
}
