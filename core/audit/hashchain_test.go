package audit

import "testing"

func TestAppendLinksPreviousHashToPriorRecordHash(t *testing.T) {
	chain := NewHashChain()
	if chain.LastHash() != Genesis {
		t.Fatalf("expected fresh chain tip to be genesis, got %s", chain.LastHash())
	}

	first, err := chain.Append(Record{ID: "r1", AgentID: "agent-1", Action: "send_email", Permitted: true})
	if err != nil {
		t.Fatalf("append first: %v", err)
	}
	if first.PreviousHash != Genesis {
		t.Fatalf("expected first record's previousHash to be genesis, got %s", first.PreviousHash)
	}
	if len(first.RecordHash) != 64 {
		t.Fatalf("expected 64-char hex hash, got %q", first.RecordHash)
	}

	second, err := chain.Append(Record{ID: "r2", AgentID: "agent-1", Action: "send_sms", Permitted: false})
	if err != nil {
		t.Fatalf("append second: %v", err)
	}
	if second.PreviousHash != first.RecordHash {
		t.Fatalf("expected second record to link to first's hash")
	}
	if chain.LastHash() != second.RecordHash {
		t.Fatalf("expected chain tip to advance to second record's hash")
	}
}

func TestVerifyAcceptsAnIntactChain(t *testing.T) {
	chain := NewHashChain()
	var records []Record
	for i := 0; i < 5; i++ {
		rec, err := chain.Append(Record{ID: string(rune('a' + i)), AgentID: "agent-1", Action: "act"})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		records = append(records, rec)
	}

	result := Verify(records)
	if !result.OK {
		t.Fatalf("expected intact chain to verify, got %+v", result)
	}
	if result.Count != 5 {
		t.Fatalf("expected count 5, got %d", result.Count)
	}
}

func TestVerifyDetectsMutatedField(t *testing.T) {
	chain := NewHashChain()
	var records []Record
	for i := 0; i < 3; i++ {
		rec, err := chain.Append(Record{ID: string(rune('a' + i)), AgentID: "agent-1", Action: "act", Permitted: true})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		records = append(records, rec)
	}

	records[1].Permitted = false // tamper with a field that feeds the hash

	result := Verify(records)
	if result.OK {
		t.Fatalf("expected tampered record to fail verification")
	}
	if result.BrokenAt != 1 {
		t.Fatalf("expected break reported at index 1, got %d", result.BrokenAt)
	}
}

func TestVerifyDetectsBrokenLink(t *testing.T) {
	chain := NewHashChain()
	var records []Record
	for i := 0; i < 3; i++ {
		rec, err := chain.Append(Record{ID: string(rune('a' + i)), AgentID: "agent-1", Action: "act"})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		records = append(records, rec)
	}

	records[2].PreviousHash = Genesis // sever the link to record 1

	result := Verify(records)
	if result.OK {
		t.Fatalf("expected severed link to fail verification")
	}
	if result.BrokenAt != 2 {
		t.Fatalf("expected break reported at index 2, got %d", result.BrokenAt)
	}
}

func TestVerifyEmptyChainIsOK(t *testing.T) {
	result := Verify(nil)
	if !result.OK || result.Count != 0 {
		t.Fatalf("expected empty chain to verify trivially, got %+v", result)
	}
}

func TestCanonicalizeOmitsAbsentOptionalFields(t *testing.T) {
	record := Record{ID: "r1", AgentID: "agent-1", Action: "act", TimestampMS: 1_700_000_000_000}
	canonical, err := Canonicalize(record)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	s := string(canonical)
	for _, absent := range []string{"trustLevel", "requiredLevel", "budgetUsed", "budgetRemaining", "reason", "metadata"} {
		if contains(s, absent) {
			t.Fatalf("expected canonical form to omit absent field %q, got %s", absent, s)
		}
	}
}

func TestCanonicalizeIncludesPresentOptionalFields(t *testing.T) {
	level := 3
	reason := "insufficient trust"
	record := Record{ID: "r1", AgentID: "agent-1", Action: "act", TimestampMS: 1_700_000_000_000, TrustLevel: &level, Reason: &reason}
	canonical, err := Canonicalize(record)
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	s := string(canonical)
	if !contains(s, `"trustLevel":3`) {
		t.Fatalf("expected trustLevel present, got %s", s)
	}
	if !contains(s, `"reason":"insufficient trust"`) {
		t.Fatalf("expected reason present, got %s", s)
	}
}

func TestNDJSONRoundTrip(t *testing.T) {
	level := 2
	reason := "ok"
	amount := 12.5
	original := Record{
		ID: "r1", AgentID: "agent-1", Action: "act", Permitted: true,
		TimestampMS: 1_700_000_000_000, TrustLevel: &level, Reason: &reason,
		BudgetUsed: &amount, Metadata: map[string]any{"scope": "email.send"},
		PreviousHash: Genesis, RecordHash: "abc123",
	}

	line, err := MarshalNDJSON(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	parsed, err := UnmarshalNDJSON(line)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if parsed.ID != original.ID || parsed.AgentID != original.AgentID || parsed.RecordHash != original.RecordHash {
		t.Fatalf("round trip mismatch: %+v vs %+v", parsed, original)
	}
	if parsed.TrustLevel == nil || *parsed.TrustLevel != level {
		t.Fatalf("expected trust level to round-trip, got %+v", parsed.TrustLevel)
	}
	if parsed.TimestampMS != original.TimestampMS {
		t.Fatalf("expected timestamp to round-trip, got %d want %d", parsed.TimestampMS, original.TimestampMS)
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
