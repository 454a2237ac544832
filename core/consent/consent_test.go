package consent

import "testing"

func clockAt(ms int64) func() int64 {
	return func() int64 { return ms }
}

func TestCheckGrantedExactPurpose(t *testing.T) {
	now := int64(1_700_000_000_000)
	c := New(Config{Now: clockAt(now)})

	if _, err := c.Record("agent-1", "email", "marketing", "user", nil); err != nil {
		t.Fatalf("record: %v", err)
	}

	result := c.Check("agent-1", "email", "marketing")
	if !result.Granted {
		t.Fatalf("expected exact-purpose grant, got %+v", result)
	}
}

func TestCheckFallsBackToBlanketGrant(t *testing.T) {
	now := int64(1_700_000_000_000)
	c := New(Config{Now: clockAt(now)})

	if _, err := c.Record("agent-1", "email", "", "user", nil); err != nil {
		t.Fatalf("record blanket: %v", err)
	}

	result := c.Check("agent-1", "email", "marketing")
	if !result.Granted {
		t.Fatalf("expected blanket grant to cover any purpose, got %+v", result)
	}
}

func TestCheckDefaultDenyWithNoMatchingRecord(t *testing.T) {
	c := New(Config{DefaultDeny: true, Now: clockAt(0)})
	result := c.Check("agent-1", "email", "marketing")
	if result.Granted {
		t.Fatalf("expected default deny, got %+v", result)
	}
}

func TestCheckDefaultAllowWithNoMatchingRecord(t *testing.T) {
	c := New(Config{DefaultDeny: false, Now: clockAt(0)})
	result := c.Check("agent-1", "email", "marketing")
	if !result.Granted {
		t.Fatalf("expected default allow, got %+v", result)
	}
}

func TestCheckExpiredRecordTreatedAsAbsent(t *testing.T) {
	now := int64(1_700_000_000_000)
	current := now
	c := New(Config{DefaultDeny: true, Now: func() int64 { return current }})

	expiresAt := now + 1000
	if _, err := c.Record("agent-1", "email", "marketing", "user", &expiresAt); err != nil {
		t.Fatalf("record: %v", err)
	}

	result := c.Check("agent-1", "email", "marketing")
	if !result.Granted {
		t.Fatalf("expected unexpired grant, got %+v", result)
	}

	current = expiresAt
	result = c.Check("agent-1", "email", "marketing")
	if result.Granted {
		t.Fatalf("expected expired grant to be treated as absent, got %+v", result)
	}
}

func TestRecordValidation(t *testing.T) {
	c := New(Config{Now: clockAt(0)})
	if _, err := c.Record("", "email", "", "user", nil); err != ErrInvalidAgentID {
		t.Fatalf("expected ErrInvalidAgentID, got %v", err)
	}
	if _, err := c.Record("agent-1", "", "", "user", nil); err != ErrInvalidDataType {
		t.Fatalf("expected ErrInvalidDataType, got %v", err)
	}
	if _, err := c.Record("agent-1", "email", "", "", nil); err != ErrInvalidGrantedBy {
		t.Fatalf("expected ErrInvalidGrantedBy, got %v", err)
	}
}

func TestRecordReplacesExistingGrantForSameKey(t *testing.T) {
	now := int64(1_700_000_000_000)
	c := New(Config{DefaultDeny: true, Now: clockAt(now)})

	if _, err := c.Record("agent-1", "email", "marketing", "user", nil); err != nil {
		t.Fatalf("record first: %v", err)
	}
	expiresAt := now - 1
	if _, err := c.Record("agent-1", "email", "marketing", "user", &expiresAt); err != nil {
		t.Fatalf("record replacement: %v", err)
	}

	result := c.Check("agent-1", "email", "marketing")
	if result.Granted {
		t.Fatalf("expected replacement record's expiry to take effect, got %+v", result)
	}
}
