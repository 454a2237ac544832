package trust

import "testing"

func clockAt(ms int64) func() int64 {
	return func() int64 { return ms }
}

func TestAssignAndGetLevel(t *testing.T) {
	now := int64(1_700_000_000_000)
	l := New(Config{Now: clockAt(now)})

	if _, err := l.Assign("agent-1", ActAndReport, "", "initial trust grant", "admin"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	level, err := l.GetLevel("agent-1", "")
	if err != nil {
		t.Fatalf("get level: %v", err)
	}
	if level != ActAndReport {
		t.Fatalf("expected level %s, got %s", ActAndReport, level)
	}
}

func TestGetLevelUnassignedAgentFloorsAtMin(t *testing.T) {
	l := New(Config{Now: clockAt(0)})

	level, err := l.GetLevel("ghost", "")
	if err != nil {
		t.Fatalf("get level: %v", err)
	}
	if level != LevelMin {
		t.Fatalf("expected floor level %s for unassigned agent, got %s", LevelMin, level)
	}
}

func TestScopedAssignmentFallsBackToGlobal(t *testing.T) {
	now := int64(1_700_000_000_000)
	l := New(Config{Now: clockAt(now)})

	if _, err := l.Assign("agent-1", Suggest, "", "global grant", "admin"); err != nil {
		t.Fatalf("assign global: %v", err)
	}

	level, err := l.GetLevel("agent-1", "email.send")
	if err != nil {
		t.Fatalf("get level: %v", err)
	}
	if level != Suggest {
		t.Fatalf("expected scoped lookup to fall back to global level %s, got %s", Suggest, level)
	}

	if _, err := l.Assign("agent-1", Autonomous, "email.send", "scoped override", "admin"); err != nil {
		t.Fatalf("assign scoped: %v", err)
	}
	level, err = l.GetLevel("agent-1", "email.send")
	if err != nil {
		t.Fatalf("get level: %v", err)
	}
	if level != Autonomous {
		t.Fatalf("expected scoped override %s, got %s", Autonomous, level)
	}

	// the global assignment for an unrelated scope is untouched.
	level, err = l.GetLevel("agent-1", "sms.send")
	if err != nil {
		t.Fatalf("get level: %v", err)
	}
	if level != Suggest {
		t.Fatalf("expected unrelated scope to keep global level %s, got %s", Suggest, level)
	}
}

func TestCliffDecayDropsToFloorAfterTTL(t *testing.T) {
	now := int64(1_700_000_000_000)
	ttlMs := int64(3600_000)
	current := now
	l := New(Config{
		Decay: CliffDecay{TTL: 3600_000_000_000}, // 1h in time.Duration nanoseconds
		Now:   func() int64 { return current },
	})

	if _, err := l.Assign("agent-1", Autonomous, "", "temporary elevation", "admin"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	current = now + ttlMs - 1
	level, err := l.GetLevel("agent-1", "")
	if err != nil {
		t.Fatalf("get level before ttl: %v", err)
	}
	if level != Autonomous {
		t.Fatalf("expected level unchanged before ttl, got %s", level)
	}

	current = now + ttlMs
	level, err = l.GetLevel("agent-1", "")
	if err != nil {
		t.Fatalf("get level at ttl: %v", err)
	}
	if level != LevelMin {
		t.Fatalf("expected cliff decay to floor at ttl, got %s", level)
	}

	history := l.GetHistory("agent-1", "")
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries (manual + cliff), got %d", len(history))
	}
	if history[1].Kind != DecayCliff {
		t.Fatalf("expected second entry to be a cliff decay, got %s", history[1].Kind)
	}
}

type recordingMetrics struct {
	kinds []string
}

func (m *recordingMetrics) RecordDecayEvent(kind string) {
	m.kinds = append(m.kinds, kind)
}

func TestCliffDecayReportsDecayEventToMetrics(t *testing.T) {
	now := int64(1_700_000_000_000)
	ttlMs := int64(3600_000)
	current := now
	metrics := &recordingMetrics{}
	l := New(Config{
		Decay:   CliffDecay{TTL: 3600_000_000_000},
		Now:     func() int64 { return current },
		Metrics: metrics,
	})

	if _, err := l.Assign("agent-1", Autonomous, "", "temporary elevation", "admin"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if len(metrics.kinds) != 0 {
		t.Fatalf("expected no decay event on manual assignment, got %v", metrics.kinds)
	}

	current = now + ttlMs
	if _, err := l.GetLevel("agent-1", ""); err != nil {
		t.Fatalf("get level: %v", err)
	}
	if len(metrics.kinds) != 1 || metrics.kinds[0] != string(DecayCliff) {
		t.Fatalf("expected exactly one cliff decay event reported, got %v", metrics.kinds)
	}

	// Reading again at the same decayed level must not double-report.
	if _, err := l.GetLevel("agent-1", ""); err != nil {
		t.Fatalf("get level again: %v", err)
	}
	if len(metrics.kinds) != 1 {
		t.Fatalf("expected no additional decay event on a repeated read, got %v", metrics.kinds)
	}
}

func TestGradualDecayStepsDownOverTime(t *testing.T) {
	now := int64(1_700_000_000_000)
	stepMs := int64(3600_000)
	current := now
	l := New(Config{
		Decay: GradualDecay{Step: 3600_000_000_000}, // 1h
		Now:   func() int64 { return current },
	})

	if _, err := l.Assign("agent-1", Autonomous, "", "graduated autonomy", "admin"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	cases := []struct {
		elapsedHours int64
		want         Level
	}{
		{0, Autonomous},
		{1, ActAndReport},
		{2, ActWithApproval},
		{5, LevelMin},
		{6, LevelMin},
	}
	for _, c := range cases {
		current = now + c.elapsedHours*stepMs
		level, err := l.GetLevel("agent-1", "")
		if err != nil {
			t.Fatalf("get level at +%dh: %v", c.elapsedHours, err)
		}
		if level != c.want {
			t.Fatalf("at +%dh expected %s, got %s", c.elapsedHours, c.want, level)
		}
	}
}

func TestRevokeRemovesAssignmentAndRecordsHistory(t *testing.T) {
	now := int64(1_700_000_000_000)
	l := New(Config{Now: clockAt(now)})

	if _, err := l.Assign("agent-1", Suggest, "scope-a", "grant", "admin"); err != nil {
		t.Fatalf("assign: %v", err)
	}
	scope := "scope-a"
	if err := l.Revoke("agent-1", &scope); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	level, err := l.GetLevel("agent-1", "scope-a")
	if err != nil {
		t.Fatalf("get level: %v", err)
	}
	if level != LevelMin {
		t.Fatalf("expected revoked agent to floor at %s, got %s", LevelMin, level)
	}

	history := l.GetHistory("agent-1", "scope-a")
	if len(history) != 2 || history[1].Kind != Revocation {
		t.Fatalf("expected revocation to be recorded in history, got %+v", history)
	}
}

func TestCheckReportsPermittedAgainstRequiredLevel(t *testing.T) {
	now := int64(1_700_000_000_000)
	l := New(Config{Now: clockAt(now)})

	if _, err := l.Assign("agent-1", Suggest, "", "grant", "admin"); err != nil {
		t.Fatalf("assign: %v", err)
	}

	result, err := l.Check("agent-1", Monitor, "")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !result.Permitted {
		t.Fatalf("expected Suggest to satisfy required Monitor")
	}

	result, err = l.Check("agent-1", Autonomous, "")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if result.Permitted {
		t.Fatalf("expected Suggest to fail required Autonomous")
	}
}

func TestAssignRejectsInvalidInput(t *testing.T) {
	l := New(Config{Now: clockAt(0)})

	if _, err := l.Assign("", Suggest, "", "reason", "admin"); err != ErrInvalidAgentID {
		t.Fatalf("expected ErrInvalidAgentID, got %v", err)
	}
	if _, err := l.Assign("agent-1", Level(99), "", "reason", "admin"); err != ErrInvalidTrustLevel {
		t.Fatalf("expected ErrInvalidTrustLevel, got %v", err)
	}
}

func TestHistoryCapEvictsOldestEntries(t *testing.T) {
	now := int64(1_700_000_000_000)
	l := New(Config{MaxHistoryPerScope: 2, Now: clockAt(now)})

	if _, err := l.Assign("agent-1", Monitor, "", "r1", "admin"); err != nil {
		t.Fatalf("assign 1: %v", err)
	}
	if _, err := l.Assign("agent-1", Suggest, "", "r2", "admin"); err != nil {
		t.Fatalf("assign 2: %v", err)
	}
	if _, err := l.Assign("agent-1", ActWithApproval, "", "r3", "admin"); err != nil {
		t.Fatalf("assign 3: %v", err)
	}

	history := l.GetHistory("agent-1", "")
	if len(history) != 2 {
		t.Fatalf("expected history capped at 2, got %d", len(history))
	}
	if history[len(history)-1].NewLevel != ActWithApproval {
		t.Fatalf("expected most recent entry retained, got %+v", history)
	}
}
