package trust

import (
	"sort"
	"sync"
	"time"
)

const defaultMaxHistoryPerScope = 500

// Metrics is the optional instrumentation hook a Ladder reports
// decay-history events to. A nil Metrics is a no-op.
type Metrics interface {
	RecordDecayEvent(kind string)
}

// Config resolves the behaviour of a Ladder at construction time.
type Config struct {
	// Decay selects the decay policy applied to every assignment. A nil
	// value is equivalent to NoDecay{}.
	Decay Decay
	// MaxHistoryPerScope caps the change-history list retained per
	// (agentID, scope) pair; the oldest entries are evicted first. Zero
	// selects a default of 500.
	MaxHistoryPerScope int
	// Now returns the current wall-clock time in milliseconds since the
	// Unix epoch. Defaults to time.Now; tests override it to exercise
	// decay deterministically.
	Now func() int64
	// Metrics, when set, is notified every time decay lowers an agent's
	// effective level. A nil Metrics is a no-op.
	Metrics Metrics
}

func (c Config) resolve() Config {
	if c.Decay == nil {
		c.Decay = NoDecay{}
	}
	if c.MaxHistoryPerScope <= 0 {
		c.MaxHistoryPerScope = defaultMaxHistoryPerScope
	}
	if c.Now == nil {
		c.Now = func() int64 { return time.Now().UnixMilli() }
	}
	return c
}

// Ladder is the manual-assignment, decaying trust store described by the
// governance spec. All changes to current assignments go through Assign or
// Revoke; GetLevel and Check are read paths that may append decay history
// entries as an observable side effect of reading a lowered level.
type Ladder struct {
	mu      sync.RWMutex
	cfg     Config
	current map[string]Assignment
	history map[string][]ChangeRecord
}

// New constructs a Ladder from the supplied configuration.
func New(cfg Config) *Ladder {
	return &Ladder{
		cfg:     cfg.resolve(),
		current: make(map[string]Assignment),
		history: make(map[string][]ChangeRecord),
	}
}

// Assign manually grants agentID a trust level within scope. It is the
// only mutator of the current assignment: any prior assignment at the
// same (agentID, scope) is replaced and a Manual history entry recorded.
func (l *Ladder) Assign(agentID string, level Level, scope, reason, assignedBy string) (Assignment, error) {
	if agentID == "" {
		return Assignment{}, ErrInvalidAgentID
	}
	if !level.Valid() {
		return Assignment{}, ErrInvalidTrustLevel
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := scopeKey(agentID, scope)
	now := l.cfg.Now()

	var previous *Level
	if prior, ok := l.current[key]; ok {
		p := prior.AssignedLevel
		previous = &p
	}

	assignment := Assignment{
		AgentID:       agentID,
		Scope:         scope,
		AssignedLevel: level,
		AssignedAt:    now,
		Reason:        reason,
		AssignedBy:    assignedBy,
	}
	l.current[key] = assignment

	l.appendHistory(key, ChangeRecord{
		AgentID:       agentID,
		Scope:         scope,
		PreviousLevel: previous,
		NewLevel:      level,
		ChangedAt:     now,
		Kind:          Manual,
		Reason:        reason,
		ChangedBy:     assignedBy,
	})

	return assignment, nil
}

// GetLevel returns the effective trust level for agentID in scope, after
// looking up the scoped assignment, falling back to the global ("")
// assignment, and finally LevelMin. Decay is applied to whichever
// assignment is found; if decay has newly lowered the effective level
// since the last recorded value, a decay history entry is appended.
func (l *Ladder) GetLevel(agentID, scope string) (Level, error) {
	if agentID == "" {
		return 0, ErrInvalidAgentID
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	assignment, key, ok := l.lookupLocked(agentID, scope)
	if !ok {
		return LevelMin, nil
	}

	now := l.cfg.Now()
	effective := l.cfg.Decay.Effective(assignment.AssignedLevel, assignment.AssignedAt, now)

	if effective != assignment.AssignedLevel {
		lastRecorded := l.lastRecordedLevelLocked(key)
		if lastRecorded == nil || *lastRecorded != effective {
			kind := DecayStep
			if l.cfg.Decay.Kind() == DecayCliffK {
				kind = DecayCliff
			}
			previous := assignment.AssignedLevel
			if lastRecorded != nil {
				previous = *lastRecorded
			}
			l.appendHistory(key, ChangeRecord{
				AgentID:       assignment.AgentID,
				Scope:         assignment.Scope,
				PreviousLevel: &previous,
				NewLevel:      effective,
				ChangedAt:     now,
				Kind:          kind,
			})
		}
	}

	return effective, nil
}

// Check reports whether agentID's effective level in scope satisfies
// requiredLevel.
func (l *Ladder) Check(agentID string, requiredLevel Level, scope string) (CheckResult, error) {
	if agentID == "" {
		return CheckResult{}, ErrInvalidAgentID
	}
	if !requiredLevel.Valid() {
		return CheckResult{}, ErrInvalidTrustLevel
	}

	effective, err := l.GetLevel(agentID, scope)
	if err != nil {
		return CheckResult{}, err
	}

	l.mu.RLock()
	now := l.cfg.Now()
	l.mu.RUnlock()

	return CheckResult{
		Permitted: effective >= requiredLevel,
		Effective: effective,
		Required:  requiredLevel,
		Scope:     scope,
		CheckedAt: now,
	}, nil
}

// Revoke removes the assignment for agentID in scope and records a
// Revocation history entry. When scope is nil, every scope held by
// agentID is revoked.
func (l *Ladder) Revoke(agentID string, scope *string) error {
	if agentID == "" {
		return ErrInvalidAgentID
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.cfg.Now()

	if scope != nil {
		l.revokeLocked(agentID, *scope, now)
		return nil
	}

	for key, assignment := range l.current {
		if assignment.AgentID == agentID {
			_ = key
			l.revokeLocked(agentID, assignment.Scope, now)
		}
	}
	return nil
}

func (l *Ladder) revokeLocked(agentID, scope string, now int64) {
	key := scopeKey(agentID, scope)
	prior, ok := l.current[key]
	if !ok {
		return
	}
	delete(l.current, key)
	previous := prior.AssignedLevel
	l.appendHistory(key, ChangeRecord{
		AgentID:       agentID,
		Scope:         scope,
		PreviousLevel: &previous,
		NewLevel:      LevelMin,
		ChangedAt:     now,
		Kind:          Revocation,
	})
}

// GetHistory returns the oldest-first change history for agentID in scope.
func (l *Ladder) GetHistory(agentID, scope string) []ChangeRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	key := scopeKey(agentID, scope)
	entries := l.history[key]
	out := make([]ChangeRecord, len(entries))
	copy(out, entries)
	return out
}

// ListAssignments returns every current (non-revoked) assignment, ordered
// by (agentID, scope) for deterministic output.
func (l *Ladder) ListAssignments() []Assignment {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Assignment, 0, len(l.current))
	for _, a := range l.current {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AgentID != out[j].AgentID {
			return out[i].AgentID < out[j].AgentID
		}
		return out[i].Scope < out[j].Scope
	})
	return out
}

func (l *Ladder) lookupLocked(agentID, scope string) (Assignment, string, bool) {
	key := scopeKey(agentID, scope)
	if a, ok := l.current[key]; ok {
		return a, key, true
	}
	if scope != "" {
		globalKey := scopeKey(agentID, "")
		if a, ok := l.current[globalKey]; ok {
			return a, globalKey, true
		}
	}
	return Assignment{}, key, false
}

func (l *Ladder) lastRecordedLevelLocked(key string) *Level {
	entries := l.history[key]
	if len(entries) == 0 {
		return nil
	}
	level := entries[len(entries)-1].NewLevel
	return &level
}

func (l *Ladder) appendHistory(key string, entry ChangeRecord) {
	entries := append(l.history[key], entry)
	if over := len(entries) - l.cfg.MaxHistoryPerScope; over > 0 {
		entries = entries[over:]
	}
	l.history[key] = entries

	if (entry.Kind == DecayCliff || entry.Kind == DecayStep) && l.cfg.Metrics != nil {
		l.cfg.Metrics.RecordDecayEvent(string(entry.Kind))
	}
}
