package budget

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Metrics is the optional instrumentation hook an Enforcer reports
// envelope-gauge updates to. A nil Metrics is a no-op.
type Metrics interface {
	SetEnvelopeGauges(category string, spent, limit float64)
}

// Config resolves the behaviour of an Enforcer at construction time.
type Config struct {
	// AllowOverdraft, when true, permits Record to proceed even when the
	// requested amount exceeds the available balance. Check always
	// reports ExceedsBudget regardless of this setting.
	AllowOverdraft bool
	// RolloverOnReset, when true, carries unspent capacity from a period
	// into the next one, capped at twice the envelope's base limit.
	RolloverOnReset bool
	// Now returns the current wall-clock time in milliseconds since the
	// Unix epoch. Defaults to time.Now.
	Now func() int64
	// Metrics, when set, is notified every time an envelope's spent total
	// changes. A nil Metrics is a no-op.
	Metrics Metrics
}

func (c Config) resolve() Config {
	if c.Now == nil {
		c.Now = func() int64 { return time.Now().UnixMilli() }
	}
	return c
}

type envelopeState struct {
	Envelope
	capacity float64 // effective limit for the current period
}

// Enforcer is the budget-envelope tracker described by the governance
// spec: static limits, read-only checks, two-phase commit/release, and
// lazy period rollover.
type Enforcer struct {
	mu           sync.RWMutex
	cfg          Config
	envelopes    map[string]*envelopeState // category -> state
	transactions []Transaction
	commits      map[string]PendingCommit
}

// New constructs an Enforcer from the supplied configuration.
func New(cfg Config) *Enforcer {
	return &Enforcer{
		cfg:       cfg.resolve(),
		envelopes: make(map[string]*envelopeState),
		commits:   make(map[string]PendingCommit),
	}
}

// CreateEnvelope creates or replaces the envelope for category with a
// fresh period, zero spent/committed, and not suspended.
func (e *Enforcer) CreateEnvelope(category string, limit float64, period Period) (Envelope, error) {
	if category == "" {
		return Envelope{}, ErrInvalidCategory
	}
	if limit <= 0 {
		return Envelope{}, ErrInvalidLimit
	}
	if !period.Valid() {
		return Envelope{}, ErrInvalidPeriod
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.cfg.Now()
	state := &envelopeState{
		Envelope: Envelope{
			ID:          uuid.NewString(),
			Category:    category,
			Limit:       limit,
			Period:      period,
			Spent:       0,
			Committed:   0,
			PeriodStart: now,
			Suspended:   false,
		},
		capacity: limit,
	}
	e.envelopes[category] = state
	e.reportGauges(state)
	return state.Envelope, nil
}

// Check reports whether amount is currently admissible for category. It
// records no spend and holds nothing; its only mutation is the lazy period
// rollover applied before availability is computed.
func (e *Enforcer) Check(category string, amount float64) CheckResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, ok := e.envelopes[category]
	if !ok {
		return CheckResult{Permitted: false, Requested: amount, Reason: NoEnvelope}
	}

	e.refreshLocked(state)

	if state.Suspended {
		return CheckResult{
			Permitted: false,
			Requested: amount,
			Limit:     state.Limit,
			Spent:     state.Spent,
			Committed: state.Committed,
			Reason:    Suspended,
		}
	}

	available := availableFor(state)
	permitted := amount <= available
	reason := WithinBudget
	if !permitted {
		reason = ExceedsBudget
	}
	return CheckResult{
		Permitted: permitted,
		Available: available,
		Requested: amount,
		Limit:     state.Limit,
		Spent:     state.Spent,
		Committed: state.Committed,
		Reason:    reason,
	}
}

// Record logs a completed transaction and adds amount to the envelope's
// spent accumulator.
func (e *Enforcer) Record(category string, amount float64, description string) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, ErrNonPositiveAmount
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	state, ok := e.envelopes[category]
	if !ok {
		return Transaction{}, ErrNoEnvelope
	}
	e.refreshLocked(state)

	if !e.cfg.AllowOverdraft && amount > availableFor(state) {
		return Transaction{}, ErrBudgetExceeded
	}

	txn := Transaction{
		ID:          uuid.NewString(),
		Category:    category,
		Amount:      amount,
		Description: description,
		Timestamp:   e.cfg.Now(),
		EnvelopeID:  state.ID,
	}
	state.Spent += amount
	e.transactions = append(e.transactions, txn)
	e.reportGauges(state)
	return txn, nil
}

// Commit pre-authorises amount against category, reserving it without
// increasing spent. Returns a commit id that must later be released via
// Release (or implicitly consumed by the caller recording the real spend).
func (e *Enforcer) Commit(category string, amount float64) CommitResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, ok := e.envelopes[category]
	if !ok {
		return CommitResult{Permitted: false, Requested: amount, Reason: NoEnvelope}
	}
	e.refreshLocked(state)

	if state.Suspended {
		return CommitResult{Permitted: false, Requested: amount, Reason: Suspended}
	}

	available := availableFor(state)
	if amount > available {
		return CommitResult{Permitted: false, Available: available, Requested: amount, Reason: ExceedsBudget}
	}

	commitID := uuid.NewString()
	state.Committed += amount
	e.commits[commitID] = PendingCommit{
		ID:        commitID,
		Category:  category,
		Amount:    amount,
		CreatedAt: e.cfg.Now(),
	}

	return CommitResult{
		Permitted: true,
		CommitID:  commitID,
		Available: availableFor(state),
		Requested: amount,
		Reason:    WithinBudget,
	}
}

// Release returns a previously committed amount to the available balance.
// Unknown commit ids are a no-op so repeated release calls are safe.
func (e *Enforcer) Release(commitID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	held, ok := e.commits[commitID]
	if !ok {
		return
	}
	delete(e.commits, commitID)

	state, ok := e.envelopes[held.Category]
	if !ok {
		return
	}
	state.Committed -= held.Amount
	if state.Committed < 0 {
		state.Committed = 0
	}
}

// Utilization returns a point-in-time snapshot for category.
func (e *Enforcer) Utilization(category string) (Utilization, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, ok := e.envelopes[category]
	if !ok {
		return Utilization{}, ErrNoEnvelope
	}
	e.refreshLocked(state)

	return Utilization{
		Category:           state.Category,
		Limit:              state.Limit,
		Spent:              state.Spent,
		Committed:           state.Committed,
		Available:           availableFor(state),
		UtilizationPercent: state.UtilizationPercent(),
		Period:             state.Period,
		PeriodStart:        state.PeriodStart,
		Suspended:          state.Suspended,
	}, nil
}

// Suspend marks category's envelope suspended; every Check subsequently
// reports Suspended regardless of balance.
func (e *Enforcer) Suspend(category string) error {
	return e.setSuspended(category, true)
}

// Resume clears a previous Suspend.
func (e *Enforcer) Resume(category string) error {
	return e.setSuspended(category, false)
}

func (e *Enforcer) setSuspended(category string, suspended bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, ok := e.envelopes[category]
	if !ok {
		return ErrNoEnvelope
	}
	state.Suspended = suspended
	return nil
}

// ListEnvelopes returns every configured envelope, ordered by category.
func (e *Enforcer) ListEnvelopes() []Envelope {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Envelope, 0, len(e.envelopes))
	for _, state := range e.envelopes {
		out = append(out, state.Envelope)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

// GetTransactions returns the transaction log, optionally filtered. All
// filter fields are AND-combined; a nil filter returns every transaction.
func (e *Enforcer) GetTransactions(filter *TransactionFilter) []Transaction {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if filter == nil {
		out := make([]Transaction, len(e.transactions))
		copy(out, e.transactions)
		return out
	}

	out := make([]Transaction, 0, len(e.transactions))
	for _, t := range e.transactions {
		if filter.matches(t) {
			out = append(out, t)
		}
	}
	return out
}

func availableFor(state *envelopeState) float64 {
	avail := state.capacity - state.Spent - state.Committed
	if avail < 0 {
		return 0
	}
	return avail
}

// refreshLocked resets spent/committed and advances periodStart by whole
// multiples of the period duration if the window has elapsed. Pending
// commits do not survive a reset: the category's held commits are dropped,
// so a later Release of one of their ids is a no-op. Callers must already
// hold e.mu.
func (e *Enforcer) refreshLocked(state *envelopeState) {
	if state.Period == Total {
		return
	}
	durationMs := periodSeconds[state.Period] * 1000
	now := e.cfg.Now()
	elapsed := now - state.PeriodStart
	if elapsed < durationMs {
		return
	}

	periodsElapsed := elapsed / durationMs
	spentPrev := state.Spent

	state.PeriodStart += periodsElapsed * durationMs
	state.Spent = 0
	state.Committed = 0
	for id, held := range e.commits {
		if held.Category == state.Category {
			delete(e.commits, id)
		}
	}

	if e.cfg.RolloverOnReset {
		unspent := state.Limit - spentPrev
		if unspent < 0 {
			unspent = 0
		}
		newCapacity := state.Limit + unspent
		if cap2 := state.Limit * 2; newCapacity > cap2 {
			newCapacity = cap2
		}
		state.capacity = newCapacity
	} else {
		state.capacity = state.Limit
	}
	e.reportGauges(state)
}

// reportGauges notifies cfg.Metrics, if set, of state's current
// spent/limit values. Callers must already hold e.mu.
func (e *Enforcer) reportGauges(state *envelopeState) {
	if e.cfg.Metrics == nil {
		return
	}
	e.cfg.Metrics.SetEnvelopeGauges(state.Category, state.Spent, state.Limit)
}
