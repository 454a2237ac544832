package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Genesis is the fixed previousHash value used for the first record ever
// appended to a chain: sixty-four lowercase hex zeros.
const Genesis = "0000000000000000000000000000000000000000000000000000000000000000"

// PendingRecord carries the fields a caller wants appended; ID and
// TimestampMS are expected to already be populated by the caller (the
// governance engine assigns them so the record id is known before the
// hash is computed).
type PendingRecord = Record

// HashChain links records by SHA-256 digest: each appended record's
// RecordHash becomes the next record's PreviousHash. append is not
// reentrant — callers serialize it themselves (the governance engine
// does this with a mutex around the (HashChain, AuditStore) pair).
type HashChain struct {
	tip string
}

// NewHashChain constructs an empty chain whose tip is the genesis hash.
func NewHashChain() *HashChain {
	return &HashChain{tip: Genesis}
}

// LastHash returns the current tip: the genesis hash for an empty chain,
// otherwise the most recently appended record's hash.
func (c *HashChain) LastHash() string {
	return c.tip
}

// Prepare stamps pending with the current tip as its PreviousHash and
// computes its RecordHash, without advancing the tip. It lets a caller
// with its own durability step (the governance engine, writing to an
// audit store) compute the next link, persist it, and only then call
// Commit — so a failed persist never leaves the chain pointing at a
// hash that was never written anywhere.
func (c *HashChain) Prepare(pending PendingRecord) (Record, error) {
	pending.PreviousHash = c.tip
	pending.RecordHash = ""

	hash, err := computeHash(pending)
	if err != nil {
		return Record{}, fmt.Errorf("audit: prepare: %w", err)
	}
	pending.RecordHash = hash
	return pending, nil
}

// Commit advances the tip to record's hash. Callers must pass exactly
// the record a prior Prepare returned, after it has been durably
// persisted; Commit does not recompute or validate the hash itself.
func (c *HashChain) Commit(record Record) {
	c.tip = record.RecordHash
}

// Append is Prepare immediately followed by Commit, for callers with no
// durability step of their own to interleave between the two.
func (c *HashChain) Append(pending PendingRecord) (Record, error) {
	completed, err := c.Prepare(pending)
	if err != nil {
		return Record{}, err
	}
	c.Commit(completed)
	return completed, nil
}

// VerifyResult is the outcome of walking a record sequence and
// recomputing each link. It is a pure, total function of its input: it
// never errors, only reports.
type VerifyResult struct {
	OK       bool
	Count    int
	BrokenAt int
	Reason   string
}

// Verify walks records from index 0, confirming that each record's
// PreviousHash matches the expected running tip and that its RecordHash
// matches the recomputed canonical hash. It halts and reports the first
// violation found.
func Verify(records []Record) VerifyResult {
	expected := Genesis
	for i, rec := range records {
		if rec.PreviousHash != expected {
			return VerifyResult{
				OK:       false,
				Count:    len(records),
				BrokenAt: i,
				Reason:   fmt.Sprintf("record %d: previousHash mismatch: expected %s, got %s", i, expected, rec.PreviousHash),
			}
		}

		recomputed, err := computeHash(rec)
		if err != nil || recomputed != rec.RecordHash {
			return VerifyResult{
				OK:       false,
				Count:    len(records),
				BrokenAt: i,
				Reason:   fmt.Sprintf("record %d: recordHash mismatch — record may have been tampered with", i),
			}
		}

		expected = rec.RecordHash
	}

	return VerifyResult{OK: true, Count: len(records)}
}

// computeHash derives recordHash = hex(SHA256(canonical(record without
// recordHash) || "\n" || previousHash)).
func computeHash(rec Record) (string, error) {
	canonical, err := Canonicalize(rec)
	if err != nil {
		return "", err
	}
	payload := append(canonical, '\n')
	payload = append(payload, []byte(rec.PreviousHash)...)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
