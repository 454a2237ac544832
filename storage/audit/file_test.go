package audit

import (
	"os"
	"path/filepath"
	"testing"

	coreaudit "trustgate/core/audit"
)

func TestFileStoreAppendAndQuery(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.ndjson")

	store, err := NewFileStore(path, nil)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	defer store.Close()

	chain := coreaudit.NewHashChain()
	for i := 0; i < 3; i++ {
		rec, err := chain.Append(coreaudit.Record{ID: string(rune('a' + i)), AgentID: "agent-1", Action: "act", TimestampMS: int64(1_700_000_000_000 + i)})
		if err != nil {
			t.Fatalf("chain append %d: %v", i, err)
		}
		if err := store.Append(rec); err != nil {
			t.Fatalf("store append %d: %v", i, err)
		}
	}

	records, err := store.All()
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	result := coreaudit.Verify(records)
	if !result.OK {
		t.Fatalf("expected verifiable chain after reload, got %+v", result)
	}

	last, err := store.LastHash()
	if err != nil {
		t.Fatalf("last hash: %v", err)
	}
	if last != records[2].RecordHash {
		t.Fatalf("expected last hash to match final record, got %s", last)
	}
}

func TestFileStoreSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.ndjson")

	store, err := NewFileStore(path, nil)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	chain := coreaudit.NewHashChain()
	rec, err := chain.Append(coreaudit.Record{ID: "ok", AgentID: "agent-1", Action: "act"})
	if err != nil {
		t.Fatalf("chain append: %v", err)
	}
	if err := store.Append(rec); err != nil {
		t.Fatalf("store append: %v", err)
	}
	store.Close()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, err := f.WriteString("{not valid json\n"); err != nil {
		t.Fatalf("write malformed line: %v", err)
	}
	f.Close()

	reopened, err := NewFileStore(path, nil)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer reopened.Close()

	records, err := reopened.All()
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected malformed line to be skipped, got %d records", len(records))
	}
}

func TestFileStoreLastHashOnEmptyFileIsGenesis(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.ndjson")

	store, err := NewFileStore(path, nil)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	defer store.Close()

	last, err := store.LastHash()
	if err != nil {
		t.Fatalf("last hash: %v", err)
	}
	if last != coreaudit.Genesis {
		t.Fatalf("expected genesis hash for empty file, got %s", last)
	}
}
