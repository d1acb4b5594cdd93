package history

import (
	"path/filepath"
	"testing"
)

func newStore(t *testing.T, keep int) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "history.db"), keep)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndRecent(t *testing.T) {
	store := newStore(t, 0)

	store.Record("REPL", "1 + 2", true, "3")
	store.Record("File", `include("script.jl")`, false, "")

	entries, err := store.Recent(10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	byKind := map[string]Entry{}
	for _, e := range entries {
		byKind[e.Kind] = e
	}
	if e := byKind["REPL"]; !e.OK || e.Value != "3" || e.Code != "1 + 2" {
		t.Errorf("unexpected REPL entry: %+v", e)
	}
	if e := byKind["File"]; e.OK {
		t.Errorf("expected failed File entry: %+v", e)
	}
}

func TestRecentLimit(t *testing.T) {
	store := newStore(t, 0)
	for i := 0; i < 5; i++ {
		store.Record("REPL", "x", true, "")
	}

	entries, err := store.Recent(3)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("expected 3 entries, got %d", len(entries))
	}
}

func TestPrune(t *testing.T) {
	store := newStore(t, 2)
	for i := 0; i < 5; i++ {
		store.Record("REPL", "x", true, "")
	}

	if err := store.Prune(); err != nil {
		t.Fatalf("Prune failed: %v", err)
	}

	entries, err := store.Recent(10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 entries after prune, got %d", len(entries))
	}
}
