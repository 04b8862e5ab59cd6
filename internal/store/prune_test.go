package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

func TestPruneRemovesOlderPacks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAudit(t, s, testManifest("audit-jan", "req-1", "2025-01-10T00:00:00Z", true))
	seedAudit(t, s, testManifest("audit-feb", "req-2", "2025-02-10T00:00:00Z", true))
	seedAudit(t, s, testManifest("audit-mar", "req-3", "2025-03-10T00:00:00Z", true))

	cutoff := time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC)
	pruned, err := s.Prune(ctx, cutoff)
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}

	want := []string{"audit-feb", "audit-jan"}
	if len(pruned) != len(want) {
		t.Fatalf("pruned = %v, want %v", pruned, want)
	}
	for i := range want {
		if pruned[i] != want[i] {
			t.Errorf("pruned[%d] = %q, want %q", i, pruned[i], want[i])
		}
	}

	for _, id := range want {
		if _, err := os.Stat(s.Dir(id)); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("pack %s still on disk", id)
		}
		if _, err := s.Load(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Errorf("Load(%s) after prune = %v, want ErrNotFound", id, err)
		}
	}

	rows, err := s.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecent() failed: %v", err)
	}
	if len(rows) != 1 || rows[0].AuditID != "audit-mar" {
		t.Errorf("surviving rows = %+v", rows)
	}
	if _, err := s.Load(ctx, "audit-mar"); err != nil {
		t.Errorf("surviving pack unreadable: %v", err)
	}
}

func TestPruneIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAudit(t, s, testManifest("audit-jan", "req-1", "2025-01-10T00:00:00Z", true))
	seedAudit(t, s, testManifest("audit-mar", "req-3", "2025-03-10T00:00:00Z", true))

	cutoff := time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC)
	first, err := s.Prune(ctx, cutoff)
	if err != nil {
		t.Fatalf("first Prune() failed: %v", err)
	}
	if len(first) != 1 || first[0] != "audit-jan" {
		t.Fatalf("first Prune() = %v, want [audit-jan]", first)
	}

	second, err := s.Prune(ctx, cutoff)
	if err != nil {
		t.Fatalf("second Prune() failed: %v", err)
	}
	if len(second) != 0 {
		t.Errorf("second Prune() = %v, want nothing", second)
	}
}

func TestPruneCutoffIsExclusive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAudit(t, s, testManifest("audit-edge", "req-1", "2025-02-15T00:00:00Z", true))

	pruned, err := s.Prune(ctx, time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	if len(pruned) != 0 {
		t.Errorf("pack created at the cutoff was pruned: %v", pruned)
	}
}

func TestPruneSweepsOrphanedIndexRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Row without a pack: the residue of a crash between the
	// filesystem delete and the index delete.
	m := testManifest("audit-ghost", "req-1", "2025-01-10T00:00:00Z", true)
	if err := s.Upsert(ctx, m); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}

	pruned, err := s.Prune(ctx, time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	if len(pruned) != 1 || pruned[0] != "audit-ghost" {
		t.Errorf("pruned = %v, want [audit-ghost]", pruned)
	}

	rows, err := s.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecent() failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("orphaned row survived: %+v", rows)
	}
}

func TestPruneKeepsUndatablePacks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAudit(t, s, testManifest("audit-odd", "req-1", "yesterday", true))

	pruned, err := s.Prune(ctx, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	if len(pruned) != 0 {
		t.Errorf("undatable pack was pruned: %v", pruned)
	}
	if _, err := os.Stat(s.Dir("audit-odd")); err != nil {
		t.Errorf("undatable pack removed from disk: %v", err)
	}

	rows, err := s.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecent() failed: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("undatable row removed from index: %+v", rows)
	}
}

func TestReindexRebuildsFromPacks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAudit(t, s, testManifest("audit-jan", "req-1", "2025-01-10T00:00:00Z", true))
	seedAudit(t, s, testManifest("audit-feb", "req-2", "2025-02-10T00:00:00Z", false))

	// Wreck the index: drop one row, plant one with no pack behind it.
	if _, err := s.db.Exec(`DELETE FROM audits WHERE audit_id = 'audit-jan'`); err != nil {
		t.Fatalf("drop row: %v", err)
	}
	ghost := testManifest("audit-ghost", "req-9", "2025-03-10T00:00:00Z", true)
	if err := s.Upsert(ctx, ghost); err != nil {
		t.Fatalf("plant row: %v", err)
	}

	count, err := s.Reindex(ctx)
	if err != nil {
		t.Fatalf("Reindex() failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Reindex() count = %d, want 2", count)
	}

	rows, err := s.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecent() failed: %v", err)
	}
	if len(rows) != 2 || rows[0].AuditID != "audit-feb" || rows[1].AuditID != "audit-jan" {
		t.Errorf("rebuilt rows = %+v", rows)
	}
}

func TestReindexEmptyStore(t *testing.T) {
	s := newTestStore(t)

	count, err := s.Reindex(context.Background())
	if err != nil {
		t.Fatalf("Reindex() failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Reindex() count = %d, want 0", count)
	}
}
