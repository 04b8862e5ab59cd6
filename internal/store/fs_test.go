package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadReadsManifest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := testManifest("audit-0001", "req-314", "2025-03-01T12:00:00Z", true)
	writePack(t, s, m)

	got, err := s.Load(ctx, "audit-0001")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if got.AuditID != m.AuditID || got.RequestID != m.RequestID || got.CreatedAt != m.CreatedAt {
		t.Errorf("Load() = %+v", got)
	}
	if !got.Verification.OK || got.Verification.Claims != 2 {
		t.Errorf("verification summary = %+v", got.Verification)
	}
}

func TestLoadMissingPack(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Load(context.Background(), "audit-none")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestLoadServesCachedManifest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := testManifest("audit-0001", "req-314", "2025-03-01T12:00:00Z", true)
	writePack(t, s, m)

	if _, err := s.Load(ctx, "audit-0001"); err != nil {
		t.Fatalf("first Load() failed: %v", err)
	}

	// Remove the pack behind the store's back; the cache still serves
	// the manifest until Delete or CopyIn invalidates it.
	if err := os.RemoveAll(s.Dir("audit-0001")); err != nil {
		t.Fatalf("RemoveAll() failed: %v", err)
	}

	got, err := s.Load(ctx, "audit-0001")
	if err != nil {
		t.Fatalf("cached Load() failed: %v", err)
	}
	if got.AuditID != "audit-0001" {
		t.Errorf("cached Load() = %+v", got)
	}
}

func TestLoadRejectsUnsafeIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"", ".", "..", "../escape", "a/b", `a\b`} {
		if _, err := s.Load(ctx, id); err == nil {
			t.Errorf("Load(%q) accepted an unsafe id", id)
		}
	}
}

func TestListOrdersNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	writePack(t, s, testManifest("audit-jan", "req-1", "2025-01-10T00:00:00Z", true))
	writePack(t, s, testManifest("audit-mar", "req-1", "2025-03-10T00:00:00Z", true))
	writePack(t, s, testManifest("audit-feb", "req-1", "2025-02-10T00:00:00Z", true))

	ids, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}

	want := []string{"audit-mar", "audit-feb", "audit-jan"}
	if len(ids) != len(want) {
		t.Fatalf("List() = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
}

func TestListSkipsUncommittedPacks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAudit(t, s, testManifest("audit-good", "req-1", "2025-03-01T12:00:00Z", true))

	// Half-written pack: directory exists, manifest never committed.
	if err := os.MkdirAll(s.Dir("audit-partial"), 0755); err != nil {
		t.Fatalf("MkdirAll() failed: %v", err)
	}
	// Corrupt pack: manifest is not JSON.
	if err := os.MkdirAll(s.Dir("audit-garbled"), 0755); err != nil {
		t.Fatalf("MkdirAll() failed: %v", err)
	}
	garbled := filepath.Join(s.Dir("audit-garbled"), "manifest.json")
	if err := os.WriteFile(garbled, []byte("{nope"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	ids, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "audit-good" {
		t.Errorf("List() = %v, want [audit-good]", ids)
	}
}

func TestDeleteRemovesPackRowAndCache(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedAudit(t, s, testManifest("audit-0001", "req-314", "2025-03-01T12:00:00Z", true))

	// Warm the cache so Delete has an entry to drop.
	if _, err := s.Load(ctx, "audit-0001"); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if err := s.Delete(ctx, "audit-0001"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}

	if _, err := os.Stat(s.Dir("audit-0001")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("pack directory still present: %v", err)
	}
	if _, err := s.Load(ctx, "audit-0001"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() after delete = %v, want ErrNotFound", err)
	}

	rows, err := s.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecent() failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("index still has %d rows after delete", len(rows))
	}
}

func TestDeleteAbsentAuditSucceeds(t *testing.T) {
	s := newTestStore(t)

	if err := s.Delete(context.Background(), "audit-none"); err != nil {
		t.Errorf("Delete() of absent audit failed: %v", err)
	}
}

func TestCopyInImportsPack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	external := t.TempDir()
	m := testManifest("audit-ext", "req-9", "2025-04-01T00:00:00Z", true)
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		t.Fatalf("marshal manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(external, "manifest.json"), data, 0644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(external, "verification"), 0755); err != nil {
		t.Fatalf("MkdirAll() failed: %v", err)
	}
	report := filepath.Join(external, "verification", "citation_report.json")
	if err := os.WriteFile(report, []byte("{}"), 0644); err != nil {
		t.Fatalf("write report: %v", err)
	}

	id, err := s.CopyIn(ctx, external)
	if err != nil {
		t.Fatalf("CopyIn() failed: %v", err)
	}
	if id != "audit-ext" {
		t.Errorf("CopyIn() id = %q, want audit-ext", id)
	}

	copied := filepath.Join(s.Dir(id), "verification", "citation_report.json")
	if _, err := os.Stat(copied); err != nil {
		t.Errorf("copied artifact missing: %v", err)
	}

	got, err := s.Load(ctx, id)
	if err != nil {
		t.Fatalf("Load() after import failed: %v", err)
	}
	if got.RequestID != "req-9" {
		t.Errorf("imported manifest request id = %q", got.RequestID)
	}

	rows, err := s.SearchByRequestID(ctx, "req-9")
	if err != nil {
		t.Fatalf("SearchByRequestID() failed: %v", err)
	}
	if len(rows) != 1 || rows[0].AuditID != "audit-ext" {
		t.Errorf("index rows = %+v", rows)
	}
}

func TestCopyInRejectsDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := testManifest("audit-dup", "req-9", "2025-04-01T00:00:00Z", true)
	seedAudit(t, s, m)

	external := t.TempDir()
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		t.Fatalf("marshal manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(external, "manifest.json"), data, 0644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	if _, err := s.CopyIn(ctx, external); err == nil {
		t.Fatal("CopyIn() accepted a duplicate audit id")
	}
}

func TestCopyInRejectsUnparseableManifest(t *testing.T) {
	s := newTestStore(t)

	external := t.TempDir()
	garbled := filepath.Join(external, "manifest.json")
	if err := os.WriteFile(garbled, []byte("{nope"), 0644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}

	if _, err := s.CopyIn(context.Background(), external); err == nil {
		t.Fatal("CopyIn() accepted an unparseable manifest")
	}
}

func TestCopyInRequiresManifest(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.CopyIn(context.Background(), t.TempDir()); err == nil {
		t.Fatal("CopyIn() accepted a directory with no manifest")
	}
}
