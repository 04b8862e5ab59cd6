package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/roach88/receipts/internal/fact"
)

// newTestStore opens a store rooted in a fresh temp dir with the index
// database inside the root, the default deployment layout.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()
	s, err := Open(root, filepath.Join(root, "index.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// testManifest builds a minimal manifest the way a committed pack
// carries it.
func testManifest(auditID, requestID, createdAt string, ok bool) fact.Manifest {
	m := fact.Manifest{
		AuditID:         auditID,
		RequestID:       requestID,
		CreatedAt:       createdAt,
		CodeVersion:     fact.EngineVersion,
		RegistryVersion: "registry-v7",
		Sources:         []string{"LMIS"},
		ReferenceIDs:    []string{"lmis_ret_001"},
		Citation:        fact.CitationReport{Total: 2, Cited: 2, OK: true},
		Verification:    fact.VerificationSummary{OK: ok, Claims: 2, Matched: 2},
	}
	if !ok {
		m.Verification.Matched = 1
		m.Verification.Errors = 1
	}
	return m
}

// writePack writes a pack directory holding just the manifest, which
// is all the store reads from disk.
func writePack(t *testing.T, s *Store, m fact.Manifest) {
	t.Helper()
	dir := s.Dir(m.AuditID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll() failed: %v", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		t.Fatalf("marshal manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), data, 0644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
}

// seedAudit writes the pack and its index row.
func seedAudit(t *testing.T, s *Store, m fact.Manifest) {
	t.Helper()
	writePack(t, s, m)
	if err := s.Upsert(context.Background(), m); err != nil {
		t.Fatalf("Upsert() failed: %v", err)
	}
}
