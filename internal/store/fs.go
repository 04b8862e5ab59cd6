package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	gocache "github.com/patrickmn/go-cache"

	"github.com/roach88/receipts/internal/audit"
	"github.com/roach88/receipts/internal/fact"
)

// ErrNotFound reports an audit id with no committed pack in the store.
var ErrNotFound = errors.New("audit pack not found")

// Dir returns the pack directory for an audit id.
func (s *Store) Dir(auditID string) string {
	return filepath.Join(s.root, auditID)
}

func validID(auditID string) error {
	if auditID == "" {
		return errors.New("empty audit id")
	}
	if strings.ContainsAny(auditID, "/\\") || auditID == "." || auditID == ".." {
		return fmt.Errorf("invalid audit id %q", auditID)
	}
	return nil
}

// Load reads the manifest for an audit id. Manifests are cached with a
// TTL: packs are immutable once committed, so a cached manifest can
// only go stale through Delete or CopyIn, which invalidate it.
func (s *Store) Load(ctx context.Context, auditID string) (fact.Manifest, error) {
	if err := validID(auditID); err != nil {
		return fact.Manifest{}, err
	}
	if v, found := s.cache.Get(auditID); found {
		return v.(fact.Manifest), nil
	}
	if err := ctx.Err(); err != nil {
		return fact.Manifest{}, err
	}

	data, err := os.ReadFile(filepath.Join(s.Dir(auditID), audit.ManifestName))
	if errors.Is(err, fs.ErrNotExist) {
		return fact.Manifest{}, fmt.Errorf("%w: %s", ErrNotFound, auditID)
	}
	if err != nil {
		return fact.Manifest{}, fmt.Errorf("load %s: %w", auditID, err)
	}

	var m fact.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return fact.Manifest{}, fmt.Errorf("load %s: manifest does not parse: %w", auditID, err)
	}

	s.cache.Set(auditID, m, gocache.DefaultExpiration)
	return m, nil
}

// List returns every committed audit id, newest first by manifest
// creation time. A directory without a parseable manifest is not
// listed: a pack only exists once its manifest is committed.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read store root: %w", err)
	}

	type listed struct {
		id      string
		created string
	}
	var packs []listed
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m, err := s.Load(ctx, e.Name())
		if err != nil {
			continue
		}
		packs = append(packs, listed{id: e.Name(), created: m.CreatedAt})
	}

	// RFC 3339 UTC timestamps sort lexically.
	sort.Slice(packs, func(i, j int) bool {
		if packs[i].created != packs[j].created {
			return packs[i].created > packs[j].created
		}
		return packs[i].id > packs[j].id
	})

	ids := make([]string, len(packs))
	for i, p := range packs {
		ids[i] = p.id
	}
	return ids, nil
}

// CopyIn imports an externally written pack: the manifest must parse
// and the audit id must be new to the store. The pack is copied under
// the root and its index row written. Returns the audit id.
func (s *Store) CopyIn(ctx context.Context, externalDir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(externalDir, audit.ManifestName))
	if err != nil {
		return "", fmt.Errorf("copy in: read manifest: %w", err)
	}
	var m fact.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return "", fmt.Errorf("copy in: manifest does not parse: %w", err)
	}
	if err := validID(m.AuditID); err != nil {
		return "", fmt.Errorf("copy in: %w", err)
	}

	target := s.Dir(m.AuditID)
	if _, err := os.Stat(target); err == nil {
		return "", fmt.Errorf("copy in: audit %s already in store", m.AuditID)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("copy in: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := audit.ExportDir(externalDir, target); err != nil {
		return "", fmt.Errorf("copy in: %w", err)
	}

	s.cache.Delete(m.AuditID)
	if err := s.Upsert(ctx, m); err != nil {
		return "", err
	}
	return m.AuditID, nil
}

// Delete removes an audit's pack directory, cache entry, and index
// row. Deleting an absent audit succeeds.
func (s *Store) Delete(ctx context.Context, auditID string) error {
	if err := validID(auditID); err != nil {
		return err
	}
	if err := os.RemoveAll(s.Dir(auditID)); err != nil {
		return fmt.Errorf("delete pack %s: %w", auditID, err)
	}
	s.cache.Delete(auditID)
	return s.deleteIndexRow(ctx, auditID)
}
