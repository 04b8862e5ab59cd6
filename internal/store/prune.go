package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/roach88/receipts/internal/fact"
)

// Prune removes every audit created before the cutoff. The pack
// directory goes first; the index row follows best-effort, so a failed
// row delete is logged and retried by the next run rather than
// blocking the sweep. Index rows whose packs are already gone (a
// crash between the two deletes) are swept too, so repeated runs
// converge. Packs with unparseable creation times are never removed.
//
// Returns the pruned audit ids in ascending order.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) ([]string, error) {
	pruned := make(map[string]bool)

	ids, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return sortedKeys(pruned), err
		}
		m, err := s.Load(ctx, id)
		if err != nil {
			continue
		}
		created, err := time.Parse(time.RFC3339, m.CreatedAt)
		if err != nil {
			slog.Warn("prune skipping pack with unparseable creation time",
				"audit_id", id, "created_at", m.CreatedAt)
			continue
		}
		if !created.Before(cutoff) {
			continue
		}

		if err := os.RemoveAll(s.Dir(id)); err != nil {
			return sortedKeys(pruned), fmt.Errorf("prune %s: %w", id, err)
		}
		s.cache.Delete(id)
		if err := s.deleteIndexRow(ctx, id); err != nil {
			slog.Warn("prune index delete failed, next run retries",
				"audit_id", id, "error", err)
		}
		pruned[id] = true
	}

	orphans, err := s.staleIndexIDs(ctx, cutoff)
	if err != nil {
		return sortedKeys(pruned), err
	}
	for _, id := range orphans {
		if pruned[id] {
			continue
		}
		if _, err := os.Stat(s.Dir(id)); !errors.Is(err, fs.ErrNotExist) {
			// Pack still on disk, or unknowable. Reindex owns that case.
			continue
		}
		if err := s.deleteIndexRow(ctx, id); err != nil {
			slog.Warn("prune index delete failed, next run retries",
				"audit_id", id, "error", err)
			continue
		}
		s.cache.Delete(id)
		pruned[id] = true
	}

	out := sortedKeys(pruned)
	slog.Info("pruned audits", "cutoff", cutoff.UTC().Format(time.RFC3339), "removed", len(out))
	return out, nil
}

// staleIndexIDs returns index rows created before the cutoff. Rows
// with unparseable timestamps are skipped, matching the pack sweep.
func (s *Store) staleIndexIDs(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT audit_id, created_at FROM audits`)
	if err != nil {
		return nil, fmt.Errorf("query index rows: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id, created string
		if err := rows.Scan(&id, &created); err != nil {
			return nil, fmt.Errorf("scan index row: %w", err)
		}
		t, err := time.Parse(time.RFC3339, created)
		if err != nil {
			continue
		}
		if t.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate index rows: %w", err)
	}
	return ids, nil
}

// Reindex rebuilds the index from the packs on disk. Existing rows are
// dropped first: the packs are the source of truth, index rows with no
// pack do not survive a rebuild.
//
// Returns the number of audits indexed.
func (s *Store) Reindex(ctx context.Context) (int, error) {
	ids, err := s.List(ctx)
	if err != nil {
		return 0, err
	}
	// Manifests load before the transaction opens: with a single
	// connection, a query inside the transaction would deadlock.
	manifests := make([]fact.Manifest, 0, len(ids))
	for _, id := range ids {
		m, err := s.Load(ctx, id)
		if err != nil {
			continue
		}
		manifests = append(manifests, m)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("reindex: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM audits`); err != nil {
		return 0, fmt.Errorf("reindex: clear index: %w", err)
	}

	count := 0
	for _, m := range manifests {
		if err := upsertRow(ctx, tx, m); err != nil {
			return 0, fmt.Errorf("reindex %s: %w", m.AuditID, err)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("reindex: commit: %w", err)
	}

	slog.Info("reindexed audits", "count", count)
	return count, nil
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
