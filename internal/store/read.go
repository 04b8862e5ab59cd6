package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ListRecent returns up to n index rows, newest first. Ordering is
// deterministic: created_at descending, audit id descending as the
// tie-break.
//
// Returns an empty slice (not nil) when the index is empty or n <= 0.
func (s *Store) ListRecent(ctx context.Context, n int) ([]IndexRow, error) {
	if n <= 0 {
		return []IndexRow{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+indexColumns+`
		FROM audits
		ORDER BY created_at DESC, audit_id COLLATE BINARY DESC
		LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("query recent audits: %w", err)
	}
	return collectRows(rows)
}

// SearchByRequestID returns every audit recorded for a request id,
// newest first. Retried requests produce one row per attempt.
func (s *Store) SearchByRequestID(ctx context.Context, requestID string) ([]IndexRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+indexColumns+`
		FROM audits
		WHERE request_id = ?
		ORDER BY created_at DESC, audit_id COLLATE BINARY DESC
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("query audits for request %s: %w", requestID, err)
	}
	return collectRows(rows)
}

// ListFailedVerifications returns every audit whose verification
// failed, newest first.
func (s *Store) ListFailedVerifications(ctx context.Context) ([]IndexRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+indexColumns+`
		FROM audits
		WHERE ok = 0
		ORDER BY created_at DESC, audit_id COLLATE BINARY DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query failed audits: %w", err)
	}
	return collectRows(rows)
}

func collectRows(rows *sql.Rows) ([]IndexRow, error) {
	defer rows.Close()

	out := []IndexRow{}
	for rows.Next() {
		row, err := scanIndexRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit rows: %w", err)
	}
	return out, nil
}
