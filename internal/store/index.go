package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/receipts/internal/fact"
)

// IndexRow is the denormalized search row for one audit. It carries
// what listings and dashboards need without opening the pack.
type IndexRow struct {
	AuditID         string
	RequestID       string
	CreatedAt       string
	CodeVersion     string
	RegistryVersion string
	OK              bool
	Claims          int
	Matched         int
	Errors          int
	Warnings        int
	Sources         []string
	Digest          string
	KeyID           string
}

func rowFromManifest(m fact.Manifest) IndexRow {
	row := IndexRow{
		AuditID:         m.AuditID,
		RequestID:       m.RequestID,
		CreatedAt:       m.CreatedAt,
		CodeVersion:     m.CodeVersion,
		RegistryVersion: m.RegistryVersion,
		OK:              m.Verification.OK,
		Claims:          m.Verification.Claims,
		Matched:         m.Verification.Matched,
		Errors:          m.Verification.Errors,
		Warnings:        m.Verification.Warnings,
		Sources:         m.Sources,
		Digest:          m.Digest,
	}
	if m.Signature != nil {
		row.KeyID = m.Signature.KeyID
	}
	return row
}

// execer is the slice of *sql.DB and *sql.Tx the upsert needs, so the
// same statement serves both direct writes and Reindex transactions.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Upsert writes the manifest's index row. Idempotent: re-indexing the
// same audit id replaces the row in place.
func (s *Store) Upsert(ctx context.Context, m fact.Manifest) error {
	return upsertRow(ctx, s.db, m)
}

func upsertRow(ctx context.Context, db execer, m fact.Manifest) error {
	if m.AuditID == "" {
		return fmt.Errorf("upsert: manifest has no audit id")
	}
	row := rowFromManifest(m)

	_, err := db.ExecContext(ctx, `
		INSERT INTO audits
		(audit_id, request_id, created_at, code_version, registry_version,
		 ok, claims, matched, errors, warnings, sources, digest, key_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(audit_id) DO UPDATE SET
			request_id       = excluded.request_id,
			created_at       = excluded.created_at,
			code_version     = excluded.code_version,
			registry_version = excluded.registry_version,
			ok               = excluded.ok,
			claims           = excluded.claims,
			matched          = excluded.matched,
			errors           = excluded.errors,
			warnings         = excluded.warnings,
			sources          = excluded.sources,
			digest           = excluded.digest,
			key_id           = excluded.key_id
	`,
		row.AuditID,
		row.RequestID,
		row.CreatedAt,
		row.CodeVersion,
		row.RegistryVersion,
		boolToInt(row.OK),
		row.Claims,
		row.Matched,
		row.Errors,
		row.Warnings,
		strings.Join(row.Sources, ","),
		row.Digest,
		row.KeyID,
	)
	if err != nil {
		return fmt.Errorf("upsert audit %s: %w", row.AuditID, err)
	}
	return nil
}

// deleteIndexRow removes the index row for an audit id. Removing an
// absent row succeeds.
func (s *Store) deleteIndexRow(ctx context.Context, auditID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM audits WHERE audit_id = ?`, auditID); err != nil {
		return fmt.Errorf("delete index row %s: %w", auditID, err)
	}
	return nil
}

const indexColumns = `audit_id, request_id, created_at, code_version, registry_version,
	ok, claims, matched, errors, warnings, sources, digest, key_id`

func scanIndexRow(rows *sql.Rows) (IndexRow, error) {
	var row IndexRow
	var ok int
	var sources string

	if err := rows.Scan(
		&row.AuditID, &row.RequestID, &row.CreatedAt, &row.CodeVersion, &row.RegistryVersion,
		&ok, &row.Claims, &row.Matched, &row.Errors, &row.Warnings,
		&sources, &row.Digest, &row.KeyID,
	); err != nil {
		return IndexRow{}, fmt.Errorf("scan audit row: %w", err)
	}

	row.OK = ok != 0
	if sources != "" {
		row.Sources = strings.Split(sources, ",")
	}
	return row, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
