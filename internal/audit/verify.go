package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/roach88/receipts/internal/fact"
)

// VerifyResult reports pack integrity. Problems are tamper evidence or
// missing artifacts; Notes record checks that could not run, such as a
// signature with no key to verify it. A pack is Clean when it has no
// problems, whatever its notes.
type VerifyResult struct {
	Clean    bool
	Problems []string
	Notes    []string
}

// VerifyPack re-derives the manifest digest, checks the signature when
// a key is held, and rehashes every indexed file. Files on disk that
// the index does not cover are problems too: a pack is exactly its
// manifest's file list.
func (b *Builder) VerifyPack(ctx context.Context, dir string) (VerifyResult, error) {
	res, err := b.verifyPack(ctx, dir)
	if err != nil {
		return VerifyResult{}, err
	}
	res.Clean = len(res.Problems) == 0
	return res, nil
}

func (b *Builder) verifyPack(ctx context.Context, dir string) (VerifyResult, error) {
	var res VerifyResult

	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if errors.Is(err, fs.ErrNotExist) {
		res.Problems = append(res.Problems, "manifest.json missing: pack was never committed or has been stripped")
		return res, nil
	}
	if err != nil {
		res.Problems = append(res.Problems, fmt.Sprintf("manifest.json unreadable: %v", err))
		return res, nil
	}

	var m fact.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		res.Problems = append(res.Problems, fmt.Sprintf("manifest.json does not parse: %v", err))
		return res, nil
	}

	canonical, err := m.CanonicalBytes()
	if err != nil {
		res.Problems = append(res.Problems, fmt.Sprintf("manifest canonical form: %v", err))
		return res, nil
	}
	if fact.DigestBytes(fact.DomainManifest, canonical) != m.Digest {
		res.Problems = append(res.Problems, "manifest digest mismatch: a covered field changed after commit")
	}

	switch {
	case m.Signature != nil:
		if err := b.ring.Verify(m.Signature, canonical); err != nil {
			if errors.Is(err, ErrUnknownKey) {
				res.Notes = append(res.Notes, fmt.Sprintf("signature present, no key to check it (key id %q)", m.Signature.KeyID))
			} else {
				res.Problems = append(res.Problems, fmt.Sprintf("signature check failed: %v", err))
			}
		}
	case b.ring.CanSign():
		res.Notes = append(res.Notes, "manifest is unsigned but a signing key is configured")
	}

	indexed := make(map[string]bool, len(m.Files))
	for _, f := range m.Files {
		if err := ctx.Err(); err != nil {
			return VerifyResult{}, fmt.Errorf("pack verification cancelled: %w", err)
		}
		indexed[f.Path] = true
		content, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(f.Path)))
		if errors.Is(err, fs.ErrNotExist) {
			res.Problems = append(res.Problems, fmt.Sprintf("indexed file missing: %s", f.Path))
			continue
		}
		if err != nil {
			res.Problems = append(res.Problems, fmt.Sprintf("indexed file unreadable: %s: %v", f.Path, err))
			continue
		}
		sum := sha256.Sum256(content)
		if hex.EncodeToString(sum[:]) != f.SHA256 {
			res.Problems = append(res.Problems, fmt.Sprintf("content hash mismatch: %s", f.Path))
		}
	}

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == ManifestName || indexed[rel] {
			return nil
		}
		res.Problems = append(res.Problems, fmt.Sprintf("file not in manifest index: %s", rel))
		return nil
	})
	if walkErr != nil {
		if errors.Is(walkErr, context.Canceled) || errors.Is(walkErr, context.DeadlineExceeded) {
			return VerifyResult{}, fmt.Errorf("pack verification cancelled: %w", walkErr)
		}
		res.Problems = append(res.Problems, fmt.Sprintf("pack walk failed: %v", walkErr))
	}

	return res, nil
}
