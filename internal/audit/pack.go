package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/roach88/receipts/internal/fact"
	"github.com/roach88/receipts/internal/mathcheck"
)

// ManifestName is the manifest filename inside every pack directory.
const ManifestName = "manifest.json"

// verificationReport is the full verification outcome written alongside
// the manifest's summary.
type verificationReport struct {
	Summary  fact.VerificationSummary `json:"summary"`
	Issues   []fact.Issue             `json:"issues"`
	Bindings []fact.ClaimBinding      `json:"bindings"`
	Checks   []mathcheck.Check        `json:"checks"`
}

// sourceDescriptor summarizes one consulted dataset.
type sourceDescriptor struct {
	Source       string         `json:"source"`
	DatasetID    string         `json:"dataset_id"`
	Locator      string         `json:"locator,omitempty"`
	Fields       []string       `json:"field_list,omitempty"`
	Freshness    fact.Freshness `json:"freshness"`
	ReferenceIDs []string       `json:"reference_ids,omitempty"`
}

// replayStub pins the inputs a replay run needs.
type replayStub struct {
	RequestID       string            `json:"request_id"`
	ReferenceIDs    []string          `json:"reference_ids"`
	RegistryVersion string            `json:"registry_version"`
	Params          map[string]string `json:"params,omitempty"`
}

// Write lays the pack down under root/<audit id>: narrative, repro
// script, evidence and source extracts, verification reports, then the
// manifest. Every artifact is hashed into the manifest's file index
// before the digest and signature are computed, and the manifest itself
// is committed last via rename, so a pack with a manifest on disk is a
// complete pack. Returns the pack directory.
func (b *Builder) Write(ctx context.Context, root string, m fact.Manifest, in GenerateInput) (string, error) {
	if m.AuditID == "" {
		return "", errors.New("manifest has no audit id")
	}
	dir := filepath.Join(root, m.AuditID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create pack dir: %w", err)
	}

	w := &packWriter{dir: dir}

	if err := w.put(ctx, "narrative.md", []byte(in.Result.RedactedNarrative), 0644); err != nil {
		return "", err
	}
	if err := w.put(ctx, "reproduce.sh", []byte("#!/bin/sh\n"+m.Repro.Snippet+"\n"), 0755); err != nil {
		return "", err
	}
	if err := w.writeEvidence(ctx, in.Records); err != nil {
		return "", err
	}
	if err := w.writeSources(ctx, in.Records); err != nil {
		return "", err
	}
	if err := w.putJSON(ctx, "verification/citation_report.json", in.Result.Citation); err != nil {
		return "", err
	}
	report := verificationReport{
		Summary:  in.Result.Summary,
		Issues:   in.Result.Issues,
		Bindings: in.Result.Bindings,
		Checks:   in.Result.Checks,
	}
	if err := w.putJSON(ctx, "verification/verification_report.json", report); err != nil {
		return "", err
	}
	if in.Replay {
		stub := replayStub{
			RequestID:       in.RequestID,
			ReferenceIDs:    m.ReferenceIDs,
			RegistryVersion: in.RegistryVersion,
			Params:          in.Params,
		}
		if err := w.putJSON(ctx, "replay.json", stub); err != nil {
			return "", err
		}
	}

	sort.Slice(w.files, func(i, j int) bool { return w.files[i].Path < w.files[j].Path })
	m.Files = w.files

	digest, err := m.ComputeDigest()
	if err != nil {
		return "", fmt.Errorf("manifest digest: %w", err)
	}
	m.Digest = digest

	if b.ring.CanSign() {
		canonical, err := m.CanonicalBytes()
		if err != nil {
			return "", err
		}
		m.Signature = b.ring.Sign(canonical)
	}

	if err := commitManifest(dir, m); err != nil {
		return "", err
	}
	return dir, nil
}

// packWriter writes artifacts under one pack directory and accumulates
// their file index entries.
type packWriter struct {
	dir   string
	files []fact.PackFile
}

func (w *packWriter) put(ctx context.Context, relPath string, data []byte, mode os.FileMode) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("pack write cancelled before %s: %w", relPath, err)
	}
	abs := filepath.Join(w.dir, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return fmt.Errorf("create dir for %s: %w", relPath, err)
	}
	if err := os.WriteFile(abs, data, mode); err != nil {
		return fmt.Errorf("write %s: %w", relPath, err)
	}
	sum := sha256.Sum256(data)
	w.files = append(w.files, fact.PackFile{
		Path:   relPath,
		SHA256: hex.EncodeToString(sum[:]),
		Bytes:  int64(len(data)),
	})
	return nil
}

func (w *packWriter) putJSON(ctx context.Context, relPath string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", relPath, err)
	}
	return w.put(ctx, relPath, data, 0644)
}

// writeEvidence writes one extract per reference-id-bearing record.
// Duplicate ids get numeric suffixes; nothing is ever overwritten.
func (w *packWriter) writeEvidence(ctx context.Context, records []fact.StructuredRecord) error {
	taken := make(map[string]bool)
	for i := range records {
		if records[i].RefID == "" {
			continue
		}
		name := uniqueName(taken, safeName(records[i].RefID))
		if err := w.putJSON(ctx, "evidence/"+name+".json", records[i]); err != nil {
			return err
		}
	}
	return nil
}

// writeSources writes one descriptor per distinct (dataset id, locator)
// pair, in first-seen order, listing the reference ids drawn from it.
func (w *packWriter) writeSources(ctx context.Context, records []fact.StructuredRecord) error {
	type datasetKey struct{ dataset, locator string }
	seen := make(map[datasetKey]*sourceDescriptor)
	var order []datasetKey
	for i := range records {
		p := records[i].Provenance
		k := datasetKey{p.DatasetID, p.Locator}
		d, ok := seen[k]
		if !ok {
			d = &sourceDescriptor{
				Source:    p.Source,
				DatasetID: p.DatasetID,
				Locator:   p.Locator,
				Fields:    p.Fields,
				Freshness: records[i].Freshness,
			}
			seen[k] = d
			order = append(order, k)
		}
		if id := records[i].RefID; id != "" {
			d.ReferenceIDs = append(d.ReferenceIDs, id)
		}
	}

	taken := make(map[string]bool)
	for _, k := range order {
		d := seen[k]
		d.ReferenceIDs = sortedDistinct(d.ReferenceIDs)
		base := d.DatasetID
		if base == "" {
			base = d.Source
		}
		name := uniqueName(taken, safeName(base))
		if err := w.putJSON(ctx, "sources/"+name+".json", d); err != nil {
			return err
		}
	}
	return nil
}

// commitManifest writes the manifest through a temp file and renames it
// into place, so readers never observe a partial manifest.
func commitManifest(dir string, m fact.Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "manifest-*.tmp")
	if err != nil {
		return fmt.Errorf("manifest temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close manifest: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, ManifestName)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("commit manifest: %w", err)
	}
	return nil
}

// safeName maps an identifier to a filesystem-safe lowercase name.
func safeName(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			sb.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			sb.WriteRune(r + ('a' - 'A'))
		default:
			sb.WriteRune('_')
		}
	}
	if sb.Len() == 0 {
		return "unnamed"
	}
	return sb.String()
}

// uniqueName claims base, or base_01, base_02, ... on collision.
func uniqueName(taken map[string]bool, base string) string {
	name := base
	for i := 1; taken[name]; i++ {
		name = fmt.Sprintf("%s_%02d", base, i)
	}
	taken[name] = true
	return name
}

func sortedDistinct(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	sort.Strings(in)
	out := in[:1]
	for _, s := range in[1:] {
		if s != out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out
}
