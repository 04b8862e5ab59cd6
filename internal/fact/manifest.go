package fact

import "fmt"

// PackFile indexes one artifact inside an audit pack.
type PackFile struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	Bytes  int64  `json:"bytes"`
}

// Signature is an HMAC-SHA256 over the manifest's canonical form,
// identified by the signing key id.
type Signature struct {
	KeyID string `json:"key_id"`
	MAC   string `json:"mac"`
}

// Repro carries what a reader needs to reproduce the verification run:
// a shell snippet tied to the exact reference ids and registry version,
// and a digest of the orchestration parameters.
type Repro struct {
	Snippet    string `json:"snippet"`
	ParamsHash string `json:"params_hash"`
}

// Manifest is the immutable audit record of one publication. It is
// assembled by the audit builder and must not be mutated once written:
// the digest covers every field except Digest and Signature, so any
// post-commit edit is tamper-evident.
type Manifest struct {
	AuditID         string `json:"audit_id"`
	CreatedAt       string `json:"created_at"` // RFC 3339, UTC
	RequestID       string `json:"request_id"`
	CodeVersion     string `json:"code_version"`
	RegistryVersion string `json:"registry_version"`

	// Sources and ReferenceIDs are deduplicated and sorted.
	Sources      []string `json:"sources"`
	ReferenceIDs []string `json:"reference_ids"`

	// SourceFreshness snapshots freshness per source label.
	SourceFreshness map[string]Freshness `json:"source_freshness,omitempty"`

	Citation     CitationReport      `json:"citation"`
	Verification VerificationSummary `json:"verification"`

	// Metadata is free-form orchestration context (routing, agents,
	// timings, parameters) recorded as strings.
	Metadata map[string]string `json:"metadata,omitempty"`

	// Excerpts holds redacted fragments of the leading uncited-claim
	// issues. Raw narrative text never appears here.
	Excerpts []string `json:"excerpts,omitempty"`

	Repro Repro      `json:"repro"`
	Files []PackFile `json:"files"`

	Digest    string     `json:"digest"`
	Signature *Signature `json:"signature,omitempty"`
}

// canonicalMap renders every digest-covered field. Digest and Signature
// are excluded so the digest can be recomputed from a loaded manifest.
func (m Manifest) canonicalMap() map[string]any {
	out := map[string]any{
		"audit_id":         m.AuditID,
		"created_at":       m.CreatedAt,
		"request_id":       m.RequestID,
		"code_version":     m.CodeVersion,
		"registry_version": m.RegistryVersion,
		"sources":          m.Sources,
		"reference_ids":    m.ReferenceIDs,
		"citation":         m.Citation.canonicalMap(),
		"verification":     m.Verification.canonicalMap(),
		"repro": map[string]any{
			"snippet":     m.Repro.Snippet,
			"params_hash": m.Repro.ParamsHash,
		},
	}

	if len(m.SourceFreshness) > 0 {
		fresh := make(map[string]any, len(m.SourceFreshness))
		for src, f := range m.SourceFreshness {
			fm := map[string]any{"as_of": f.AsOf}
			if f.UpdatedAt != "" {
				fm["updated_at"] = f.UpdatedAt
			}
			fresh[src] = fm
		}
		out["source_freshness"] = fresh
	}
	if len(m.Metadata) > 0 {
		out["metadata"] = m.Metadata
	}
	if len(m.Excerpts) > 0 {
		out["excerpts"] = m.Excerpts
	}

	files := make([]any, len(m.Files))
	for i, f := range m.Files {
		files[i] = map[string]any{
			"path":   f.Path,
			"sha256": f.SHA256,
			"bytes":  f.Bytes,
		}
	}
	out["files"] = files

	return out
}

// CanonicalBytes returns the RFC 8785 canonical JSON of every field the
// digest covers. This is the digest input AND the HMAC signing input;
// both paths must serialize identically or verification breaks.
func (m Manifest) CanonicalBytes() ([]byte, error) {
	b, err := MarshalCanonical(m.canonicalMap())
	if err != nil {
		return nil, fmt.Errorf("manifest canonical form: %w", err)
	}
	return b, nil
}

// ComputeDigest recomputes the manifest digest from its canonical form.
// Writers store the result in Digest; verifiers compare against it.
func (m Manifest) ComputeDigest() (string, error) {
	canonical, err := m.CanonicalBytes()
	if err != nil {
		return "", err
	}
	return DigestBytes(DomainManifest, canonical), nil
}
