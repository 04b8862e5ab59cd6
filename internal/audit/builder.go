// Package audit assembles tamper-evident audit packs from verification
// results: a manifest with a canonical-JSON digest and optional HMAC
// signature, plus the evidence, source, and report artifacts the
// manifest indexes. Packs are immutable once their manifest is written.
package audit

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/roach88/receipts/internal/citation"
	"github.com/roach88/receipts/internal/fact"
	"github.com/roach88/receipts/internal/guard"
	"github.com/roach88/receipts/internal/policy"
	"github.com/roach88/receipts/internal/verify"
)

const (
	maxExcerpts   = 3
	maxExcerptLen = 160
)

// Builder generates manifests and writes packs. Construct once per
// deployment; safe for concurrent use.
type Builder struct {
	clock    Clock
	ids      IDGenerator
	ring     *Keyring
	redactor *guard.Redactor
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithClock substitutes the manifest timestamp source.
func WithClock(c Clock) BuilderOption {
	return func(b *Builder) { b.clock = c }
}

// WithIDs substitutes the audit id generator.
func WithIDs(g IDGenerator) BuilderOption {
	return func(b *Builder) { b.ids = g }
}

// WithKeyring sets the signing/verification keys.
func WithKeyring(k *Keyring) BuilderOption {
	return func(b *Builder) { b.ring = k }
}

// NewBuilder constructs a builder under the given policy. The policy's
// privacy rules drive excerpt redaction; its citation labels are kept
// out of name redaction.
func NewBuilder(p policy.Policy, opts ...BuilderOption) *Builder {
	keep := make([]string, 0, len(p.Citation.AllowedPrefixes)+len(p.Citation.Synonyms))
	keep = append(keep, p.Citation.AllowedPrefixes...)
	for alias := range p.Citation.Synonyms {
		keep = append(keep, alias)
	}

	b := &Builder{
		clock:    SystemClock{},
		ids:      UUIDv7Generator{},
		ring:     NewKeyring(),
		redactor: guard.NewRedactor(p.Privacy, keep),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// GenerateInput carries everything one audit record covers.
type GenerateInput struct {
	RequestID       string
	RegistryVersion string

	// Result is the completed verification outcome being audited.
	Result verify.Result

	// Records are the structured sources the verification consulted.
	Records []fact.StructuredRecord

	// Metadata is free-form orchestration context recorded verbatim.
	Metadata map[string]string

	// Params are the orchestration parameters whose canonical digest
	// becomes the manifest's params hash.
	Params map[string]string

	// Replay requests a replay stub in the written pack.
	Replay bool
}

// Generate builds the manifest for one publication: deduplicated
// sorted source and reference lists, per-source freshness, redacted
// excerpts of the leading uncited-claim issues, and a reproducibility
// snippet tied to the exact reference ids and registry version.
//
// The returned manifest carries no file index, digest, or signature;
// Write fills those.
func (b *Builder) Generate(in GenerateInput) (fact.Manifest, error) {
	sources, refs := sourceLists(in.Records)

	paramsHash, err := fact.Digest(fact.DomainParams, paramsFor(in))
	if err != nil {
		return fact.Manifest{}, fmt.Errorf("params hash: %w", err)
	}

	m := fact.Manifest{
		AuditID:         b.ids.Generate(),
		CreatedAt:       b.clock.Now().UTC().Format(time.RFC3339),
		RequestID:       in.RequestID,
		CodeVersion:     fact.EngineVersion,
		RegistryVersion: in.RegistryVersion,
		Sources:         sources,
		ReferenceIDs:    refs,
		SourceFreshness: freshnessBySource(in.Records),
		Citation:        in.Result.Citation,
		Verification:    in.Result.Summary,
		Metadata:        copyMap(in.Metadata),
		Excerpts:        b.excerpts(in.Result.Issues),
		Repro: fact.Repro{
			Snippet:    reproSnippet(refs, in.RegistryVersion),
			ParamsHash: paramsHash,
		},
	}
	return m, nil
}

// sourceLists returns the distinct source labels and reference ids,
// each sorted.
func sourceLists(records []fact.StructuredRecord) (sources, refs []string) {
	srcSet := make(map[string]bool)
	refSet := make(map[string]bool)
	for i := range records {
		if s := records[i].Provenance.Source; s != "" {
			srcSet[s] = true
		}
		if id := records[i].RefID; id != "" {
			refSet[id] = true
		}
	}
	for s := range srcSet {
		sources = append(sources, s)
	}
	for id := range refSet {
		refs = append(refs, id)
	}
	sort.Strings(sources)
	sort.Strings(refs)
	return sources, refs
}

// freshnessBySource snapshots each source label's freshness. The first
// record carrying any freshness wins per label, so record order stays
// authoritative.
func freshnessBySource(records []fact.StructuredRecord) map[string]fact.Freshness {
	out := make(map[string]fact.Freshness)
	for i := range records {
		src := records[i].Provenance.Source
		f := records[i].Freshness
		if src == "" || (f.AsOf == "" && f.UpdatedAt == "") {
			continue
		}
		if _, ok := out[src]; !ok {
			out[src] = f
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// excerpts renders the leading uncited-claim issues through privacy
// redaction. Raw narrative text never reaches the manifest.
func (b *Builder) excerpts(issues []fact.Issue) []string {
	var out []string
	for _, is := range issues {
		if is.Code != citation.CodeUncited {
			continue
		}
		text := is.Details["sentence"]
		if text == "" {
			text = is.Message
		}
		redacted, _ := b.redactor.Redact(text, "")
		out = append(out, truncate(redacted, maxExcerptLen))
		if len(out) == maxExcerpts {
			break
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func utf8RuneStart(b byte) bool { return b&0xC0 != 0x80 }

// reproSnippet is the one-line re-verification command recorded in the
// manifest and expanded into reproduce.sh by Write.
func reproSnippet(refs []string, registryVersion string) string {
	var sb strings.Builder
	sb.WriteString("receipts verify --narrative narrative.md")
	if len(refs) > 0 {
		sb.WriteString(" --refs ")
		sb.WriteString(strings.Join(refs, ","))
	}
	if registryVersion != "" {
		sb.WriteString(" --registry-version ")
		sb.WriteString(registryVersion)
	}
	return sb.String()
}

// paramsFor is the canonical params-hash input. Request identity and
// registry version ride along so an empty params map still yields a
// request-specific hash.
func paramsFor(in GenerateInput) map[string]any {
	m := make(map[string]any, len(in.Params)+2)
	for k, v := range in.Params {
		m[k] = v
	}
	m["request_id"] = in.RequestID
	m["registry_version"] = in.RegistryVersion
	return m
}

func copyMap(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
