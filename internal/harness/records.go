package harness

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/receipts/internal/fact"
	"github.com/roach88/receipts/internal/policy"
)

// recordsDoc is the on-disk shape of a standalone records file: the
// scenario record fixture list under a single "records" key.
type recordsDoc struct {
	Records []RecordFixture `yaml:"records"`
}

// LoadRecords reads a standalone YAML records file and converts it to
// engine records. The per-record format is the same one scenarios
// embed, so fixtures move freely between scenario files and ad-hoc
// verification runs. Unknown fields are rejected.
func LoadRecords(path string) ([]fact.StructuredRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}

	var doc recordsDoc
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse records %s: %w", path, err)
	}
	if len(doc.Records) == 0 {
		return nil, fmt.Errorf("records %s: no records listed", path)
	}

	out := make([]fact.StructuredRecord, 0, len(doc.Records))
	for i, f := range doc.Records {
		if err := f.validate(); err != nil {
			return nil, fmt.Errorf("records %s: records[%d]: %w", path, i, err)
		}
		rec, err := f.ToRecord()
		if err != nil {
			return nil, fmt.Errorf("records %s: records[%d]: %w", path, i, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// WithDerivedPrefixes returns the policy with citation labels derived
// from the records' distinct sources, sorted, when the policy names
// none. Fixture-driven runs rarely spell out a label list; the sources
// in play are the labels worth recognizing.
func WithDerivedPrefixes(pol policy.Policy, records []fact.StructuredRecord) policy.Policy {
	if len(pol.Citation.AllowedPrefixes) > 0 {
		return pol
	}

	seen := make(map[string]bool)
	var prefixes []string
	for _, r := range records {
		src := r.Provenance.Source
		if src != "" && !seen[src] {
			seen[src] = true
			prefixes = append(prefixes, src)
		}
	}
	sort.Strings(prefixes)
	pol.Citation.AllowedPrefixes = prefixes
	return pol
}
