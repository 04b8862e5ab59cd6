package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/receipts/internal/fact"
	"github.com/roach88/receipts/internal/policy"
)

// Scenario defines one conformance case: the narrative and records fed
// into a verification pass, and the outcome that pass must produce.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// Narrative is the report text under verification. Empty is legal:
	// record-only scenarios exercise sanity and privacy guards.
	Narrative string `yaml:"narrative,omitempty"`

	// Records are the structured sources, in YAML-friendly form.
	Records []RecordFixture `yaml:"records,omitempty"`

	// Role is the caller role passed to the pass, consulted by
	// privacy redaction.
	Role string `yaml:"role,omitempty"`

	// Now fixes the verification instant (RFC 3339). Defaults to the
	// harness epoch so freshness checks are reproducible.
	Now string `yaml:"now,omitempty"`

	// Policy carries overrides applied on top of the default policy.
	Policy *PolicyOverride `yaml:"policy,omitempty"`

	// Expect is the required outcome.
	Expect Expectation `yaml:"expect"`
}

// RecordFixture mirrors fact.StructuredRecord in a form YAML authors
// can write by hand. Row field order follows the document order.
type RecordFixture struct {
	RefID     string     `yaml:"ref_id,omitempty"`
	Source    string     `yaml:"source"`
	Dataset   string     `yaml:"dataset"`
	Locator   string     `yaml:"locator,omitempty"`
	Unit      string     `yaml:"unit"`
	AsOf      string     `yaml:"as_of,omitempty"`
	UpdatedAt string     `yaml:"updated_at,omitempty"`
	Derived   bool       `yaml:"derived,omitempty"`
	Fields    []string   `yaml:"fields,omitempty"`
	Rows      []fact.Row `yaml:"rows,omitempty"`
}

// PolicyOverride is the subset of policy knobs scenarios may override.
// Nil or zero entries leave the default untouched.
type PolicyOverride struct {
	AllowedPrefixes    []string            `yaml:"allowed_prefixes,omitempty"`
	Synonyms           map[string]string   `yaml:"synonyms,omitempty"`
	RequireReferenceID *bool               `yaml:"require_reference_id,omitempty"`
	StrictKeywords     []string            `yaml:"strict_keywords,omitempty"`
	SourceDatasets     map[string][]string `yaml:"source_datasets,omitempty"`
	PercentEpsilon     *float64            `yaml:"percent_epsilon,omitempty"`
	MaxAgeDays         *int                `yaml:"max_age_days,omitempty"`
	KAnonymityMin      *int                `yaml:"k_anonymity_min,omitempty"`
	AllowedRoles       []string            `yaml:"allowed_roles,omitempty"`
	MetricAliases      map[string][]string `yaml:"metric_aliases,omitempty"`
	SegmentKeys        []string            `yaml:"segment_keys,omitempty"`
	MaxPercentDelta    *float64            `yaml:"max_percent_delta,omitempty"`
}

// Expectation is the outcome a scenario requires. OK is mandatory;
// everything else is checked only when set.
type Expectation struct {
	OK          *bool    `yaml:"ok"`
	Codes       []string `yaml:"codes,omitempty"`
	AbsentCodes []string `yaml:"absent_codes,omitempty"`
	Claims      *int     `yaml:"claims,omitempty"`
	Matched     *int     `yaml:"matched,omitempty"`
	Errors      *int     `yaml:"errors,omitempty"`
	Warnings    *int     `yaml:"warnings,omitempty"`
	Redacted    []string `yaml:"redacted,omitempty"`
	Kept        []string `yaml:"kept,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields
// are rejected, so typos fail loudly instead of silently weakening an
// expectation.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Narrative == "" && len(s.Records) == 0 {
		return fmt.Errorf("narrative or records is required")
	}
	if s.Expect.OK == nil {
		return fmt.Errorf("expect.ok is required")
	}

	for i, r := range s.Records {
		if err := r.validate(); err != nil {
			return fmt.Errorf("records[%d]: %w", i, err)
		}
	}
	return nil
}

func (f RecordFixture) validate() error {
	if f.Source == "" {
		return fmt.Errorf("source is required")
	}
	if f.Dataset == "" {
		return fmt.Errorf("dataset is required")
	}
	if _, err := fact.ParseUnit(f.Unit); err != nil {
		return err
	}
	return nil
}

// ToRecord converts the fixture into the engine's record type.
func (f RecordFixture) ToRecord() (fact.StructuredRecord, error) {
	unit, err := fact.ParseUnit(f.Unit)
	if err != nil {
		return fact.StructuredRecord{}, err
	}

	return fact.StructuredRecord{
		RefID: f.RefID,
		Unit:  unit,
		Rows:  f.Rows,
		Provenance: fact.Provenance{
			Source:    f.Source,
			DatasetID: f.Dataset,
			Locator:   f.Locator,
			Fields:    f.Fields,
		},
		Freshness: fact.Freshness{
			AsOf:      f.AsOf,
			UpdatedAt: f.UpdatedAt,
		},
		Derived: f.Derived,
	}, nil
}

// apply lays the override onto a policy value and returns the result.
func (o *PolicyOverride) apply(p policy.Policy) policy.Policy {
	if o == nil {
		return p
	}
	if len(o.AllowedPrefixes) > 0 {
		p.Citation.AllowedPrefixes = o.AllowedPrefixes
	}
	if len(o.Synonyms) > 0 {
		p.Citation.Synonyms = o.Synonyms
	}
	if o.RequireReferenceID != nil {
		p.Citation.RequireReferenceID = *o.RequireReferenceID
	}
	if len(o.StrictKeywords) > 0 {
		p.Citation.StrictKeywords = o.StrictKeywords
	}
	if len(o.SourceDatasets) > 0 {
		p.Citation.SourceDatasets = o.SourceDatasets
	}
	if o.PercentEpsilon != nil {
		p.Tolerance.AbsEpsilon["percent"] = *o.PercentEpsilon
	}
	if o.MaxAgeDays != nil {
		p.Sanity.MaxAgeDays = *o.MaxAgeDays
	}
	if o.KAnonymityMin != nil {
		p.Privacy.KAnonymityMin = *o.KAnonymityMin
	}
	if len(o.AllowedRoles) > 0 {
		p.Privacy.AllowedRoles = o.AllowedRoles
	}
	if len(o.MetricAliases) > 0 {
		p.Cross.MetricAliases = o.MetricAliases
	}
	if len(o.SegmentKeys) > 0 {
		p.Cross.SegmentKeys = o.SegmentKeys
	}
	if o.MaxPercentDelta != nil {
		p.Cross.MaxPercentDelta = *o.MaxPercentDelta
	}
	return p
}
