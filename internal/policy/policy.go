// Package policy defines the verification policy document: every knob the
// pipeline stages consult, loaded from CUE with fail-fast validation.
//
// Policies are plain values passed by handle. No package keeps a mutable
// global registry; construct once at setup and share read-only.
package policy

import "github.com/roach88/receipts/internal/fact"

// CitationRules configure the citation enforcer.
type CitationRules struct {
	// AllowedPrefixes lists recognized source labels ("LMIS", "HMRC").
	// Matching is case-insensitive; the canonical casing is recorded.
	AllowedPrefixes []string `json:"allowed_prefixes"`

	// Synonyms maps lowercased aliases to canonical prefixes
	// ("labour market information system" -> "LMIS").
	Synonyms map[string]string `json:"synonyms"`

	// RequireReferenceID demands a structured id on every cited claim.
	RequireReferenceID bool `json:"require_reference_id"`

	// StrictKeywords force the id requirement for claims whose sentence
	// contains one of these words, even when the global flag is off.
	StrictKeywords []string `json:"strict_keywords"`

	// BulletWindow is how many adjacent bullet lines are searched for a
	// shared citation before a bullet claim counts as uncited.
	BulletWindow int `json:"bullet_window"`

	// SourceDatasets maps a source label to dataset-id substrings; a
	// cited source must match at least one supplied record's dataset.
	SourceDatasets map[string][]string `json:"source_datasets"`

	// MissingIDSeverity is the severity of a missing reference id.
	MissingIDSeverity string `json:"missing_id_severity"`
}

// ToleranceRules configure claim binding.
type ToleranceRules struct {
	// AbsEpsilon is the absolute tolerance per unit. The percent entry
	// is in percentage points ("0.1" allows 87.4 vs 87.5).
	AbsEpsilon map[string]float64 `json:"abs_epsilon"`

	// RelEpsilon is the relative tolerance applied to normalized values.
	RelEpsilon float64 `json:"rel_epsilon"`

	// SegmentFields name row fields whose values narrow candidate rows
	// when they appear in the claim's sentence.
	SegmentFields []string `json:"segment_fields"`

	// PreferExplicitID short-circuits source narrowing when the claim
	// carries a reference id that matches a record.
	PreferExplicitID bool `json:"prefer_explicit_id"`

	// RecomputeDerived enables share recomputation on derived records.
	RecomputeDerived     bool `json:"recompute_derived"`
	MinDerivedComponents int  `json:"min_derived_components"`

	AmbiguousSeverity string `json:"ambiguous_severity"`
	RoundingSeverity  string `json:"rounding_severity"`
}

// Epsilon returns the absolute tolerance for a unit, zero when unset.
func (t ToleranceRules) Epsilon(u fact.Unit) float64 {
	return t.AbsEpsilon[string(u)]
}

// ExtractRules configure the claim extractor.
type ExtractRules struct {
	IgnoreTokens []string `json:"ignore_tokens"`

	// SkipYears drops bare 4-digit numbers inside [YearMin, YearMax]
	// that carry no unit marker.
	SkipYears bool `json:"skip_years"`
	YearMin   int  `json:"year_min"`
	YearMax   int  `json:"year_max"`

	// MinValue drops count claims below this magnitude.
	MinValue float64 `json:"min_value"`

	CurrencyMarkers []string `json:"currency_markers"`
	PercentMarkers  []string `json:"percent_markers"`

	// MinRefIDLength guards reference-id capture against short false
	// positives like "q4_1".
	MinRefIDLength int `json:"min_ref_id_length"`

	// ContextWindow bounds, in bytes, how far citation and unit context
	// is searched around a claim. Kept small so extraction cost stays
	// linear in the narrative length.
	ContextWindow int `json:"context_window"`
}

// MathRules configure bullet-group and table consistency checks.
type MathRules struct {
	// PercentSumTolerance is the allowed deviation, in points, of a
	// bullet group's percent sum from 100.
	PercentSumTolerance float64 `json:"percent_sum_tolerance"`

	// TableTolerance is the absolute slack for table column totals;
	// TablePercentTolerance applies to percent-typed columns, in points.
	TableTolerance        float64 `json:"table_tolerance"`
	TablePercentTolerance float64 `json:"table_percent_tolerance"`

	// TotalLabels mark a table row as the total row.
	TotalLabels []string `json:"total_labels"`
}

// SanityRules configure range and freshness checks.
type SanityRules struct {
	// MaxValues and MinValues bound fields whose (lowercased) name
	// contains the map key.
	MaxValues map[string]float64 `json:"max_values"`
	MinValues map[string]float64 `json:"min_values"`

	// DisallowNegative flags negative values in matching fields.
	DisallowNegative []string `json:"disallow_negative"`

	// RateFields must hold ratios in [0,1].
	RateFields []string `json:"rate_fields"`

	// MaxAgeDays flags records whose as-of date is older than this.
	MaxAgeDays int `json:"max_age_days"`
}

// PrivacyRules configure PII redaction and k-anonymity.
type PrivacyRules struct {
	RedactEmails bool `json:"redact_emails"`
	RedactNames  bool `json:"redact_names"`

	// MinIDDigits is the shortest digit run treated as a personal id.
	MinIDDigits int `json:"min_id_digits"`

	Honorifics     []string `json:"honorifics"`
	NameConnectors []string `json:"name_connectors"`

	// AllowedRoles skip narrative redaction entirely.
	AllowedRoles []string `json:"allowed_roles"`

	KAnonymityMin   int      `json:"k_anonymity_min"`
	GroupSizeFields []string `json:"group_size_fields"`
}

// RoleAllowed reports whether a caller role bypasses redaction.
func (p PrivacyRules) RoleAllowed(role string) bool {
	for _, r := range p.AllowedRoles {
		if r == role {
			return true
		}
	}
	return false
}

// CrossRules configure cross-source agreement checks.
type CrossRules struct {
	// MetricAliases maps a canonical metric name to alternate field
	// names meaning the same thing across sources.
	MetricAliases map[string][]string `json:"metric_aliases"`

	// SegmentKeys name the fields that identify a comparable segment.
	SegmentKeys []string `json:"segment_keys"`

	// MaxPercentDelta is the allowed disagreement, in points, between
	// sources reporting the same metric for the same segment.
	MaxPercentDelta float64 `json:"max_percent_delta"`
}

// RetentionRules configure audit store pruning.
type RetentionRules struct {
	MaxAgeDays int `json:"max_age_days"`
}

// Policy aggregates every rule set consulted during one verification run.
type Policy struct {
	Citation  CitationRules  `json:"citation"`
	Tolerance ToleranceRules `json:"tolerance"`
	Extract   ExtractRules   `json:"extract"`
	Math      MathRules      `json:"math"`
	Sanity    SanityRules    `json:"sanity"`
	Privacy   PrivacyRules   `json:"privacy"`
	Cross     CrossRules     `json:"cross"`
	Retention RetentionRules `json:"retention"`
}

// ParseSeverity maps a policy severity string to the fact type,
// falling back to warning for anything unrecognized.
func ParseSeverity(s string) fact.Severity {
	switch fact.Severity(s) {
	case fact.SeverityInfo, fact.SeverityWarning, fact.SeverityError:
		return fact.Severity(s)
	default:
		return fact.SeverityWarning
	}
}

// Default returns the complete built-in policy. Source labels and
// dataset mappings are deployment-specific and start empty; every
// numeric knob carries a working value.
func Default() Policy {
	return Policy{
		Citation: CitationRules{
			AllowedPrefixes:    []string{},
			Synonyms:           map[string]string{},
			RequireReferenceID: false,
			StrictKeywords:     []string{},
			BulletWindow:       2,
			SourceDatasets:     map[string][]string{},
			MissingIDSeverity:  "error",
		},
		Tolerance: ToleranceRules{
			AbsEpsilon: map[string]float64{
				"count":    0.5,
				"percent":  0.1,
				"currency": 0.01,
			},
			RelEpsilon:           0.005,
			SegmentFields:        []string{"sector", "company", "country", "region", "industry", "segment"},
			PreferExplicitID:     true,
			RecomputeDerived:     true,
			MinDerivedComponents: 2,
			AmbiguousSeverity:    "warning",
			RoundingSeverity:     "warning",
		},
		Extract: ExtractRules{
			IgnoreTokens:    []string{},
			SkipYears:       true,
			YearMin:         1900,
			YearMax:         2100,
			MinValue:        0,
			CurrencyMarkers: []string{"$", "£", "€", "USD", "GBP", "EUR", "dollars", "pounds", "euros"},
			PercentMarkers:  []string{"%", "percent", "pct"},
			MinRefIDLength:  6,
			ContextWindow:   160,
		},
		Math: MathRules{
			PercentSumTolerance:   1.5,
			TableTolerance:        0.5,
			TablePercentTolerance: 0.5,
			TotalLabels:           []string{"total", "sum", "overall"},
		},
		Sanity: SanityRules{
			MaxValues:        map[string]float64{},
			MinValues:        map[string]float64{},
			DisallowNegative: []string{"count", "headcount", "total"},
			RateFields:       []string{},
			MaxAgeDays:       365,
		},
		Privacy: PrivacyRules{
			RedactEmails:    true,
			RedactNames:     true,
			MinIDDigits:     9,
			Honorifics:      []string{"Mr", "Mrs", "Ms", "Dr", "Prof", "Sir", "Dame"},
			NameConnectors:  []string{"van", "von", "de", "der", "den", "del", "da", "di", "la", "le"},
			AllowedRoles:    []string{"auditor"},
			KAnonymityMin:   5,
			GroupSizeFields: []string{"group_size", "employee_count", "respondents"},
		},
		Cross: CrossRules{
			MetricAliases:   map[string][]string{},
			SegmentKeys:     []string{"sector", "region", "country", "segment"},
			MaxPercentDelta: 2.0,
		},
		Retention: RetentionRules{
			MaxAgeDays: 90,
		},
	}
}
