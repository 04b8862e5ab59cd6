package policy

import (
	"fmt"
	"sort"

	"github.com/roach88/receipts/internal/fact"
)

// Validation codes sit in the E1xx band; loading codes are E0xx (load.go).
const (
	ErrCodeNegativeEpsilon = "E101" // Negative absolute epsilon
	ErrCodeRelEpsilon      = "E102" // rel_epsilon outside [0, 1)
	ErrCodeUnknownUnit     = "E103" // Unknown unit key in abs_epsilon
	ErrCodeBadSeverity     = "E104" // Severity not info/warning/error
	ErrCodeBulletWindow    = "E105" // Negative bullet window
	ErrCodeYearRange       = "E106" // year_min exceeds year_max
	ErrCodeContextWindow   = "E107" // context_window outside [50, 400]
	ErrCodeRefIDLength     = "E108" // min_ref_id_length below 3
	ErrCodeNegativeValue   = "E109" // Tolerance or delta below zero
	ErrCodeRangeConflict   = "E110" // min_values entry exceeds max_values
	ErrCodeKAnonymity      = "E111" // k_anonymity_min below 2
	ErrCodeIDDigits        = "E112" // min_id_digits below 4
	ErrCodeDerivedMin      = "E113" // min_derived_components below 2
	ErrCodeRetention       = "E114" // Retention window below one day
	ErrCodeSynonymTarget   = "E115" // Synonym target not an allowed prefix
)

// ValidationError describes one policy field that failed a semantic check.
type ValidationError struct {
	Code    string
	Field   string // JSON path, e.g. "tolerance.rel_epsilon"
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Message)
}

// Validate applies the semantic checks the schema cannot express and
// re-checks the numeric ranges for policies constructed in Go without
// passing through CUE. All errors are collected before returning.
func Validate(p Policy) []*ValidationError {
	var errs []*ValidationError
	add := func(code, field, format string, args ...any) {
		errs = append(errs, &ValidationError{Code: code, Field: field, Message: fmt.Sprintf(format, args...)})
	}
	checkSeverity := func(field, s string) {
		switch s {
		case "info", "warning", "error":
		default:
			add(ErrCodeBadSeverity, field, "severity must be info, warning, or error, got %q", s)
		}
	}

	// Citation.
	if p.Citation.BulletWindow < 0 {
		add(ErrCodeBulletWindow, "citation.bullet_window", "must be >= 0, got %d", p.Citation.BulletWindow)
	}
	checkSeverity("citation.missing_id_severity", p.Citation.MissingIDSeverity)
	if len(p.Citation.Synonyms) > 0 {
		allowed := make(map[string]bool, len(p.Citation.AllowedPrefixes))
		for _, pfx := range p.Citation.AllowedPrefixes {
			allowed[pfx] = true
		}
		for _, alias := range sortedKeys(p.Citation.Synonyms) {
			target := p.Citation.Synonyms[alias]
			if !allowed[target] {
				add(ErrCodeSynonymTarget, "citation.synonyms."+alias,
					"synonym target %q is not in allowed_prefixes", target)
			}
		}
	}

	// Tolerance.
	for _, u := range sortedKeys(p.Tolerance.AbsEpsilon) {
		if _, err := fact.ParseUnit(u); err != nil {
			add(ErrCodeUnknownUnit, "tolerance.abs_epsilon."+u, "%v", err)
		}
		if eps := p.Tolerance.AbsEpsilon[u]; eps < 0 {
			add(ErrCodeNegativeEpsilon, "tolerance.abs_epsilon."+u, "must be >= 0, got %v", eps)
		}
	}
	if p.Tolerance.RelEpsilon < 0 || p.Tolerance.RelEpsilon >= 1 {
		add(ErrCodeRelEpsilon, "tolerance.rel_epsilon", "must be in [0, 1), got %v", p.Tolerance.RelEpsilon)
	}
	if p.Tolerance.MinDerivedComponents < 2 {
		add(ErrCodeDerivedMin, "tolerance.min_derived_components", "must be >= 2, got %d", p.Tolerance.MinDerivedComponents)
	}
	checkSeverity("tolerance.ambiguous_severity", p.Tolerance.AmbiguousSeverity)
	checkSeverity("tolerance.rounding_severity", p.Tolerance.RoundingSeverity)

	// Extract.
	if p.Extract.YearMin > p.Extract.YearMax {
		add(ErrCodeYearRange, "extract.year_min", "year_min %d exceeds year_max %d", p.Extract.YearMin, p.Extract.YearMax)
	}
	if p.Extract.MinValue < 0 {
		add(ErrCodeNegativeValue, "extract.min_value", "must be >= 0, got %v", p.Extract.MinValue)
	}
	if p.Extract.MinRefIDLength < 3 {
		add(ErrCodeRefIDLength, "extract.min_ref_id_length", "must be >= 3, got %d", p.Extract.MinRefIDLength)
	}
	if p.Extract.ContextWindow < 50 || p.Extract.ContextWindow > 400 {
		add(ErrCodeContextWindow, "extract.context_window", "must be in [50, 400], got %d", p.Extract.ContextWindow)
	}

	// Math.
	if p.Math.PercentSumTolerance < 0 {
		add(ErrCodeNegativeValue, "math.percent_sum_tolerance", "must be >= 0, got %v", p.Math.PercentSumTolerance)
	}
	if p.Math.TableTolerance < 0 {
		add(ErrCodeNegativeValue, "math.table_tolerance", "must be >= 0, got %v", p.Math.TableTolerance)
	}
	if p.Math.TablePercentTolerance < 0 {
		add(ErrCodeNegativeValue, "math.table_percent_tolerance", "must be >= 0, got %v", p.Math.TablePercentTolerance)
	}

	// Sanity. A field with both bounds set needs min <= max.
	for _, field := range sortedKeys(p.Sanity.MinValues) {
		upper, ok := p.Sanity.MaxValues[field]
		if ok && p.Sanity.MinValues[field] > upper {
			add(ErrCodeRangeConflict, "sanity.min_values."+field,
				"min %v exceeds max %v", p.Sanity.MinValues[field], upper)
		}
	}
	if p.Sanity.MaxAgeDays < 1 {
		add(ErrCodeRetention, "sanity.max_age_days", "must be >= 1, got %d", p.Sanity.MaxAgeDays)
	}

	// Privacy.
	if p.Privacy.KAnonymityMin < 2 {
		add(ErrCodeKAnonymity, "privacy.k_anonymity_min", "must be >= 2, got %d", p.Privacy.KAnonymityMin)
	}
	if p.Privacy.MinIDDigits < 4 {
		add(ErrCodeIDDigits, "privacy.min_id_digits", "must be >= 4, got %d", p.Privacy.MinIDDigits)
	}

	// Cross.
	if p.Cross.MaxPercentDelta < 0 {
		add(ErrCodeNegativeValue, "cross.max_percent_delta", "must be >= 0, got %v", p.Cross.MaxPercentDelta)
	}

	// Retention.
	if p.Retention.MaxAgeDays < 1 {
		add(ErrCodeRetention, "retention.max_age_days", "must be >= 1, got %d", p.Retention.MaxAgeDays)
	}

	return errs
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
