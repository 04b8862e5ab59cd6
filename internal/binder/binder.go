// Package binder matches numeric claims against candidate records under
// tolerance policy. Resolution order is fixed: exact reference id, then
// source family, then all records; a winner is never guessed when the
// matched value spans more than one source without an explicit id.
package binder

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/receipts/internal/fact"
	"github.com/roach88/receipts/internal/policy"
)

// Issue codes raised by the binding layer.
const (
	CodeNotFound  = "CLAIM_NOT_FOUND"
	CodeRounding  = "ROUNDING_MISMATCH"
	CodeAmbiguous = "AMBIGUOUS_SOURCE"
	CodeDerived   = "DERIVED_MISMATCH"
)

// Binder binds claims to source values. Stateless after construction,
// safe for concurrent use.
type Binder struct {
	rules policy.ToleranceRules
}

// New builds a binder from tolerance rules.
func New(rules policy.ToleranceRules) *Binder {
	return &Binder{rules: rules}
}

// scored is one candidate with its comparison outcome attached.
type scored struct {
	cand    candidate
	cmpDiff float64 // absolute diff in comparison space
	relDiff float64
	display float64 // candidate value in the claim's display units
	match   bool
}

// BindAll binds every claim in order and converts failed bindings into
// binding-layer issues.
func (b *Binder) BindAll(claims []fact.NumericClaim, records []fact.StructuredRecord) ([]fact.ClaimBinding, []fact.Issue) {
	bindings := make([]fact.ClaimBinding, 0, len(claims))
	var issues []fact.Issue
	for _, claim := range claims {
		bd := b.Bind(claim, records)
		bindings = append(bindings, bd)
		if is, ok := b.issueFor(bd); ok {
			issues = append(issues, is)
		}
	}
	return bindings, issues
}

// Bind matches one claim against the candidate records.
func (b *Binder) Bind(claim fact.NumericClaim, records []fact.StructuredRecord) fact.ClaimBinding {
	binding := fact.ClaimBinding{Claim: claim}

	scope, idExact := b.scope(claim, records)
	cands := b.candidates(claim, scope)
	binding.CandidateIDs = distinctSources(cands)
	if len(cands) == 0 {
		binding.Reason = fact.BindNoCandidates
		return binding
	}

	var matches []scored
	var nearest *scored
	for _, c := range cands {
		sc := b.compare(claim, c)
		if sc.match {
			matches = append(matches, sc)
			continue
		}
		if nearest == nil || sc.cmpDiff < nearest.cmpDiff {
			nearest = &sc
		}
	}

	if len(matches) == 0 {
		binding.Nearest = &fact.NearestMiss{
			SourceID: nearest.cand.sourceID,
			Location: nearest.cand.location,
			Value:    nearest.display,
			Diff:     math.Abs(claim.Value - nearest.display),
		}
		if b.withinRounding(claim, *nearest) {
			binding.Reason = fact.BindRoundingMismatch
			binding.Hint = hint(claim, nearest.display, nearest.cand.sourceID)
		} else {
			binding.Reason = fact.BindNotFound
		}
		return binding
	}

	// An explicit id that names a matching record settles the winner
	// even when the same value appears elsewhere.
	if idExact {
		var own []scored
		for _, m := range matches {
			if strings.EqualFold(m.cand.rec.RefID, claim.ReferenceID) {
				own = append(own, m)
			}
		}
		if len(own) > 0 {
			matches = own
		}
	}

	if srcs := matchSources(matches); len(srcs) > 1 {
		binding.Reason = fact.BindAmbiguous
		binding.Ambiguous = true
		binding.CandidateIDs = srcs
		return binding
	}

	win := matches[0]
	for _, m := range matches[1:] {
		if m.cand.rowCount != win.cand.rowCount {
			if m.cand.rowCount {
				win = m
			}
			continue
		}
		if m.cmpDiff < win.cmpDiff {
			win = m
		}
	}

	binding.Matched = true
	binding.Reason = fact.BindOK
	binding.SourceID = win.cand.sourceID
	binding.Location = win.cand.location
	b.recomputeDerived(&binding, win)
	return binding
}

// compare normalizes one claim/candidate pair and applies the tolerance
// predicate: absolute diff within the unit epsilon, or relative diff
// within the relative epsilon.
func (b *Binder) compare(claim fact.NumericClaim, c candidate) scored {
	claimCmp, candCmp, display := normalize(claim, c.value)
	diff := math.Abs(claimCmp - candCmp)
	rel := relativeDiff(claimCmp, candCmp)
	return scored{
		cand:    c,
		cmpDiff: diff,
		relDiff: rel,
		display: display,
		match:   diff <= b.absEpsilon(claim.Unit) || rel <= b.rules.RelEpsilon,
	}
}

// normalize maps a claim/candidate pair into one comparison space.
// Percent claims are written in points ("10%" extracts as 10) and
// always compare as a [0,1] ratio; a stored magnitude above 1 is taken
// as points and scaled once. A stored 1000 therefore compares as 10,
// never as 0.10 twice over.
func normalize(claim fact.NumericClaim, stored float64) (claimCmp, candCmp, display float64) {
	if claim.Unit != fact.UnitPercent {
		return claim.Value, stored, stored
	}
	claimCmp = claim.Value / 100
	if math.Abs(stored) > 1 {
		return claimCmp, stored / 100, stored
	}
	return claimCmp, stored, stored * 100
}

// absEpsilon is the unit tolerance in comparison space: the configured
// percent epsilon is declared in points and scales with the values.
func (b *Binder) absEpsilon(unit fact.Unit) float64 {
	eps := b.rules.Epsilon(unit)
	if unit == fact.UnitPercent {
		eps /= 100
	}
	return eps
}

func (b *Binder) withinRounding(claim fact.NumericClaim, miss scored) bool {
	return miss.cmpDiff <= 2*b.absEpsilon(claim.Unit) || miss.relDiff <= 2*b.rules.RelEpsilon
}

func relativeDiff(a, b float64) float64 {
	den := math.Max(math.Abs(a), math.Abs(b))
	if den == 0 {
		return 0
	}
	return math.Abs(a-b) / den
}

func distinctSources(cands []candidate) []string {
	seen := make(map[string]bool, len(cands))
	var out []string
	for _, c := range cands {
		if !seen[c.sourceID] {
			seen[c.sourceID] = true
			out = append(out, c.sourceID)
		}
	}
	sort.Strings(out)
	return out
}

func matchSources(matches []scored) []string {
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		if !seen[m.cand.sourceID] {
			seen[m.cand.sourceID] = true
			out = append(out, m.cand.sourceID)
		}
	}
	sort.Strings(out)
	return out
}

// hint proposes the computable correction for a failing claim.
func hint(claim fact.NumericClaim, value float64, sourceID string) string {
	return fmt.Sprintf("replace %s with %s, source %s", claim.RawToken, formatValue(value, claim.Unit), sourceID)
}

func formatValue(v float64, unit fact.Unit) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if unit == fact.UnitPercent {
		s += "%"
	}
	return s
}

func (b *Binder) issueFor(bd fact.ClaimBinding) (fact.Issue, bool) {
	details := map[string]string{
		"claim":  bd.Claim.RawToken,
		"offset": strconv.Itoa(bd.Claim.Span.Start),
	}
	if bd.Hint != "" {
		details["hint"] = bd.Hint
	}

	switch bd.Reason {
	case fact.BindOK:
		if bd.DerivedChecked && !bd.DerivedConsistent {
			details["source"] = bd.SourceID
			details["recomputed"] = strconv.FormatFloat(bd.RecomputedValue, 'f', -1, 64)
			return fact.Issue{
				Layer:    fact.LayerBinding,
				Code:     CodeDerived,
				Message:  fmt.Sprintf("stored share %s disagrees with its components, recomputed %s", bd.Claim.RawToken, formatValue(bd.RecomputedValue, bd.Claim.Unit)),
				Severity: fact.SeverityWarning,
				Details:  details,
			}, true
		}
		return fact.Issue{}, false

	case fact.BindNoCandidates:
		return fact.Issue{
			Layer:    fact.LayerBinding,
			Code:     CodeNotFound,
			Message:  fmt.Sprintf("claim %s has no comparable value in any supplied record", bd.Claim.RawToken),
			Severity: fact.SeverityError,
			Details:  details,
		}, true

	case fact.BindNotFound:
		if bd.Nearest != nil {
			details["nearest_source"] = bd.Nearest.SourceID
			details["nearest_value"] = strconv.FormatFloat(bd.Nearest.Value, 'f', -1, 64)
		}
		return fact.Issue{
			Layer:    fact.LayerBinding,
			Code:     CodeNotFound,
			Message:  fmt.Sprintf("claim %s not found in any supplied source", bd.Claim.RawToken),
			Severity: fact.SeverityError,
			Details:  details,
		}, true

	case fact.BindRoundingMismatch:
		details["nearest_source"] = bd.Nearest.SourceID
		details["nearest_value"] = strconv.FormatFloat(bd.Nearest.Value, 'f', -1, 64)
		return fact.Issue{
			Layer:    fact.LayerBinding,
			Code:     CodeRounding,
			Message:  fmt.Sprintf("claim %s sits within the rounding window of %s from %s", bd.Claim.RawToken, formatValue(bd.Nearest.Value, bd.Claim.Unit), bd.Nearest.SourceID),
			Severity: policy.ParseSeverity(b.rules.RoundingSeverity),
			Details:  details,
		}, true

	case fact.BindAmbiguous:
		details["candidates"] = strings.Join(bd.CandidateIDs, ", ")
		return fact.Issue{
			Layer:    fact.LayerBinding,
			Code:     CodeAmbiguous,
			Message:  fmt.Sprintf("claim %s matches %d distinct sources and carries no reference id", bd.Claim.RawToken, len(bd.CandidateIDs)),
			Severity: policy.ParseSeverity(b.rules.AmbiguousSeverity),
			Details:  details,
		}, true
	}
	return fact.Issue{}, false
}
