package binder

import (
	"math"
	"strings"

	"github.com/roach88/receipts/internal/fact"
)

var shareMarkers = []string{"share", "percent", "pct", "ratio"}

// recomputeDerived cross-checks a share bound on a derived record
// against the row's own components: share = component / sum of sibling
// non-percent numeric fields, times 100. The recomputed share closest
// to the claim is surfaced either way; a disagreement beyond tolerance
// marks the binding derived-inconsistent.
func (b *Binder) recomputeDerived(binding *fact.ClaimBinding, win scored) {
	if !b.rules.RecomputeDerived || win.cand.rowCount {
		return
	}
	rec := win.cand.rec
	if !rec.Derived || binding.Claim.Unit != fact.UnitPercent {
		return
	}

	var comps []float64
	var sum float64
	rec.Rows[win.cand.rowIdx].Fields(func(key string, v fact.Scalar) bool {
		if key == win.cand.field || shareLike(key) {
			return true
		}
		if num, ok := fact.Numeric(v); ok {
			comps = append(comps, num)
			sum += num
		}
		return true
	})
	if len(comps) < b.rules.MinDerivedComponents || sum == 0 {
		return
	}

	claimed := binding.Claim.Value
	best := 0.0
	bestDiff := math.Inf(1)
	for _, c := range comps {
		share := c / sum * 100
		if d := math.Abs(share - claimed); d < bestDiff {
			bestDiff = d
			best = share
		}
	}

	binding.DerivedChecked = true
	binding.RecomputedValue = best
	binding.DerivedConsistent = bestDiff <= b.rules.Epsilon(fact.UnitPercent) ||
		relativeDiff(best/100, claimed/100) <= b.rules.RelEpsilon
	if !binding.DerivedConsistent {
		binding.Hint = hint(binding.Claim, best, win.cand.sourceID)
	}
}

func shareLike(field string) bool {
	f := strings.ToLower(field)
	for _, m := range shareMarkers {
		if strings.Contains(f, m) {
			return true
		}
	}
	return false
}
