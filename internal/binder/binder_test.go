package binder

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/receipts/internal/fact"
	"github.com/roach88/receipts/internal/policy"
)

func testRow(pairs ...any) fact.Row {
	r := fact.NewRow(len(pairs) / 2)
	for i := 0; i+1 < len(pairs); i += 2 {
		r.Set(pairs[i].(string), pairs[i+1].(fact.Scalar))
	}
	return r
}

func record(refID, source, dataset string, rows ...fact.Row) fact.StructuredRecord {
	return fact.StructuredRecord{
		RefID:      refID,
		Unit:       fact.UnitPercent,
		Rows:       rows,
		Provenance: fact.Provenance{Source: source, DatasetID: dataset},
	}
}

func percentRecord(refID string, rate float64) fact.StructuredRecord {
	return record(refID, "LMIS", "lmis_retention_2024q3",
		testRow("retention_rate", fact.Float(rate)))
}

func percentClaim(raw string, value float64) fact.NumericClaim {
	return fact.NumericClaim{
		RawToken: raw,
		Value:    value,
		Unit:     fact.UnitPercent,
		Sentence: "The retention rate is " + raw + ".",
	}
}

func TestBindExactValue(t *testing.T) {
	b := New(policy.Default().Tolerance)
	recs := []fact.StructuredRecord{percentRecord("lmis_ret_001", 87.5)}

	bd := b.Bind(percentClaim("87.5%", 87.5), recs)

	assert.True(t, bd.Matched)
	assert.Equal(t, fact.BindOK, bd.Reason)
	assert.Equal(t, "lmis_ret_001", bd.SourceID)
	assert.Equal(t, "rows[0].retention_rate", bd.Location)
	assert.Equal(t, []string{"lmis_ret_001"}, bd.CandidateIDs)
	assert.False(t, bd.DerivedChecked)
}

func TestBindPercentScaleNormalization(t *testing.T) {
	b := New(policy.Default().Tolerance)
	cases := []struct {
		name    string
		stored  float64
		matched bool
	}{
		{"ratio", 0.10, true},
		{"points", 10.0, true},
		{"inflated", 1000, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			recs := []fact.StructuredRecord{percentRecord("lmis_ret_001", tc.stored)}
			bd := b.Bind(percentClaim("10%", 10), recs)
			assert.Equal(t, tc.matched, bd.Matched)
		})
	}
}

func TestBindRelativeTolerance(t *testing.T) {
	b := New(policy.Default().Tolerance)
	recs := []fact.StructuredRecord{percentRecord("lmis_ret_001", 87.9)}

	bd := b.Bind(percentClaim("87.5%", 87.5), recs)

	assert.True(t, bd.Matched, "sub-epsilon relative diff must match")
}

func TestBindRoundingMismatch(t *testing.T) {
	b := New(policy.Default().Tolerance)
	recs := []fact.StructuredRecord{percentRecord("lmis_ret_001", 12.35)}

	bindings, issues := b.BindAll([]fact.NumericClaim{percentClaim("12.5%", 12.5)}, recs)

	require.Len(t, bindings, 1)
	bd := bindings[0]
	assert.False(t, bd.Matched)
	assert.Equal(t, fact.BindRoundingMismatch, bd.Reason)
	require.NotNil(t, bd.Nearest)
	assert.Equal(t, "lmis_ret_001", bd.Nearest.SourceID)
	assert.Equal(t, 12.35, bd.Nearest.Value)
	assert.InDelta(t, 0.15, bd.Nearest.Diff, 1e-9)
	assert.Equal(t, "replace 12.5% with 12.35%, source lmis_ret_001", bd.Hint)

	require.Len(t, issues, 1)
	assert.Equal(t, CodeRounding, issues[0].Code)
	assert.Equal(t, fact.SeverityWarning, issues[0].Severity)
	assert.Equal(t, bd.Hint, issues[0].Details["hint"])
}

func TestBindClaimNotFound(t *testing.T) {
	b := New(policy.Default().Tolerance)
	recs := []fact.StructuredRecord{percentRecord("lmis_ret_001", 87.9)}

	bindings, issues := b.BindAll([]fact.NumericClaim{percentClaim("50%", 50)}, recs)

	bd := bindings[0]
	assert.False(t, bd.Matched)
	assert.Equal(t, fact.BindNotFound, bd.Reason)
	require.NotNil(t, bd.Nearest)
	assert.Equal(t, 87.9, bd.Nearest.Value)
	assert.Empty(t, bd.Hint)

	require.Len(t, issues, 1)
	assert.Equal(t, CodeNotFound, issues[0].Code)
	assert.Equal(t, fact.SeverityError, issues[0].Severity)
	assert.Equal(t, "87.9", issues[0].Details["nearest_value"])
}

func TestBindAmbiguousSources(t *testing.T) {
	b := New(policy.Default().Tolerance)
	recs := []fact.StructuredRecord{
		percentRecord("lmis_a_001", 30),
		percentRecord("lmis_b_001", 30),
	}

	bindings, issues := b.BindAll([]fact.NumericClaim{percentClaim("30%", 30)}, recs)

	bd := bindings[0]
	assert.False(t, bd.Matched)
	assert.True(t, bd.Ambiguous)
	assert.Equal(t, fact.BindAmbiguous, bd.Reason)
	assert.Equal(t, []string{"lmis_a_001", "lmis_b_001"}, bd.CandidateIDs)

	require.Len(t, issues, 1)
	assert.Equal(t, CodeAmbiguous, issues[0].Code)
	assert.Equal(t, fact.SeverityWarning, issues[0].Severity)
	assert.Equal(t, "lmis_a_001, lmis_b_001", issues[0].Details["candidates"])
}

func TestBindExplicitIDDisambiguates(t *testing.T) {
	b := New(policy.Default().Tolerance)
	recs := []fact.StructuredRecord{
		percentRecord("lmis_a_001", 30),
		percentRecord("lmis_b_001", 30),
	}
	claim := percentClaim("30%", 30)
	claim.ReferenceID = "lmis_b_001"
	claim.SourceFamily = "lmis"

	bd := b.Bind(claim, recs)

	assert.True(t, bd.Matched)
	assert.False(t, bd.Ambiguous)
	assert.Equal(t, "lmis_b_001", bd.SourceID)
}

func TestBindIDWithoutPreferenceStillDisambiguates(t *testing.T) {
	rules := policy.Default().Tolerance
	rules.PreferExplicitID = false
	b := New(rules)
	recs := []fact.StructuredRecord{
		percentRecord("lmis_a_001", 30),
		percentRecord("lmis_b_001", 30),
	}
	claim := percentClaim("30%", 30)
	claim.ReferenceID = "lmis_b_001"
	claim.SourceFamily = "lmis"

	bd := b.Bind(claim, recs)

	assert.True(t, bd.Matched)
	assert.Equal(t, "lmis_b_001", bd.SourceID)
}

func TestBindFamilyNarrowing(t *testing.T) {
	b := New(policy.Default().Tolerance)
	recs := []fact.StructuredRecord{
		record("lmis_ret_001", "LMIS", "lmis_retention_2024q3",
			testRow("retention_rate", fact.Float(87.5))),
		record("hmrc_pay_001", "HMRC", "hmrc_payroll_2024",
			testRow("retention_rate", fact.Float(87.5))),
	}
	claim := percentClaim("87.5%", 87.5)
	claim.SourceFamily = "lmis"

	bd := b.Bind(claim, recs)

	assert.True(t, bd.Matched, "family narrowing leaves a single qualifying source")
	assert.Equal(t, "lmis_ret_001", bd.SourceID)
}

func TestBindSegmentNarrowing(t *testing.T) {
	b := New(policy.Default().Tolerance)
	recs := []fact.StructuredRecord{record("lmis_seg_001", "LMIS", "lmis_sectors_2024",
		testRow("sector", fact.String("finance"), "retention_rate", fact.Float(45)),
		testRow("sector", fact.String("retail"), "retention_rate", fact.Float(52)),
	)}

	claim := fact.NumericClaim{
		RawToken: "45%", Value: 45, Unit: fact.UnitPercent,
		Sentence: "Finance retention sits at 45%.",
	}
	bd := b.Bind(claim, recs)
	assert.True(t, bd.Matched)
	assert.Equal(t, "rows[0].retention_rate", bd.Location)

	// The retail value exists but its row is excluded once the sentence
	// names a different segment.
	stray := fact.NumericClaim{
		RawToken: "52%", Value: 52, Unit: fact.UnitPercent,
		Sentence: "Finance retention sits at 52%.",
	}
	bd = b.Bind(stray, recs)
	assert.False(t, bd.Matched)
	assert.Equal(t, fact.BindNotFound, bd.Reason)
}

func TestBindRowCountTarget(t *testing.T) {
	b := New(policy.Default().Tolerance)
	rows := make([]fact.Row, 12)
	for i := range rows {
		rows[i] = testRow(
			"company", fact.String(fmt.Sprintf("firm_%02d", i)),
			"employees", fact.Int(12),
		)
	}
	recs := []fact.StructuredRecord{record("lmis_cmp_001", "LMIS", "lmis_companies_2024", rows...)}

	claim := fact.NumericClaim{
		RawToken: "12", Value: 12, Unit: fact.UnitCount,
		Sentence: "The survey covers 12 companies.",
	}
	bd := b.Bind(claim, recs)

	assert.True(t, bd.Matched)
	assert.Equal(t, "row_count", bd.Location, "row count wins over equal cell matches")
}

func TestBindSegmentRowCount(t *testing.T) {
	b := New(policy.Default().Tolerance)
	recs := []fact.StructuredRecord{record("lmis_cmp_001", "LMIS", "lmis_companies_2024",
		testRow("sector", fact.String("finance"), "employees", fact.Int(1200)),
		testRow("sector", fact.String("finance"), "employees", fact.Int(3400)),
		testRow("sector", fact.String("retail"), "employees", fact.Int(5600)),
	)}

	claim := fact.NumericClaim{
		RawToken: "2", Value: 2, Unit: fact.UnitCount,
		Sentence: "We track 2 finance employers.",
	}
	bd := b.Bind(claim, recs)

	assert.True(t, bd.Matched)
	assert.Equal(t, "row_count", bd.Location)
}

func TestBindCountRelativeTolerance(t *testing.T) {
	b := New(policy.Default().Tolerance)
	recs := []fact.StructuredRecord{record("lmis_hc_001", "LMIS", "lmis_headcount_2024",
		testRow("headcount", fact.Int(1200)))}

	claim := fact.NumericClaim{
		RawToken: "1,195", Value: 1195, Unit: fact.UnitCount,
		Sentence: "Headcount reached 1,195.",
	}
	bd := b.Bind(claim, recs)

	assert.True(t, bd.Matched)
}

func TestBindCurrencyRounding(t *testing.T) {
	b := New(policy.Default().Tolerance)
	recs := []fact.StructuredRecord{record("lmis_fin_001", "LMIS", "lmis_finance_2024",
		testRow("revenue_m", fact.Float(3.22)))}

	claim := fact.NumericClaim{
		RawToken: "3.2", Value: 3.2, Unit: fact.UnitCurrency,
		Sentence: "Revenue came in at $3.2 million.",
	}
	bd := b.Bind(claim, recs)

	assert.Equal(t, fact.BindRoundingMismatch, bd.Reason)
	assert.Equal(t, "replace 3.2 with 3.22, source lmis_fin_001", bd.Hint)
}

func TestBindDerivedRecompute(t *testing.T) {
	b := New(policy.Default().Tolerance)
	rec := fact.StructuredRecord{
		RefID:   "lmis_drv_001",
		Unit:    fact.UnitPercent,
		Derived: true,
		Rows: []fact.Row{testRow(
			"a", fact.Float(200),
			"b", fact.Float(800),
			"a_share", fact.Float(10),
		)},
		Provenance: fact.Provenance{Source: "LMIS", DatasetID: "lmis_mix_2024"},
	}

	claim := fact.NumericClaim{
		RawToken: "10%", Value: 10, Unit: fact.UnitPercent,
		Sentence: "Component A holds 10% of the total.",
	}
	bindings, issues := b.BindAll([]fact.NumericClaim{claim}, []fact.StructuredRecord{rec})

	bd := bindings[0]
	assert.True(t, bd.Matched, "the stale stored share still matches")
	assert.True(t, bd.DerivedChecked)
	assert.False(t, bd.DerivedConsistent)
	assert.InDelta(t, 20.0, bd.RecomputedValue, 1e-9)
	assert.Equal(t, "replace 10% with 20%, source lmis_drv_001", bd.Hint)

	require.Len(t, issues, 1)
	assert.Equal(t, CodeDerived, issues[0].Code)
	assert.Equal(t, fact.SeverityWarning, issues[0].Severity)
}

func TestBindDerivedConsistent(t *testing.T) {
	b := New(policy.Default().Tolerance)
	rec := fact.StructuredRecord{
		RefID:   "lmis_drv_001",
		Unit:    fact.UnitPercent,
		Derived: true,
		Rows: []fact.Row{testRow(
			"a", fact.Float(200),
			"b", fact.Float(800),
			"a_share", fact.Float(20),
		)},
		Provenance: fact.Provenance{Source: "LMIS", DatasetID: "lmis_mix_2024"},
	}

	claim := fact.NumericClaim{
		RawToken: "20%", Value: 20, Unit: fact.UnitPercent,
		Sentence: "Component A holds 20% of the total.",
	}
	bindings, issues := b.BindAll([]fact.NumericClaim{claim}, []fact.StructuredRecord{rec})

	bd := bindings[0]
	assert.True(t, bd.Matched)
	assert.True(t, bd.DerivedChecked)
	assert.True(t, bd.DerivedConsistent)
	assert.Empty(t, issues)
}

func TestBindNoCandidates(t *testing.T) {
	b := New(policy.Default().Tolerance)
	recs := []fact.StructuredRecord{record("lmis_txt_001", "LMIS", "lmis_notes_2024",
		testRow("note", fact.String("no numbers here")))}

	bindings, issues := b.BindAll([]fact.NumericClaim{percentClaim("15%", 15)}, recs)

	bd := bindings[0]
	assert.False(t, bd.Matched)
	assert.Equal(t, fact.BindNoCandidates, bd.Reason)
	assert.Empty(t, bd.CandidateIDs)

	require.Len(t, issues, 1)
	assert.Equal(t, CodeNotFound, issues[0].Code)
	assert.Equal(t, fact.SeverityError, issues[0].Severity)
}

func TestBindAmbiguousSeverityConfigurable(t *testing.T) {
	rules := policy.Default().Tolerance
	rules.AmbiguousSeverity = "error"
	b := New(rules)
	recs := []fact.StructuredRecord{
		percentRecord("lmis_a_001", 30),
		percentRecord("lmis_b_001", 30),
	}

	_, issues := b.BindAll([]fact.NumericClaim{percentClaim("30%", 30)}, recs)

	require.Len(t, issues, 1)
	assert.Equal(t, fact.SeverityError, issues[0].Severity)
}

func TestBindAllKeepsClaimOrder(t *testing.T) {
	b := New(policy.Default().Tolerance)
	recs := []fact.StructuredRecord{percentRecord("lmis_ret_001", 87.5)}
	claims := []fact.NumericClaim{
		percentClaim("87.5%", 87.5),
		percentClaim("50%", 50),
	}

	bindings, issues := b.BindAll(claims, recs)

	require.Len(t, bindings, 2)
	assert.True(t, bindings[0].Matched)
	assert.False(t, bindings[1].Matched)
	require.Len(t, issues, 1)
	assert.Equal(t, "50%", issues[0].Details["claim"])
}
