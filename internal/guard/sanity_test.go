package guard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/receipts/internal/fact"
	"github.com/roach88/receipts/internal/policy"
)

var sanityNow = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func freshRecord(refID string, rows ...fact.Row) fact.StructuredRecord {
	rec := guardRecord(refID, fact.UnitCount, rows...)
	rec.Freshness.AsOf = "2024-12-01"
	return rec
}

func TestSanityNegativeValue(t *testing.T) {
	checker := NewSanity(policy.Default().Sanity)

	records := []fact.StructuredRecord{
		freshRecord("lmis_emp_001", guardRow("headcount", fact.Int(-4))),
	}

	issues := checker.Check(records, sanityNow)
	require.Len(t, issues, 1)
	assert.Equal(t, CodeNegative, issues[0].Code)
	assert.Equal(t, fact.SeverityError, issues[0].Severity)
	assert.Equal(t, fact.LayerSanity, issues[0].Layer)
	assert.Equal(t, "lmis_emp_001 rows[0].headcount is negative: -4", issues[0].Message)
	assert.Equal(t, "rows[0].headcount", issues[0].Details["location"])
	assert.Equal(t, "lmis_emp_001", issues[0].Details["record"])
}

func TestSanityNegativeAllowedElsewhere(t *testing.T) {
	checker := NewSanity(policy.Default().Sanity)

	// Deltas may be negative; only configured field families are bound.
	records := []fact.StructuredRecord{
		freshRecord("lmis_dlt_001", guardRow("change_pct", fact.Float(-3.5))),
	}

	assert.Empty(t, checker.Check(records, sanityNow))
}

func TestSanityRateOutOfRange(t *testing.T) {
	rules := policy.Default().Sanity
	rules.RateFields = []string{"rate"}
	checker := NewSanity(rules)

	records := []fact.StructuredRecord{
		freshRecord("lmis_chn_001",
			guardRow("churn_rate", fact.Float(1.2)),
			guardRow("churn_rate", fact.Float(0.4))),
	}

	issues := checker.Check(records, sanityNow)
	require.Len(t, issues, 1)
	assert.Equal(t, CodeRateRange, issues[0].Code)
	assert.Equal(t, "lmis_chn_001 rows[0].churn_rate is 1.2, rates must lie in [0,1]", issues[0].Message)
}

func TestSanityBelowMin(t *testing.T) {
	rules := policy.Default().Sanity
	rules.MinValues = map[string]float64{"age": 16}
	checker := NewSanity(rules)

	records := []fact.StructuredRecord{
		freshRecord("lmis_age_001", guardRow("median_age", fact.Int(3))),
	}

	issues := checker.Check(records, sanityNow)
	require.Len(t, issues, 1)
	assert.Equal(t, CodeBelowMin, issues[0].Code)
	assert.Equal(t, fact.SeverityError, issues[0].Severity)
	assert.Equal(t, "16", issues[0].Details["bound"])
}

func TestSanityAboveMax(t *testing.T) {
	rules := policy.Default().Sanity
	rules.MaxValues = map[string]float64{"percent": 100}
	checker := NewSanity(rules)

	records := []fact.StructuredRecord{
		freshRecord("lmis_shr_001", guardRow("share_percent", fact.Float(130))),
	}

	issues := checker.Check(records, sanityNow)
	require.Len(t, issues, 1)
	assert.Equal(t, CodeAboveMax, issues[0].Code)
	assert.Equal(t, "lmis_shr_001 rows[0].share_percent is 130, maximum for \"percent\" fields is 100", issues[0].Message)
}

func TestSanityNonNumericConstrainedField(t *testing.T) {
	rules := policy.Default().Sanity
	rules.RateFields = []string{"rate"}
	checker := NewSanity(rules)

	records := []fact.StructuredRecord{
		freshRecord("lmis_chn_001",
			guardRow("churn_rate", fact.String("n/a"), "note", fact.String("draft"))),
	}

	issues := checker.Check(records, sanityNow)
	require.Len(t, issues, 1)
	assert.Equal(t, CodeNonNumeric, issues[0].Code)
	assert.Equal(t, fact.SeverityWarning, issues[0].Severity)
	assert.Equal(t, `lmis_chn_001 rows[0].churn_rate holds "n/a", expected a number`, issues[0].Message)
}

func TestSanityNullCellPasses(t *testing.T) {
	rules := policy.Default().Sanity
	rules.RateFields = []string{"rate"}
	checker := NewSanity(rules)

	records := []fact.StructuredRecord{
		freshRecord("lmis_chn_001", guardRow("churn_rate", fact.Null{})),
	}

	assert.Empty(t, checker.Check(records, sanityNow))
}

func TestSanityStaleRecord(t *testing.T) {
	checker := NewSanity(policy.Default().Sanity)

	rec := guardRecord("lmis_old_001", fact.UnitCount, guardRow("employees", fact.Int(10)))
	rec.Freshness.AsOf = "2024-01-01"

	issues := checker.Check([]fact.StructuredRecord{rec}, sanityNow)
	require.Len(t, issues, 1)
	assert.Equal(t, CodeStale, issues[0].Code)
	assert.Equal(t, fact.SeverityWarning, issues[0].Severity)
	assert.Equal(t, "lmis_old_001 data is 366 days old (as of 2024-01-01), limit is 365", issues[0].Message)
	assert.Equal(t, "366", issues[0].Details["age_days"])
}

func TestSanityFreshRecordPasses(t *testing.T) {
	checker := NewSanity(policy.Default().Sanity)

	rec := guardRecord("lmis_new_001", fact.UnitCount, guardRow("employees", fact.Int(10)))
	rec.Freshness.AsOf = "2024-06-01"

	assert.Empty(t, checker.Check([]fact.StructuredRecord{rec}, sanityNow))
}

func TestSanityRFC3339Freshness(t *testing.T) {
	checker := NewSanity(policy.Default().Sanity)

	rec := guardRecord("lmis_new_001", fact.UnitCount, guardRow("employees", fact.Int(10)))
	rec.Freshness.AsOf = "2024-12-30T10:00:00Z"

	assert.Empty(t, checker.Check([]fact.StructuredRecord{rec}, sanityNow))
}

func TestSanityUnparseableFreshness(t *testing.T) {
	checker := NewSanity(policy.Default().Sanity)

	rec := guardRecord("lmis_q_001", fact.UnitCount, guardRow("employees", fact.Int(10)))
	rec.Freshness.AsOf = "Q3 2024"

	issues := checker.Check([]fact.StructuredRecord{rec}, sanityNow)
	require.Len(t, issues, 1)
	assert.Equal(t, CodeBadFreshness, issues[0].Code)
	assert.Equal(t, fact.SeverityWarning, issues[0].Severity)
	assert.Equal(t, "Q3 2024", issues[0].Details["value"])
}

func TestSanityUpdatedAtFallback(t *testing.T) {
	checker := NewSanity(policy.Default().Sanity)

	rec := guardRecord("lmis_upd_001", fact.UnitCount, guardRow("employees", fact.Int(10)))
	rec.Freshness.UpdatedAt = "2020-01-01"

	issues := checker.Check([]fact.StructuredRecord{rec}, sanityNow)
	require.Len(t, issues, 1)
	assert.Equal(t, CodeStale, issues[0].Code)
}

func TestSanityNoFreshnessSkipsAgeCheck(t *testing.T) {
	checker := NewSanity(policy.Default().Sanity)

	rec := guardRecord("lmis_bare_001", fact.UnitCount, guardRow("employees", fact.Int(10)))

	assert.Empty(t, checker.Check([]fact.StructuredRecord{rec}, sanityNow))
}

func TestSanityMaxAgeDisabled(t *testing.T) {
	rules := policy.Default().Sanity
	rules.MaxAgeDays = 0
	checker := NewSanity(rules)

	old := guardRecord("lmis_old_001", fact.UnitCount, guardRow("employees", fact.Int(10)))
	old.Freshness.AsOf = "2019-01-01"
	bad := guardRecord("lmis_bad_001", fact.UnitCount, guardRow("employees", fact.Int(10)))
	bad.Freshness.AsOf = "whenever"

	issues := checker.Check([]fact.StructuredRecord{old, bad}, sanityNow)
	require.Len(t, issues, 1)
	assert.Equal(t, CodeBadFreshness, issues[0].Code)
}

func TestSanityMultipleViolationsReported(t *testing.T) {
	rules := policy.Default().Sanity
	rules.RateFields = []string{"rate"}
	checker := NewSanity(rules)

	records := []fact.StructuredRecord{
		freshRecord("lmis_mix_001",
			guardRow("headcount", fact.Int(-2), "churn_rate", fact.Float(1.5))),
	}

	issues := checker.Check(records, sanityNow)
	require.Len(t, issues, 2)
	assert.Equal(t, CodeNegative, issues[0].Code)
	assert.Equal(t, CodeRateRange, issues[1].Code)
}
