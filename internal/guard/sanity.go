package guard

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/roach88/receipts/internal/fact"
	"github.com/roach88/receipts/internal/policy"
)

// Issue codes raised by the sanity layer.
const (
	CodeNonNumeric   = "NON_NUMERIC_VALUE"
	CodeNegative     = "NEGATIVE_VALUE"
	CodeRateRange    = "RATE_OUT_OF_RANGE"
	CodeBelowMin     = "BELOW_MIN"
	CodeAboveMax     = "ABOVE_MAX"
	CodeStale        = "STALE_RECORD"
	CodeBadFreshness = "UNPARSEABLE_FRESHNESS"
)

// freshnessLayouts are the accepted as-of date forms, tried in order.
var freshnessLayouts = []string{"2006-01-02", time.RFC3339}

type bound struct {
	key   string
	limit float64
}

// SanityChecker validates record values against range rules and record
// freshness against an age limit.
type SanityChecker struct {
	rules    policy.SanityRules
	negative []string
	rates    []string
	minimums []bound
	maximums []bound
}

// NewSanity builds a checker. Field matching is by lowercased substring,
// so a "rate" rule covers churn_rate and retention_rate alike. Bounds
// are sorted by key to keep issue order stable.
func NewSanity(rules policy.SanityRules) *SanityChecker {
	s := &SanityChecker{
		rules:    rules,
		minimums: sortedBounds(rules.MinValues),
		maximums: sortedBounds(rules.MaxValues),
	}
	for _, f := range rules.DisallowNegative {
		s.negative = append(s.negative, strings.ToLower(f))
	}
	for _, f := range rules.RateFields {
		s.rates = append(s.rates, strings.ToLower(f))
	}
	return s
}

func sortedBounds(m map[string]float64) []bound {
	out := make([]bound, 0, len(m))
	for k, v := range m {
		out = append(out, bound{key: strings.ToLower(k), limit: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}

// Check validates every record's values and freshness. now anchors the
// staleness window; pass the request clock rather than wall time so
// replays stay deterministic.
func (s *SanityChecker) Check(records []fact.StructuredRecord, now time.Time) []fact.Issue {
	var issues []fact.Issue
	for ri := range records {
		rec := &records[ri]
		issues = append(issues, s.checkValues(rec)...)
		issues = append(issues, s.checkFreshness(rec, now)...)
	}
	return issues
}

func (s *SanityChecker) checkValues(rec *fact.StructuredRecord) []fact.Issue {
	var issues []fact.Issue
	for ri, row := range rec.Rows {
		row.Fields(func(key string, v fact.Scalar) bool {
			name := strings.ToLower(key)
			loc := fmt.Sprintf("rows[%d].%s", ri, key)
			num, numeric := fact.Numeric(v)
			if !numeric {
				// Null cells are explicitly absent; only typed
				// non-numbers in a constrained field are suspect.
				if _, isNull := v.(fact.Null); !isNull && s.constrained(name) {
					issues = append(issues, recIssue(rec, CodeNonNumeric, fact.SeverityWarning,
						fmt.Sprintf("%s %s holds %s, expected a number", rec.Identity(), loc, fact.DisplayScalar(v)),
						map[string]string{"location": loc, "value": fact.DisplayScalar(v)}))
				}
				return true
			}
			if containsAny(name, s.negative) && num < 0 {
				issues = append(issues, recIssue(rec, CodeNegative, fact.SeverityError,
					fmt.Sprintf("%s %s is negative: %s", rec.Identity(), loc, formatNum(num)),
					map[string]string{"location": loc, "value": formatNum(num)}))
			}
			if containsAny(name, s.rates) && (num < 0 || num > 1) {
				issues = append(issues, recIssue(rec, CodeRateRange, fact.SeverityError,
					fmt.Sprintf("%s %s is %s, rates must lie in [0,1]", rec.Identity(), loc, formatNum(num)),
					map[string]string{"location": loc, "value": formatNum(num)}))
			}
			if b, ok := findBound(name, s.minimums); ok && num < b.limit {
				issues = append(issues, recIssue(rec, CodeBelowMin, fact.SeverityError,
					fmt.Sprintf("%s %s is %s, minimum for %q fields is %s", rec.Identity(), loc, formatNum(num), b.key, formatNum(b.limit)),
					map[string]string{"location": loc, "value": formatNum(num), "bound": formatNum(b.limit)}))
			}
			if b, ok := findBound(name, s.maximums); ok && num > b.limit {
				issues = append(issues, recIssue(rec, CodeAboveMax, fact.SeverityError,
					fmt.Sprintf("%s %s is %s, maximum for %q fields is %s", rec.Identity(), loc, formatNum(num), b.key, formatNum(b.limit)),
					map[string]string{"location": loc, "value": formatNum(num), "bound": formatNum(b.limit)}))
			}
			return true
		})
	}
	return issues
}

// checkFreshness validates the as-of date, falling back to the refresh
// timestamp when no reporting date is given.
func (s *SanityChecker) checkFreshness(rec *fact.StructuredRecord, now time.Time) []fact.Issue {
	stamp := rec.Freshness.AsOf
	if stamp == "" {
		stamp = rec.Freshness.UpdatedAt
	}
	if stamp == "" {
		return nil
	}
	at, err := parseWhen(stamp)
	if err != nil {
		return []fact.Issue{recIssue(rec, CodeBadFreshness, fact.SeverityWarning,
			fmt.Sprintf("%s freshness %q is not a date", rec.Identity(), stamp),
			map[string]string{"value": stamp})}
	}
	if s.rules.MaxAgeDays <= 0 {
		return nil
	}
	age := now.Sub(at)
	limit := time.Duration(s.rules.MaxAgeDays) * 24 * time.Hour
	if age <= limit {
		return nil
	}
	days := int(age.Hours() / 24)
	return []fact.Issue{recIssue(rec, CodeStale, fact.SeverityWarning,
		fmt.Sprintf("%s data is %d days old (as of %s), limit is %d", rec.Identity(), days, stamp, s.rules.MaxAgeDays),
		map[string]string{"as_of": stamp, "age_days": fmt.Sprintf("%d", days)})}
}

func (s *SanityChecker) constrained(name string) bool {
	if containsAny(name, s.negative) || containsAny(name, s.rates) {
		return true
	}
	if _, ok := findBound(name, s.minimums); ok {
		return true
	}
	_, ok := findBound(name, s.maximums)
	return ok
}

func containsAny(name string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(name, n) {
			return true
		}
	}
	return false
}

func findBound(name string, bounds []bound) (bound, bool) {
	for _, b := range bounds {
		if b.key != "" && strings.Contains(name, b.key) {
			return b, true
		}
	}
	return bound{}, false
}

func parseWhen(s string) (time.Time, error) {
	for _, layout := range freshnessLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func recIssue(rec *fact.StructuredRecord, code string, sev fact.Severity, msg string, details map[string]string) fact.Issue {
	if details == nil {
		details = map[string]string{}
	}
	details["record"] = rec.Identity()
	return fact.Issue{
		Layer:    fact.LayerSanity,
		Code:     code,
		Message:  msg,
		Severity: sev,
		Details:  details,
	}
}
