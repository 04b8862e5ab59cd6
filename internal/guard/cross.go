// Package guard holds the record-level verification layers: cross-source
// agreement, value sanity, and privacy redaction. Each checker is built
// once from its rule group and is safe for concurrent use.
package guard

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/receipts/internal/fact"
	"github.com/roach88/receipts/internal/policy"
)

// Issue code raised by the cross-source layer.
const CodeCrossMismatch = "CROSS_SOURCE_MISMATCH"

// CrossChecker compares sources reporting the same metric for the same
// segment.
type CrossChecker struct {
	rules policy.CrossRules
	canon map[string]string // lowercased field name -> canonical metric
}

// NewCross builds a checker. Metric aliases fold to their canonical
// name; unlisted fields compare under their own lowercased name.
func NewCross(rules policy.CrossRules) *CrossChecker {
	canon := make(map[string]string)
	for metric, aliases := range rules.MetricAliases {
		m := strings.ToLower(metric)
		canon[m] = m
		for _, a := range aliases {
			if a != "" {
				canon[strings.ToLower(a)] = m
			}
		}
	}
	return &CrossChecker{rules: rules, canon: canon}
}

type crossEntry struct {
	source  string
	value   float64
	percent bool
}

// Check indexes every record's numeric fields by (metric, segment) and
// flags source pairs disagreeing beyond the configured delta. Percent
// records compare in points after ratio values are scaled up; other
// units compare by relative difference, also expressed in percent so a
// single tolerance governs both. The first value per source wins within
// a bucket, keeping row order authoritative.
func (c *CrossChecker) Check(records []fact.StructuredRecord) []fact.Issue {
	type bucket struct {
		metric  string
		segment string
		entries []crossEntry
		seen    map[string]bool
	}
	buckets := make(map[string]*bucket)
	var order []string

	for ri := range records {
		rec := &records[ri]
		source := rec.Identity()
		isPct := rec.Unit == fact.UnitPercent
		for _, row := range rec.Rows {
			segment := c.segmentOf(row)
			row.Fields(func(key string, v fact.Scalar) bool {
				num, ok := fact.Numeric(v)
				if !ok {
					return true
				}
				if isPct {
					num = displayPercent(num)
				}
				metric := c.metricOf(key)
				id := metric + "\x00" + segment
				b := buckets[id]
				if b == nil {
					b = &bucket{metric: metric, segment: segment, seen: map[string]bool{}}
					buckets[id] = b
					order = append(order, id)
				}
				if !b.seen[source] {
					b.seen[source] = true
					b.entries = append(b.entries, crossEntry{source: source, value: num, percent: isPct})
				}
				return true
			})
		}
	}

	var issues []fact.Issue
	for _, id := range order {
		b := buckets[id]
		sort.Slice(b.entries, func(i, j int) bool { return b.entries[i].source < b.entries[j].source })
		for i := 0; i < len(b.entries); i++ {
			for j := i + 1; j < len(b.entries); j++ {
				a, o := b.entries[i], b.entries[j]
				delta := pairDelta(a, o)
				if delta <= c.rules.MaxPercentDelta {
					continue
				}
				issues = append(issues, fact.Issue{
					Layer:    fact.LayerCross,
					Code:     CodeCrossMismatch,
					Message:  fmt.Sprintf("%s and %s disagree on %s%s: %s vs %s", a.source, o.source, b.metric, segmentSuffix(b.segment), formatNum(a.value), formatNum(o.value)),
					Severity: fact.SeverityWarning,
					Details: map[string]string{
						"metric":  b.metric,
						"segment": b.segment,
						"sources": a.source + ", " + o.source,
						"delta":   formatNum(delta),
					},
				})
			}
		}
	}
	return issues
}

// pairDelta measures disagreement in percent terms: points apart when
// both sides carry percent units, relative difference otherwise.
func pairDelta(a, b crossEntry) float64 {
	if a.percent && b.percent {
		return math.Abs(a.value - b.value)
	}
	den := math.Max(math.Abs(a.value), math.Abs(b.value))
	if den == 0 {
		return 0
	}
	return math.Abs(a.value-b.value) / den * 100
}

func (c *CrossChecker) metricOf(field string) string {
	f := strings.ToLower(field)
	if m, ok := c.canon[f]; ok {
		return m
	}
	return f
}

// segmentOf returns the row's segment identity: the first configured
// segment key present with a string value, lowercased.
func (c *CrossChecker) segmentOf(row fact.Row) string {
	for _, key := range c.rules.SegmentKeys {
		if v, ok := row.Get(key); ok {
			if s, ok := v.(fact.String); ok {
				return strings.ToLower(strings.TrimSpace(string(s)))
			}
		}
	}
	return ""
}

// displayPercent scales ratio-form values into points, mirroring the
// binder's convention for percent comparison.
func displayPercent(v float64) float64 {
	if v >= -1 && v <= 1 {
		return v * 100
	}
	return v
}

func segmentSuffix(segment string) string {
	if segment == "" {
		return ""
	}
	return " (" + segment + ")"
}

func formatNum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
