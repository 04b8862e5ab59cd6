// Package mathcheck verifies the narrative's own arithmetic: percent
// breakdowns in bullet runs must sum to 100, and Markdown table total
// rows must equal the sum of their sibling rows.
package mathcheck

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/roach88/receipts/internal/extract"
	"github.com/roach88/receipts/internal/fact"
	"github.com/roach88/receipts/internal/policy"
)

// Issue codes raised by the math layer.
const (
	CodePercentSum = "PERCENT_SUM_MISMATCH"
	CodeTableTotal = "TABLE_TOTAL_MISMATCH"
)

// Check is one named consistency verification with its outcome.
type Check struct {
	Name     string    `json:"name"`
	Pass     bool      `json:"pass"`
	Expected float64   `json:"expected"`
	Observed float64   `json:"observed"`
	Values   []float64 `json:"values,omitempty"`
	Detail   string    `json:"detail,omitempty"`
}

// Checker scans narrative text for internally checkable arithmetic.
// Stateless after construction, safe for concurrent use.
type Checker struct {
	rules policy.MathRules
}

// New builds a checker from math rules.
func New(rules policy.MathRules) *Checker {
	return &Checker{rules: rules}
}

// Run executes every check found in the text. Checks are reported pass
// or fail; only failures become issues.
func (c *Checker) Run(text string) ([]Check, []fact.Issue) {
	lines := extract.SplitLines(text)

	var checks []Check
	checks = append(checks, c.bulletRuns(lines)...)
	checks = append(checks, c.tables(lines)...)

	var issues []fact.Issue
	for _, ck := range checks {
		if ck.Pass {
			continue
		}
		issues = append(issues, c.issueFor(ck))
	}
	return checks, issues
}

// bulletRuns sums runs of two or more consecutive bullet lines that
// each carry a percent value. Only the first percent per line counts,
// so parentheticals like "(up 3%)" cannot skew the sum.
func (c *Checker) bulletRuns(lines []extract.Line) []Check {
	var checks []Check
	var values []float64
	runStart := -1
	runIdx := 0

	flush := func(end int) {
		if len(values) >= 2 {
			runIdx++
			sum := 0.0
			for _, v := range values {
				sum += v
			}
			diff := math.Abs(sum - 100)
			checks = append(checks, Check{
				Name:     fmt.Sprintf("bullet_percent_sum_%d", runIdx),
				Pass:     diff <= c.rules.PercentSumTolerance,
				Expected: 100,
				Observed: sum,
				Values:   values,
				Detail:   fmt.Sprintf("lines %d-%d", runStart+1, end+1),
			})
		}
		values = nil
		runStart = -1
	}

	for i, line := range lines {
		if !line.Bullet {
			flush(i - 1)
			continue
		}
		pct, ok := firstPercent(line.Text)
		if !ok {
			flush(i - 1)
			continue
		}
		if runStart < 0 {
			runStart = i
		}
		values = append(values, pct)
	}
	flush(len(lines) - 1)
	return checks
}

func firstPercent(line string) (float64, bool) {
	for _, n := range extract.ScanNumbers(line) {
		if n.Percent {
			return n.Value, true
		}
	}
	return 0, false
}

func (c *Checker) issueFor(ck Check) fact.Issue {
	details := map[string]string{
		"check":    ck.Name,
		"expected": formatFloat(ck.Expected),
		"observed": formatFloat(ck.Observed),
	}
	if ck.Detail != "" {
		details["at"] = ck.Detail
	}

	if strings.HasPrefix(ck.Name, "bullet") {
		return fact.Issue{
			Layer:    fact.LayerMath,
			Code:     CodePercentSum,
			Message:  fmt.Sprintf("bullet percents sum to %s, expected 100", formatFloat(ck.Observed)),
			Severity: fact.SeverityWarning,
			Details:  details,
		}
	}
	return fact.Issue{
		Layer:    fact.LayerMath,
		Code:     CodeTableTotal,
		Message:  fmt.Sprintf("%s: rows sum to %s, total row states %s", ck.Name, formatFloat(ck.Observed), formatFloat(ck.Expected)),
		Severity: fact.SeverityError,
		Details:  details,
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
