package mathcheck

import (
	"fmt"
	"math"
	"strings"

	"github.com/roach88/receipts/internal/extract"
)

// table is one parsed Markdown pipe table.
type table struct {
	header []string
	rows   [][]string
	line   int // index of the header line
}

// tables verifies every pipe table that carries a total-labeled row:
// per numeric column, the total cell must equal the sum of the sibling
// rows within tolerance. Percent columns use the percent tolerance.
func (c *Checker) tables(lines []extract.Line) []Check {
	var checks []Check
	for ti, tb := range parseTables(lines) {
		totalRow := c.totalRowIndex(tb.rows)
		if totalRow < 0 {
			continue
		}
		for col := 1; col < len(tb.header); col++ {
			ck, ok := c.checkColumn(tb, ti, totalRow, col)
			if ok {
				checks = append(checks, ck)
			}
		}
	}
	return checks
}

func (c *Checker) checkColumn(tb table, tableIdx, totalRow, col int) (Check, bool) {
	if col >= len(tb.rows[totalRow]) {
		return Check{}, false
	}
	total, totalPct, ok := parseCell(tb.rows[totalRow][col])
	if !ok {
		return Check{}, false
	}

	var sum float64
	var values []float64
	allPct := true
	for ri, row := range tb.rows {
		if ri == totalRow || col >= len(row) {
			continue
		}
		v, pct, ok := parseCell(row[col])
		if !ok {
			// Placeholder cells ("-", "n/a") do not disqualify the column.
			continue
		}
		sum += v
		values = append(values, v)
		allPct = allPct && pct
	}
	if len(values) == 0 {
		return Check{}, false
	}

	tolerance := c.rules.TableTolerance
	if totalPct || allPct {
		tolerance = c.rules.TablePercentTolerance
	}
	diff := math.Abs(total - sum)
	return Check{
		Name:     fmt.Sprintf("table%d_total_%s", tableIdx+1, columnName(tb.header, col)),
		Pass:     diff <= tolerance,
		Expected: total,
		Observed: sum,
		Values:   values,
		Detail:   fmt.Sprintf("line %d", tb.line+1),
	}, true
}

func (c *Checker) totalRowIndex(rows [][]string) int {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		label := strings.ToLower(row[0])
		for _, t := range c.rules.TotalLabels {
			if t != "" && strings.Contains(label, strings.ToLower(t)) {
				return i
			}
		}
	}
	return -1
}

// parseTables finds pipe tables by their header/separator pair and
// consumes data rows until the first non-pipe line.
func parseTables(lines []extract.Line) []table {
	var tables []table
	i := 0
	for i < len(lines)-1 {
		if !isPipeLine(lines[i].Text) || !isSeparatorLine(lines[i+1].Text) {
			i++
			continue
		}
		header := splitCells(lines[i].Text)
		if len(header) < 2 {
			i++
			continue
		}
		tb := table{header: header, line: i}
		j := i + 2
		for j < len(lines) && isPipeLine(lines[j].Text) && !isSeparatorLine(lines[j].Text) {
			tb.rows = append(tb.rows, splitCells(lines[j].Text))
			j++
		}
		if len(tb.rows) > 0 {
			tables = append(tables, tb)
		}
		i = j
	}
	return tables
}

func isPipeLine(s string) bool {
	return strings.Contains(s, "|")
}

// isSeparatorLine recognizes the header underline of a pipe table:
// pipes, dashes, alignment colons and spaces only.
func isSeparatorLine(s string) bool {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "-") || !strings.Contains(s, "|") {
		return false
	}
	for _, r := range s {
		switch r {
		case '|', '-', ':', ' ', '\t':
		default:
			return false
		}
	}
	return true
}

func splitCells(line string) []string {
	trimmed := strings.TrimSpace(line)
	trimmed = strings.TrimPrefix(trimmed, "|")
	trimmed = strings.TrimSuffix(trimmed, "|")
	parts := strings.Split(trimmed, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// parseCell extracts the cell's numeric value, tolerating currency
// symbols, thousands separators, and an attached percent sign.
func parseCell(cell string) (value float64, percent, ok bool) {
	nums := extract.ScanNumbers(cell)
	if len(nums) == 0 {
		return 0, false, false
	}
	return nums[0].Value, nums[0].Percent, true
}

func columnName(header []string, col int) string {
	if col < len(header) {
		if name := sanitizeName(header[col]); name != "" {
			return name
		}
	}
	return fmt.Sprintf("col%d", col+1)
}

// sanitizeName folds a header cell to a stable check-name fragment.
func sanitizeName(s string) string {
	var b strings.Builder
	lastUnder := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnder = false
		default:
			if !lastUnder {
				b.WriteByte('_')
				lastUnder = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
