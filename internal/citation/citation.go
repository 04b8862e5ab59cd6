// Package citation enforces source-attribution policy over extracted
// claims: every numeric claim must trace to an allow-listed source, and
// strict contexts additionally require a structured reference id.
package citation

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/roach88/receipts/internal/extract"
	"github.com/roach88/receipts/internal/fact"
	"github.com/roach88/receipts/internal/policy"
)

// Issue codes raised by the citation layer.
const (
	CodeUncited       = "UNCITED_CLAIM"
	CodeMalformed     = "MALFORMED_CITATION"
	CodeMissingID     = "MISSING_QID"
	CodeUnknownSource = "UNKNOWN_SOURCE"
)

// attributionMarkers are phrases that signal an attempted citation.
// A marker only counts when followed by a capitalized word, so "per
// capita" and "per month" stay out of the malformed bucket.
var attributionMarkers = []string{"per ", "according to ", "source:", "cited by ", "reported by "}

// Enforcer applies citation rules. Stateless after construction, safe
// for concurrent use.
type Enforcer struct {
	rules  policy.CitationRules
	labels *extract.LabelTable
}

// NewEnforcer builds an enforcer from citation rules.
func NewEnforcer(rules policy.CitationRules) *Enforcer {
	return &Enforcer{
		rules:  rules,
		labels: extract.NewLabelTable(rules.AllowedPrefixes, rules.Synonyms),
	}
}

// Check enforces citation policy for every claim against the supplied
// records. Each claim lands in exactly one bucket: cited, uncited, or
// malformed; cited claims may additionally raise missing-id or
// unknown-source issues.
func (e *Enforcer) Check(text string, claims []fact.NumericClaim, records []fact.StructuredRecord) (fact.CitationReport, []fact.Issue) {
	start := time.Now()
	lines := extract.SplitLines(text)

	report := fact.CitationReport{
		Total:       len(claims),
		SourceUsage: make(map[string]int),
	}
	var issues []fact.Issue

	for _, claim := range claims {
		source := claim.CitationPrefix
		if source == "" {
			// The extractor only looks back, so a trailing "(LMIS)"
			// in the same sentence is still local context here.
			source, _ = e.labels.Contains(claim.Sentence)
		}
		if source == "" {
			source = e.bulletFallback(lines, claim)
		}

		if source == "" {
			if attributionShaped(claim.Sentence) {
				report.Malformed++
				issues = append(issues, claimIssue(claim, CodeMalformed, fact.SeverityError,
					fmt.Sprintf("claim %q attributes an unrecognized source", claim.RawToken)))
			} else {
				report.Uncited++
				issues = append(issues, claimIssue(claim, CodeUncited, fact.SeverityError,
					fmt.Sprintf("claim %q has no source attribution", claim.RawToken)))
			}
			continue
		}

		report.Cited++
		report.SourceUsage[source]++

		if e.idRequired(claim.Sentence) && claim.ReferenceID == "" {
			report.MissingID++
			is := claimIssue(claim, CodeMissingID, policy.ParseSeverity(e.rules.MissingIDSeverity),
				fmt.Sprintf("claim %q cites %s without a reference id", claim.RawToken, source))
			is.Details["source"] = source
			issues = append(issues, is)
		}

		if !e.sourceKnown(source, records) {
			is := claimIssue(claim, CodeUnknownSource, fact.SeverityError,
				fmt.Sprintf("cited source %s matches no supplied record", source))
			is.Details["source"] = source
			issues = append(issues, is)
		}
	}

	if len(report.SourceUsage) == 0 {
		report.SourceUsage = nil
	}
	report.OK = !fact.HasError(issues)
	report.RuntimeMS = time.Since(start).Milliseconds()
	return report, issues
}

// bulletFallback searches bullet lines within the configured window of
// the claim's line, nearest first, for a recognized source label. The
// claim's own line is distance zero.
func (e *Enforcer) bulletFallback(lines []extract.Line, claim fact.NumericClaim) string {
	if e.rules.BulletWindow <= 0 || e.labels.Empty() {
		return ""
	}
	at := lineIndex(lines, claim.Span.Start)
	if at < 0 {
		return ""
	}
	for dist := 0; dist <= e.rules.BulletWindow; dist++ {
		candidates := []int{at - dist, at + dist}
		if dist == 0 {
			candidates = candidates[:1]
		}
		for _, j := range candidates {
			if j < 0 || j >= len(lines) || !lines[j].Bullet {
				continue
			}
			if canonical, ok := e.labels.Contains(lines[j].Text); ok {
				return canonical
			}
		}
	}
	return ""
}

func (e *Enforcer) idRequired(sentence string) bool {
	if e.rules.RequireReferenceID {
		return true
	}
	lower := strings.ToLower(sentence)
	for _, kw := range e.rules.StrictKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// sourceKnown verifies the cited source against supplied record
// provenance via the configured dataset patterns. Sources without a
// configured mapping are not checkable and pass.
func (e *Enforcer) sourceKnown(source string, records []fact.StructuredRecord) bool {
	patterns := e.rules.SourceDatasets[source]
	if len(patterns) == 0 {
		return true
	}
	for _, rec := range records {
		for _, pat := range patterns {
			if pat == "" {
				continue
			}
			if strings.Contains(strings.ToLower(rec.Provenance.DatasetID), strings.ToLower(pat)) {
				return true
			}
			if strings.EqualFold(rec.Provenance.Source, pat) {
				return true
			}
		}
	}
	return false
}

func lineIndex(lines []extract.Line, pos int) int {
	i := sort.Search(len(lines), func(i int) bool { return lines[i].End >= pos })
	if i >= len(lines) {
		return -1
	}
	return i
}

func attributionShaped(sentence string) bool {
	lower := strings.ToLower(sentence)
	for _, marker := range attributionMarkers {
		from := 0
		for {
			at := strings.Index(lower[from:], marker)
			if at < 0 {
				break
			}
			rest := sentence[from+at+len(marker):]
			if r := firstNonSpace(rest); unicode.IsUpper(r) {
				return true
			}
			from += at + len(marker)
		}
	}
	return false
}

func firstNonSpace(s string) rune {
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if r != ' ' && r != '\t' {
			return r
		}
		s = s[size:]
	}
	return 0
}

func claimIssue(claim fact.NumericClaim, code string, sev fact.Severity, msg string) fact.Issue {
	return fact.Issue{
		Layer:    fact.LayerCitation,
		Code:     code,
		Message:  msg,
		Severity: sev,
		Details: map[string]string{
			"claim":    claim.RawToken,
			"offset":   strconv.Itoa(claim.Span.Start),
			"sentence": claim.Sentence,
		},
	}
}
