package extract

import (
	"math"
	"strings"
	"unicode"

	"github.com/roach88/receipts/internal/fact"
	"github.com/roach88/receipts/internal/policy"
)

// Extractor produces numeric claims from narrative text.
//
// Thread safety: stateless after construction, safe for concurrent use.
type Extractor struct {
	rules         policy.ExtractRules
	labels        *LabelTable
	percentWords  map[string]bool
	currencyWords map[string]bool
	currencySyms  []string
	ignore        map[string]bool
}

// New builds an extractor. Citation rules supply the source-label
// allow-list and synonym table used for attribution capture.
func New(rules policy.ExtractRules, citation policy.CitationRules) *Extractor {
	e := &Extractor{
		rules:         rules,
		labels:        NewLabelTable(citation.AllowedPrefixes, citation.Synonyms),
		percentWords:  make(map[string]bool),
		currencyWords: make(map[string]bool),
		ignore:        make(map[string]bool),
	}
	for _, m := range rules.PercentMarkers {
		// The literal '%' form is recognized by the scanner itself.
		if isLetters(m) {
			e.percentWords[strings.ToLower(m)] = true
		}
	}
	for _, m := range rules.CurrencyMarkers {
		if isLetters(m) {
			e.currencyWords[strings.ToLower(m)] = true
		} else if m != "" {
			e.currencySyms = append(e.currencySyms, m)
		}
	}
	for _, tok := range rules.IgnoreTokens {
		e.ignore[tok] = true
	}
	return e
}

// Extract returns every numeric claim in text, in source order. Pure
// function of (text, rules): identical input yields an identical claim
// sequence.
func (e *Extractor) Extract(text string) []fact.NumericClaim {
	toks := scan(text)
	var claims []fact.NumericClaim
	for i, tok := range toks {
		if tok.kind != tokenNumber {
			continue
		}
		if e.ignore[tok.raw] {
			continue
		}
		if identifierAdjacent(text, tok.start, tok.end) {
			continue
		}
		if listMarker(text, tok) {
			continue
		}
		unit := e.classify(text, toks, i)
		if e.skipYear(tok, unit) {
			continue
		}
		// MinValue filters incidental small counts ("3 key findings");
		// percent and currency amounts are material at any magnitude.
		if unit == fact.UnitCount && math.Abs(tok.value) < e.rules.MinValue {
			continue
		}

		sentence, sentStart, sentEnd := sentenceAt(text, tok.start, e.rules.ContextWindow)
		prefix := e.citationPrefix(text, tok.start)
		refID := e.referenceID(text, toks, i, sentStart, sentEnd)

		claims = append(claims, fact.NumericClaim{
			RawToken:       tok.raw,
			Value:          tok.value,
			Unit:           unit,
			Span:           fact.Span{Start: tok.start, End: tok.end},
			Sentence:       sentence,
			CitationPrefix: prefix,
			ReferenceID:    refID,
			SourceFamily:   familyOf(refID, prefix),
		})
	}
	return claims
}

func (e *Extractor) classify(text string, toks []token, i int) fact.Unit {
	tok := toks[i]
	if tok.percent || e.percentAfter(text, toks, i) {
		return fact.UnitPercent
	}
	// Range form "10-15%": the left bound inherits the right bound's unit.
	if i+1 < len(toks) && tok.end < len(text) && text[tok.end] == '-' {
		n := toks[i+1]
		if n.kind == tokenNumber && n.start == tok.end+1 &&
			(n.percent || e.percentAfter(text, toks, i+1)) {
			return fact.UnitPercent
		}
	}
	if e.currencyNear(text, toks, i) {
		return fact.UnitCurrency
	}
	return fact.UnitCount
}

// percentAfter handles detached forms: "87.5 %" and "87.5 percent".
func (e *Extractor) percentAfter(text string, toks []token, i int) bool {
	tok := toks[i]
	if strings.HasPrefix(text[tok.end:], " %") {
		return true
	}
	if i+1 < len(toks) {
		w := toks[i+1]
		if w.kind == tokenWord && w.start <= tok.end+2 && gapIsSpace(text, tok.end, w.start) {
			return e.percentWords[strings.ToLower(w.raw)]
		}
	}
	return false
}

func (e *Extractor) currencyNear(text string, toks []token, i int) bool {
	tok := toks[i]
	if e.symbolBefore(text, tok.start) {
		return true
	}
	// Up to two following words, same line: "1,200 dollars" and
	// "3.2 million euros".
	seen := 0
	for j := i + 1; j < len(toks) && seen < 2; j++ {
		w := toks[j]
		if w.kind != tokenWord || w.start > tok.end+20 {
			break
		}
		if strings.Contains(text[tok.end:w.start], "\n") {
			break
		}
		if e.currencyWords[strings.ToLower(w.raw)] {
			return true
		}
		seen++
	}
	// One preceding word: "USD 1,200".
	if i > 0 {
		w := toks[i-1]
		if w.kind == tokenWord && tok.start-w.end <= 2 && gapIsSpace(text, w.end, tok.start) &&
			e.currencyWords[strings.ToLower(w.raw)] {
			return true
		}
	}
	return false
}

// symbolBefore checks for a currency symbol directly before the number,
// with at most one intervening space: "$1,234" and "£ 950".
func (e *Extractor) symbolBefore(text string, start int) bool {
	j := start
	if j > 0 && text[j-1] == ' ' {
		j--
	}
	for _, sym := range e.currencySyms {
		if strings.HasSuffix(text[:j], sym) {
			return true
		}
	}
	return false
}

func (e *Extractor) skipYear(tok token, unit fact.Unit) bool {
	if !e.rules.SkipYears || unit != fact.UnitCount {
		return false
	}
	if len(tok.raw) != 4 || !allDigits(tok.raw) {
		return false
	}
	v := int(tok.value)
	return v >= e.rules.YearMin && v <= e.rules.YearMax
}

// citationPrefix finds the nearest recognized source label preceding
// the claim within the bounded context window.
func (e *Extractor) citationPrefix(text string, at int) string {
	if e.labels.Empty() {
		return ""
	}
	lo := at - e.rules.ContextWindow
	if lo < 0 {
		lo = 0
	}
	canonical, _, ok := e.labels.NearestBefore(text[lo:at])
	if !ok {
		return ""
	}
	return canonical
}

// referenceID finds the structured id cited with the claim. An explicit
// "QID:"-style marker is trusted over shape heuristics; otherwise the
// nearest id-shaped token in the claim's sentence wins, with preceding
// tokens breaking distance ties.
func (e *Extractor) referenceID(text string, toks []token, i, sentStart, sentEnd int) string {
	tok := toks[i]

	lo, hi := i, i
	for lo > 0 && toks[lo-1].start >= sentStart {
		lo--
	}
	for hi+1 < len(toks) && toks[hi+1].end <= sentEnd {
		hi++
	}

	for j := lo; j <= hi; j++ {
		w := toks[j]
		if w.kind != tokenWord || !strings.EqualFold(w.raw, "qid") {
			continue
		}
		if j+1 <= hi {
			v := toks[j+1]
			if v.kind == tokenWord && len(v.raw) >= 3 && separatorGap(text, w.end, v.start) {
				return v.raw
			}
		}
	}

	bestID := ""
	bestDist := -1
	for j := lo; j <= hi; j++ {
		w := toks[j]
		if w.kind != tokenWord || !idShaped(w.raw, e.rules.MinRefIDLength) {
			continue
		}
		var d int
		if w.start >= tok.end {
			d = w.start - tok.end
		} else {
			d = tok.start - w.end
		}
		if bestDist < 0 || d < bestDist {
			bestDist, bestID = d, w.raw
		}
	}
	return bestID
}

// idShaped: word tokens already restrict the charset to letters, digits,
// and underscores; an underscore plus a leading letter separates ids
// from prose at any realistic minimum length.
func idShaped(s string, minLen int) bool {
	if len(s) < minLen || !strings.ContainsRune(s, '_') {
		return false
	}
	c := s[0]
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func familyOf(refID, prefix string) string {
	if refID != "" {
		if i := strings.IndexByte(refID, '_'); i > 0 {
			return strings.ToLower(refID[:i])
		}
		return strings.ToLower(refID)
	}
	if prefix != "" {
		return strings.ToLower(prefix)
	}
	return ""
}

// listMarker spots ordered-list prefixes like "3." or "7)" at the start
// of a line so they never count as claims.
func listMarker(text string, tok token) bool {
	if tok.decimal || tok.signed || tok.percent || tok.grouped || len(tok.raw) > 3 {
		return false
	}
	if tok.end >= len(text) || (text[tok.end] != '.' && text[tok.end] != ')') {
		return false
	}
	if tok.end+1 < len(text) && text[tok.end+1] != ' ' && text[tok.end+1] != '\n' {
		return false
	}
	j := tok.start
	for j > 0 && text[j-1] != '\n' {
		if text[j-1] != ' ' && text[j-1] != '\t' {
			return false
		}
		if tok.start-j > 16 {
			return false
		}
		j--
	}
	return true
}

func separatorGap(text string, from, to int) bool {
	if to-from > 3 {
		return false
	}
	for j := from; j < to; j++ {
		switch text[j] {
		case ' ', ':', '=', '\t':
		default:
			return false
		}
	}
	return true
}

func gapIsSpace(text string, from, to int) bool {
	for j := from; j < to; j++ {
		if text[j] != ' ' && text[j] != '\t' {
			return false
		}
	}
	return true
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return len(s) > 0
}

func isLetters(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return len(s) > 0
}
