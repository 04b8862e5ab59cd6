package guard

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/roach88/receipts/internal/fact"
	"github.com/roach88/receipts/internal/policy"
)

// Issue codes raised by the privacy layer.
const (
	CodeEmailRedacted = "EMAIL_REDACTED"
	CodeIDRedacted    = "PII_ID_REDACTED"
	CodeNameRedacted  = "NAME_REDACTED"
	CodeKAnonymity    = "K_ANONYMITY_VIOLATION"
)

// Replacement tokens. Issues never carry the original text.
const (
	maskEmail = "[redacted-email]"
	maskID    = "[redacted-id]"
	maskName  = "[redacted-name]"
)

// Redactor rewrites narrative text with personal information masked and
// checks published group sizes against the k-anonymity floor.
type Redactor struct {
	rules      policy.PrivacyRules
	honorifics map[string]bool
	connectors map[string]bool
	keep       []string
}

// NewRedactor builds a redactor. keep lists phrases that must survive
// name redaction untouched, typically the citation source labels, so a
// source called "Labour Market Survey" is never mistaken for a person.
func NewRedactor(rules policy.PrivacyRules, keep []string) *Redactor {
	r := &Redactor{
		rules:      rules,
		honorifics: map[string]bool{},
		connectors: map[string]bool{},
	}
	for _, h := range rules.Honorifics {
		r.honorifics[strings.ToLower(strings.TrimSuffix(h, "."))] = true
	}
	for _, c := range rules.NameConnectors {
		r.connectors[strings.ToLower(c)] = true
	}
	for _, k := range keep {
		if k = strings.TrimSpace(k); k != "" {
			r.keep = append(r.keep, k)
		}
	}
	return r
}

// span is one region of text to replace. Offsets index the original.
type span struct {
	start, end int
	code       string
	mask       string
}

// Redact returns text with emails, long digit ids, and capitalized
// names masked, plus one issue per redaction. Allow-listed roles get
// the text back untouched. Issue offsets index the original text.
func (r *Redactor) Redact(text, role string) (string, []fact.Issue) {
	if r.rules.RoleAllowed(role) {
		return text, nil
	}

	var accepted []span
	add := func(spans []span) {
		for _, s := range spans {
			if !overlaps(accepted, s) {
				accepted = append(accepted, s)
			}
		}
	}
	if r.rules.RedactEmails {
		add(emailSpans(text))
	}
	if r.rules.MinIDDigits > 0 {
		add(idSpans(text, r.rules.MinIDDigits))
	}
	if r.rules.RedactNames {
		add(r.nameSpans(text))
	}
	if len(accepted) == 0 {
		return text, nil
	}
	sort.Slice(accepted, func(i, j int) bool { return accepted[i].start < accepted[j].start })

	var b strings.Builder
	b.Grow(len(text))
	issues := make([]fact.Issue, 0, len(accepted))
	last := 0
	for _, s := range accepted {
		b.WriteString(text[last:s.start])
		b.WriteString(s.mask)
		last = s.end
		issues = append(issues, fact.Issue{
			Layer:    fact.LayerPrivacy,
			Code:     s.code,
			Message:  fmt.Sprintf("redacted %s at offset %d", kindOf(s.code), s.start),
			Severity: fact.SeverityWarning,
			Details:  map[string]string{"offset": fmt.Sprintf("%d", s.start)},
		})
	}
	b.WriteString(text[last:])
	return b.String(), issues
}

func kindOf(code string) string {
	switch code {
	case CodeEmailRedacted:
		return "an email address"
	case CodeIDRedacted:
		return "a numeric identifier"
	default:
		return "a personal name"
	}
}

func overlaps(accepted []span, s span) bool {
	for _, a := range accepted {
		if s.start < a.end && a.start < s.end {
			return true
		}
	}
	return false
}

// emailSpans finds local@domain shapes. The domain must contain a dot
// and end alphanumeric, so a trailing sentence period stays outside.
func emailSpans(text string) []span {
	var out []span
	for i := 0; i < len(text); i++ {
		if text[i] != '@' {
			continue
		}
		j := i
		for j > 0 && isEmailLocal(text[j-1]) {
			j--
		}
		k := i + 1
		for k < len(text) && isEmailDomain(text[k]) {
			k++
		}
		for k > i+1 && !isAlnum(text[k-1]) {
			k--
		}
		domain := text[i+1 : k]
		if j < i && strings.Contains(domain, ".") && !strings.HasPrefix(domain, ".") {
			out = append(out, span{start: j, end: k, code: CodeEmailRedacted, mask: maskEmail})
			i = k
		}
	}
	return out
}

// idSpans finds digit runs, hyphens allowed between digits, carrying at
// least minDigits digits. Comma-grouped metric values split into short
// runs and stay untouched.
func idSpans(text string, minDigits int) []span {
	var out []span
	for i := 0; i < len(text); i++ {
		if !isDigit(text[i]) {
			continue
		}
		start, digits := i, 0
		k := i
		for k < len(text) {
			if isDigit(text[k]) {
				digits++
				k++
			} else if text[k] == '-' && k+1 < len(text) && isDigit(text[k+1]) {
				k++
			} else {
				break
			}
		}
		if digits >= minDigits {
			out = append(out, span{start: start, end: k, code: CodeIDRedacted, mask: maskID})
		}
		i = k
	}
	return out
}

func isEmailLocal(c byte) bool {
	return isAlnum(c) || c == '.' || c == '_' || c == '%' || c == '+' || c == '-'
}

func isEmailDomain(c byte) bool {
	return isAlnum(c) || c == '.' || c == '-'
}

func isAlnum(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// CheckGroupSizes flags group-size fields whose value sits below the
// k-anonymity floor. Zero-size groups pass: they describe nobody.
func (r *Redactor) CheckGroupSizes(records []fact.StructuredRecord) []fact.Issue {
	if r.rules.KAnonymityMin <= 0 {
		return nil
	}
	var issues []fact.Issue
	for ri := range records {
		rec := &records[ri]
		for rowIdx, row := range rec.Rows {
			row.Fields(func(key string, v fact.Scalar) bool {
				name := strings.ToLower(key)
				if !r.groupField(name) {
					return true
				}
				num, ok := fact.Numeric(v)
				if !ok || num <= 0 || num >= float64(r.rules.KAnonymityMin) {
					return true
				}
				loc := fmt.Sprintf("rows[%d].%s", rowIdx, key)
				issues = append(issues, fact.Issue{
					Layer:    fact.LayerPrivacy,
					Code:     CodeKAnonymity,
					Message:  fmt.Sprintf("%s %s is %s, below the k-anonymity floor %d", rec.Identity(), loc, formatNum(num), r.rules.KAnonymityMin),
					Severity: fact.SeverityError,
					Details: map[string]string{
						"record":   rec.Identity(),
						"location": loc,
						"value":    formatNum(num),
					},
				})
				return true
			})
		}
	}
	return issues
}

func (r *Redactor) groupField(name string) bool {
	for _, g := range r.rules.GroupSizeFields {
		if g != "" && strings.Contains(name, strings.ToLower(g)) {
			return true
		}
	}
	return false
}

// word is one letter run in the narrative, apostrophes included.
type word struct {
	text       string
	start, end int
}

// nameSpans finds runs of two or more capitalized words, allowing an
// honorific prefix and lowercase connectors ("Ludwig van Beethoven").
// An honorific plus a single capitalized word also counts. Sequences
// matching a keep phrase are skipped.
func (r *Redactor) nameSpans(text string) []span {
	words := splitWords(text)
	var out []span

	for i := 0; i < len(words); i++ {
		start := i
		honor := false
		if r.honorifics[strings.ToLower(words[i].text)] && i+1 < len(words) &&
			r.gapOK(text, words[i], words[i+1], true) && capitalized(words[i+1].text) {
			honor = true
			i++
		} else if !capitalized(words[i].text) {
			continue
		}

		capCount := 0
		lastCap := -1
		for i < len(words) {
			if capitalized(words[i].text) {
				capCount++
				lastCap = i
				if i+1 < len(words) && r.gapOK(text, words[i], words[i+1], false) {
					next := words[i+1]
					if capitalized(next.text) {
						i++
						continue
					}
					if r.connectors[next.text] && i+2 < len(words) &&
						r.gapOK(text, next, words[i+2], false) && capitalized(words[i+2].text) {
						i += 2
						continue
					}
				}
			}
			break
		}
		if lastCap < 0 {
			continue
		}

		first := words[start]
		if !honor && capCount >= 2 && leadingStopword(first.text) {
			first = words[start+1]
			capCount--
		}
		if capCount >= 2 || (honor && capCount >= 1) {
			s := span{start: first.start, end: words[lastCap].end, code: CodeNameRedacted, mask: maskName}
			if !r.protected(text[s.start:s.end]) {
				out = append(out, s)
			}
		}
		i = lastCap
	}
	return out
}

// gapOK reports whether two words are close enough to belong to one
// name: separated by spaces only, or by a period directly after an
// honorific ("Dr. Sarah").
func (r *Redactor) gapOK(text string, a, b word, afterHonorific bool) bool {
	gap := text[a.end:b.start]
	if len(gap) == 0 || len(gap) > 2 {
		return false
	}
	for i := 0; i < len(gap); i++ {
		switch gap[i] {
		case ' ':
		case '.':
			if !afterHonorific || i != 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func (r *Redactor) protected(s string) bool {
	for _, k := range r.keep {
		if foldContains(s, k) {
			return true
		}
	}
	return false
}

func foldContains(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// capitalized reports a leading-uppercase word of at least two runes
// that is not an acronym. All-caps tokens like "LMIS" stay untouched.
func capitalized(w string) bool {
	runes := []rune(w)
	if len(runes) < 2 || !unicode.IsUpper(runes[0]) {
		return false
	}
	for _, c := range runes[1:] {
		if unicode.IsLower(c) {
			return true
		}
	}
	return false
}

// leadingStopword marks sentence-initial capitals that are articles or
// pronouns rather than name parts.
func leadingStopword(w string) bool {
	switch strings.ToLower(w) {
	case "the", "a", "an", "in", "on", "at", "by", "per", "our", "we",
		"this", "these", "it", "he", "she", "they", "as", "for", "with":
		return true
	}
	return false
}

// splitWords tokenizes letter runs, keeping apostrophes inside a word
// so "O'Brien" stays whole.
func splitWords(text string) []word {
	var out []word
	start := -1
	for i, c := range text {
		letter := unicode.IsLetter(c)
		if !letter && c == '\'' && start >= 0 {
			letter = true
		}
		if letter {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			out = append(out, word{text: text[start:i], start: start, end: i})
			start = -1
		}
	}
	if start >= 0 {
		out = append(out, word{text: text[start:], start: start, end: len(text)})
	}
	return out
}
