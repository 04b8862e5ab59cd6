package extract

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// LabelTable normalizes source attributions against the citation
// allow-list and synonym table. Built once from policy, read-only after;
// safe for concurrent use.
type LabelTable struct {
	entries []labelEntry
}

type labelEntry struct {
	text      string // as matched in narrative, case-insensitive
	canonical string // allow-list form reported on the claim
}

// NewLabelTable builds a table from allowed prefixes plus synonym
// aliases. A synonym maps narrative phrasing ("Labour Market Survey")
// to its canonical prefix ("LMIS").
func NewLabelTable(allowed []string, synonyms map[string]string) *LabelTable {
	entries := make([]labelEntry, 0, len(allowed)+len(synonyms))
	for _, p := range allowed {
		if p != "" {
			entries = append(entries, labelEntry{text: p, canonical: p})
		}
	}
	for alias, target := range synonyms {
		if alias != "" && target != "" {
			entries = append(entries, labelEntry{text: alias, canonical: target})
		}
	}
	// Longest first so "LMIS Survey" beats "LMIS" at the same position;
	// text order after that keeps iteration deterministic regardless of
	// map order.
	sort.Slice(entries, func(i, j int) bool {
		if len(entries[i].text) != len(entries[j].text) {
			return len(entries[i].text) > len(entries[j].text)
		}
		return entries[i].text < entries[j].text
	})
	return &LabelTable{entries: entries}
}

// Empty reports whether no labels are configured.
func (t *LabelTable) Empty() bool { return len(t.entries) == 0 }

// NearestBefore finds the label occurrence closest to the end of window,
// returning its canonical form and end offset. Longer labels win ties at
// the same end position.
func (t *LabelTable) NearestBefore(window string) (canonical string, end int, ok bool) {
	best := -1
	for _, e := range t.entries {
		at := lastFoldIndex(window, e.text)
		for at >= 0 && !wordBounded(window, at, at+len(e.text)) {
			at = lastFoldIndex(window[:at], e.text)
		}
		if at < 0 {
			continue
		}
		if stop := at + len(e.text); stop > best {
			best = stop
			canonical = e.canonical
		}
	}
	return canonical, best, best >= 0
}

// Contains reports the first configured label appearing in s.
func (t *LabelTable) Contains(s string) (canonical string, ok bool) {
	for _, e := range t.entries {
		at := foldIndex(s, e.text)
		for at >= 0 && !wordBounded(s, at, at+len(e.text)) {
			rest := foldIndex(s[at+1:], e.text)
			if rest < 0 {
				at = -1
				break
			}
			at = at + 1 + rest
		}
		if at >= 0 {
			return e.canonical, true
		}
	}
	return "", false
}

// ContainsWord reports whether word occurs in text as a whole word,
// case-insensitively. Shared by segment narrowing so it can never
// disagree with label matching on what a word boundary is.
func ContainsWord(text, word string) bool {
	at := foldIndex(text, word)
	for at >= 0 && !wordBounded(text, at, at+len(word)) {
		rest := foldIndex(text[at+1:], word)
		if rest < 0 {
			return false
		}
		at = at + 1 + rest
	}
	return at >= 0
}

// Canonical normalizes an exact label string, reporting whether it is
// recognized at all.
func (t *LabelTable) Canonical(label string) (string, bool) {
	for _, e := range t.entries {
		if strings.EqualFold(e.text, label) {
			return e.canonical, true
		}
	}
	return "", false
}

// lastFoldIndex is a bounded case-insensitive LastIndex. Byte offsets
// refer to s itself, so multibyte text stays addressable; labels that
// change byte length under case folding simply never match, which is
// acceptable for source acronyms.
func lastFoldIndex(s, sub string) int {
	if sub == "" || len(sub) > len(s) {
		return -1
	}
	for i := len(s) - len(sub); i >= 0; i-- {
		if strings.EqualFold(s[i:i+len(sub)], sub) {
			return i
		}
	}
	return -1
}

func foldIndex(s, sub string) int {
	if sub == "" || len(sub) > len(s) {
		return -1
	}
	for i := 0; i+len(sub) <= len(s); i++ {
		if strings.EqualFold(s[i:i+len(sub)], sub) {
			return i
		}
	}
	return -1
}

// wordBounded checks that s[start:end] does not sit inside a larger
// word: "LMIS" must not match inside "XLMISX".
func wordBounded(s string, start, end int) bool {
	if r, size := utf8.DecodeLastRuneInString(s[:start]); size > 0 {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	if r, size := utf8.DecodeRuneInString(s[end:]); size > 0 {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
