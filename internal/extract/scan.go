package extract

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind uint8

const (
	tokenNumber tokenKind = iota
	tokenWord
)

// token is one lexical unit of narrative text. Number tokens carry the
// parsed value; word tokens carry identifier-style runs (letters, digits,
// underscores) so reference ids like "lmis_ret_001" stay whole and their
// digit runs never surface as numbers.
type token struct {
	kind  tokenKind
	raw   string
	start int // byte offset, half-open [start, end)
	end   int

	// number-only fields
	value   float64
	percent bool // '%' directly attached
	signed  bool
	decimal bool
	grouped bool // contained thousands separators
}

// NumberToken is one number found by the scanner, for callers that need
// raw numeric occurrences without claim filtering (table cells, bullet
// sums).
type NumberToken struct {
	Raw     string
	Value   float64
	Percent bool
	Start   int
	End     int
}

// ScanNumbers returns every number token in text, in order.
func ScanNumbers(text string) []NumberToken {
	var out []NumberToken
	for _, t := range scan(text) {
		if t.kind != tokenNumber {
			continue
		}
		out = append(out, NumberToken{
			Raw:     t.raw,
			Value:   t.value,
			Percent: t.percent,
			Start:   t.start,
			End:     t.end,
		})
	}
	return out
}

// scan walks text once, left to right, emitting word and number tokens
// in source order. It never backtracks past a token boundary.
func scan(text string) []token {
	var toks []token
	i := 0
	for i < len(text) {
		c := text[i]
		switch {
		case isDigit(c):
			tok, next := scanNumber(text, i)
			toks = append(toks, tok)
			i = next
		case (c == '-' || c == '+') && i+1 < len(text) && isDigit(text[i+1]) && !alnumBefore(text, i):
			tok, next := scanNumber(text, i)
			toks = append(toks, tok)
			i = next
		case isWordStart(text, i):
			tok, next := scanWord(text, i)
			toks = append(toks, tok)
			i = next
		default:
			_, size := utf8.DecodeRuneInString(text[i:])
			i += size
		}
	}
	return toks
}

// scanNumber consumes sign, digit groups with thousands separators, an
// optional decimal part, and a directly attached '%'.
func scanNumber(text string, start int) (token, int) {
	tok := token{kind: tokenNumber, start: start}
	i := start

	var clean strings.Builder
	if text[i] == '-' || text[i] == '+' {
		tok.signed = true
		if text[i] == '-' {
			clean.WriteByte('-')
		}
		i++
	}

	for i < len(text) && isDigit(text[i]) {
		clean.WriteByte(text[i])
		i++
	}

	// A comma is a thousands separator only when followed by exactly
	// three digits: "1,234" groups, "1,23" and "1,2345" do not.
	for i < len(text) && text[i] == ',' && hasGroupAt(text, i+1) {
		clean.WriteString(text[i+1 : i+4])
		i += 4
		tok.grouped = true
	}

	if i+1 < len(text) && text[i] == '.' && isDigit(text[i+1]) {
		clean.WriteByte('.')
		i++
		for i < len(text) && isDigit(text[i]) {
			clean.WriteByte(text[i])
			i++
		}
		tok.decimal = true
	}

	if i < len(text) && text[i] == '%' {
		tok.percent = true
		i++
	}

	tok.end = i
	tok.raw = text[start:i]
	tok.value, _ = strconv.ParseFloat(clean.String(), 64)
	return tok, i
}

// scanWord consumes an identifier-style run: leading letter or
// underscore, then letters, digits, and underscores.
func scanWord(text string, start int) (token, int) {
	i := start
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			break
		}
		i += size
	}
	return token{kind: tokenWord, raw: text[start:i], start: start, end: i}, i
}

func hasGroupAt(text string, i int) bool {
	if i+3 > len(text) {
		return false
	}
	for j := i; j < i+3; j++ {
		if !isDigit(text[j]) {
			return false
		}
	}
	// A fourth digit means this was not a 3-digit group.
	return i+3 == len(text) || !isDigit(text[i+3])
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isWordStart(text string, i int) bool {
	c := text[i]
	if c < utf8.RuneSelf {
		return c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return unicode.IsLetter(r)
}

// alnumBefore reports whether the rune ending at byte i is a letter or
// digit. Used to tell a sign from a hyphen: "-3" after a space is
// signed, "x-3" and "10-15" are not.
func alnumBefore(text string, i int) bool {
	r, size := utf8.DecodeLastRuneInString(text[:i])
	if size == 0 {
		return false
	}
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// identifierAdjacent reports whether a number token sits inside an
// identifier such as "ret-001" or "q3_2024". A hyphen counts only when
// its far side is a letter, so numeric ranges like "10-15%" survive.
func identifierAdjacent(text string, start, end int) bool {
	if start > 0 {
		switch text[start-1] {
		case '_':
			return true
		case '-':
			if r, size := utf8.DecodeLastRuneInString(text[:start-1]); size > 0 && unicode.IsLetter(r) {
				return true
			}
		default:
			if r, size := utf8.DecodeLastRuneInString(text[:start]); size > 0 && unicode.IsLetter(r) {
				return true
			}
		}
	}
	if end < len(text) {
		switch text[end] {
		case '_':
			return true
		case '-':
			if r, size := utf8.DecodeRuneInString(text[end+1:]); size > 0 && unicode.IsLetter(r) {
				return true
			}
		default:
			if r, size := utf8.DecodeRuneInString(text[end:]); size > 0 && unicode.IsLetter(r) {
				return true
			}
		}
	}
	return false
}
