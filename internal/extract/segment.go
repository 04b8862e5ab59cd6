package extract

import "strings"

// Line is one physical line of narrative text with its byte span.
type Line struct {
	Text   string // without the trailing newline
	Start  int
	End    int
	Bullet bool
}

// SplitLines splits text on newlines and marks Markdown list items:
// "- ", "* ", "• ", or a short numbered prefix like "3. " / "3) ".
// Blank lines are kept because they break bullet-run adjacency.
func SplitLines(text string) []Line {
	var lines []Line
	start := 0
	for start < len(text) {
		end := strings.IndexByte(text[start:], '\n')
		if end < 0 {
			lines = append(lines, makeLine(text, start, len(text)))
			break
		}
		lines = append(lines, makeLine(text, start, start+end))
		start += end + 1
	}
	return lines
}

func makeLine(text string, start, end int) Line {
	t := text[start:end]
	return Line{Text: t, Start: start, End: end, Bullet: isBulletLine(t)}
}

func isBulletLine(line string) bool {
	s := strings.TrimLeft(line, " \t")
	if s == "" {
		return false
	}
	if strings.HasPrefix(s, "- ") || strings.HasPrefix(s, "* ") {
		return true
	}
	if strings.HasPrefix(s, "•") {
		return true
	}
	// Numbered item: up to three digits, then '.' or ')', then a space.
	i := 0
	for i < len(s) && i < 3 && isDigit(s[i]) {
		i++
	}
	if i == 0 || i >= len(s) {
		return false
	}
	if s[i] != '.' && s[i] != ')' {
		return false
	}
	return i+1 < len(s) && s[i+1] == ' '
}

// sentenceAt returns the sentence containing byte position pos, bounded
// to window bytes on each side. Boundaries are newlines or '.', '!',
// '?' followed by whitespace, so decimals like "87.5" never split.
func sentenceAt(text string, pos, window int) (string, int, int) {
	if pos > len(text) {
		pos = len(text)
	}
	lo := pos - window
	if lo < 0 {
		lo = 0
	}
	hi := pos + window
	if hi > len(text) {
		hi = len(text)
	}

	start := lo
	for j := pos - 1; j >= lo; j-- {
		c := text[j]
		if c == '\n' {
			start = j + 1
			break
		}
		if isSentenceEnd(text, j) {
			start = j + 1
			break
		}
	}

	end := hi
	for j := pos; j < hi; j++ {
		c := text[j]
		if c == '\n' {
			end = j
			break
		}
		if isSentenceEnd(text, j) {
			end = j + 1
			break
		}
	}

	return strings.TrimSpace(text[start:end]), start, end
}

func isSentenceEnd(text string, i int) bool {
	c := text[i]
	if c != '.' && c != '!' && c != '?' {
		return false
	}
	if i+1 >= len(text) {
		return true
	}
	next := text[i+1]
	return next == ' ' || next == '\t' || next == '\n'
}
