package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitLines(t *testing.T) {
	text := "Intro line\n- first item\n\n* second item\n• third item\n1. numbered\n12) also numbered\n1234. too long"
	lines := SplitLines(text)
	require.Len(t, lines, 8)

	wantBullet := []bool{false, true, false, true, true, true, true, false}
	for i, want := range wantBullet {
		assert.Equal(t, want, lines[i].Bullet, "line %d: %q", i, lines[i].Text)
	}

	// Spans slice back to the exact line text.
	for _, line := range lines {
		assert.Equal(t, line.Text, text[line.Start:line.End])
	}
}

func TestSplitLinesTrailingNewline(t *testing.T) {
	lines := SplitLines("only line\n")
	require.Len(t, lines, 1)
	assert.Equal(t, "only line", lines[0].Text)

	assert.Empty(t, SplitLines(""))
}

func TestSentenceAt(t *testing.T) {
	text := "First part here. The retention rate is 87.5% overall. Tail sentence."
	pos := strings.Index(text, "87.5")

	sentence, _, _ := sentenceAt(text, pos, 160)
	assert.Equal(t, "The retention rate is 87.5% overall.", sentence)
}

func TestSentenceAtDecimalNotSplit(t *testing.T) {
	text := "Growth reached 3.5 points before slowing."
	sentence, _, _ := sentenceAt(text, strings.Index(text, "3.5"), 160)
	assert.Equal(t, text, sentence)
}

func TestSentenceAtNewlineBoundary(t *testing.T) {
	text := "alpha line\nbeta holds 42 units\ngamma line"
	sentence, _, _ := sentenceAt(text, strings.Index(text, "42"), 160)
	assert.Equal(t, "beta holds 42 units", sentence)
}

func TestSentenceAtWindowBound(t *testing.T) {
	// No terminators anywhere: the window caps expansion.
	text := strings.Repeat("word ", 100)
	sentence, start, end := sentenceAt(text, 250, 60)
	assert.LessOrEqual(t, end-start, 120)
	assert.NotEmpty(t, sentence)
}
