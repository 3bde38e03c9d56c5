package extract

import (
	"strings"
	"unicode/utf8"
)

// contextWindow is how many bytes of surrounding text are captured on
// each side of a match, before boundary adjustment.
const contextWindow = 100

// surroundingContext returns the text around [start, end), widened by
// contextWindow bytes per side and clamped to UTF-8 rune boundaries.
// Newlines become spaces and doubled spaces collapse so the context
// reads as one line.
func surroundingContext(text string, start, end int) string {
	from := start - contextWindow
	if from < 0 {
		from = 0
	}
	to := end + contextWindow
	if to > len(text) {
		to = len(text)
	}

	// Never slice mid-rune.
	for from > 0 && !utf8.RuneStart(text[from]) {
		from--
	}
	for to < len(text) && !utf8.RuneStart(text[to]) {
		to++
	}

	ctx := text[from:to]
	ctx = strings.ReplaceAll(ctx, "\n", " ")
	ctx = strings.ReplaceAll(ctx, "\r", " ")
	for strings.Contains(ctx, "  ") {
		ctx = strings.ReplaceAll(ctx, "  ", " ")
	}
	return strings.TrimSpace(ctx)
}
