package telegram

import (
	"strings"
	"unicode/utf8"
)

const truncatedSuffix = "\n\n... (truncated)"

// inlineCode wraps s in a Markdown code span. Backticks inside s would close
// the span early, so they are swapped for quotes.
func inlineCode(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "'") + "`"
}

// truncate cuts text to at most maxLen runes, marking the cut.
func truncate(text string, maxLen int) string {
	if utf8.RuneCountInString(text) <= maxLen {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxLen-utf8.RuneCountInString(truncatedSuffix)]) + truncatedSuffix
}
