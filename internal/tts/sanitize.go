package tts

import (
	"strings"
	"unicode"
)

// Sanitize strips control and other non-printable runes, trims the
// result, and truncates it to maxLen runes on a word boundary with an
// ellipsis. Applying it twice yields the same output as once.
func Sanitize(text string, maxLen int) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	out := strings.TrimSpace(b.String())

	if maxLen <= 0 {
		return out
	}
	runes := []rune(out)
	if len(runes) <= maxLen {
		return out
	}

	// Leave room for the ellipsis so the truncated form passes through
	// unchanged on a second pass.
	cut := maxLen - 3
	if cut < 1 {
		cut = 1
	}
	head := string(runes[:cut])
	if i := strings.LastIndex(head, " "); i > 0 {
		head = head[:i]
	}
	return strings.TrimSpace(head) + "..."
}
