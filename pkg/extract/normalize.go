package extract

import (
	"strings"
	"unicode"
)

// normalizeTextPreserveNewlines strips invisible formatting runes and
// control characters, collapses horizontal whitespace within each line and
// keeps at most one blank line between paragraphs.
func normalizeTextPreserveNewlines(text string) string {
	text = strings.ToValidUTF8(text, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var cleaned strings.Builder
	cleaned.Grow(len(text))
	for _, r := range text {
		switch {
		case r == '\n':
			cleaned.WriteRune(r)
		case unicode.Is(unicode.Cf, r):
		case unicode.IsSpace(r), unicode.IsControl(r):
			cleaned.WriteByte(' ')
		default:
			cleaned.WriteRune(r)
		}
	}

	lines := strings.Split(cleaned.String(), "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if len(out) > 0 {
				blank = true
			}
			continue
		}
		if blank {
			out = append(out, "")
			blank = false
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
