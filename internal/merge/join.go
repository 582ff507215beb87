package merge

import "strings"

// closingTokens attach to the previous word without a leading space.
var closingTokens = map[string]struct{}{
	".": {}, ",": {}, "!": {}, "?": {}, ";": {}, ":": {},
	")": {}, "]": {}, "}": {}, `"`: {}, "'": {},
}

// openingTokens are bracket/quote tokens that open a group.
var openingTokens = map[string]struct{}{
	"(": {}, "[": {}, "{": {}, `"`: {}, "'": {},
}

// joinWords renders turn text with punctuation-aware spacing: closing
// punctuation binds to the previous token, everything else is separated by
// a single space. Runs of spaces collapse and the result is trimmed.
func joinWords(words []LabelledWord) string {
	var b strings.Builder
	first := true
	for _, w := range words {
		text := w.Text
		if text == "" {
			continue
		}

		if first {
			b.WriteString(text)
			first = false
			continue
		}

		if _, closing := closingTokens[text]; closing {
			b.WriteString(text)
			continue
		}
		if _, opening := openingTokens[text]; opening {
			b.WriteString(" ")
			b.WriteString(text)
			continue
		}
		b.WriteString(" ")
		b.WriteString(text)
	}

	result := b.String()
	for strings.Contains(result, "  ") {
		result = strings.ReplaceAll(result, "  ", " ")
	}
	return strings.TrimSpace(result)
}
