package usecase

import "unicode"

// ChunkText splits long text into fragments of at most limit characters,
// preferring to cut at line breaks. The slice covers the input in order;
// leading whitespace at cut points is trimmed from the next fragment.
// Already-short text comes back as a single verbatim fragment.
func ChunkText(text string, limit int) []string {
	if limit < 1 {
		limit = 1
	}

	var fragments []string
	rest := []rune(text)
	for len(rest) > 0 {
		if len(rest) <= limit {
			fragments = append(fragments, string(rest))
			break
		}

		cut := limit
		if i := lastNewline(rest[:limit]); i > 0 {
			cut = i
		}
		fragments = append(fragments, string(rest[:cut]))
		rest = trimLeadingSpace(rest[cut:])
	}
	return fragments
}

func lastNewline(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == '\n' {
			return i
		}
	}
	return -1
}

func trimLeadingSpace(runes []rune) []rune {
	for len(runes) > 0 && unicode.IsSpace(runes[0]) {
		runes = runes[1:]
	}
	return runes
}
