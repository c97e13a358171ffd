package autopost

import (
	"strings"
	"unicode"
)

// Compose joins prefix, body and suffix with single spaces, dropping empty parts.
func Compose(prefix, body, suffix string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{prefix, body, suffix} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// TruncateAtWord shortens text to at most max runes. Leading whitespace is dropped, then
// the cut happens at the last whitespace boundary inside the limit so no word, hashtag
// or multi-byte character is split. A single token longer than max is cut at max runes.
func TruncateAtWord(text string, max int) string {
	if max <= 0 {
		return text
	}
	text = strings.TrimLeftFunc(text, unicode.IsSpace)
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	if unicode.IsSpace(runes[max]) {
		return strings.TrimRightFunc(string(runes[:max]), unicode.IsSpace)
	}
	for i := max - 1; i > 0; i-- {
		if unicode.IsSpace(runes[i]) {
			return strings.TrimRightFunc(string(runes[:i]), unicode.IsSpace)
		}
	}
	return string(runes[:max])
}

// fillTemplate replaces the {filename}, {stem} and {id} placeholders.
func fillTemplate(template, filename, stem, id string) string {
	return strings.NewReplacer(
		"{filename}", filename,
		"{stem}", stem,
		"{id}", id,
	).Replace(template)
}
