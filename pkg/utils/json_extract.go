package utils

import (
	"strings"
	"unicode/utf8"
)

// ExtractJSONObject returns the first balanced {...} value in text, preferring
// a ```json fenced block when present. It returns "" when nothing balanced is found.
func ExtractJSONObject(text string) string {
	return extract(text, '{', '}')
}

// ExtractJSONArray is ExtractJSONObject for [...] values.
func ExtractJSONArray(text string) string {
	return extract(text, '[', ']')
}

func extract(text string, open, close byte) string {
	text = strings.TrimSpace(text)

	if start := strings.Index(text, "```json"); start != -1 {
		start += len("```json")
		if end := strings.Index(text[start:], "```"); end != -1 {
			if v := scanBalanced(strings.TrimSpace(text[start:start+end]), open, close); v != "" {
				return v
			}
		}
	}

	for start := strings.IndexByte(text, open); start != -1; {
		if v := balancedAt(text, start, open, close); v != "" {
			return v
		}
		next := strings.IndexByte(text[start+1:], open)
		if next == -1 {
			break
		}
		start += next + 1
	}
	return ""
}

func scanBalanced(s string, open, close byte) string {
	if start := strings.IndexByte(s, open); start != -1 {
		return balancedAt(s, start, open, close)
	}
	return ""
}

// balancedAt walks from s[start] (which must be open) to its matching close,
// skipping delimiters inside string literals.
func balancedAt(s string, start int, open, close byte) string {
	if start >= len(s) || s[start] != open {
		return ""
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch c {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// Truncate cuts s to at most maxLen bytes, backing off to a rune boundary,
// and marks the cut with "...".
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
