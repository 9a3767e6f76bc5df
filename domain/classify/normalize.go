package classify

import (
	"strings"
	"unicode"
)

// Normalize lowercases text and keeps only word characters (letters, digits,
// combining marks and '_') of any script, so "금칙어!!" and "금 칙 어" compare
// equal while Jamo, Cyrillic or Kana survive.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if keepRune(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func keepRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}
