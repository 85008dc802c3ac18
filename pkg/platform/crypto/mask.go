package crypto

import (
	"strings"
	"unicode"
)

const maskRune = 'X'

// minMaskPrefix keeps very short values from being shown in full.
const minMaskPrefix = 4

// Mask hides all but the trailing visible runes of value. The result is
// deterministic for a given (value length, suffix), so it doubles as an
// equality-indexable shortlist key for the encrypted column it accompanies.
func Mask(value string, visible int) string {
	if value == "" {
		return ""
	}
	runes := []rune(value)
	if visible < 0 {
		visible = 0
	}
	if len(runes) <= visible {
		visible = len(runes) / 2
	}
	prefix := len(runes) - visible
	if prefix < minMaskPrefix {
		prefix = minMaskPrefix
	}
	return strings.Repeat(string(maskRune), prefix) + string(runes[len(runes)-visible:])
}

// Suffix returns the trailing n runes of value, or value itself when shorter.
func Suffix(value string, n int) string {
	runes := []rune(value)
	if n >= len(runes) {
		return value
	}
	return string(runes[len(runes)-n:])
}

// DigitsOnly strips everything but ASCII digits.
func DigitsOnly(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// UpperAlnum uppercases value and strips everything but ASCII letters and digits.
func UpperAlnum(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range strings.ToUpper(value) {
		if r < unicode.MaxASCII && (unicode.IsDigit(r) || unicode.IsUpper(r)) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
