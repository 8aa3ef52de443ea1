// Package slug normalizes natural-language labels into stable matching keys.
package slug

import "strings"

// Slugify lowercases value and collapses every run of characters outside [a-z0-9] and the CJK
// unified ideographs U+4E00..U+9FA5 into a single hyphen. Leading and trailing hyphens are dropped.
//
// The extractor and every downstream matcher must go through this function so the same label
// always maps to the same key.
func Slugify(value string) string {
	var b strings.Builder
	b.Grow(len(value))

	gap := false
	for _, r := range strings.ToLower(value) {
		if !keep(r) {
			gap = true
			continue
		}
		if gap && b.Len() > 0 {
			b.WriteByte('-')
		}
		gap = false
		b.WriteRune(r)
	}
	return b.String()
}

func keep(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r >= 0x4E00 && r <= 0x9FA5:
		return true
	}
	return false
}
