package cardtext

import (
	stdhtml "html"
	"strings"
)

// Normalize lowercases s and reduces it to a canonical matching form:
// HTML entities are unescaped, every rune outside [a-z0-9/-] and whitespace
// is replaced with a space, and whitespace runs are collapsed. The result is
// suitable for substring matching between transcripts and card answer terms.
//
// Slashes and hyphens survive so terms like "ultra-reliable" and "m2m/iot"
// keep their shape.
func Normalize(s string) string {
	s = strings.ToLower(stdhtml.UnescapeString(s))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '/' || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
