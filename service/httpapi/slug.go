package httpapi

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// slugStripper removes diacritics so procedure names normalize to
// plain ASCII path segments.
var slugStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// slugify converts a procedure name fragment into a path segment:
// camelCase boundaries and separators become dashes, diacritics are
// stripped, everything else lowercases.
func slugify(name string) string {
	if stripped, _, err := transform.String(slugStripper, name); err == nil {
		name = stripped
	}

	var b strings.Builder
	prevLower := false
	prevDash := true // suppress a leading dash
	for _, r := range name {
		switch {
		case r >= 'A' && r <= 'Z':
			if prevLower && !prevDash {
				b.WriteByte('-')
			}
			b.WriteRune(unicode.ToLower(r))
			prevLower, prevDash = false, false
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
			prevLower, prevDash = r >= 'a' && r <= 'z', false
		case r == '_' || r == '-' || r == ' ' || r == '.' || r == '/':
			if !prevDash {
				b.WriteByte('-')
			}
			prevLower, prevDash = false, true
		}
	}
	return strings.TrimRight(b.String(), "-")
}
