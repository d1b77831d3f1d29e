// Package slug normalizes titles and usernames into URL-safe identifiers.
package slug

import (
	"strings"
	"unicode"
)

const Untitled = "untitled"

// Slugify lowercases s and collapses every run of non-alphanumeric
// characters into a single hyphen, trimming hyphens at both ends.
func Slugify(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pendingDash := false
	for _, r := range strings.ToLower(s) {
		if isAlnum(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	if b.Len() == 0 {
		return Untitled
	}
	return b.String()
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// CanonicalUsername is the stored form of a username: trimmed and lowercase.
func CanonicalUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
