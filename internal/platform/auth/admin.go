package auth

import (
	"crypto/subtle"
	"strings"
)

// SecretMatches compares a presented shared secret against the configured one
// in constant time. An empty configured secret never matches.
func SecretMatches(configured, presented string) bool {
	configured = strings.TrimSpace(configured)
	presented = strings.TrimSpace(presented)
	if configured == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(presented)) == 1
}
