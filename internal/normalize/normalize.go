// Package normalize canonicalizes client-supplied identifiers before validation.
package normalize

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Tag canonicalizes an enumerated tag such as a task type or category.
// "  Couple " -> "couple", full-width "ＴＲＵＴＨ" -> "truth".
// Unknown values are returned normalized but otherwise untouched so the
// validator can reject them.
func Tag(s string) string {
	s = norm.NFKC.String(s)
	return strings.ToLower(strings.TrimSpace(s))
}

// Owner trims surrounding whitespace from an owner identifier.
// Owners are opaque, so nothing else is rewritten.
func Owner(s string) string {
	return strings.TrimSpace(s)
}
