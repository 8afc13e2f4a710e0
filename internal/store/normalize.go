package store

import (
	"regexp"
	"strings"
)

// CRS sector names arrive with enumeration prefixes such as "II.1." or
// "III.2.a." and occasionally a stray single-letter bullet. Stripping them is
// a data-boundary concern: everything past this package sees clean names.
var (
	romanPrefix  = regexp.MustCompile(`(?i)^[IVX]+\.(\d+[a-z]*\.?)?\s*`)
	letterPrefix = regexp.MustCompile(`(?i)^[a-z]\.\s*`)
)

// NormalizeSector strips enumeration prefixes and surrounding whitespace
// from a raw sector label. "all" and empty pass through unchanged.
func NormalizeSector(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "all") {
		return "all"
	}
	s = romanPrefix.ReplaceAllString(s, "")
	s = letterPrefix.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// NormalizeEntity canonicalizes an entity key for case-insensitive matching.
func NormalizeEntity(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
