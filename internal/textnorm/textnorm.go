// Package textnorm prepares document text and dictionary entries for
// whole-word matching.
package textnorm

import (
	"regexp"
	"strings"
)

var (
	punctuation = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// Normalize lowercases s, removes punctuation and collapses whitespace.
// Punctuation is deleted rather than replaced, so "CDU/CSU" becomes
// "cducsu" and "AfD-Fraktion" becomes "afdfraktion".
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ToLower(s)
	s = punctuation.ReplaceAllString(s, "")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Tokens splits normalized text into words.
func Tokens(normalized string) []string {
	return strings.Fields(normalized)
}
