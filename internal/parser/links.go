package parser

import (
	"fmt"
	"regexp"
	"strings"
)

// LinkMatcher decides whether a discovered link points at an article.
// Identifiers are substrings of the URL; an identifier prefixed with
// "re:" is a regular expression instead.
type LinkMatcher struct {
	substrings []string
	patterns   []*regexp.Regexp
}

// NewLinkMatcher compiles the identifier rules.
func NewLinkMatcher(identifiers []string) (*LinkMatcher, error) {
	m := &LinkMatcher{}
	for _, id := range identifiers {
		if pattern, ok := strings.CutPrefix(id, "re:"); ok {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return nil, fmt.Errorf("compile link identifier %q: %w", pattern, err)
			}
			m.patterns = append(m.patterns, re)
			continue
		}
		if id != "" {
			m.substrings = append(m.substrings, id)
		}
	}
	return m, nil
}

// Match reports whether link satisfies any identifier. A matcher without
// identifiers matches nothing.
func (m *LinkMatcher) Match(link string) bool {
	for _, s := range m.substrings {
		if strings.Contains(link, s) {
			return true
		}
	}
	for _, re := range m.patterns {
		if re.MatchString(link) {
			return true
		}
	}
	return false
}

// Filter returns the links that match, preserving order.
func (m *LinkMatcher) Filter(links []string) []string {
	var out []string
	for _, l := range links {
		if m.Match(l) {
			out = append(out, l)
		}
	}
	return out
}
