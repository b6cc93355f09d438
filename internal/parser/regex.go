package parser

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/IshaanNene/mediabias/internal/config"
	"github.com/IshaanNene/mediabias/internal/types"
)

// RegexParser extracts data using regular expressions over the raw body.
// It is safe for concurrent use.
type RegexParser struct {
	logger *slog.Logger
	mu     sync.Mutex
	cache  map[string]*regexp.Regexp
}

// NewRegexParser creates a new regex parser.
func NewRegexParser(logger *slog.Logger) *RegexParser {
	return &RegexParser{
		logger: logger.With("component", "regex_parser"),
		cache:  make(map[string]*regexp.Regexp),
	}
}

// Parse implements Parser for regex rules.
func (p *RegexParser) Parse(resp *types.Response, rules []config.ParseRule, item *types.Item) error {
	body := string(resp.Body)
	var errs []string

	for _, rule := range rules {
		if rule.Type != "regex" {
			continue
		}

		re, err := p.getOrCompile(rule.Pattern)
		if err != nil {
			errs = append(errs, fmt.Sprintf("rule %q: %v", rule.Name, err))
			continue
		}
		setValues(item, rule, extractRegex(re, body))
	}

	if len(errs) > 0 {
		return &types.ParseError{
			URL: resp.Request.URLString(),
			Err: fmt.Errorf("regex errors: %s", strings.Join(errs, "; ")),
		}
	}
	return nil
}

// extractRegex returns the first capture group of every match, or the
// whole match when the pattern has no groups.
func extractRegex(re *regexp.Regexp, body string) []string {
	if re.NumSubexp() == 0 {
		return re.FindAllString(body, -1)
	}

	var values []string
	for _, match := range re.FindAllStringSubmatch(body, -1) {
		if len(match) > 1 && match[1] != "" {
			values = append(values, match[1])
		}
	}
	return values
}

// getOrCompile returns a cached compiled regex or compiles and caches a new one.
func (p *RegexParser) getOrCompile(pattern string) (*regexp.Regexp, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if re, ok := p.cache[pattern]; ok {
		return re, nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex %q: %w", pattern, err)
	}

	p.cache[pattern] = re
	return re, nil
}
