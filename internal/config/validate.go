package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/IshaanNene/mediabias/internal/types"
)

// Weekdays accepted by dataset week_start.
var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday resolves a week_start value. Empty means Monday.
func ParseWeekday(s string) (time.Weekday, bool) {
	if s == "" {
		return time.Monday, true
	}
	d, ok := weekdays[strings.ToLower(s)]
	return d, ok
}

func invalid(field, format string, args ...any) error {
	return &types.ConfigError{Field: field, Err: fmt.Errorf(format, args...)}
}

// Validate checks the configuration for invalid values. Every error it
// returns is a *types.ConfigError.
func Validate(cfg *Config) error {
	if cfg.Crawl.Concurrency < 1 {
		return invalid("crawl.concurrency", "must be >= 1, got %d", cfg.Crawl.Concurrency)
	}
	if cfg.Crawl.Concurrency > 1000 {
		return invalid("crawl.concurrency", "must be <= 1000, got %d", cfg.Crawl.Concurrency)
	}
	if cfg.Crawl.RequestTimeout <= 0 {
		return invalid("crawl.request_timeout", "must be > 0")
	}
	if cfg.Crawl.CycleTimeout < 0 {
		return invalid("crawl.cycle_timeout", "must be >= 0")
	}
	if cfg.Crawl.RequestsPerSecond < 0 {
		return invalid("crawl.requests_per_second", "must be >= 0")
	}
	if cfg.Crawl.MaxRetries < 0 {
		return invalid("crawl.max_retries", "must be >= 0, got %d", cfg.Crawl.MaxRetries)
	}
	if cfg.Crawl.MaxFailures < 0 {
		return invalid("crawl.max_failures", "must be >= 0, got %d", cfg.Crawl.MaxFailures)
	}

	if cfg.Fetcher.MaxBodySize <= 0 {
		return invalid("fetcher.max_body_size", "must be > 0")
	}
	if cfg.Fetcher.MaxRedirects < 0 {
		return invalid("fetcher.max_redirects", "must be >= 0")
	}
	if !validFetcher(cfg.Fetcher.Type) {
		return invalid("fetcher.type", "must be 'http' or 'browser', got %q", cfg.Fetcher.Type)
	}

	if err := validateParties(cfg.Parties); err != nil {
		return err
	}
	if err := validatePublishers(cfg.Publishers); err != nil {
		return err
	}
	if err := validateDatasets(cfg); err != nil {
		return err
	}

	switch cfg.Storage.Type {
	case "csv", "sqlite":
		if cfg.Storage.Dir == "" {
			return invalid("storage.dir", "must be set for %s storage", cfg.Storage.Type)
		}
	case "mongodb":
		if cfg.Storage.MongoURI == "" {
			return invalid("storage.mongo_uri", "must be set for mongodb storage")
		}
		if cfg.Storage.Dir == "" {
			return invalid("storage.dir", "must be set for the derived tables")
		}
	default:
		return invalid("storage.type", "%q is not supported (valid: csv, sqlite, mongodb)", cfg.Storage.Type)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return invalid("logging.level", "must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return invalid("logging.format", "must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return invalid("metrics.path", "must start with '/', got %q", cfg.Metrics.Path)
	}

	return nil
}

func validFetcher(t string) bool {
	return t == "http" || t == "browser"
}

func validateParties(parties []PartyConfig) error {
	if len(parties) == 0 {
		return invalid("parties", "synonym dictionary is empty")
	}
	seen := make(map[string]bool, len(parties))
	for i, p := range parties {
		field := fmt.Sprintf("parties[%d]", i)
		if p.Name == "" {
			return invalid(field+".name", "must not be empty")
		}
		if seen[p.Name] {
			return invalid(field+".name", "duplicate party %q", p.Name)
		}
		seen[p.Name] = true
		if len(p.Synonyms) == 0 {
			return invalid(field+".synonyms", "party %q has no synonyms", p.Name)
		}
		if p.ReferenceShare != nil && (*p.ReferenceShare < 0 || *p.ReferenceShare > 1) {
			return invalid(field+".reference_share", "must be within [0,1], got %v", *p.ReferenceShare)
		}
	}
	return nil
}

func validatePublishers(publishers []PublisherConfig) error {
	seen := make(map[string]bool, len(publishers))
	for i, p := range publishers {
		field := fmt.Sprintf("publishers[%d]", i)
		if p.Name == "" {
			return invalid(field+".name", "must not be empty")
		}
		if seen[p.Name] {
			return invalid(field+".name", "duplicate publisher %q", p.Name)
		}
		seen[p.Name] = true
		if p.Fetcher != "" && !validFetcher(p.Fetcher) {
			return invalid(field+".fetcher", "must be 'http' or 'browser', got %q", p.Fetcher)
		}
		if len(p.Rules) == 0 && !p.Readability {
			return invalid(field+".rules", "publisher %q has no extraction rules", p.Name)
		}
		for j, r := range p.Rules {
			rf := fmt.Sprintf("%s.rules[%d]", field, j)
			if r.Name == "" {
				return invalid(rf+".name", "must not be empty")
			}
			switch r.Type {
			case "css", "xpath":
				if r.Selector == "" {
					return invalid(rf+".selector", "must not be empty for %s rules", r.Type)
				}
			case "regex":
				if _, err := regexp.Compile(r.Pattern); err != nil || r.Pattern == "" {
					return invalid(rf+".pattern", "invalid regex %q", r.Pattern)
				}
			default:
				return invalid(rf+".type", "must be css, xpath or regex, got %q", r.Type)
			}
		}
	}
	return nil
}

func validateDatasets(cfg *Config) error {
	seen := make(map[string]bool, len(cfg.Datasets))
	for i, d := range cfg.Datasets {
		field := fmt.Sprintf("datasets[%d]", i)
		if d.Name == "" {
			return invalid(field+".name", "must not be empty")
		}
		if seen[d.Name] {
			return invalid(field+".name", "duplicate dataset %q", d.Name)
		}
		seen[d.Name] = true

		switch d.Frequency {
		case "weekly":
			if _, ok := ParseWeekday(d.WeekStart); !ok {
				return invalid(field+".week_start", "unknown weekday %q", d.WeekStart)
			}
		case "monthly":
		default:
			return invalid(field+".frequency", "must be 'weekly' or 'monthly', got %q", d.Frequency)
		}
		if d.RollingWindow < 1 {
			return invalid(field+".rolling_window", "must be >= 1, got %d", d.RollingWindow)
		}
		if _, err := d.SinceTime(); err != nil {
			return invalid(field+".since", "must be a YYYY-MM-DD date, got %q", d.Since)
		}

		for _, id := range d.LinkIdentifiers {
			if pattern, ok := strings.CutPrefix(id, "re:"); ok {
				if _, err := regexp.Compile(pattern); err != nil {
					return invalid(field+".link_identifiers", "invalid pattern %q: %v", pattern, err)
				}
			}
		}
		for j, s := range d.Seeds {
			sf := fmt.Sprintf("%s.seeds[%d]", field, j)
			if err := ValidateURL(s.URL); err != nil {
				return invalid(sf+".url", "%v", err)
			}
			if _, ok := cfg.Publisher(s.Publisher); !ok {
				return &types.ConfigError{
					Field: sf + ".publisher",
					Err:   fmt.Errorf("%w: %q", types.ErrUnknownPublisher, s.Publisher),
				}
			}
		}
	}
	return nil
}

// ValidateURL checks if a URL string is valid for crawling.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
