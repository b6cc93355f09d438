package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// RobotsManager handles robots.txt fetching, parsing, and enforcement.
type RobotsManager struct {
	enabled   bool
	userAgent string
	cache     map[string]*robotsData
	mu        sync.RWMutex
	client    *http.Client
}

// robotsData holds parsed robots.txt rules for a host.
type robotsData struct {
	disallowed []string
	allowed    []string
	crawlDelay time.Duration
}

// NewRobotsManager creates a new RobotsManager. agent is the token matched
// against User-agent lines in addition to "*".
func NewRobotsManager(enabled bool, agent string) *RobotsManager {
	return &RobotsManager{
		enabled:   enabled,
		userAgent: strings.ToLower(agent),
		cache:     make(map[string]*robotsData),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// IsAllowed checks if a URL is allowed by its host's robots.txt. A
// robots.txt that cannot be fetched allows everything.
func (rm *RobotsManager) IsAllowed(ctx context.Context, rawURL string) bool {
	if !rm.enabled {
		return true
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}

	data := rm.getRobotsData(ctx, u.Scheme+"://"+u.Host)
	if data == nil {
		return true
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	// Allow rules override disallow rules.
	for _, pattern := range data.allowed {
		if matchRobotsPattern(pattern, path) {
			return true
		}
	}
	for _, pattern := range data.disallowed {
		if matchRobotsPattern(pattern, path) {
			return false
		}
	}

	return true
}

// CrawlDelay returns the crawl-delay declared for origin, if any.
func (rm *RobotsManager) CrawlDelay(origin string) time.Duration {
	rm.mu.RLock()
	data, ok := rm.cache[origin]
	rm.mu.RUnlock()

	if !ok || data == nil {
		return 0
	}
	return data.crawlDelay
}

// getRobotsData fetches and caches robots.txt for an origin.
func (rm *RobotsManager) getRobotsData(ctx context.Context, origin string) *robotsData {
	rm.mu.RLock()
	data, ok := rm.cache[origin]
	rm.mu.RUnlock()

	if ok {
		return data
	}

	data = rm.fetchRobotsTxt(ctx, origin)

	rm.mu.Lock()
	rm.cache[origin] = data
	rm.mu.Unlock()

	return data
}

// fetchRobotsTxt downloads and parses robots.txt.
func (rm *RobotsManager) fetchRobotsTxt(ctx context.Context, origin string) *robotsData {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	resp, err := rm.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return nil
	}

	return parseRobotsTxt(string(body), rm.userAgent)
}

// parseRobotsTxt parses robots.txt content for the "*" group and the
// group naming agent. Consecutive User-agent lines open one group, which
// applies when any of them matches.
func parseRobotsTxt(content, agent string) *robotsData {
	data := &robotsData{}
	inOurSection := false
	agentRun := false

	for _, line := range strings.Split(content, "\n") {
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(strings.ToLower(key))
		value = strings.TrimSpace(value)

		if key != "user-agent" {
			agentRun = false
		}
		switch key {
		case "user-agent":
			ua := strings.ToLower(value)
			matches := ua == "*" || (agent != "" && strings.Contains(ua, agent))
			if agentRun {
				inOurSection = inOurSection || matches
			} else {
				inOurSection = matches
			}
			agentRun = true
		case "disallow":
			if inOurSection && value != "" {
				data.disallowed = append(data.disallowed, value)
			}
		case "allow":
			if inOurSection && value != "" {
				data.allowed = append(data.allowed, value)
			}
		case "crawl-delay":
			if inOurSection {
				var delay float64
				if _, err := fmt.Sscanf(value, "%f", &delay); err == nil {
					data.crawlDelay = time.Duration(delay * float64(time.Second))
				}
			}
		}
	}

	return data
}

// matchRobotsPattern checks if a URL path matches a robots.txt pattern.
// Supports * (any sequence) and $ (end of URL) wildcards.
func matchRobotsPattern(pattern, path string) bool {
	if pattern == "" {
		return false
	}

	endsWithDollar := strings.HasSuffix(pattern, "$")
	if endsWithDollar {
		pattern = pattern[:len(pattern)-1]
	}

	if strings.Contains(pattern, "*") {
		return matchWildcard(pattern, path, endsWithDollar)
	}

	if endsWithDollar {
		return path == pattern
	}
	return strings.HasPrefix(path, pattern)
}

// matchWildcard handles * wildcard matching in robots.txt patterns.
func matchWildcard(pattern, path string, mustEnd bool) bool {
	parts := strings.Split(pattern, "*")
	pos := 0

	for i, part := range parts {
		if part == "" {
			continue
		}
		idx := strings.Index(path[pos:], part)
		if idx < 0 {
			return false
		}
		if i == 0 && idx != 0 {
			return false
		}
		pos += idx + len(part)
	}

	if mustEnd {
		return pos == len(path)
	}
	return true
}
