package crawler

import (
	"context"
	"slices"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/IshaanNene/mediabias/internal/types"
)

func TestCanonicalizeURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"HTTPS://Example.COM:443/politik/", "https://example.com/politik"},
		{"http://example.com:80", "http://example.com/"},
		{"https://example.com/a?b=2&a=1#top", "https://example.com/a?a=1&b=2"},
		{"https://example.com:8443/a", "https://example.com:8443/a"},
	}
	for _, tt := range tests {
		if got := CanonicalizeURL(tt.in); got != tt.want {
			t.Errorf("CanonicalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDeduplicator(t *testing.T) {
	d := NewDeduplicator(4)

	if !d.MarkSeen("https://example.com/a") {
		t.Error("first MarkSeen should report new")
	}
	if d.MarkSeen("https://EXAMPLE.com/a#x") {
		t.Error("fragment variant should be a duplicate")
	}
	if d.MarkSeen("https://example.com/a/") {
		t.Error("trailing slash variant should be a duplicate")
	}
	if d.Count() != 1 {
		t.Errorf("count = %d, want 1", d.Count())
	}
}

func TestURLSetMatchesOtherSpellings(t *testing.T) {
	set := NewURLSet([]types.Document{
		{URL: "https://example.com/a"},
		{URL: "https://example.com/b/?y=2&x=1"},
	})
	tests := map[string]bool{
		"https://example.com/a":          true,
		"https://example.com/a/":         true,
		"https://EXAMPLE.com:443/a#top":  true,
		"https://example.com/b?x=1&y=2":  true,
		"https://example.com/b/?y=2&x=1": true,
		"https://example.com/c":          false,
		"https://example.com/a?page=2":   false,
	}
	for rawURL, want := range tests {
		if got := set.Contains(rawURL); got != want {
			t.Errorf("Contains(%q) = %v, want %v", rawURL, got, want)
		}
	}
}

func TestParseRobotsTxt(t *testing.T) {
	content := `
# comment
User-agent: googlebot
Disallow: /

User-agent: *
Disallow: /intern/
Allow: /intern/presse
Disallow: /*.pdf$
Crawl-delay: 1.5
`
	data := parseRobotsTxt(content, "mediabias")
	if len(data.disallowed) != 2 || len(data.allowed) != 1 {
		t.Fatalf("unexpected rules %+v", data)
	}
	if data.crawlDelay != 1500*time.Millisecond {
		t.Errorf("crawl delay = %v", data.crawlDelay)
	}

	tests := map[string]bool{
		"/intern/geheim":    true,
		"/intern/presse/1":  false,
		"/dokument.pdf":     true,
		"/dokument.pdf?x=1": false,
		"/politik/":         false,
	}
	for path, disallowed := range tests {
		blocked := false
		for _, p := range data.disallowed {
			if matchRobotsPattern(p, path) {
				blocked = true
			}
		}
		for _, p := range data.allowed {
			if matchRobotsPattern(p, path) {
				blocked = false
			}
		}
		if blocked != disallowed {
			t.Errorf("path %q blocked=%v, want %v", path, blocked, disallowed)
		}
	}
}

func TestParseRobotsTxtGroupedAgents(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{"wildcard first", "User-agent: *\nUser-agent: otherbot\nDisallow: /private\n", []string{"/private"}},
		{"own agent last", "User-agent: otherbot\nUser-agent: MediaBias\nDisallow: /intern\n", []string{"/intern"}},
		{"foreign group", "User-agent: otherbot\nUser-agent: thirdbot\nDisallow: /\n", nil},
		{
			"group closes at rule line",
			"User-agent: *\nDisallow: /a\nUser-agent: otherbot\nDisallow: /b\n",
			[]string{"/a"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := parseRobotsTxt(tt.content, "mediabias")
			if !slices.Equal(data.disallowed, tt.want) {
				t.Errorf("disallowed = %v, want %v", data.disallowed, tt.want)
			}
		})
	}
}

func TestRobotsDisabledAllowsAll(t *testing.T) {
	rm := NewRobotsManager(false, "mediabias")
	if !rm.IsAllowed(context.Background(), "https://example.invalid/intern/") {
		t.Error("disabled manager must allow everything")
	}
}

func TestHostLimiter(t *testing.T) {
	h := NewHostLimiter(1000, 1)
	ctx := context.Background()
	for range 5 {
		if err := h.Wait(ctx, "a.example"); err != nil {
			t.Fatal(err)
		}
	}

	h.Respect("a.example", time.Hour)
	h.Respect("a.example", time.Millisecond)
	if got := h.get("a.example").Limit(); got != rate.Every(time.Hour) {
		t.Errorf("limit = %v, want one per hour", got)
	}

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := h.Wait(short, "a.example"); err == nil {
		t.Error("expected the slowed host to block")
	}
	if err := h.Wait(ctx, "b.example"); err != nil {
		t.Errorf("other hosts must be unaffected: %v", err)
	}
}
