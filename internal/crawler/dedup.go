package crawler

import (
	"net/url"
	"sort"
	"strings"
	"sync"

	"github.com/IshaanNene/mediabias/internal/types"
)

// KnownURLs reports whether a URL is already in the document store.
type KnownURLs interface {
	Contains(rawURL string) bool
}

// URLSet is a KnownURLs over stored URLs. It matches a link by its exact
// string or by its canonical form, so another spelling of a stored
// article is known too.
type URLSet map[string]struct{}

// NewURLSet indexes the URLs of docs.
func NewURLSet(docs []types.Document) URLSet {
	set := make(URLSet, 2*len(docs))
	for _, d := range docs {
		set[d.URL] = struct{}{}
		set[CanonicalizeURL(d.URL)] = struct{}{}
	}
	return set
}

// Contains implements KnownURLs.
func (s URLSet) Contains(rawURL string) bool {
	if _, ok := s[rawURL]; ok {
		return true
	}
	_, ok := s[CanonicalizeURL(rawURL)]
	return ok
}

// Deduplicator tracks URLs already queued in the current crawl cycle.
type Deduplicator struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewDeduplicator creates a new Deduplicator with the given estimated capacity.
func NewDeduplicator(estimatedCapacity int) *Deduplicator {
	return &Deduplicator{
		seen: make(map[string]struct{}, estimatedCapacity),
	}
}

// MarkSeen marks a URL as seen and reports whether it was new.
func (d *Deduplicator) MarkSeen(rawURL string) bool {
	canonical := CanonicalizeURL(rawURL)

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[canonical]; ok {
		return false
	}
	d.seen[canonical] = struct{}{}
	return true
}

// Count returns the number of unique URLs seen.
func (d *Deduplicator) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// CanonicalizeURL normalizes a URL for deduplication:
// - lowercases scheme and host
// - removes fragment
// - sorts query parameters
// - removes trailing slash (except root)
// - removes default ports (80 for http, 443 for https)
func CanonicalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	host := u.Hostname()
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		u.Host = host
	}

	if u.RawQuery != "" {
		params := u.Query()
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var sorted []string
		for _, k := range keys {
			vals := params[k]
			sort.Strings(vals)
			for _, v := range vals {
				sorted = append(sorted, url.QueryEscape(k)+"="+url.QueryEscape(v))
			}
		}
		u.RawQuery = strings.Join(sorted, "&")
	}

	if u.Path != "/" && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimRight(u.Path, "/")
	}
	if u.Path == "" {
		u.Path = "/"
	}

	return u.String()
}
