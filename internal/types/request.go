package types

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Kind distinguishes seed pages from the article pages discovered on them.
type Kind int

const (
	// KindSeed is a listing page that is scanned for article links.
	KindSeed Kind = iota
	// KindArticle is a page whose content is extracted into a Document.
	KindArticle
)

func (k Kind) String() string {
	switch k {
	case KindSeed:
		return "seed"
	case KindArticle:
		return "article"
	default:
		return "unknown"
	}
}

// Request represents a page to be fetched by the crawler.
type Request struct {
	// URL is the target URL to fetch.
	URL *url.URL

	// Method is the HTTP method. Defaults to GET.
	Method string

	// Headers are custom HTTP headers to send with the request.
	Headers http.Header

	// Kind tells the crawler what to do with the response.
	Kind Kind

	// Publisher is inherited from the seed the request was discovered on.
	Publisher string

	// MaxRetries is the maximum number of retries for this request.
	MaxRetries int

	// RetryCount tracks the current retry attempt.
	RetryCount int

	// Timeout overrides the global request timeout for this request.
	Timeout time.Duration

	// FetcherType specifies which fetcher to use: "http" or "browser".
	FetcherType string

	// WaitSelector makes the browser fetcher wait for an element before
	// reading the rendered page.
	WaitSelector string

	// ParentURL tracks which page this request was discovered on.
	ParentURL string

	// CreatedAt is when this request was created.
	CreatedAt time.Time
}

// NewRequest creates a new Request with sensible defaults.
func NewRequest(rawURL string) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidURL, rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w %q: scheme must be http or https", ErrInvalidURL, rawURL)
	}

	return &Request{
		URL:         u,
		Method:      http.MethodGet,
		Headers:     make(http.Header),
		MaxRetries:  2,
		FetcherType: "http",
		CreatedAt:   time.Now(),
	}, nil
}

// URLString returns the string representation of the request URL.
func (r *Request) URLString() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.String()
}

// Domain returns the hostname of the request URL.
func (r *Request) Domain() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.Hostname()
}

// Clone creates a deep copy of the request.
func (r *Request) Clone() *Request {
	clone := *r
	if r.URL != nil {
		u := *r.URL
		clone.URL = &u
	}
	clone.Headers = r.Headers.Clone()
	return &clone
}
