package fetcher

import (
	"context"
	"fmt"

	"github.com/IshaanNene/mediabias/internal/types"
)

// Fetcher is the interface for all request fetcher implementations.
type Fetcher interface {
	// Fetch retrieves the content at the given request's URL.
	Fetch(ctx context.Context, req *types.Request) (*types.Response, error)

	// Close releases any resources held by the fetcher.
	Close() error

	// Type returns the fetcher type identifier.
	Type() string
}

// Router dispatches each request to the fetcher named by its FetcherType.
type Router struct {
	fetchers map[string]Fetcher
	fallback string
}

// NewRouter creates a Router. fallback names the fetcher used for
// requests without a FetcherType.
func NewRouter(fallback string, fetchers ...Fetcher) *Router {
	r := &Router{fetchers: make(map[string]Fetcher, len(fetchers)), fallback: fallback}
	for _, f := range fetchers {
		r.fetchers[f.Type()] = f
	}
	return r
}

// Fetch implements Fetcher.
func (r *Router) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	name := req.FetcherType
	if name == "" {
		name = r.fallback
	}
	f, ok := r.fetchers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrNoFetcher, name)
	}
	return f.Fetch(ctx, req)
}

// Close closes every registered fetcher and returns the first error.
func (r *Router) Close() error {
	var first error
	for _, f := range r.fetchers {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Type implements Fetcher.
func (r *Router) Type() string { return "router" }
