package ports

import (
	"context"

	"github.com/segarro/cachegate/internal/domain"
)

// Fetcher performs a network request on behalf of a page.
type Fetcher interface {
	// Fetch issues req and returns the response, typed as basic, cors or
	// opaque relative to the gate's origin. A transport failure is returned
	// as an error; nothing is retried.
	Fetch(ctx context.Context, req *domain.Request) (*domain.Response, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, req *domain.Request) (*domain.Response, error)

// Fetch calls f(ctx, req).
func (f FetcherFunc) Fetch(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	return f(ctx, req)
}
