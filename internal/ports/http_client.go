package ports

import "net/http"

// HTTPClient abstracts the network transport used by the fetcher.
// The standard *http.Client satisfies this interface.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
