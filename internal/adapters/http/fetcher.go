package http

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/segarro/cachegate/internal/domain"
	"github.com/segarro/cachegate/internal/ports"
	"github.com/segarro/cachegate/pkg/log"
)

// hopHeaders are connection-scoped and never forwarded.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Fetcher implements ports.Fetcher over HTTP.
type Fetcher struct {
	client ports.HTTPClient
	origin string
	logger log.Logger
}

// NewFetcher creates a fetcher for pages served from origin. Responses from
// other origins are typed cors or opaque.
func NewFetcher(client ports.HTTPClient, origin *url.URL, logger log.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Fetcher{
		client: client,
		origin: domain.Origin(origin),
		logger: logger,
	}
}

// Fetch performs the network request. There is no timeout beyond ctx.
func (f *Fetcher) Fetch(ctx context.Context, req *domain.Request) (*domain.Response, error) {
	if req == nil || req.URL == nil {
		return nil, fmt.Errorf("fetch: request url is required")
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), req.Body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	crossOrigin := req.Origin() != f.origin
	for k, vs := range req.Header {
		httpReq.Header[k] = append([]string(nil), vs...)
	}
	for _, h := range hopHeaders {
		httpReq.Header.Del(h)
	}
	if crossOrigin {
		// default credentials mode: same-origin only
		httpReq.Header.Del("Cookie")
		httpReq.Header.Del("Authorization")
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		f.logger.Debug("network fetch failed",
			log.String("url", req.URL.String()),
			log.Err(err),
		)
		return nil, fmt.Errorf("fetch %s: %w", req.URL.Redacted(), err)
	}

	header := resp.Header.Clone()
	for _, h := range hopHeaders {
		header.Del(h)
	}

	finalURL := req.URL.String()
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
		// a redirect through another origin taints the response
		if domain.Origin(resp.Request.URL) != f.origin {
			crossOrigin = true
		}
	}

	return &domain.Response{
		Type:       f.classify(crossOrigin, resp.Header),
		URL:        finalURL,
		StatusCode: resp.StatusCode,
		Status:     statusText(resp),
		Header:     header,
		Body:       resp.Body,
	}, nil
}

// classify returns basic for same-origin responses, cors when the response
// exposes itself to the gate's origin, and opaque otherwise.
func (f *Fetcher) classify(crossOrigin bool, h http.Header) domain.ResponseType {
	if !crossOrigin {
		return domain.TypeBasic
	}
	allow := strings.TrimSpace(h.Get("Access-Control-Allow-Origin"))
	if allow == "*" || strings.EqualFold(allow, f.origin) {
		return domain.TypeCORS
	}
	return domain.TypeOpaque
}

func statusText(resp *http.Response) string {
	// resp.Status is "200 OK"; keep the reason phrase only
	if _, reason, ok := strings.Cut(resp.Status, " "); ok {
		return reason
	}
	return http.StatusText(resp.StatusCode)
}
