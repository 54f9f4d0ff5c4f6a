package domain

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Request is an intercepted outgoing request made by a page.
type Request struct {
	Method string
	URL    *url.URL
	Header http.Header
	Body   io.Reader

	// ClientID identifies the page that issued the request. Empty for
	// requests issued by the host itself (e.g. install-time seeding).
	ClientID string
}

// NewRequest builds a request for an absolute URL.
func NewRequest(method, rawURL string) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse request url: %w", err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("request url %q is not absolute", rawURL)
	}
	if method == "" {
		method = http.MethodGet
	}
	return &Request{Method: strings.ToUpper(method), URL: u, Header: http.Header{}}, nil
}

// Key returns the store key of the request.
func (r *Request) Key() string {
	return RequestKey(r.Method, r.URL)
}

// Origin returns the scheme://host of the request URL.
func (r *Request) Origin() string {
	return Origin(r.URL)
}

// RequestKey is the store key for a method and URL: the upper-cased method,
// a space, and the absolute URL with any fragment removed.
func RequestKey(method string, u *url.URL) string {
	if method == "" {
		method = http.MethodGet
	}
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	return strings.ToUpper(method) + " " + c.String()
}

// Origin returns the scheme://host part of u in lower case.
func Origin(u *url.URL) string {
	if u == nil {
		return ""
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host)
}
