package domain

import (
	"net/url"
	"testing"
)

func TestRequestKey(t *testing.T) {
	tests := []struct {
		name   string
		method string
		url    string
		want   string
	}{
		{"get", "GET", "http://viewer.local/SEGARROPREMIX.html", "GET http://viewer.local/SEGARROPREMIX.html"},
		{"empty method defaults to get", "", "http://viewer.local/a", "GET http://viewer.local/a"},
		{"method is upper-cased", "post", "http://viewer.local/a", "POST http://viewer.local/a"},
		{"fragment is dropped", "GET", "http://viewer.local/SEGARROPREMIX.html#scene", "GET http://viewer.local/SEGARROPREMIX.html"},
		{"query is kept", "GET", "http://viewer.local/RECURSOS/model.fbx?v=2", "GET http://viewer.local/RECURSOS/model.fbx?v=2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.url)
			if err != nil {
				t.Fatal(err)
			}
			if got := RequestKey(tt.method, u); got != tt.want {
				t.Errorf("RequestKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewRequest(t *testing.T) {
	req, err := NewRequest("", "https://CDN.Example.com/three.min.js")
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if req.Method != "GET" {
		t.Errorf("Method = %q, want GET", req.Method)
	}
	if req.Origin() != "https://cdn.example.com" {
		t.Errorf("Origin() = %q", req.Origin())
	}
	if req.Header == nil {
		t.Error("Header is nil")
	}

	if _, err := NewRequest("GET", "/relative"); err == nil {
		t.Error("NewRequest() expected error for relative URL")
	}
}
