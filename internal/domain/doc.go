// Package domain contains the core types of the cache gate: intercepted
// requests, responses with their visibility type, and the error values
// returned by the public API.
//
// This package has no dependencies on infrastructure (network, storage,
// logging) and can be used by every other layer.
package domain
