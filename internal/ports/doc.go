// Package ports defines the interfaces (ports) that connect the application
// layer to infrastructure adapters.
//
// # Port Interfaces
//
//   - [Fetcher]: performs the real network request for a page request
//   - [HTTPClient]: HTTP request abstraction for dependency injection
//
// Cache storage is defined by the public store package and the registration
// repository by the public state package, since embedders provide their own
// implementations of both.
//
// # Usage
//
// The application layer (internal/app) depends only on these interfaces.
// Infrastructure adapters (internal/adapters) implement them with concrete
// implementations (net/http, SQLite, zerolog).
package ports
