package cachegate

import (
	"net/http"

	"github.com/segarro/cachegate/internal/ports"
	"github.com/segarro/cachegate/pkg/log"
	"github.com/segarro/cachegate/pkg/state"
	"github.com/segarro/cachegate/pkg/store"
)

// HTTPClient is the interface for making network requests.
// *http.Client satisfies this interface.
type HTTPClient = ports.HTTPClient

// Logger is the interface for structured logging.
type Logger = log.Logger

// LogField is a structured logging field.
type LogField = log.Field

// Option configures optional behavior of a Service.
type Option func(*options)

// options holds the optional configuration for a Service instance.
type options struct {
	httpClient    ports.HTTPClient
	logger        log.Logger
	eventHandler  EventHandler
	plugins       []Plugin
	storage       store.Storage
	registrations state.Repository
}

// defaultOptions returns options with sensible defaults.
func defaultOptions() options {
	return options{
		// no timeout: a slow asset only blocks its own response
		httpClient: &http.Client{},
		logger:     log.NewNoopLogger(),
	}
}

// WithHTTPClient sets the client used for network fetches.
func WithHTTPClient(client HTTPClient) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEventHandler sets a handler for gate events.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.eventHandler = handler
	}
}

// WithPlugin registers a plugin to be initialized when the Service starts.
func WithPlugin(plugin Plugin) Option {
	return func(o *options) {
		o.plugins = append(o.plugins, plugin)
	}
}

// WithStorage injects the cache storage, overriding Config.StorePath.
// The Service does not close injected storage.
func WithStorage(s store.Storage) Option {
	return func(o *options) {
		o.storage = s
	}
}

// WithRegistrations injects the registration repository, overriding
// Config.StateDir.
func WithRegistrations(r state.Repository) Option {
	return func(o *options) {
		o.registrations = r
	}
}
