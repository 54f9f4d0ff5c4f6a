package cachegate

import "context"

// Plugin extends a Service with optional behavior.
type Plugin interface {
	// Name identifies the plugin in logs.
	Name() string

	// Initialize is called from Start after the first worker is active.
	Initialize(ctx context.Context, cfg PluginConfig) error

	// Shutdown is called from Stop.
	Shutdown(ctx context.Context) error
}

// Updater switches the gate to a new cache name.
type Updater interface {
	Update(ctx context.Context, cacheName string) error
}

// PluginConfig is what a plugin receives on Initialize.
type PluginConfig struct {
	CacheName string
	Origin    string
	Logger    Logger
	Updater   Updater
}

// BasePlugin implements Plugin with no-ops. Embed it to override only what
// you need.
type BasePlugin struct{}

func (BasePlugin) Name() string                                   { return "base" }
func (BasePlugin) Initialize(context.Context, PluginConfig) error { return nil }
func (BasePlugin) Shutdown(context.Context) error                 { return nil }
