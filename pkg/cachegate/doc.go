// Package cachegate provides an embeddable cache-first HTTP gate.
//
// The gate sits between pages and the origin that serves them. On start it
// installs a worker that stores the seed files (the viewer's HTML shell) in
// a versioned cache, then activates it, deleting every cache with another
// name. Each later request is answered from the cache when present;
// otherwise it goes to the network and a 200 response that is not opaque is
// stored in the background for next time.
//
// # Basic Usage
//
//	cfg := cachegate.DefaultConfig()
//	cfg.Origin = "http://127.0.0.1:8000/"
//	cfg.StorePath = "/var/lib/cachegate/caches.db"
//
//	svc, err := cachegate.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := svc.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Stop()
//
//	http.ListenAndServe(":8080", svc.Handler())
//
// # Versioning
//
// The cache name embeds the version tag ("segarro-v6"). Calling
// [Service.Update] with a new name installs a new worker; its activation
// drops every older cache, including large binary assets.
//
// # Event Handling
//
// Implement [EventHandler] (embedding [BaseEventHandler] for defaults) and
// pass it with [WithEventHandler] to observe worker state changes and the
// outcome of background cache writes.
//
// # Plugins
//
// Plugins are initialized on Start in registration order and shut down in
// reverse order. The configwatcher plugin bumps the version when the config
// file changes.
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
package cachegate
