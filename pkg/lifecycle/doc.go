// Package lifecycle provides the worker state machine and the tracker for
// detached background tasks.
//
// A worker moves through the states a browser gives a background worker:
//
//   - Parsed -> Installing
//   - Installing -> Installed, Redundant
//   - Installed -> Activating, Redundant
//   - Activating -> Activated, Redundant
//   - Activated -> Redundant
//
// Redundant is terminal.
//
// # Usage
//
//	m := lifecycle.NewManager("segarro-v6", logger, emitter)
//	if err := m.TransitionTo(lifecycle.StateInstalling, "register"); err != nil {
//	    return err
//	}
//
// # Detached tasks
//
// A [Tracker] runs work that must not hold up a response, such as writing a
// fetched response into the cache. Tasks run on the tracker's own context,
// failures are reported through a callback, and tests use Wait to observe
// completion.
//
// # Version
//
// Current version: 2.0.0
// Minimum compatible version: 2.0.0
//
// See version.go for version constants that can be used programmatically.
package lifecycle
