// Package state persists the worker registration across restarts.
//
// A browser keeps an activated background worker between sessions; the gate
// does the same by recording which version was last activated. On restart a
// registration for the same version whose store still exists is adopted
// without running install again.
//
// # Usage
//
//	repo := state.NewFileRepository("/var/lib/cachegate")
//
//	reg, err := repo.Load(ctx)
//	if err != nil {
//	    return err
//	}
//
//	reg.ActiveVersion = "segarro-v6"
//	if err := repo.Save(ctx, reg); err != nil {
//	    return err
//	}
//
// # Version
//
// Current version: 1.1.0
// Minimum compatible version: 1.0.0
//
// See version.go for version constants that can be used programmatically.
package state
