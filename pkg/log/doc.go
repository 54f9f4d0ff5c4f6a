// Package log provides the logging abstraction used across cachegate.
//
// The Logger interface is small so the gate can be embedded in
// applications that already carry their own logging library. A zerolog
// adapter is provided for the CLI and a no-op logger is the library default.
//
// # Usage
//
//	logger := log.NewZerologAdapterWithLogger(zerolog.New(os.Stderr))
//	logger.Info("cache opened", log.String("cache", "segarro-v6"))
//
// Use [With] to attach fields to every message from a component:
//
//	gateLog := log.With(logger, log.String("component", "gate"))
package log
