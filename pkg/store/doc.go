// Package store defines the named cache storage used by the gate.
//
// A [Storage] holds any number of named caches. Each [Cache] maps a request
// key to one stored [Entry]. Names usually embed a version tag, for example
// "segarro-v6"; bumping the tag and deleting every other name is how a new
// generation replaces an old one.
//
// # Backends
//
// [NewMemoryStorage] keeps everything in process memory and is the default
// for tests and embedding. A durable SQLite backend lives in the cachegate
// module's internal adapters.
//
// # Atomicity
//
// Put replaces a single key atomically. PutAll writes a batch of entries so
// that either all of them or none of them become visible.
package store
