// Package sqlite provides the durable cache storage backed by SQLite.
//
// Each named cache is a row in the caches table; entries reference their
// cache and are removed with it. The database runs in WAL mode so lookups
// from concurrent fetches do not block on background writes.
package sqlite
