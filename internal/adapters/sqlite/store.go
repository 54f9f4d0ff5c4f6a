package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/segarro/cachegate/pkg/store"
)

// Store implements store.Storage on a SQLite database file.
type Store struct {
	sqlDB *sql.DB
}

var _ store.Storage = (*Store)(nil)

// Open opens (creating if needed) and migrates the database at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	memory := path == ":memory:"
	dsn := path
	if !memory {
		dsn = "file:" + filepath.Clean(path)
	}
	dsn += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if !memory {
		dsn += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if memory {
		// every connection to :memory: is a separate database
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if err := applyMigrations(context.Background(), sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the underlying SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Open returns the named cache, creating it if absent.
func (s *Store) Open(ctx context.Context, name string) (store.Cache, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("cache name is required")
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO caches (name, created_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		name, time.Now().UTC().UnixMilli(),
	); err != nil {
		return nil, fmt.Errorf("open cache %s: %w", name, err)
	}
	return &cache{db: s.sqlDB, name: name}, nil
}

// Has reports whether the named cache exists.
func (s *Store) Has(ctx context.Context, name string) (bool, error) {
	var n int
	if err := s.sqlDB.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM caches WHERE name = ?`, name,
	).Scan(&n); err != nil {
		return false, fmt.Errorf("has cache %s: %w", name, err)
	}
	return n > 0, nil
}

// Delete removes the named cache and its entries.
func (s *Store) Delete(ctx context.Context, name string) (bool, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE cache_name = ?`, name); err != nil {
		return false, fmt.Errorf("delete entries of %s: %w", name, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM caches WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("delete cache %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete cache %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete: %w", err)
	}
	return n > 0, nil
}

// Keys returns the cache names in creation order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT name FROM caches ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list caches: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan cache name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// EntryCount returns the number of entries in the named cache.
func (s *Store) EntryCount(ctx context.Context, name string) (int, error) {
	var n int
	if err := s.sqlDB.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM entries WHERE cache_name = ?`, name,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count entries of %s: %w", name, err)
	}
	return n, nil
}

type cache struct {
	db   *sql.DB
	name string
}

func (c *cache) Name() string { return c.name }

func (c *cache) Match(ctx context.Context, key string) (store.Entry, bool, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT request_key, method, url, response_type, status_code, status, header_json, request_header_json, body, stored_at
		 FROM entries
		 WHERE cache_name = ? AND request_key = ?`,
		c.name, key,
	)

	var e store.Entry
	var headerJSON, requestHeaderJSON string
	var storedAt int64
	if err := row.Scan(&e.Key, &e.Method, &e.URL, &e.Type, &e.StatusCode, &e.Status, &headerJSON, &requestHeaderJSON, &e.Body, &storedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Entry{}, false, nil
		}
		return store.Entry{}, false, fmt.Errorf("match %s: %w", key, err)
	}

	e.Header = http.Header{}
	if err := json.Unmarshal([]byte(headerJSON), &e.Header); err != nil {
		return store.Entry{}, false, fmt.Errorf("decode headers of %s: %w", key, err)
	}
	if requestHeaderJSON != "{}" {
		e.RequestHeader = http.Header{}
		if err := json.Unmarshal([]byte(requestHeaderJSON), &e.RequestHeader); err != nil {
			return store.Entry{}, false, fmt.Errorf("decode request headers of %s: %w", key, err)
		}
	}
	e.StoredAt = time.UnixMilli(storedAt).UTC()
	return e, true, nil
}

func (c *cache) Put(ctx context.Context, e store.Entry) error {
	return c.PutAll(ctx, []store.Entry{e})
}

func (c *cache) PutAll(ctx context.Context, entries []store.Entry) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin put: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, e := range entries {
		if err := putTx(ctx, tx, c.name, e); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit put: %w", err)
	}
	return nil
}

func putTx(ctx context.Context, tx *sql.Tx, cacheName string, e store.Entry) error {
	if e.Key == "" {
		return fmt.Errorf("entry key is required")
	}
	if e.StoredAt.IsZero() {
		e.StoredAt = time.Now().UTC()
	}
	header := e.Header
	if header == nil {
		header = http.Header{}
	}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("encode headers of %s: %w", e.Key, err)
	}
	requestHeader := e.RequestHeader
	if requestHeader == nil {
		requestHeader = http.Header{}
	}
	requestHeaderJSON, err := json.Marshal(requestHeader)
	if err != nil {
		return fmt.Errorf("encode request headers of %s: %w", e.Key, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO entries (
		    cache_name, request_key, method, url, response_type, status_code, status, header_json,
		    request_header_json, body, stored_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(cache_name, request_key) DO UPDATE SET
		    method = excluded.method,
		    url = excluded.url,
		    response_type = excluded.response_type,
		    status_code = excluded.status_code,
		    status = excluded.status,
		    header_json = excluded.header_json,
		    request_header_json = excluded.request_header_json,
		    body = excluded.body,
		    stored_at = excluded.stored_at`,
		cacheName, e.Key, e.Method, e.URL, e.Type, e.StatusCode, e.Status,
		string(headerJSON), string(requestHeaderJSON), e.Body, e.StoredAt.UnixMilli(),
	); err != nil {
		return fmt.Errorf("put %s: %w", e.Key, err)
	}
	return nil
}

func (c *cache) Delete(ctx context.Context, key string) (bool, error) {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM entries WHERE cache_name = ? AND request_key = ?`, c.name, key,
	)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", key, err)
	}
	return n > 0, nil
}

func (c *cache) Keys(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT request_key FROM entries WHERE cache_name = ? ORDER BY id`, c.name,
	)
	if err != nil {
		return nil, fmt.Errorf("list keys of %s: %w", c.name, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
