package wire

import (
	"bytes"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// PersistentCache backs a KnownObjects table with a SQLite file so type
// name records and method definitions survive process restarts (§5,
// opt-in per wire/config.go's CacheConfig). The in-memory table in
// KnownObjects remains the fast path; this is consulted only on a miss
// and written through on every Store.
type PersistentCache struct {
	db *sql.DB
}

const cacheSchema = `
CREATE TABLE IF NOT EXISTS known_objects (
	number INTEGER PRIMARY KEY,
	kind    INTEGER NOT NULL,
	payload BLOB NOT NULL
)`

const (
	cacheKindTypeName byte = 1
	cacheKindMethod   byte = 2
)

// OpenPersistentCache opens (creating if necessary) a SQLite-backed cache
// file at path.
func OpenPersistentCache(path string) (*PersistentCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("magwire: open cache %s: %w", path, err)
	}
	if _, err := db.Exec(cacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("magwire: init cache schema: %w", err)
	}
	return &PersistentCache{db: db}, nil
}

// Close releases the underlying database handle.
func (c *PersistentCache) Close() error { return c.db.Close() }

// Attach binds the cache to known, so that known.Lookup falls through to
// the SQLite table on an in-memory miss, and known.Store writes through
// to it. A given KnownObjects may have at most one attached cache.
func (c *PersistentCache) Attach(known *KnownObjects) {
	known.mu.Lock()
	known.backing = c
	known.mu.Unlock()
}

// load returns the cached object for number, decoding its persisted body
// with oracle (required for FullDataType method bodies that reference
// synthesized types).
func (c *PersistentCache) load(number uint64, oracle TypeOracle) (any, bool) {
	var kind byte
	var payload []byte
	row := c.db.QueryRow(`SELECT kind, payload FROM known_objects WHERE number = ?`, number)
	if err := row.Scan(&kind, &payload); err != nil {
		return nil, false
	}
	obj, err := decodeCachedBody(kind, payload, oracle)
	if err != nil {
		return nil, false
	}
	return obj, true
}

// save writes obj's body through to the SQLite table under number. A
// failure to encode or to write is non-fatal to the caller: the
// in-memory table already holds the authoritative value, and the
// persistent cache is an optimization, not a requirement.
func (c *PersistentCache) save(number uint64, obj any) {
	kind, payload, err := encodeCachedBody(obj)
	if err != nil {
		return
	}
	_, _ = c.db.Exec(
		`INSERT INTO known_objects(number, kind, payload) VALUES (?, ?, ?)
		 ON CONFLICT(number) DO NOTHING`,
		number, kind, payload,
	)
}

// encodeCachedBody renders obj's wire body (sans its stable number,
// which the cache table stores as its own primary key) using a
// throwaway KnownObjects so NumberFor/Store recursion inside
// encodeTypeNameRecord/encodeMethodDescriptor stays self-contained.
func encodeCachedBody(obj any) (byte, []byte, error) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	switch v := obj.(type) {
	case *TypeNameRecord:
		if err := encodeTypeNameRecord(w, v); err != nil {
			return 0, nil, err
		}
		return cacheKindTypeName, buf.Bytes(), nil
	case *MethodDescriptor:
		if err := encodeMethodDescriptor(w, v); err != nil {
			return 0, nil, err
		}
		return cacheKindMethod, buf.Bytes(), nil
	default:
		return 0, nil, &UnsupportedValueError{Kind: "cache entry", Reason: "not a cacheable known-object type"}
	}
}

func decodeCachedBody(kind byte, payload []byte, oracle TypeOracle) (any, error) {
	r := NewReader(bytes.NewReader(payload), oracle)
	switch kind {
	case cacheKindTypeName:
		return decodeTypeNameRecord(r)
	case cacheKindMethod:
		return decodeMethodDescriptor(r)
	default:
		return nil, &UnsupportedValueError{Kind: "cache entry", Reason: "unknown cached kind byte"}
	}
}
