package options

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"constellation/internal/ctype"
)

// CacheBackend stores the result of a module invocation keyed by
// (moduleName, canonicalized input hash), per section 4.7 item 5: "Uses
// a CacheBackend (in-memory default, pluggable Redis/Memcached)".
// Constellation ships an in-memory backend and a modernc.org/sqlite
// backed one for durability across runs sharing a runtime instance.
type CacheBackend interface {
	Get(moduleName, key string) (*ctype.Value, bool)
	Put(moduleName, key string, value *ctype.Value, ttl time.Duration)
}

type memoryEntry struct {
	value    *ctype.Value
	expireAt time.Time // zero means never
}

// MemoryCache is the default CacheBackend: a single map guarded by a
// RWMutex, partitioned by moduleName+key (section 5: "key space
// partitioned by module name and input hash").
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

func cacheKey(moduleName, key string) string { return moduleName + "\x00" + key }

func (c *MemoryCache) Get(moduleName, key string) (*ctype.Value, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[cacheKey(moduleName, key)]
	if !ok {
		return nil, false
	}
	if !e.expireAt.IsZero() && time.Now().After(e.expireAt) {
		return nil, false
	}
	return e.value, true
}

func (c *MemoryCache) Put(moduleName, key string, value *ctype.Value, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var expireAt time.Time
	if ttl > 0 {
		expireAt = time.Now().Add(ttl)
	}
	c.entries[cacheKey(moduleName, key)] = memoryEntry{value: value, expireAt: expireAt}
}

// cachedValue is the JSON-serializable wire shape stored in SQLite; it
// mirrors ctype.Value's tagged-union shape rather than round-tripping
// through the struct directly, since ctype.Value keeps its fields
// unexported.
type cachedValue struct {
	Kind    ctype.Kind             `json:"kind"`
	Str     string                 `json:"str,omitempty"`
	Int     int64                  `json:"int,omitempty"`
	Float   float64                `json:"float,omitempty"`
	Bool    bool                   `json:"bool,omitempty"`
	List    []cachedValue          `json:"list,omitempty"`
	Fields  map[string]cachedValue `json:"fields,omitempty"`
	Tag     string                 `json:"tag,omitempty"`
	Payload *cachedValue           `json:"payload,omitempty"`
	Some    bool                   `json:"some,omitempty"`
}

func toCachedValue(v *ctype.Value) cachedValue {
	cv := cachedValue{Kind: v.Kind()}
	switch v.Kind() {
	case ctype.KindString:
		cv.Str = v.Str()
	case ctype.KindInt:
		cv.Int = v.Int()
	case ctype.KindFloat:
		cv.Float = v.Float()
	case ctype.KindBoolean:
		cv.Bool = v.Bool()
	case ctype.KindList:
		for _, item := range v.List() {
			cv.List = append(cv.List, toCachedValue(item))
		}
	case ctype.KindProduct:
		cv.Fields = map[string]cachedValue{}
		for name, fv := range v.Fields() {
			cv.Fields[name] = toCachedValue(fv)
		}
	case ctype.KindUnion:
		cv.Tag = v.Tag()
		p := toCachedValue(v.Payload())
		cv.Payload = &p
	case ctype.KindOptional:
		cv.Some = v.IsSome()
		if cv.Some {
			p := toCachedValue(v.Payload())
			cv.Payload = &p
		}
	}
	return cv
}

func (cv cachedValue) toValue(t *ctype.Type) *ctype.Value {
	switch cv.Kind {
	case ctype.KindString:
		return ctype.NewString(cv.Str)
	case ctype.KindInt:
		return ctype.NewInt(cv.Int)
	case ctype.KindFloat:
		return ctype.NewFloat(cv.Float)
	case ctype.KindBoolean:
		return ctype.NewBoolean(cv.Bool)
	case ctype.KindList:
		var elemType *ctype.Type
		if t != nil {
			elemType = t.Elem
		}
		items := make([]*ctype.Value, len(cv.List))
		for i, item := range cv.List {
			items[i] = item.toValue(elemType)
		}
		return ctype.NewList(elemType, items)
	case ctype.KindProduct:
		fields := make(map[string]*ctype.Value, len(cv.Fields))
		for name, fv := range cv.Fields {
			var ft *ctype.Type
			if t != nil {
				ft = t.Fields[name]
			}
			fields[name] = fv.toValue(ft)
		}
		return ctype.NewProduct(fields)
	case ctype.KindUnion:
		var payload *ctype.Value
		if cv.Payload != nil {
			payload = cv.Payload.toValue(nil)
		}
		return ctype.NewUnion(t, cv.Tag, payload)
	case ctype.KindOptional:
		if !cv.Some {
			var inner *ctype.Type
			if t != nil {
				inner = t.Elem
			}
			return ctype.NewNone(inner)
		}
		return ctype.NewSome(cv.Payload.toValue(nil))
	default:
		return nil
	}
}

// SQLiteCache is a CacheBackend persisted to a modernc.org/sqlite
// database, for module call caches that should survive process
// restarts (SPEC_FULL.md's pluggable-backend supplement to section
// 4.7 item 5).
type SQLiteCache struct {
	db *sql.DB
}

func NewSQLiteCache(path string) (*SQLiteCache, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening options cache database: %w", err)
	}
	c := &SQLiteCache{db: db}
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *SQLiteCache) initSchema() error {
	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS module_cache (
			module_name TEXT NOT NULL,
			cache_key   TEXT NOT NULL,
			value_json  TEXT NOT NULL,
			expire_at   DATETIME,
			PRIMARY KEY (module_name, cache_key)
		)
	`)
	return err
}

func (c *SQLiteCache) Close() error { return c.db.Close() }

func (c *SQLiteCache) Get(moduleName, key string) (*ctype.Value, bool) {
	var valueJSON string
	var expireAt sql.NullTime
	err := c.db.QueryRow(`
		SELECT value_json, expire_at FROM module_cache WHERE module_name = ? AND cache_key = ?
	`, moduleName, key).Scan(&valueJSON, &expireAt)
	if err != nil {
		return nil, false
	}
	if expireAt.Valid && time.Now().After(expireAt.Time) {
		return nil, false
	}
	var cv cachedValue
	if err := json.Unmarshal([]byte(valueJSON), &cv); err != nil {
		return nil, false
	}
	return cv.toValue(nil), true
}

func (c *SQLiteCache) Put(moduleName, key string, value *ctype.Value, ttl time.Duration) {
	valueJSON, err := json.Marshal(toCachedValue(value))
	if err != nil {
		return
	}
	var expireAt any
	if ttl > 0 {
		expireAt = time.Now().Add(ttl)
	}
	c.db.Exec(`
		INSERT INTO module_cache (module_name, cache_key, value_json, expire_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(module_name, cache_key) DO UPDATE SET
			value_json = excluded.value_json, expire_at = excluded.expire_at
	`, moduleName, key, string(valueJSON), expireAt)
}
