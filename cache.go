package chatsync

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

// DefaultCacheLimit is the number of newest messages kept per chat.
const DefaultCacheLimit = 200

// Cache keeps the last known history of each chat. Optimistic messages are
// never cached.
type Cache interface {
	Load(ref ChatRef) ([]Message, error)
	Save(ref ChatRef, msgs []Message) error
	Close() error
}

// cacheable drops unconfirmed messages and keeps the newest limit.
func cacheable(msgs []Message, limit int) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.IsSending {
			continue
		}
		out = append(out, m)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// ============================================================================
// MemoryCache
// ============================================================================

// MemoryCache is a goroutine-safe in-memory cache.
type MemoryCache struct {
	mu    sync.RWMutex
	limit int
	chats map[string][]Message
}

func NewMemoryCache(limit int) *MemoryCache {
	if limit == 0 {
		limit = DefaultCacheLimit
	}
	return &MemoryCache{limit: limit, chats: make(map[string][]Message)}
}

func (c *MemoryCache) Load(ref ChatRef) ([]Message, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Message(nil), c.chats[ref.String()]...), nil
}

func (c *MemoryCache) Save(ref ChatRef, msgs []Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chats[ref.String()] = cacheable(msgs, c.limit)
	return nil
}

func (c *MemoryCache) Close() error { return nil }

// ============================================================================
// BoltCache
// ============================================================================

var chatsBucket = []byte("chats")

// BoltCache persists histories in a bbolt file, one JSON value per chat
// keyed "<type>:<id>".
type BoltCache struct {
	db    *bbolt.DB
	limit int
}

// OpenBoltCache opens or creates the cache file at path.
func OpenBoltCache(path string, limit int) (*BoltCache, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(chatsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init cache: %w", err)
	}
	if limit == 0 {
		limit = DefaultCacheLimit
	}
	return &BoltCache{db: db, limit: limit}, nil
}

func (c *BoltCache) Load(ref ChatRef) ([]Message, error) {
	var msgs []Message
	err := c.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(chatsBucket).Get([]byte(ref.String()))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &msgs)
	})
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", ref, err)
	}
	return msgs, nil
}

func (c *BoltCache) Save(ref ChatRef, msgs []Message) error {
	data, err := json.Marshal(cacheable(msgs, c.limit))
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(chatsBucket).Put([]byte(ref.String()), data)
	})
}

// Chats lists the cached chat keys.
func (c *BoltCache) Chats() ([]string, error) {
	var keys []string
	err := c.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(chatsBucket).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

func (c *BoltCache) Close() error { return c.db.Close() }
