package main

import (
	"sort"
	"strconv"
	"sync"
	"time"
)

// storeEntry is one key's value plus its absolute expiration. expiresAt of
// zero means no expiry. Mutation is replacement: readers get the value
// slice as a shared handle and must not modify it.
type storeEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e storeEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

type storeShard struct {
	mu    sync.RWMutex
	items map[string]storeEntry
}

// Store is the sharded key/value map. Keys are hashed onto a power-of-two
// number of independently locked shards; a key lives in exactly one shard.
// Expired entries are invisible to readers immediately (lazy expiration)
// and reclaimed by the sweeper.
type Store struct {
	shards []storeShard
	mask   uint64
}

// minShards keeps small worker counts from collapsing onto too few locks.
const minShards = 16

// NewStore creates a store sized for the given worker count: roughly four
// shards per worker, rounded up to a power of two.
func NewStore(workers int) *Store {
	n := nextPowerOfTwo(workers * 4)
	if n < minShards {
		n = minShards
	}

	s := &Store{
		shards: make([]storeShard, n),
		mask:   uint64(n - 1),
	}
	for i := range s.shards {
		s.shards[i].items = make(map[string]storeEntry)
	}
	return s
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// fnv1a hashes key bytes for shard selection.
func fnv1a(key string) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	h := uint64(offset64)
	for i := 0; i < len(key); i++ {
		h ^= uint64(key[i])
		h *= prime64
	}
	return h
}

func (s *Store) shard(key string) *storeShard {
	return &s.shards[fnv1a(key)&s.mask]
}

// Get returns the value for key, or false when absent or expired.
func (s *Store) Get(key []byte) ([]byte, bool) {
	sh := s.shard(string(key))
	sh.mu.RLock()
	entry, ok := sh.items[string(key)]
	sh.mu.RUnlock()

	if !ok || entry.expired(time.Now()) {
		return nil, false
	}
	return entry.value, true
}

// Set stores value under key, replacing any prior entry and resetting the
// expiration. A ttl of zero means no expiry.
func (s *Store) Set(key, value []byte, ttl time.Duration) {
	entry := storeEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}

	sh := s.shard(string(key))
	sh.mu.Lock()
	sh.items[string(key)] = entry
	sh.mu.Unlock()
}

// SetAbsolute stores value with a pre-computed expiration time, used by
// snapshot and AOF replay. A zero expiresAt means no expiry.
func (s *Store) SetAbsolute(key, value []byte, expiresAt time.Time) {
	sh := s.shard(string(key))
	sh.mu.Lock()
	sh.items[string(key)] = storeEntry{value: value, expiresAt: expiresAt}
	sh.mu.Unlock()
}

// Del removes key, reporting whether a live entry existed.
func (s *Store) Del(key []byte) bool {
	sh := s.shard(string(key))
	sh.mu.Lock()
	entry, ok := sh.items[string(key)]
	if ok {
		delete(sh.items, string(key))
	}
	sh.mu.Unlock()

	return ok && !entry.expired(time.Now())
}

// Exists reports whether a non-expired entry exists for key.
func (s *Store) Exists(key []byte) bool {
	sh := s.shard(string(key))
	sh.mu.RLock()
	entry, ok := sh.items[string(key)]
	sh.mu.RUnlock()

	return ok && !entry.expired(time.Now())
}

// IncrBy atomically adjusts the decimal integer stored at key by delta,
// creating the key at delta when absent or expired. The entry's TTL is
// preserved. Non-numeric values fail without modifying state.
func (s *Store) IncrBy(key []byte, delta int64) (int64, error) {
	sh := s.shard(string(key))
	sh.mu.Lock()
	defer sh.mu.Unlock()

	now := time.Now()
	var current int64
	var expiresAt time.Time

	if entry, ok := sh.items[string(key)]; ok && !entry.expired(now) {
		parsed, err := strconv.ParseInt(string(entry.value), 10, 64)
		if err != nil {
			return 0, protocolErrorf("value is not an integer")
		}
		current = parsed
		expiresAt = entry.expiresAt
	}

	next := current + delta
	sh.items[string(key)] = storeEntry{
		value:     []byte(strconv.FormatInt(next, 10)),
		expiresAt: expiresAt,
	}
	return next, nil
}

// Len returns the total entry count, including not-yet-reaped expired
// entries.
func (s *Store) Len() int {
	total := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		total += len(sh.items)
		sh.mu.RUnlock()
	}
	return total
}

// SortedKeys returns all live keys in lexicographic order. SCAN's cursor
// pagination depends on the stable ordering.
func (s *Store) SortedKeys() []string {
	now := time.Now()
	var keys []string
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for key, entry := range sh.items {
			if !entry.expired(now) {
				keys = append(keys, key)
			}
		}
		sh.mu.RUnlock()
	}
	sort.Strings(keys)
	return keys
}

// CleanupExpired removes expired entries and returns the count removed.
// Shards are swept one at a time so no two shard locks are ever held
// together.
func (s *Store) CleanupExpired() int {
	removed := 0
	for i := range s.shards {
		sh := &s.shards[i]
		now := time.Now()

		sh.mu.Lock()
		for key, entry := range sh.items {
			if entry.expired(now) {
				delete(sh.items, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Snapshot captures all live entries for persistence. expiresAt is zero
// for entries with no expiry.
func (s *Store) Snapshot() []SnapshotEntry {
	now := time.Now()
	var entries []SnapshotEntry
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for key, entry := range sh.items {
			if entry.expired(now) {
				continue
			}
			entries = append(entries, SnapshotEntry{
				Key:       []byte(key),
				Value:     entry.value,
				ExpiresAt: entry.expiresAt,
			})
		}
		sh.mu.RUnlock()
	}
	return entries
}

// NumShards reports the shard count, for diagnostics.
func (s *Store) NumShards() int { return len(s.shards) }
