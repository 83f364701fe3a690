package main

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// EmbeddingEntry is one stored vector plus its optional associated value
// and metadata. created and accessed use the monotonic clock carried by
// time.Time.
type EmbeddingEntry struct {
	Vector   []float32
	Value    []byte
	Metadata string

	created  time.Time
	accessed time.Time
	seq      uint64 // insertion order, breaks similarity ties
}

// NewEmbeddingEntry builds an entry around a vector.
func NewEmbeddingEntry(vector []float32) *EmbeddingEntry {
	now := time.Now()
	return &EmbeddingEntry{Vector: vector, created: now, accessed: now}
}

// WithValue attaches the associated value bytes.
func (e *EmbeddingEntry) WithValue(value []byte) *EmbeddingEntry {
	e.Value = value
	return e
}

// WithMetadata attaches the metadata string.
func (e *EmbeddingEntry) WithMetadata(md string) *EmbeddingEntry {
	e.Metadata = md
	return e
}

type embeddingBucket struct {
	mu      sync.RWMutex
	entries map[string]*EmbeddingEntry
}

// EmbeddingIndex stores fixed-dimension vectors keyed by byte strings,
// bucketed like the KV shards. Search is an exact brute-force cosine scan.
type EmbeddingIndex struct {
	buckets []embeddingBucket
	mask    uint64
	dim     int
	nextSeq atomic.Uint64
}

const embeddingBuckets = 16 // power of two

// NewEmbeddingIndex creates an index whose inserts must all carry vectors
// of length dim.
func NewEmbeddingIndex(dim int) *EmbeddingIndex {
	idx := &EmbeddingIndex{
		buckets: make([]embeddingBucket, embeddingBuckets),
		mask:    embeddingBuckets - 1,
		dim:     dim,
	}
	for i := range idx.buckets {
		idx.buckets[i].entries = make(map[string]*EmbeddingEntry)
	}
	return idx
}

// Dimension returns the fixed vector length of this index.
func (idx *EmbeddingIndex) Dimension() int { return idx.dim }

func (idx *EmbeddingIndex) bucket(key string) *embeddingBucket {
	return &idx.buckets[fnv1a(key)&idx.mask]
}

// Set inserts or replaces the entry for key, stamping last-accessed. A
// vector whose length disagrees with the index dimension fails with a
// DIMENSION error and leaves the index unchanged.
func (idx *EmbeddingIndex) Set(key []byte, entry *EmbeddingEntry) error {
	if len(entry.Vector) != idx.dim {
		return dimensionErrorf("dimension mismatch: expected %d, got %d", idx.dim, len(entry.Vector))
	}

	entry.accessed = time.Now()
	entry.seq = idx.nextSeq.Add(1)

	b := idx.bucket(string(key))
	b.mu.Lock()
	b.entries[string(key)] = entry
	b.mu.Unlock()
	return nil
}

// Get returns the entry for key, refreshing its last-accessed stamp.
func (idx *EmbeddingIndex) Get(key []byte) (*EmbeddingEntry, bool) {
	b := idx.bucket(string(key))
	b.mu.Lock()
	entry, ok := b.entries[string(key)]
	if ok {
		entry.accessed = time.Now()
	}
	b.mu.Unlock()
	return entry, ok
}

// Del removes the entry for key, reporting whether it existed.
func (idx *EmbeddingIndex) Del(key []byte) bool {
	b := idx.bucket(string(key))
	b.mu.Lock()
	_, ok := b.entries[string(key)]
	if ok {
		delete(b.entries, string(key))
	}
	b.mu.Unlock()
	return ok
}

// Len returns the number of stored vectors.
func (idx *EmbeddingIndex) Len() int {
	total := 0
	for i := range idx.buckets {
		b := &idx.buckets[i]
		b.mu.RLock()
		total += len(b.entries)
		b.mu.RUnlock()
	}
	return total
}

// Neighbor is one FindNearest result.
type Neighbor struct {
	Key        string
	Similarity float32
}

// FindNearest scans every stored vector, computes cosine similarity to
// query, drops entries below threshold, sorts descending and truncates to
// k. Ties are broken by insertion order. The query must match the index
// dimension.
func (idx *EmbeddingIndex) FindNearest(query []float32, k int, threshold float32) ([]Neighbor, error) {
	if len(query) != idx.dim {
		return nil, dimensionErrorf("query dimension %d does not match index dimension %d", len(query), idx.dim)
	}
	if k <= 0 {
		return nil, nil
	}

	type scored struct {
		key string
		sim float32
		seq uint64
	}

	var candidates []scored
	for i := range idx.buckets {
		b := &idx.buckets[i]
		b.mu.RLock()
		for key, entry := range b.entries {
			sim := cosineSimilarity(query, entry.Vector)
			if sim >= threshold {
				candidates = append(candidates, scored{key: key, sim: sim, seq: entry.seq})
			}
		}
		b.mu.RUnlock()
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].sim != candidates[j].sim {
			return candidates[i].sim > candidates[j].sim
		}
		return candidates[i].seq < candidates[j].seq
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}

	neighbors := make([]Neighbor, len(candidates))
	for i, c := range candidates {
		neighbors[i] = Neighbor{Key: c.key, Similarity: c.sim}
	}
	return neighbors, nil
}
