package main

// SemanticCacheConfig tunes the policy layer over the embedding index.
type SemanticCacheConfig struct {
	// Minimum cosine similarity for a match.
	SimilarityThreshold float32
	// Maximum results returned by SemanticGet.
	MaxResults int
	// Embedding dimension.
	Dimension int
}

// DefaultSemanticCacheConfig matches common text-embedding output.
func DefaultSemanticCacheConfig() SemanticCacheConfig {
	return SemanticCacheConfig{
		SimilarityThreshold: 0.85,
		MaxResults:          5,
		Dimension:           1536,
	}
}

// SemanticResult is one semantic lookup hit.
type SemanticResult struct {
	Key        string
	Value      []byte
	Similarity float32
	Metadata   string
}

// SemanticCache turns nearest-neighbor scans into threshold-gated cache
// lookups.
type SemanticCache struct {
	index *EmbeddingIndex
	cfg   SemanticCacheConfig
}

// NewSemanticCache creates a cache with its own embedding index.
func NewSemanticCache(cfg SemanticCacheConfig) *SemanticCache {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = 1536
	}
	return &SemanticCache{
		index: NewEmbeddingIndex(cfg.Dimension),
		cfg:   cfg,
	}
}

// Index exposes the underlying embedding index.
func (sc *SemanticCache) Index() *EmbeddingIndex { return sc.index }

// Config returns the active policy configuration.
func (sc *SemanticCache) Config() SemanticCacheConfig { return sc.cfg }

// Set stores an embedding with its associated value and metadata. Vectors
// whose length differs from the configured dimension are rejected.
func (sc *SemanticCache) Set(key []byte, vector []float32, value []byte, metadata string) error {
	entry := NewEmbeddingEntry(vector).WithValue(value).WithMetadata(metadata)
	return sc.index.Set(key, entry)
}

// Get looks up an exact key. A hit reports similarity 1.0.
func (sc *SemanticCache) Get(key []byte) (SemanticResult, bool) {
	entry, ok := sc.index.Get(key)
	if !ok {
		return SemanticResult{}, false
	}
	return SemanticResult{
		Key:        string(key),
		Value:      entry.Value,
		Similarity: 1.0,
		Metadata:   entry.Metadata,
	}, true
}

// Del removes an embedding.
func (sc *SemanticCache) Del(key []byte) bool { return sc.index.Del(key) }

// SemanticGet returns up to MaxResults entries at least as similar to
// query as the threshold, ordered by descending similarity.
func (sc *SemanticCache) SemanticGet(query []float32) ([]SemanticResult, error) {
	return sc.SearchK(query, sc.cfg.MaxResults)
}

// SearchK is SemanticGet with an explicit result cap; VSEARCH routes its
// k through here.
func (sc *SemanticCache) SearchK(query []float32, k int) ([]SemanticResult, error) {
	neighbors, err := sc.index.FindNearest(query, k, sc.cfg.SimilarityThreshold)
	if err != nil {
		return nil, err
	}

	results := make([]SemanticResult, 0, len(neighbors))
	for _, n := range neighbors {
		res := SemanticResult{Key: n.Key, Similarity: n.Similarity}
		if entry, ok := sc.index.Get([]byte(n.Key)); ok {
			res.Value = entry.Value
			res.Metadata = entry.Metadata
		}
		results = append(results, res)
	}
	return results, nil
}

// HasSemanticMatch reports whether any stored entry clears the threshold.
func (sc *SemanticCache) HasSemanticMatch(query []float32) (bool, error) {
	results, err := sc.SearchK(query, 1)
	if err != nil {
		return false, err
	}
	return len(results) > 0, nil
}

// BestMatch returns the single most similar entry above the threshold.
func (sc *SemanticCache) BestMatch(query []float32) (SemanticResult, bool, error) {
	results, err := sc.SearchK(query, 1)
	if err != nil {
		return SemanticResult{}, false, err
	}
	if len(results) == 0 {
		return SemanticResult{}, false, nil
	}
	return results[0], true, nil
}
