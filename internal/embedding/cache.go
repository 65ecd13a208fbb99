package embedding

import (
	"container/list"
	"sync"
)

// EmbeddingCache is an LRU cache of vectors keyed by the truncated input text.
// Boilerplate paragraphs repeat across a case's documents, so identical chunk
// text is embedded once. Vectors are copied in and out; callers own what they get.
type EmbeddingCache struct {
	capacity int
	entries  map[string]*list.Element
	lru      *list.List
	hits     uint64
	misses   uint64
	mu       sync.Mutex
}

type cacheEntry struct {
	text   string
	vector []float32
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

// NewEmbeddingCache returns a cache holding at most capacity vectors, or nil
// when capacity <= 0. A nil cache is valid and never hits.
func NewEmbeddingCache(capacity int) *EmbeddingCache {
	if capacity <= 0 {
		return nil
	}
	return &EmbeddingCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
	}
}

func cloneVector(v []float32) []float32 {
	return append([]float32(nil), v...)
}

// Get returns a copy of the vector cached for text.
func (c *EmbeddingCache) Get(text string) ([]float32, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[text]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.lru.MoveToFront(elem)
	return cloneVector(elem.Value.(*cacheEntry).vector), true
}

// Set stores a copy of vector for text, evicting the least recently used entry.
func (c *EmbeddingCache) Set(text string, vector []float32) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[text]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*cacheEntry).vector = cloneVector(vector)
		return
	}
	c.entries[text] = c.lru.PushFront(&cacheEntry{text: text, vector: cloneVector(vector)})
	for c.lru.Len() > c.capacity {
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).text)
	}
}

// Stats returns entry and hit counts.
func (c *EmbeddingCache) Stats() CacheStats {
	if c == nil {
		return CacheStats{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Entries: c.lru.Len(), Hits: c.hits, Misses: c.misses}
}
