package sig

import (
	"hash/fnv"
	"sync"

	"github.com/shelfgap/shelfgap/internal/scan"
)

// Power of 2 for fast bitwise mod.
const numShards = 64

type shard struct {
	mu    sync.RWMutex
	items map[string][]*scan.FileRecord
}

// Index maps a progressive-signature key to the records sharing it, scoped
// to one tree. Keys are sharded so concurrent producers only contend within
// a shard; insert-or-append is atomic per key, so two records with a matching
// signature computed concurrently always land in the same group.
type Index struct {
	shards [numShards]*shard
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	idx := &Index{}
	for i := range idx.shards {
		idx.shards[i] = &shard{items: make(map[string][]*scan.FileRecord)}
	}
	return idx
}

func (idx *Index) getShard(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return idx.shards[h.Sum32()&(numShards-1)]
}

// Insert appends rec to the group for key.
func (idx *Index) Insert(key string, rec *scan.FileRecord) {
	s := idx.getShard(key)
	s.mu.Lock()
	s.items[key] = append(s.items[key], rec)
	s.mu.Unlock()
}

// Get returns the group for key, or nil.
func (idx *Index) Get(key string) []*scan.FileRecord {
	s := idx.getShard(key)
	s.mu.RLock()
	group := s.items[key]
	s.mu.RUnlock()
	return group
}

// Has reports whether any record is indexed under key.
func (idx *Index) Has(key string) bool {
	s := idx.getShard(key)
	s.mu.RLock()
	_, ok := s.items[key]
	s.mu.RUnlock()
	return ok
}

// Len returns the total number of distinct keys.
func (idx *Index) Len() int {
	n := 0
	for _, s := range idx.shards {
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}
	return n
}
