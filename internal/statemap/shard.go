package statemap

import (
	"hash/fnv"
	"sync"

	"github.com/scale-protocol/robot/internal/address"
)

// shardCount is the number of independent locking buckets per index.
// Fixed rather than configurable: spec.md §5 calls for "fine-grained,
// per-shard locking" without specifying a count, and a fixed power of
// two keeps the hash-to-bucket mapping a cheap mask.
const shardCount = 32

// shardedMap is a fixed-shard-count concurrent map keyed by Address.
// No sharded-concurrent-map library exists anywhere in the example
// corpus (checked: orcaman/concurrent-map, cornelk/hashmap,
// puzpuzpuz/xsync are all absent); this is built directly on
// sync.RWMutex, generalizing the teacher's own mutex-protected-map idiom
// (internal/engine/engine.go's `slots map[string]*marketSlot` +
// sync.RWMutex) to a sharded form.
type shardedMap[V any] struct {
	shards [shardCount]shard[V]
}

type shard[V any] struct {
	mu sync.RWMutex
	m  map[address.Address]V
}

func newShardedMap[V any]() *shardedMap[V] {
	sm := &shardedMap[V]{}
	for i := range sm.shards {
		sm.shards[i].m = make(map[address.Address]V)
	}
	return sm
}

func (sm *shardedMap[V]) shardFor(k address.Address) *shard[V] {
	h := fnv.New32a()
	h.Write(k[:])
	return &sm.shards[h.Sum32()%shardCount]
}

func (sm *shardedMap[V]) Set(k address.Address, v V) {
	s := sm.shardFor(k)
	s.mu.Lock()
	s.m[k] = v
	s.mu.Unlock()
}

func (sm *shardedMap[V]) Get(k address.Address) (V, bool) {
	s := sm.shardFor(k)
	s.mu.RLock()
	v, ok := s.m[k]
	s.mu.RUnlock()
	return v, ok
}

func (sm *shardedMap[V]) Delete(k address.Address) {
	s := sm.shardFor(k)
	s.mu.Lock()
	delete(s.m, k)
	s.mu.Unlock()
}

// Len returns the total number of entries across all shards. O(shardCount).
func (sm *shardedMap[V]) Len() int {
	total := 0
	for i := range sm.shards {
		sm.shards[i].mu.RLock()
		total += len(sm.shards[i].m)
		sm.shards[i].mu.RUnlock()
	}
	return total
}

// Each invokes fn for every entry. fn must not mutate sm.
func (sm *shardedMap[V]) Each(fn func(address.Address, V)) {
	for i := range sm.shards {
		sm.shards[i].mu.RLock()
		for k, v := range sm.shards[i].m {
			fn(k, v)
		}
		sm.shards[i].mu.RUnlock()
	}
}

// Keys returns a snapshot of every key currently present.
func (sm *shardedMap[V]) Keys() []address.Address {
	out := make([]address.Address, 0, sm.Len())
	sm.Each(func(k address.Address, _ V) { out = append(out, k) })
	return out
}
