package resource

import (
	"hash/fnv"
	"sync"
)

const shardCount = 16

// ChangeHook is invoked after any mutation (insert/remove/reload) so that
// dependents can rebuild derived indexes: the route matcher rebuilding its
// match table, the SNI index rebuilding for SSL, etc.
type ChangeHook func()

type shard[T Identifiable] struct {
	mu    sync.RWMutex
	items map[string]T
}

// Store is a process-wide concurrent map of one resource kind, keyed by id.
// Reads are lock-free across shards (only the owning shard is locked, and
// only for the duration of the map access); writes take a per-shard lock.
// It generalizes the single-kind MemoryUpstreamStore this replaces to any
// Identifiable resource kind.
type Store[T Identifiable] struct {
	shards [shardCount]*shard[T]

	hookMu sync.Mutex
	hooks  []ChangeHook
}

// NewStore creates an empty Store.
func NewStore[T Identifiable]() *Store[T] {
	s := &Store[T]{}
	for i := range s.shards {
		s.shards[i] = &shard[T]{items: make(map[string]T)}
	}
	return s
}

func shardIndex(id string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return int(h.Sum32()) % shardCount
}

func (s *Store[T]) shardFor(id string) *shard[T] {
	return s.shards[shardIndex(id)]
}

// OnChange registers a hook fired after every mutating call.
func (s *Store[T]) OnChange(hook ChangeHook) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.hooks = append(s.hooks, hook)
}

func (s *Store[T]) fire() {
	s.hookMu.Lock()
	hooks := append([]ChangeHook(nil), s.hooks...)
	s.hookMu.Unlock()
	for _, h := range hooks {
		h()
	}
}

// Insert adds or replaces the entry keyed by item.GetID().
func (s *Store[T]) Insert(item T) {
	sh := s.shardFor(item.GetID())
	sh.mu.Lock()
	sh.items[item.GetID()] = item
	sh.mu.Unlock()
	s.fire()
}

// Get returns the entry for id, or the zero value and false if absent.
func (s *Store[T]) Get(id string) (T, bool) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	v, ok := sh.items[id]
	return v, ok
}

// Remove deletes the entry for id, if present.
func (s *Store[T]) Remove(id string) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	_, existed := sh.items[id]
	delete(sh.items, id)
	sh.mu.Unlock()
	if existed {
		s.fire()
	}
}

// Iter returns a snapshot slice of all entries. Snapshot-consistent per
// shard: concurrent writers cannot be observed mid-shard-iteration, but no
// cross-shard consistency is claimed.
func (s *Store[T]) Iter() []T {
	out := make([]T, 0, s.Len())
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, v := range sh.items {
			out = append(out, v)
		}
		sh.mu.RUnlock()
	}
	return out
}

// Len returns the total number of entries across all shards.
func (s *Store[T]) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.items)
		sh.mu.RUnlock()
	}
	return n
}

// Reload atomically swaps each shard's contents for the subset of list that
// hashes to it. Entries absent from list are dropped. This is not a single
// global atomic swap (that would require one global lock,
// defeating per-shard concurrency) — instead each shard is swapped in turn,
// which is sufficient because readers only ever observe one shard at a time
// and Iter/Len tolerate interleaving with a concurrent Reload.
func (s *Store[T]) Reload(list []T) {
	byShard := make([][]T, shardCount)
	for _, item := range list {
		idx := shardIndex(item.GetID())
		byShard[idx] = append(byShard[idx], item)
	}
	for i, sh := range s.shards {
		next := make(map[string]T, len(byShard[i]))
		for _, item := range byShard[i] {
			next[item.GetID()] = item
		}
		sh.mu.Lock()
		sh.items = next
		sh.mu.Unlock()
	}
	s.fire()
}
