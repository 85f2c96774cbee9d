// Package syncutil provides keyed locking primitives used to serialize
// financial mutations per agent and per invoice.
package syncutil

import (
	"context"
	"hash/fnv"
	"sync"
)

// KeyMutex is a fixed-size pool of channel-based mutexes keyed by string.
// Memory stays bounded no matter how many keys are seen, at the cost of
// occasional false sharing between keys that hash to the same shard.
// Acquisition respects context cancellation so a caller whose request
// deadline expires while queued behind another mutation can bail out.
type KeyMutex struct {
	shards [256]shard
	once   sync.Once
}

type shard struct {
	ch chan struct{}
}

// NewKeyMutex creates a new keyed mutex pool.
func NewKeyMutex() *KeyMutex {
	m := &KeyMutex{}
	m.init()
	return m
}

func (m *KeyMutex) init() {
	m.once.Do(func() {
		for i := range m.shards {
			m.shards[i].ch = make(chan struct{}, 1)
			m.shards[i].ch <- struct{}{} // start unlocked
		}
	})
}

// Lock acquires the mutex for key, respecting context cancellation.
// On success it returns an unlock function the caller MUST invoke.
// On cancellation it returns nil and the context error.
func (m *KeyMutex) Lock(ctx context.Context, key string) (func(), error) {
	m.init()
	s := &m.shards[m.idx(key)]

	select {
	case <-s.ch:
		return func() { s.ch <- struct{}{} }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *KeyMutex) idx(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % 256
}
