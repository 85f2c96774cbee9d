package syncutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyMutexSerializesSameKey(t *testing.T) {
	m := NewKeyMutex()
	ctx := context.Background()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := m.Lock(ctx, "agent-1")
			if err != nil {
				return
			}
			defer unlock()
			counter++
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}

func TestKeyMutexContextCancellation(t *testing.T) {
	m := NewKeyMutex()

	unlock, err := m.Lock(context.Background(), "agent-1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = m.Lock(ctx, "agent-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()

	// Lock is available again after unlock.
	unlock2, err := m.Lock(context.Background(), "agent-1")
	require.NoError(t, err)
	unlock2()
}

func TestKeyMutexIndependentKeys(t *testing.T) {
	m := NewKeyMutex()
	ctx := context.Background()

	unlock1, err := m.Lock(ctx, "agent-1")
	require.NoError(t, err)
	defer unlock1()

	// A different key (different shard, with overwhelming probability)
	// should not block. Guard with a timeout either way.
	ctx2, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	unlock2, err := m.Lock(ctx2, "invoice-9")
	require.NoError(t, err)
	unlock2()
}
