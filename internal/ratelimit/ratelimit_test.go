package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowWithinBurst(t *testing.T) {
	l := New(Config{RequestsPerMinute: 60, BurstSize: 5, CleanupInterval: time.Minute})
	defer l.Stop()

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("client-1"), "request %d should pass", i)
	}
	assert.False(t, l.Allow("client-1"), "burst exhausted")
}

func TestAllowIndependentClients(t *testing.T) {
	l := New(Config{RequestsPerMinute: 60, BurstSize: 1, CleanupInterval: time.Minute})
	defer l.Stop()

	assert.True(t, l.Allow("client-1"))
	assert.True(t, l.Allow("client-2"))
}

func TestTokensRefill(t *testing.T) {
	l := New(Config{RequestsPerMinute: 6000, BurstSize: 1, CleanupInterval: time.Minute})
	defer l.Stop()

	assert.True(t, l.Allow("client-1"))
	assert.False(t, l.Allow("client-1"))

	time.Sleep(50 * time.Millisecond) // 100 tokens/sec refill
	assert.True(t, l.Allow("client-1"))
}
