package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestLimiter_BurstThenRefill(t *testing.T) {
	clock := newFakeClock()
	l := newLimiter(10, 3, clock.Now)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(), "token %d", i)
	}
	assert.False(t, l.Allow())

	clock.Advance(100 * time.Millisecond)
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())

	// refill never exceeds burst
	clock.Advance(time.Hour)
	assert.True(t, l.AllowN(3))
	assert.False(t, l.Allow())
}

func TestLimiter_AllowN(t *testing.T) {
	clock := newFakeClock()
	l := newLimiter(1, 5, clock.Now)

	assert.False(t, l.AllowN(6))
	assert.True(t, l.AllowN(5))
	assert.False(t, l.AllowN(1))
}

func TestKeyed_PerKey(t *testing.T) {
	clock := newFakeClock()
	k := newKeyed(1, 1, clock.Now)

	assert.Same(t, k.bucket("a"), k.bucket("a"))
	assert.True(t, k.Allow("a"))
	assert.False(t, k.Allow("a"))
	assert.True(t, k.Allow("b"))
	assert.Equal(t, 2, k.Len())

	k.Forget("a")
	assert.Equal(t, 1, k.Len())
	assert.True(t, k.Allow("a"))
}

func TestKeyed_EvictIdle(t *testing.T) {
	clock := newFakeClock()
	k := newKeyed(1, 1, clock.Now)

	k.Allow("old")
	clock.Advance(idleTTL)
	k.Allow("fresh")
	clock.Advance(time.Second)

	assert.Equal(t, 1, k.evictIdle())
	assert.Equal(t, 1, k.Len())
	k.Stop()
	k.Stop()
}
