package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a token bucket refilled at rate tokens per second up to burst.
type Limiter struct {
	rate       float64
	burst      int
	tokens     float64
	lastUpdate time.Time
	now        func() time.Time
	mu         sync.Mutex
}

func NewLimiter(rate float64, burst int) *Limiter {
	return newLimiter(rate, burst, time.Now)
}

func newLimiter(rate float64, burst int, now func() time.Time) *Limiter {
	return &Limiter{
		rate:       rate,
		burst:      burst,
		tokens:     float64(burst),
		lastUpdate: now(),
		now:        now,
	}
}

func (l *Limiter) Allow() bool {
	return l.AllowN(1)
}

func (l *Limiter) AllowN(n int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()
	if l.tokens >= float64(n) {
		l.tokens -= float64(n)
		return true
	}
	return false
}

// idleSince reports how long the bucket has gone without a request.
func (l *Limiter) idleSince(now time.Time) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return now.Sub(l.lastUpdate)
}

func (l *Limiter) refill() {
	now := l.now()
	elapsed := now.Sub(l.lastUpdate).Seconds()
	l.lastUpdate = now

	l.tokens += elapsed * l.rate
	if l.tokens > float64(l.burst) {
		l.tokens = float64(l.burst)
	}
}

const (
	idleTTL       = 10 * time.Minute
	sweepInterval = 5 * time.Minute
)

// Keyed hands out one Limiter per key (a remote address, say) and forgets
// keys whose bucket has gone unused for idleTTL.
type Keyed struct {
	rate  float64
	burst int
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*Limiter

	done     chan struct{}
	stopOnce sync.Once
}

func NewKeyed(rate float64, burst int) *Keyed {
	k := newKeyed(rate, burst, time.Now)
	go k.janitor(sweepInterval)
	return k
}

func newKeyed(rate float64, burst int, now func() time.Time) *Keyed {
	return &Keyed{
		rate:    rate,
		burst:   burst,
		now:     now,
		buckets: make(map[string]*Limiter),
		done:    make(chan struct{}),
	}
}

// Allow takes one token from the bucket of key, creating it full on first use.
func (k *Keyed) Allow(key string) bool {
	return k.bucket(key).Allow()
}

func (k *Keyed) bucket(key string) *Limiter {
	k.mu.Lock()
	defer k.mu.Unlock()

	b, ok := k.buckets[key]
	if !ok {
		b = newLimiter(k.rate, k.burst, k.now)
		k.buckets[key] = b
	}
	return b
}

func (k *Keyed) Forget(key string) {
	k.mu.Lock()
	delete(k.buckets, key)
	k.mu.Unlock()
}

func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.buckets)
}

// Stop ends the janitor. Allow keeps working afterwards.
func (k *Keyed) Stop() {
	k.stopOnce.Do(func() { close(k.done) })
}

func (k *Keyed) janitor(every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()

	for {
		select {
		case <-k.done:
			return
		case <-t.C:
			k.evictIdle()
		}
	}
}

func (k *Keyed) evictIdle() (evicted int) {
	now := k.now()

	k.mu.Lock()
	defer k.mu.Unlock()

	for key, b := range k.buckets {
		if b.idleSince(now) >= idleTTL {
			delete(k.buckets, key)
			evicted++
		}
	}
	return evicted
}
