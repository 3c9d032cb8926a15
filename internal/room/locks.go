package room

import "sync"

// gameLocks serializes work per game id. Entries live only while someone
// holds or waits for them.
type gameLocks struct {
	mu    sync.Mutex
	locks map[string]*gameLock
}

type gameLock struct {
	sync.Mutex
	refs int
}

func newGameLocks() *gameLocks {
	return &gameLocks{locks: make(map[string]*gameLock)}
}

// lock blocks until gameID is free and returns its unlock func.
func (gl *gameLocks) lock(gameID string) func() {
	gl.mu.Lock()
	l, ok := gl.locks[gameID]
	if !ok {
		l = &gameLock{}
		gl.locks[gameID] = l
	}
	l.refs++
	gl.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()

		gl.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(gl.locks, gameID)
		}
		gl.mu.Unlock()
	}
}

func (gl *gameLocks) len() int {
	gl.mu.Lock()
	defer gl.mu.Unlock()
	return len(gl.locks)
}
