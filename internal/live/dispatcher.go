package live

import (
	"context"
	"sync"

	"github.com/manpreetbhatti/tally/backend/internal/protocol"
)

type handlerFunc func(ctx context.Context, env protocol.Envelope)

// dispatcher routes inbound events of one connection to the handlers
// currently subscribed for them.
type dispatcher struct {
	mu       sync.Mutex
	handlers map[protocol.Event]handlerFunc
}

func newDispatcher() *dispatcher {
	return &dispatcher{handlers: make(map[protocol.Event]handlerFunc)}
}

// on subscribes fn to event and returns the matching unsubscribe func.
func (d *dispatcher) on(event protocol.Event, fn handlerFunc) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.handlers[event] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			delete(d.handlers, event)
		})
	}
}

func (d *dispatcher) lookup(event protocol.Event) (handlerFunc, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	fn, ok := d.handlers[event]
	return fn, ok
}

func (d *dispatcher) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handlers)
}
