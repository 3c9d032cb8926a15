// Package roomtest provides an in-memory room.Member for tests.
package roomtest

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/manpreetbhatti/tally/backend/internal/model"
	"github.com/manpreetbhatti/tally/backend/internal/protocol"
)

var ErrClosed = errors.New("member closed")

// Member records every message it is sent.
type Member struct {
	id     string
	closed atomic.Bool

	mu     sync.Mutex
	frames []protocol.Envelope
	notify chan struct{}
}

func NewMember(id string) *Member {
	return &Member{id: id, notify: make(chan struct{}, 1)}
}

func (m *Member) ID() string { return m.id }

func (m *Member) Connected() bool { return !m.closed.Load() }

// Close makes the member look like a dropped connection.
func (m *Member) Close() { m.closed.Store(true) }

func (m *Member) Send(msg []byte) error {
	if m.closed.Load() {
		return ErrClosed
	}

	var env protocol.Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return err
	}

	m.mu.Lock()
	m.frames = append(m.frames, env)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
	return nil
}

// Frames returns a copy of everything received so far.
func (m *Member) Frames() []protocol.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]protocol.Envelope(nil), m.frames...)
}

// Events lists the received event names in order.
func (m *Member) Events() []protocol.Event {
	frames := m.Frames()
	out := make([]protocol.Event, len(frames))
	for i, f := range frames {
		out[i] = f.Event
	}
	return out
}

// Reset forgets received frames.
func (m *Member) Reset() {
	m.mu.Lock()
	m.frames = nil
	m.mu.Unlock()
}

// Last returns the most recent frame carrying event.
func (m *Member) Last(event protocol.Event) (protocol.Envelope, bool) {
	frames := m.Frames()
	for i := len(frames) - 1; i >= 0; i-- {
		if frames[i].Event == event {
			return frames[i], true
		}
	}
	return protocol.Envelope{}, false
}

// LastGame decodes the most recent "game" frame.
func (m *Member) LastGame() (*model.Game, bool) {
	env, ok := m.Last(protocol.EventGame)
	if !ok {
		return nil, false
	}
	var g model.Game
	if err := json.Unmarshal(env.Data, &g); err != nil {
		return nil, false
	}
	return &g, true
}

// Games decodes every "game" frame in arrival order.
func (m *Member) Games() []*model.Game {
	var out []*model.Game
	for _, env := range m.Frames() {
		if env.Event != protocol.EventGame {
			continue
		}
		var g model.Game
		if err := json.Unmarshal(env.Data, &g); err == nil {
			out = append(out, &g)
		}
	}
	return out
}

// WaitFor blocks until a frame with event arrives or timeout elapses.
func (m *Member) WaitFor(event protocol.Event, timeout time.Duration) (protocol.Envelope, bool) {
	deadline := time.After(timeout)
	for {
		if env, ok := m.Last(event); ok {
			return env, true
		}
		select {
		case <-m.notify:
		case <-deadline:
			return protocol.Envelope{}, false
		}
	}
}
