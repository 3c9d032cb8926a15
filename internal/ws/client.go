package ws

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/manpreetbhatti/tally/backend/internal/live"
	"github.com/manpreetbhatti/tally/backend/internal/protocol"
	"github.com/manpreetbhatti/tally/backend/internal/ratelimit"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 256

	// debug traces cut payloads to this many bytes
	traceLimit = 999
)

var (
	ErrClientClosed   = errors.New("client closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// Client is one websocket connection. It is the room.Member the registry
// broadcasts to and feeds its frames into a live.Session.
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	done        chan struct{}
	closed      atomic.Bool
	closeOnce   sync.Once
	rateLimiter *ratelimit.Limiter
	clientID    string
	session     *live.Session
	debug       bool
	logger      zerolog.Logger
}

func (c *Client) ID() string { return c.clientID }

func (c *Client) Connected() bool { return !c.closed.Load() }

// Send queues msg for the write pump without blocking.
func (c *Client) Send(msg []byte) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	select {
	case <-c.done:
		return ErrClientClosed
	case c.send <- msg:
		c.trace("out", msg)
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
	})
}

func (c *Client) trace(direction string, msg []byte) {
	if !c.debug {
		return
	}
	if len(msg) > traceLimit {
		msg = msg[:traceLimit]
	}
	c.logger.Debug().Str("dir", direction).Bytes("frame", msg).Msg("socket")
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.close()
		c.session.Handle(ctx, protocol.Envelope{Event: protocol.EventDisconnect})
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	rateLimitWarnings := 0

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("websocket error")
			}
			break
		}
		c.trace("in", message)

		if !c.rateLimiter.Allow() {
			rateLimitWarnings++
			if rateLimitWarnings%100 == 1 {
				c.logger.Warn().Int("warnings", rateLimitWarnings).Msg("rate limit exceeded")
			}
			if rateLimitWarnings > 1000 {
				c.logger.Warn().Msg("disconnecting client for excessive rate limit violations")
				return
			}
			continue
		}

		env, err := protocol.Decode(message)
		if err != nil {
			c.logger.Warn().Err(err).Msg("invalid message")
			continue
		}

		c.session.Handle(ctx, env)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}
