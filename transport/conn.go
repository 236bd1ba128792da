package transport

import (
	"sync"

	"github.com/james226/scene-relay/relay"
)

// conn is the relay-facing side of a client connection: a buffered outbound
// queue drained by the connection's writer.
type conn struct {
	send   chan relay.Message
	mu     sync.Mutex
	closed bool
}

func newConn(buffer int) *conn {
	if buffer <= 0 {
		buffer = 256
	}
	return &conn{send: make(chan relay.Message, buffer)}
}

// Send queues msg without blocking.
func (c *conn) Send(msg relay.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return relay.ErrClientGone
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return relay.ErrSendBufferFull
	}
}

// Close stops further deliveries. Queued messages are still drained.
func (c *conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
