package relay

import (
	"errors"

	"github.com/segmentio/ksuid"
)

var (
	// ErrClientGone means the client's connection is closed. The relay
	// unregisters the client when a delivery fails with it.
	ErrClientGone = errors.New("client connection closed")

	// ErrSendBufferFull means the delivery was dropped; the client stays registered.
	ErrSendBufferFull = errors.New("client send buffer full")
)

// Sender is the transport side of a client. Send must not block.
type Sender interface {
	Send(msg Message) error
	Close()
}

// Client is one connected session.
type Client struct {
	id     string
	name   string
	sender Sender
}

func NewClient(name string, sender Sender) *Client {
	return &Client{
		id:     ksuid.New().String(),
		name:   name,
		sender: sender,
	}
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) Name() string {
	return c.name
}

func (c *Client) peer() Peer {
	return Peer{ClientID: c.id, Name: c.name}
}
