package core

import "context"

const (
	commandBuffer = 16
	eventBuffer   = 64
)

// Client is one authenticated connection as seen by the core layer.
type Client struct {
	ID         string
	Identity   Identity
	RemoteAddr string
	Commands   chan *Command
	Events     chan *Event
}

// NewClient constructs a client with initialized channels.
func NewClient(id string, identity Identity) *Client {
	if identity.Username == "" {
		identity.Username = identity.UserID
	}
	return &Client{
		ID:       id,
		Identity: identity,
		Commands: make(chan *Command, commandBuffer),
		Events:   make(chan *Event, eventBuffer),
	}
}

// UserID is a shorthand for c.Identity.UserID.
func (c *Client) UserID() string {
	return c.Identity.UserID
}

// trySend queues ev without blocking. Returns false if the client is too slow.
func (c *Client) trySend(ev *Event) bool {
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}

// Deliver queues ev and waits for buffer space until ctx is done.
func (c *Client) Deliver(ctx context.Context, ev *Event) error {
	select {
	case c.Events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
