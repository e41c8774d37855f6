package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// SendFunc transmits one frame toward the host dispatcher.
type SendFunc func(Message) error

// Client is the native counterpart of the generated sandbox script: it
// speaks the same call/response protocol for in-process isolates and
// tests. Each call gets a fresh correlation id; responses resolve the
// matching pending call, and responses with unknown ids are dropped.
type Client struct {
	send SendFunc

	mu      sync.Mutex
	pending map[string]chan Message
	closed  bool
}

// NewClient creates a client that transmits frames through send.
func NewClient(send SendFunc) *Client {
	return &Client{
		send:    send,
		pending: make(map[string]chan Message),
	}
}

// Call invokes service.procedure through the bridge and waits for the
// response or context cancellation.
func (c *Client) Call(ctx context.Context, serviceName, procedure string, args any) (any, error) {
	id := uuid.NewString()
	ch := make(chan Message, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrConnectionClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	err := c.send(Message{
		Type:      TypeServiceCall,
		ID:        id,
		Service:   serviceName,
		Procedure: procedure,
		Args:      args,
	})
	if err != nil {
		return nil, fmt.Errorf("bridge send: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case response := <-ch:
		if response.Type == TypeError || response.Error != "" {
			return nil, fmt.Errorf("%s.%s: %s", serviceName, procedure, response.Error)
		}
		return response.Result, nil
	}
}

// Deliver feeds one inbound frame to the client. Frames whose id
// matches no pending call are dropped silently.
func (c *Client) Deliver(msg Message) {
	c.mu.Lock()
	ch, ok := c.pending[msg.ID]
	if ok {
		delete(c.pending, msg.ID)
	}
	c.mu.Unlock()
	if ok {
		ch <- msg
	}
}

// Close rejects every pending call and refuses new ones.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pending := c.pending
	c.pending = make(map[string]chan Message)
	c.mu.Unlock()

	for id, ch := range pending {
		ch <- Message{Type: TypeError, ID: id, Error: ErrConnectionClosed.Error()}
	}
}
