// Package conversation keeps the message history of one agent conversation.
package conversation

import (
	"sync"

	"github.com/google/uuid"

	"github.com/sweetpotato0/notion-agent/message"
)

// DefaultMaxSize is the number of messages kept when no size is given.
const DefaultMaxSize = 100

// Conversation is a bounded, concurrency-safe message history. System
// messages are never trimmed.
type Conversation struct {
	mu       sync.RWMutex
	id       string
	messages []*message.Message
	maxSize  int
}

// New creates an empty conversation with a fresh ID.
func New(maxSize int) *Conversation {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Conversation{
		id:       uuid.NewString(),
		messages: make([]*message.Message, 0),
		maxSize:  maxSize,
	}
}

// ID identifies the conversation.
func (c *Conversation) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

// Add appends messages, trimming the oldest non-system messages when the
// history grows past its maximum size.
func (c *Conversation) Add(msgs ...*message.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, msg := range msgs {
		if msg != nil {
			c.messages = append(c.messages, msg)
		}
	}
	if len(c.messages) <= c.maxSize {
		return
	}

	system := 0
	for _, m := range c.messages {
		if m.Role == message.RoleSystem {
			system++
		}
	}
	drop := len(c.messages) - c.maxSize
	if limit := len(c.messages) - system; drop > limit {
		drop = limit
	}

	kept := make([]*message.Message, 0, len(c.messages)-drop)
	for _, m := range c.messages {
		if drop > 0 && m.Role != message.RoleSystem {
			drop--
			continue
		}
		kept = append(kept, m)
	}
	c.messages = kept
}

// Messages returns a copy of the history.
func (c *Conversation) Messages() []*message.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*message.Message(nil), c.messages...)
}

// Last returns the most recent message or nil.
func (c *Conversation) Last() *message.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.messages) == 0 {
		return nil
	}
	return c.messages[len(c.messages)-1]
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Reset clears the history and assigns a new ID.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.id = uuid.NewString()
	c.messages = make([]*message.Message, 0)
}
