// Package middleware wraps agent runs in a chain of interceptors.
package middleware

import (
	"context"

	"github.com/sweetpotato0/notion-agent/message"
)

// Context carries one agent run through the chain.
type Context struct {
	// Input is the user's message for this run.
	Input string

	// ConversationID identifies the conversation the run belongs to.
	ConversationID string

	// Messages is the history sent to the LLM on the first step.
	Messages []*message.Message

	// Response is the final assistant message, set by the agent.
	Response *message.Message

	// ToolCalls counts tool invocations made during the run.
	ToolCalls int

	Error error

	// Metadata passes data between middlewares.
	Metadata map[string]interface{}

	context context.Context
}

// NewContext creates a new middleware context
func NewContext(ctx context.Context) *Context {
	return &Context{
		Metadata: make(map[string]interface{}),
		context:  ctx,
	}
}

// Context returns the underlying context.Context
func (c *Context) Context() context.Context {
	if c.context == nil {
		return context.Background()
	}
	return c.context
}

// Middleware intercepts an agent run. Returning an error stops the chain.
type Middleware interface {
	Name() string
	Execute(ctx *Context, next Handler) error
}

// Handler is the function called to pass control to the next middleware
type Handler func(*Context) error

// Func adapts a function to the Middleware interface.
type Func struct {
	name string
	fn   func(*Context, Handler) error
}

// NewFunc names fn as a middleware.
func NewFunc(name string, fn func(*Context, Handler) error) *Func {
	return &Func{name: name, fn: fn}
}

func (f *Func) Name() string { return f.name }

func (f *Func) Execute(ctx *Context, next Handler) error {
	return f.fn(ctx, next)
}

// MiddlewareChain represents a sequence of middleware to be executed
type MiddlewareChain struct {
	middlewares []Middleware
}

// NewChain creates a new middleware chain
func NewChain(middlewares ...Middleware) *MiddlewareChain {
	c := &MiddlewareChain{}
	for _, m := range middlewares {
		c.Add(m)
	}
	return c
}

// Add appends m to the chain; nil is ignored.
func (c *MiddlewareChain) Add(m Middleware) *MiddlewareChain {
	if m != nil {
		c.middlewares = append(c.middlewares, m)
	}
	return c
}

// List returns the middlewares in execution order.
func (c *MiddlewareChain) List() []Middleware {
	return append([]Middleware(nil), c.middlewares...)
}

// Len returns the number of middlewares.
func (c *MiddlewareChain) Len() int {
	return len(c.middlewares)
}

// Execute runs all middlewares in the chain
func (c *MiddlewareChain) Execute(ctx *Context, finalHandler Handler) error {
	return c.executeMiddleware(ctx, 0, finalHandler)
}

func (c *MiddlewareChain) executeMiddleware(ctx *Context, index int, finalHandler Handler) error {
	if index >= len(c.middlewares) {
		return finalHandler(ctx)
	}

	nextHandler := func(ctx *Context) error {
		return c.executeMiddleware(ctx, index+1, finalHandler)
	}
	return c.middlewares[index].Execute(ctx, nextHandler)
}
