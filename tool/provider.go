package tool

import "context"

// Provider supplies tools that can be registered with an agent.
type Provider interface {
	// Tools returns the provider's current tool definitions.
	Tools(ctx context.Context) ([]*Tool, error)
	// Close releases resources owned by the provider.
	Close() error
	// ToolsChanged returns a channel that fires when the tool set is updated.
	// Providers that do not support live updates should return nil.
	ToolsChanged() <-chan struct{}
}

// Source is a synchronous accessor for a tool set that may be published after
// the consumer was constructed. CurrentTools must never block and never
// return nil.
type Source interface {
	CurrentTools() []*Tool
}

// StaticProvider serves a fixed tool list.
type StaticProvider struct {
	tools []*Tool
}

// NewStaticProvider wraps tools in a Provider.
func NewStaticProvider(tools ...*Tool) *StaticProvider {
	return &StaticProvider{tools: append([]*Tool(nil), tools...)}
}

// Tools implements Provider.
func (p *StaticProvider) Tools(context.Context) ([]*Tool, error) {
	return p.CurrentTools(), nil
}

// CurrentTools implements Source.
func (p *StaticProvider) CurrentTools() []*Tool {
	return append(make([]*Tool, 0, len(p.tools)), p.tools...)
}

// Close implements Provider.
func (p *StaticProvider) Close() error { return nil }

// ToolsChanged implements Provider.
func (p *StaticProvider) ToolsChanged() <-chan struct{} { return nil }
