// Package agent runs a tool-calling conversation loop against an LLM.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sweetpotato0/notion-agent/conversation"
	apperrors "github.com/sweetpotato0/notion-agent/errors"
	"github.com/sweetpotato0/notion-agent/message"
	"github.com/sweetpotato0/notion-agent/middleware"
	"github.com/sweetpotato0/notion-agent/pkg/logging"
	"github.com/sweetpotato0/notion-agent/pkg/telemetry"
	"github.com/sweetpotato0/notion-agent/tool"
)

// BeforeRunCallback runs before the first step of a conversation. Returning
// an error aborts the run and leaves the callbacks armed.
type BeforeRunCallback func(ctx context.Context, a *Agent) error

// Agent represents an AI agent
type Agent struct {
	name          string
	description   string
	instruction   string
	model         string
	maxIterations int
	historySize   int

	llm         LLMClient
	sources     []tool.Source
	beforeRun   []BeforeRunCallback
	middlewares *middleware.MiddlewareChain
	logger      *slog.Logger
	tracer      trace.Tracer

	toolsMu sync.RWMutex
	tools   *tool.Registry

	// runMu serializes runs; a conversation is single-threaded.
	runMu sync.Mutex
	conv  *conversation.Conversation
	armed bool
}

// Option is a function that configures an Agent
type Option func(*Agent)

// WithName sets the agent name
func WithName(name string) Option {
	return func(a *Agent) {
		a.name = name
	}
}

// WithDescription sets the one-line description of what the agent does.
func WithDescription(description string) Option {
	return func(a *Agent) {
		a.description = description
	}
}

// WithInstruction sets the system instruction sent with every step.
func WithInstruction(instruction string) Option {
	return func(a *Agent) {
		a.instruction = instruction
	}
}

// WithModel records the model name the LLM client was built for.
func WithModel(model string) Option {
	return func(a *Agent) {
		a.model = model
	}
}

// WithMaxIterations sets the maximum iterations for tool calling
func WithMaxIterations(max int) Option {
	return func(a *Agent) {
		if max > 0 {
			a.maxIterations = max
		}
	}
}

// WithHistorySize bounds the number of messages kept per conversation.
func WithHistorySize(size int) Option {
	return func(a *Agent) {
		a.historySize = size
	}
}

// WithProvider sets the LLM provider
func WithProvider(provider LLMClient) Option {
	return func(a *Agent) {
		a.llm = provider
	}
}

// WithToolSource adds a tool source. The agent keeps the reference and
// re-reads it on RefreshTools, so a source may publish tools after the agent
// was built.
func WithToolSource(source tool.Source) Option {
	return func(a *Agent) {
		if source != nil {
			a.sources = append(a.sources, source)
		}
	}
}

// WithTools adds a fixed set of tools.
func WithTools(tools ...*tool.Tool) Option {
	return func(a *Agent) {
		if len(tools) > 0 {
			a.sources = append(a.sources, tool.NewStaticProvider(tools...))
		}
	}
}

// WithBeforeRun registers a callback fired once per conversation.
func WithBeforeRun(cb BeforeRunCallback) Option {
	return func(a *Agent) {
		if cb != nil {
			a.beforeRun = append(a.beforeRun, cb)
		}
	}
}

// WithMiddleware adds a middleware to the agent
func WithMiddleware(m middleware.Middleware) Option {
	return func(a *Agent) {
		a.middlewares.Add(m)
	}
}

// WithLogger sets the agent logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates an agent. It does no I/O: tools are read from the configured
// sources as they are right now, which for deferred sources means empty.
func New(opts ...Option) *Agent {
	a := &Agent{
		name:          "Agent",
		instruction:   "You are a helpful AI assistant.",
		maxIterations: 10,
		middlewares:   middleware.NewChain(),
		logger:        logging.WithComponent("agent"),
		tracer:        telemetry.Tracer("agent"),
		tools:         tool.NewRegistry(),
		armed:         true,
	}

	for _, opt := range opts {
		opt(a)
	}

	a.conv = conversation.New(a.historySize)
	a.RefreshTools()
	return a
}

// Name returns the agent name.
func (a *Agent) Name() string { return a.name }

// Description returns the agent description.
func (a *Agent) Description() string { return a.description }

// Instruction returns the system instruction.
func (a *Agent) Instruction() string { return a.instruction }

// Model returns the configured model name.
func (a *Agent) Model() string { return a.model }

// RefreshTools rebuilds the tool list from the sources. Sources are merged in
// order; a later tool with the same name replaces an earlier one.
func (a *Agent) RefreshTools() {
	registry := tool.NewRegistry()
	for _, source := range a.sources {
		for _, t := range source.CurrentTools() {
			if t == nil || t.Name == "" {
				continue
			}
			_ = registry.Upsert(t)
		}
	}

	a.toolsMu.Lock()
	a.tools = registry
	a.toolsMu.Unlock()
}

// Tools returns the agent's current tools sorted by name.
func (a *Agent) Tools() []*tool.Tool {
	a.toolsMu.RLock()
	defer a.toolsMu.RUnlock()
	return a.tools.List()
}

func (a *Agent) registry() *tool.Registry {
	a.toolsMu.RLock()
	defer a.toolsMu.RUnlock()
	return a.tools
}

// Messages returns the current conversation history.
func (a *Agent) Messages() []*message.Message {
	return a.conv.Messages()
}

// ConversationID identifies the current conversation.
func (a *Agent) ConversationID() string {
	return a.conv.ID()
}

// Reset starts a new conversation and re-arms the before-run callbacks.
func (a *Agent) Reset() {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	a.conv.Reset()
	a.armed = true
}

func (a *Agent) fireBeforeRun(ctx context.Context) error {
	if !a.armed {
		return nil
	}
	for _, cb := range a.beforeRun {
		if err := cb(ctx, a); err != nil {
			return fmt.Errorf("before-run callback: %w", err)
		}
	}
	a.armed = false
	return nil
}

// Run sends input to the model and executes requested tools until the model
// answers without tool calls.
func (a *Agent) Run(ctx context.Context, input string) (output string, err error) {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	if err := a.fireBeforeRun(ctx); err != nil {
		return "", err
	}
	a.RefreshTools()

	ctx, span := a.tracer.Start(ctx, "agent.run", trace.WithAttributes(
		attribute.String("agent.name", a.name),
		attribute.String("agent.conversation", a.conv.ID()),
	))
	defer func() { telemetry.End(span, err) }()

	mwCtx := middleware.NewContext(ctx)
	mwCtx.Input = input
	mwCtx.ConversationID = a.conv.ID()

	err = a.middlewares.Execute(mwCtx, a.loop)
	if err != nil {
		return "", err
	}
	if mwCtx.Response == nil {
		return "", fmt.Errorf("no response generated")
	}
	return mwCtx.Response.Content, nil
}

func (a *Agent) loop(mwCtx *middleware.Context) error {
	if a.llm == nil {
		return fmt.Errorf("%w: no LLM provider configured", apperrors.ErrNotInitialized)
	}
	ctx := mwCtx.Context()

	a.conv.Add(message.NewMessage(message.RoleUser, mwCtx.Input))
	mwCtx.Messages = a.conv.Messages()

	registry := a.registry()
	tools := registry.List()

	for i := 0; i < a.maxIterations; i++ {
		resp, err := a.llm.Generate(ctx, &GenerateRequest{
			SystemPrompt: a.instruction,
			Messages:     a.conv.Messages(),
			Tools:        tools,
		})
		if err != nil {
			return fmt.Errorf("llm generation failed: %w", err)
		}
		if resp == nil || resp.Message == nil {
			return fmt.Errorf("llm returned an empty response")
		}

		a.conv.Add(resp.Message)
		mwCtx.Response = resp.Message

		if len(resp.Message.ToolCalls) == 0 {
			return nil
		}

		for _, call := range resp.Message.ToolCalls {
			result := a.executeTool(ctx, registry, call)
			a.conv.Add(message.NewNamedToolResponseMessage(call.ID, call.Name, result))
			mwCtx.ToolCalls++
		}
	}

	return fmt.Errorf("max iterations (%d) reached", a.maxIterations)
}

// executeTool never fails the run: tool errors are handed back to the model.
func (a *Agent) executeTool(ctx context.Context, registry *tool.Registry, call message.ToolCall) string {
	ctx, span := a.tracer.Start(ctx, "agent.tool", trace.WithAttributes(attribute.String("tool.name", call.Name)))
	result, err := registry.Execute(ctx, call.Name, call.Args)
	telemetry.End(span, err)
	if err != nil {
		a.logger.Warn("tool call failed", "tool", call.Name, "error", err)
		return fmt.Sprintf("Error executing tool %s: %v", call.Name, err)
	}
	a.logger.Debug("tool call finished", "tool", call.Name, "bytes", len(result))
	return result
}
