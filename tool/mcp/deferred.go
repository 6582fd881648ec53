package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/sweetpotato0/notion-agent/errors"
	"github.com/sweetpotato0/notion-agent/pkg/logging"
	"github.com/sweetpotato0/notion-agent/pkg/telemetry"
	"github.com/sweetpotato0/notion-agent/tool"
)

// DefaultInitTimeout bounds a single connection attempt.
const DefaultInitTimeout = 30 * time.Second

// State is the connection state of a DeferredProvider.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// DeferredConfig configures a DeferredProvider.
type DeferredConfig struct {
	Dial    Dialer
	Timeout time.Duration
	Logger  *slog.Logger
}

// DeferredProvider publishes an MCP server's tools once a session has been
// established. Until then, and after a failed attempt, CurrentTools returns
// an empty slice. Construction does no I/O.
type DeferredProvider struct {
	dial    Dialer
	timeout time.Duration
	logger  *slog.Logger
	tracer  trace.Tracer

	state atomic.Int32
	tools atomic.Pointer[[]*tool.Tool]
	group singleflight.Group

	mu      sync.Mutex
	client  *Client
	lastErr error
	closed  bool

	changed chan struct{}
}

// NewDeferredProvider returns a provider in StateUninitialized.
func NewDeferredProvider(cfg DeferredConfig) *DeferredProvider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultInitTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.WithComponent("mcp")
	}
	p := &DeferredProvider{
		dial:    cfg.Dial,
		timeout: timeout,
		logger:  logger,
		tracer:  telemetry.Tracer("mcp"),
		changed: make(chan struct{}, 1),
	}
	empty := []*tool.Tool{}
	p.tools.Store(&empty)
	return p
}

// State returns the current connection state.
func (p *DeferredProvider) State() State {
	return State(p.state.Load())
}

// LastError returns the error of the most recent failed attempt.
func (p *DeferredProvider) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// CurrentTools returns the published tools. It never blocks and never
// returns nil.
func (p *DeferredProvider) CurrentTools() []*tool.Tool {
	tools := *p.tools.Load()
	return append(make([]*tool.Tool, 0, len(tools)), tools...)
}

// Initialize connects to the server and publishes its catalog. Concurrent
// callers share a single attempt. It returns nil immediately when the
// provider is already Ready; after a failure, or after the session has
// ended, a new call starts a fresh attempt. Errors wrap errors.ErrConnection.
//
// The attempt is bounded by the provider timeout only. A caller whose ctx is
// cancelled stops waiting and gets ctx.Err(), while the attempt carries on
// for the other callers.
func (p *DeferredProvider) Initialize(ctx context.Context) error {
	if p.State() == StateReady {
		return nil
	}
	attemptCtx := context.WithoutCancel(ctx)
	ch := p.group.DoChan("initialize", func() (any, error) {
		return nil, p.connect(attemptCtx)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", apperrors.ErrConnection, ctx.Err())
	}
}

func (p *DeferredProvider) connect(ctx context.Context) (err error) {
	if p.State() == StateReady {
		return nil
	}
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return fmt.Errorf("%w: %w", apperrors.ErrConnection, ErrClientClosed)
	}
	if p.dial == nil {
		return p.fail(errors.New("mcp: no dialer configured"))
	}

	p.state.Store(int32(StateInitializing))
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	ctx, span := p.tracer.Start(ctx, "mcp.initialize", trace.WithAttributes(
		attribute.String("mcp.timeout", p.timeout.String()),
	))
	defer func() { telemetry.End(span, err) }()

	p.logger.Info("initializing mcp tools")

	client, err := p.dial(ctx)
	if err != nil {
		return p.fail(err)
	}
	tools, err := client.BuildTools(ctx)
	if err != nil {
		_ = client.Close()
		return p.fail(err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = client.Close()
		return fmt.Errorf("%w: %w", apperrors.ErrConnection, ErrClientClosed)
	}
	p.client = client
	p.lastErr = nil
	p.publish(tools)
	p.state.Store(int32(StateReady))
	p.mu.Unlock()

	span.SetAttributes(attribute.Int("mcp.tools", len(tools)))
	p.logger.Info("mcp tools initialized", "tools", len(tools), "duration", time.Since(start))

	go p.watch(client)
	return nil
}

func (p *DeferredProvider) fail(cause error) error {
	err := fmt.Errorf("%w: %w", apperrors.ErrConnection, cause)
	p.mu.Lock()
	p.lastErr = err
	p.mu.Unlock()
	p.publish(nil)
	p.state.Store(int32(StateFailed))
	p.logger.Error("failed to initialize mcp tools", "error", err)
	return err
}

func (p *DeferredProvider) publish(tools []*tool.Tool) {
	snapshot := append(make([]*tool.Tool, 0, len(tools)), tools...)
	p.tools.Store(&snapshot)
	select {
	case p.changed <- struct{}{}:
	default:
	}
}

// watch re-publishes the catalog whenever the server announces a change.
// When the session ends on its own the tools are unpublished and the
// provider moves to StateFailed so the next Initialize reconnects.
func (p *DeferredProvider) watch(client *Client) {
	for {
		select {
		case <-client.Done():
			p.sessionEnded(client)
			return
		case <-client.ToolsChanged():
			ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
			tools, err := client.BuildTools(ctx)
			cancel()
			if err != nil {
				p.logger.Warn("failed to refresh mcp tools", "error", err)
				continue
			}
			p.mu.Lock()
			if p.client == client {
				p.publish(tools)
			}
			p.mu.Unlock()
			p.logger.Info("mcp tools refreshed", "tools", len(tools))
		}
	}
}

func (p *DeferredProvider) sessionEnded(client *Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != client {
		return
	}
	p.client = nil
	p.lastErr = fmt.Errorf("%w: session ended", apperrors.ErrConnection)
	p.publish(nil)
	p.state.Store(int32(StateFailed))
	p.logger.Error("mcp session ended, tools unpublished", "error", p.lastErr)
}

// Tools implements tool.Provider.
func (p *DeferredProvider) Tools(context.Context) ([]*tool.Tool, error) {
	return p.CurrentTools(), nil
}

// ToolsChanged implements tool.Provider.
func (p *DeferredProvider) ToolsChanged() <-chan struct{} {
	return p.changed
}

// Close ends the session. Tools are unpublished and later Initialize calls
// fail.
func (p *DeferredProvider) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	client := p.client
	p.client = nil
	p.mu.Unlock()

	p.publish(nil)
	p.state.Store(int32(StateUninitialized))
	if client == nil {
		return nil
	}
	return client.Close()
}

var (
	_ tool.Provider = (*DeferredProvider)(nil)
	_ tool.Source   = (*DeferredProvider)(nil)
)
