package mcp

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	apperrors "github.com/sweetpotato0/notion-agent/errors"
	"github.com/sweetpotato0/notion-agent/pkg/logging"
)

type searchInput struct {
	Query string `json:"query" jsonschema:"text to search for"`
}

func newTestServer() *sdkmcp.Server {
	server := sdkmcp.NewServer(&sdkmcp.Implementation{Name: "notion-test", Version: "v0.0.1"}, nil)
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "API-post-search", Description: "Search pages"},
		func(ctx context.Context, req *sdkmcp.CallToolRequest, in searchInput) (*sdkmcp.CallToolResult, any, error) {
			return &sdkmcp.CallToolResult{
				Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: "results for " + in.Query}},
			}, nil, nil
		})
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "API-retrieve-a-page", Description: "Retrieve a page"},
		func(ctx context.Context, req *sdkmcp.CallToolRequest, in struct {
			PageID string `json:"page_id"`
		}) (*sdkmcp.CallToolResult, any, error) {
			return &sdkmcp.CallToolResult{
				Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: "page " + in.PageID}},
			}, nil, nil
		})
	return server
}

// inMemoryDialer connects to server over in-memory transports and counts
// connection attempts.
func inMemoryDialer(server *sdkmcp.Server, calls *atomic.Int32) Dialer {
	return func(ctx context.Context) (*Client, error) {
		calls.Add(1)
		serverTransport, clientTransport := sdkmcp.NewInMemoryTransports()
		if _, err := server.Connect(ctx, serverTransport, nil); err != nil {
			return nil, err
		}
		return Connect(ctx, clientTransport, WithLogger(logging.Discard()))
	}
}

func toolNames(p *DeferredProvider) []string {
	var names []string
	for _, t := range p.CurrentTools() {
		names = append(names, t.Name)
	}
	sort.Strings(names)
	return names
}

func TestDeferredProviderEmptyBeforeInitialize(t *testing.T) {
	var calls atomic.Int32
	p := NewDeferredProvider(DeferredConfig{Dial: inMemoryDialer(newTestServer(), &calls), Logger: logging.Discard()})
	defer p.Close()

	tools := p.CurrentTools()
	if tools == nil || len(tools) != 0 {
		t.Fatalf("expected empty non-nil tools, got %v", tools)
	}
	if p.State() != StateUninitialized {
		t.Fatalf("expected uninitialized, got %s", p.State())
	}
	if calls.Load() != 0 {
		t.Fatal("construction must not dial")
	}
}

func TestDeferredProviderInitialize(t *testing.T) {
	var calls atomic.Int32
	p := NewDeferredProvider(DeferredConfig{Dial: inMemoryDialer(newTestServer(), &calls), Logger: logging.Discard()})
	defer p.Close()

	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	if p.State() != StateReady {
		t.Fatalf("expected ready, got %s", p.State())
	}

	got := strings.Join(toolNames(p), ",")
	if got != "API-post-search,API-retrieve-a-page" {
		t.Fatalf("unexpected tools %s", got)
	}

	// Ready is terminal: a second call does nothing.
	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("second initialize failed: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one dial, got %d", calls.Load())
	}

	select {
	case <-p.ToolsChanged():
	default:
		t.Fatal("expected a change notification after publishing")
	}
}

func TestDeferredProviderToolsCallSession(t *testing.T) {
	var calls atomic.Int32
	p := NewDeferredProvider(DeferredConfig{Dial: inMemoryDialer(newTestServer(), &calls), Logger: logging.Discard()})
	defer p.Close()

	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	for _, tl := range p.CurrentTools() {
		if tl.Name != "API-post-search" {
			continue
		}
		if len(tl.Parameters) != 1 || tl.Parameters[0].Name != "query" {
			t.Fatalf("unexpected parameters %+v", tl.Parameters)
		}
		out, err := tl.Execute(context.Background(), map[string]interface{}{"query": "roadmap"})
		if err != nil {
			t.Fatalf("call failed: %v", err)
		}
		if out != "results for roadmap" {
			t.Fatalf("unexpected output %q", out)
		}
		return
	}
	t.Fatal("search tool not published")
}

func TestDeferredProviderConcurrentInitialize(t *testing.T) {
	var calls atomic.Int32
	dial := inMemoryDialer(newTestServer(), &calls)
	slowDial := func(ctx context.Context) (*Client, error) {
		time.Sleep(20 * time.Millisecond)
		return dial(ctx)
	}
	p := NewDeferredProvider(DeferredConfig{Dial: slowDial, Logger: logging.Discard()})
	defer p.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- p.Initialize(context.Background())
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("initialize failed: %v", err)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("expected exactly one connection attempt, got %d", n)
	}
	if len(p.CurrentTools()) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(p.CurrentTools()))
	}
}

func TestDeferredProviderFailure(t *testing.T) {
	var attempts atomic.Int32
	var healthy atomic.Bool
	good := inMemoryDialer(newTestServer(), new(atomic.Int32))
	p := NewDeferredProvider(DeferredConfig{
		Dial: func(ctx context.Context) (*Client, error) {
			attempts.Add(1)
			if !healthy.Load() {
				return nil, errors.New("npx: executable file not found")
			}
			return good(ctx)
		},
		Logger: logging.Discard(),
	})
	defer p.Close()

	err := p.Initialize(context.Background())
	if !errors.Is(err, apperrors.ErrConnection) {
		t.Fatalf("expected connection error, got %v", err)
	}
	if p.State() != StateFailed {
		t.Fatalf("expected failed, got %s", p.State())
	}
	if len(p.CurrentTools()) != 0 {
		t.Fatal("failed provider must publish no tools")
	}
	if !errors.Is(p.LastError(), apperrors.ErrConnection) {
		t.Fatalf("unexpected last error %v", p.LastError())
	}

	healthy.Store(true)
	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if p.State() != StateReady || len(p.CurrentTools()) != 2 {
		t.Fatalf("retry did not publish tools: %s %d", p.State(), len(p.CurrentTools()))
	}
	if attempts.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts.Load())
	}
}

func TestDeferredProviderTimeout(t *testing.T) {
	p := NewDeferredProvider(DeferredConfig{
		Dial: func(ctx context.Context) (*Client, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
		Timeout: 20 * time.Millisecond,
		Logger:  logging.Discard(),
	})
	defer p.Close()

	err := p.Initialize(context.Background())
	if !errors.Is(err, context.DeadlineExceeded) || !errors.Is(err, apperrors.ErrConnection) {
		t.Fatalf("expected deadline connection error, got %v", err)
	}
	if p.State() != StateFailed {
		t.Fatalf("expected failed, got %s", p.State())
	}
}

func TestDeferredProviderRepublishesOnListChange(t *testing.T) {
	server := newTestServer()
	var calls atomic.Int32
	p := NewDeferredProvider(DeferredConfig{Dial: inMemoryDialer(server, &calls), Logger: logging.Discard()})
	defer p.Close()

	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}

	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "API-get-users", Description: "List users"},
		func(ctx context.Context, req *sdkmcp.CallToolRequest, in struct{}) (*sdkmcp.CallToolResult, any, error) {
			return &sdkmcp.CallToolResult{Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: "[]"}}}, nil, nil
		})

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(p.CurrentTools()) == 3 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("tools not refreshed: %v", toolNames(p))
}

func TestDeferredProviderReconnectsAfterSessionEnds(t *testing.T) {
	server := newTestServer()
	var calls atomic.Int32
	sessions := make(chan *sdkmcp.ServerSession, 2)
	dial := func(ctx context.Context) (*Client, error) {
		calls.Add(1)
		serverTransport, clientTransport := sdkmcp.NewInMemoryTransports()
		ss, err := server.Connect(ctx, serverTransport, nil)
		if err != nil {
			return nil, err
		}
		sessions <- ss
		return Connect(ctx, clientTransport, WithLogger(logging.Discard()))
	}
	p := NewDeferredProvider(DeferredConfig{Dial: dial, Logger: logging.Discard()})
	defer p.Close()

	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	if err := (<-sessions).Close(); err != nil {
		t.Fatalf("close server session: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for p.State() != StateFailed && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if p.State() != StateFailed {
		t.Fatalf("expected failed after session end, got %s", p.State())
	}
	if len(p.CurrentTools()) != 0 {
		t.Fatalf("dead session tools still published: %v", toolNames(p))
	}
	if !errors.Is(p.LastError(), apperrors.ErrConnection) {
		t.Fatalf("unexpected last error %v", p.LastError())
	}

	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("reconnect failed: %v", err)
	}
	if p.State() != StateReady || len(p.CurrentTools()) != 2 {
		t.Fatalf("reconnect did not publish tools: %s %d", p.State(), len(p.CurrentTools()))
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 dials, got %d", calls.Load())
	}
}

func TestDeferredProviderCancelledCallerDoesNotFailOthers(t *testing.T) {
	var calls atomic.Int32
	dial := inMemoryDialer(newTestServer(), &calls)
	started := make(chan struct{})
	release := make(chan struct{})
	p := NewDeferredProvider(DeferredConfig{
		Dial: func(ctx context.Context) (*Client, error) {
			close(started)
			<-release
			return dial(ctx)
		},
		Logger: logging.Discard(),
	})
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() { first <- p.Initialize(ctx) }()
	<-started
	cancel()
	if err := <-first; !errors.Is(err, context.Canceled) || !errors.Is(err, apperrors.ErrConnection) {
		t.Fatalf("expected cancelled connection error, got %v", err)
	}

	second := make(chan error, 1)
	go func() { second <- p.Initialize(context.Background()) }()
	close(release)
	if err := <-second; err != nil {
		t.Fatalf("second caller failed: %v", err)
	}
	if p.State() != StateReady || len(p.CurrentTools()) != 2 {
		t.Fatalf("attempt did not complete: %s %d", p.State(), len(p.CurrentTools()))
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one dial, got %d", calls.Load())
	}
}

func TestDeferredProviderKeepAlive(t *testing.T) {
	server := newTestServer()
	p := NewDeferredProvider(DeferredConfig{
		Dial: func(ctx context.Context) (*Client, error) {
			serverTransport, clientTransport := sdkmcp.NewInMemoryTransports()
			if _, err := server.Connect(ctx, serverTransport, nil); err != nil {
				return nil, err
			}
			return Connect(ctx, clientTransport, WithLogger(logging.Discard()), WithKeepAlive(10*time.Millisecond))
		},
		Logger: logging.Discard(),
	})
	defer p.Close()

	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	if p.State() != StateReady {
		t.Fatalf("session dropped while pinging: %s", p.State())
	}
	for _, tl := range p.CurrentTools() {
		if tl.Name == "API-retrieve-a-page" {
			out, err := tl.Execute(context.Background(), map[string]interface{}{"page_id": "p1"})
			if err != nil || out != "page p1" {
				t.Fatalf("call after pings = %q, %v", out, err)
			}
			return
		}
	}
	t.Fatal("page tool not published")
}

func TestDeferredProviderClose(t *testing.T) {
	var calls atomic.Int32
	p := NewDeferredProvider(DeferredConfig{Dial: inMemoryDialer(newTestServer(), &calls), Logger: logging.Discard()})

	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if len(p.CurrentTools()) != 0 {
		t.Fatal("closed provider must not publish tools")
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
	if err := p.Initialize(context.Background()); !errors.Is(err, ErrClientClosed) {
		t.Fatalf("expected closed error, got %v", err)
	}
}

func TestServerConfigTransport(t *testing.T) {
	if got := (ServerConfig{}).transport(); got != TransportCommand {
		t.Fatalf("expected command transport, got %s", got)
	}
	if got := (ServerConfig{Endpoint: "https://mcp.example.com/mcp"}).transport(); got != TransportStreamable {
		t.Fatalf("expected streamable transport, got %s", got)
	}

	_, err := ServerConfig{Transport: "carrier-pigeon", Logger: logging.Discard()}.Dialer()(context.Background())
	if err == nil || !strings.Contains(err.Error(), "unsupported transport") {
		t.Fatalf("expected unsupported transport error, got %v", err)
	}
}
