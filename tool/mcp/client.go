// Package mcp connects to Model Context Protocol tool servers and exposes
// their catalog as agent tools.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sweetpotato0/notion-agent/pkg/logging"
)

// ErrClientClosed is returned when the MCP client has been closed.
var ErrClientClosed = errors.New("mcp client closed")

// Option configures optional MCP client behaviour.
type Option func(*clientConfig)

type clientConfig struct {
	implementation sdkmcp.Implementation
	logger         *slog.Logger
	keepAlive      time.Duration
}

// WithClientInfo sets the client name and version advertised to the server.
func WithClientInfo(name, version string) Option {
	return func(cfg *clientConfig) {
		if name != "" {
			cfg.implementation.Name = name
		}
		if version != "" {
			cfg.implementation.Version = version
		}
	}
}

// WithLogger sets the logger for session events and server log messages.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *clientConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithKeepAlive configures periodic ping requests to keep the session healthy.
func WithKeepAlive(interval time.Duration) Option {
	return func(cfg *clientConfig) {
		cfg.keepAlive = interval
	}
}

// Client wraps an initialized go-sdk client session.
type Client struct {
	session *sdkmcp.ClientSession
	logger  *slog.Logger

	toolsChanged chan struct{}
	done         chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// Connect performs the MCP handshake over transport. The session stays open
// until Close is called or the server goes away.
func Connect(ctx context.Context, transport sdkmcp.Transport, opts ...Option) (*Client, error) {
	if transport == nil {
		return nil, errors.New("mcp: transport cannot be nil")
	}

	cfg := clientConfig{
		implementation: sdkmcp.Implementation{Name: "notion-agent", Version: "0.1.0"},
		logger:         logging.WithComponent("mcp"),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	client := &Client{
		logger:       cfg.logger,
		toolsChanged: make(chan struct{}, 1),
		done:         make(chan struct{}),
	}

	sdkClient := sdkmcp.NewClient(&cfg.implementation, &sdkmcp.ClientOptions{
		ToolListChangedHandler: func(context.Context, *sdkmcp.ToolListChangedRequest) {
			select {
			case client.toolsChanged <- struct{}{}:
			default:
			}
		},
		LoggingMessageHandler: func(_ context.Context, req *sdkmcp.LoggingMessageRequest) {
			if req != nil && req.Params != nil {
				client.logger.Debug("mcp server log", "level", req.Params.Level, "data", req.Params.Data)
			}
		},
		KeepAlive: cfg.keepAlive,
	})

	session, err := sdkClient.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcp: connect failed: %w", err)
	}
	client.session = session

	if res := session.InitializeResult(); res != nil && res.ServerInfo != nil {
		client.logger.Info("mcp session established",
			"server", res.ServerInfo.Name,
			"server_version", res.ServerInfo.Version,
			"protocol", res.ProtocolVersion)
	}

	go client.monitorSession()

	return client, nil
}

// CommandTransport launches command with args over stdio. env entries
// ("KEY=value") are appended to the current process environment.
func CommandTransport(command string, args, env []string, logger *slog.Logger) (sdkmcp.Transport, error) {
	if strings.TrimSpace(command) == "" {
		return nil, errors.New("mcp: command cannot be empty")
	}
	if logger == nil {
		logger = logging.WithComponent("mcp")
	}

	cmd := exec.Command(command, args...)
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	cmd.Stderr = stderrWriter{logger: logger}

	return &sdkmcp.CommandTransport{
		Command:           cmd,
		TerminateDuration: 5 * time.Second,
	}, nil
}

// StreamableTransport connects to a remote MCP endpoint over streamable HTTP.
func StreamableTransport(endpoint string, httpClient *http.Client) (sdkmcp.Transport, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, errors.New("mcp: endpoint cannot be empty")
	}
	transport := &sdkmcp.StreamableClientTransport{Endpoint: endpoint}
	if httpClient != nil {
		transport.HTTPClient = httpClient
	}
	return transport, nil
}

// Close terminates the session and the underlying transport.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.session != nil {
			c.closeErr = c.session.Close()
		}
		close(c.done)
	})
	return c.closeErr
}

// Done is closed when the session ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// ToolsChanged fires when the server reports a new tool list.
func (c *Client) ToolsChanged() <-chan struct{} {
	return c.toolsChanged
}

func (c *Client) monitorSession() {
	if err := c.session.Wait(); err != nil && !errors.Is(err, sdkmcp.ErrConnectionClosed) {
		c.logger.Warn("mcp session ended", "error", err)
	}
	_ = c.Close()
}

type stderrWriter struct {
	logger *slog.Logger
}

func (w stderrWriter) Write(p []byte) (int, error) {
	if msg := strings.TrimSpace(string(p)); msg != "" {
		w.logger.Debug("mcp server stderr", "line", msg)
	}
	return len(p), nil
}
