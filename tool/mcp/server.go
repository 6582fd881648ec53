package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sweetpotato0/notion-agent/pkg/logging"
)

// Transport enumerates the supported MCP transport types.
type Transport string

const (
	// TransportCommand launches the server as a subprocess over stdio.
	TransportCommand Transport = "command"
	// TransportStreamable connects to a remote streamable HTTP endpoint.
	TransportStreamable Transport = "streamable"
)

// DefaultCommand and DefaultArgs start the Notion MCP server through npx.
const DefaultCommand = "npx"

var DefaultArgs = []string{"-y", "@notionhq/notion-mcp-server"}

// Dialer opens a new initialized session.
type Dialer func(ctx context.Context) (*Client, error)

// ServerConfig describes how to reach the Notion MCP server.
type ServerConfig struct {
	// Transport defaults to TransportStreamable when Endpoint is set and
	// TransportCommand otherwise.
	Transport Transport
	Command   string
	Args      []string
	Endpoint  string
	// Token is the Notion integration token forwarded as a bearer header.
	Token         string
	NotionVersion string
	HTTPClient    *http.Client
	Logger        *slog.Logger
}

func (cfg ServerConfig) transport() Transport {
	if cfg.Transport != "" {
		return cfg.Transport
	}
	if strings.TrimSpace(cfg.Endpoint) != "" {
		return TransportStreamable
	}
	return TransportCommand
}

// Dialer returns a Dialer that starts a fresh session on every call.
func (cfg ServerConfig) Dialer(opts ...Option) Dialer {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.WithComponent("mcp")
	}
	opts = append([]Option{WithLogger(logger)}, opts...)

	return func(ctx context.Context) (*Client, error) {
		switch cfg.transport() {
		case TransportCommand:
			command, args := cfg.Command, cfg.Args
			if command == "" {
				command = DefaultCommand
				if len(args) == 0 {
					args = DefaultArgs
				}
			}
			transport, err := CommandTransport(command, args, []string{HeadersEnv(cfg.Token, cfg.NotionVersion)}, logger)
			if err != nil {
				return nil, err
			}
			logger.Info("starting notion mcp server", "command", command, "args", args)
			return Connect(ctx, transport, opts...)
		case TransportStreamable:
			base := http.DefaultClient
			if cfg.HTTPClient != nil {
				base = cfg.HTTPClient
			}
			httpClient := *base
			httpClient.Transport = &headerTransport{base: base.Transport, token: cfg.Token, version: cfg.NotionVersion}
			transport, err := StreamableTransport(cfg.Endpoint, &httpClient)
			if err != nil {
				return nil, err
			}
			logger.Info("connecting to notion mcp endpoint", "endpoint", cfg.Endpoint)
			return Connect(ctx, transport, opts...)
		default:
			return nil, fmt.Errorf("mcp: unsupported transport %q", cfg.Transport)
		}
	}
}
