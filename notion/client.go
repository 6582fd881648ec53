// Package notion is a thin client for the Notion REST API. Every operation
// returns either the API's native response or an *Error; nothing panics past
// an operation boundary.
package notion

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/sweetpotato0/notion-agent/errors"
	"github.com/sweetpotato0/notion-agent/pkg/logging"
	"github.com/sweetpotato0/notion-agent/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultBaseURL = "https://api.notion.com/v1"
	DefaultVersion = "2022-06-28"

	blockPageSize = 100
)

// Object is a raw Notion API object.
type Object = map[string]any

// Config holds Notion client configuration
type Config struct {
	APIKey     string
	BaseURL    string
	Version    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client calls the Notion REST API. A Client built without an API key is
// disabled: all operations return ErrNotInitialized without network I/O.
type Client struct {
	apiKey  string
	baseURL string
	version string
	http    *http.Client
	logger  *slog.Logger
	tracer  trace.Tracer
}

// New creates a client from cfg.
func New(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.WithComponent("notion")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	version := cfg.Version
	if version == "" {
		version = DefaultVersion
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	c := &Client{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		version: version,
		http:    httpClient,
		logger:  logger,
		tracer:  telemetry.Tracer("notion"),
	}
	if !c.Enabled() {
		logger.Warn("NOTION_API_KEY not found. Notion functionalities will not be available.")
	}
	return c
}

// Enabled reports whether the client has credentials.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

func (c *Client) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "notion."+op, trace.WithAttributes(attrs...))
}

// do sends a request and decodes a successful response into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return invalidInput(fmt.Sprintf("encode request: %v", err))
		}
		reader = bytes.NewReader(data)
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return &Error{Kind: apperrors.ErrUpstream, Message: err.Error()}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Notion-Version", c.version)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Kind: apperrors.ErrUpstream, Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: apperrors.ErrUpstream, Message: fmt.Sprintf("read response: %v", err), Status: resp.StatusCode}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Kind: apperrors.ErrUpstream, Message: fmt.Sprintf("decode response: %v", err), Status: resp.StatusCode}
	}
	return nil
}

func decodeAPIError(status int, data []byte) *Error {
	e := &Error{
		Kind:   apperrors.ErrUpstream,
		Status: status,
		Body:   strings.TrimSpace(string(data)),
	}
	var body apiError
	if err := json.Unmarshal(data, &body); err == nil && body.Message != "" {
		e.Message = body.Message
		e.Code = body.Code
	} else {
		e.Message = fmt.Sprintf("notion api returned status %d", status)
	}
	return e
}

// fail logs a failed operation and returns the error with details attached.
func (c *Client) fail(op string, err error, details string, attrs ...any) error {
	wrapped := withDetails(err, details)
	c.logger.Error("notion operation failed", append([]any{"op", op, "error", wrapped.Message, "status", wrapped.Status}, attrs...)...)
	return wrapped
}
