// Package app wires the notion assistant's services with go.uber.org/dig.
package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"

	"go.uber.org/dig"

	"github.com/sweetpotato0/notion-agent/agent"
	"github.com/sweetpotato0/notion-agent/config"
	"github.com/sweetpotato0/notion-agent/contrib/provider/gemini"
	runlogger "github.com/sweetpotato0/notion-agent/middleware/logger"
	"github.com/sweetpotato0/notion-agent/middleware/validator"
	"github.com/sweetpotato0/notion-agent/notion"
	"github.com/sweetpotato0/notion-agent/pkg/logging"
	"github.com/sweetpotato0/notion-agent/pkg/telemetry"
	"github.com/sweetpotato0/notion-agent/tool/mcp"
)

const version = "0.1.0"

// Options override parts of the wiring. Zero values use the configuration.
type Options struct {
	Logger *slog.Logger
	// Dialer replaces the MCP connection built from Config.MCP.
	Dialer mcp.Dialer
	// LLM replaces the Gemini provider.
	LLM agent.LLMClient
	// HTTPClient is used for Notion REST calls.
	HTTPClient *http.Client
	// TraceWriter receives spans when no OTLP endpoint is configured.
	TraceWriter io.Writer
}

// App holds the resolved services. Callers use the getters and never touch
// dig directly.
type App struct {
	cfg      *config.Config
	logger   *slog.Logger
	notion   *notion.Client
	tools    *mcp.DeferredProvider
	agent    *agent.Agent
	llm      agent.LLMClient
	shutdown telemetry.ShutdownFunc
}

func (a *App) Config() *config.Config     { return a.cfg }
func (a *App) Logger() *slog.Logger       { return a.logger }
func (a *App) Notion() *notion.Client     { return a.notion }
func (a *App) MCP() *mcp.DeferredProvider { return a.tools }
func (a *App) Agent() *agent.Agent        { return a.agent }
func (a *App) LLM() agent.LLMClient       { return a.llm }

// New builds every service from cfg. It performs no network I/O besides
// creating the model client; the MCP session is opened on the agent's first
// run.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := dig.New()
	provide := func(constructors ...any) error {
		for _, c := range constructors {
			if err := d.Provide(c); err != nil {
				return err
			}
		}
		return nil
	}

	err := provide(
		func() *config.Config { return cfg },
		func() Options { return opts },
		func() context.Context { return ctx },
		newLogger,
		newTelemetry,
		newNotionClient,
		newMCPProvider,
		newLLM,
		newAgent,
	)
	if err != nil {
		return nil, err
	}

	var result *App
	err = d.Invoke(func(
		logger *slog.Logger,
		shutdown telemetry.ShutdownFunc,
		client *notion.Client,
		tools *mcp.DeferredProvider,
		llm agent.LLMClient,
		ag *agent.Agent,
	) {
		result = &App{
			cfg:      cfg,
			logger:   logger,
			notion:   client,
			tools:    tools,
			agent:    ag,
			llm:      llm,
			shutdown: shutdown,
		}
	})
	if err != nil {
		return nil, dig.RootCause(err)
	}

	for _, w := range cfg.Warnings() {
		result.logger.Warn(w)
	}
	return result, nil
}

// Close ends the MCP session, closes the model client and flushes traces.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.tools.Close(); err != nil {
		errs = append(errs, err)
	}
	if c, ok := a.llm.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func newLogger(cfg *config.Config, opts Options) *slog.Logger {
	if opts.Logger != nil {
		return opts.Logger
	}
	l := logging.New(os.Stderr, cfg.Log.Format, cfg.Log.Level)
	logging.SetLogger(l)
	return l
}

func newTelemetry(ctx context.Context, cfg *config.Config, opts Options, logger *slog.Logger) (telemetry.ShutdownFunc, error) {
	return telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "notion-agent",
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Stdout:         opts.TraceWriter,
		Disable:        !cfg.Telemetry.Enabled,
		Logger:         logger.With("component", "telemetry"),
	})
}

func newNotionClient(cfg *config.Config, opts Options, logger *slog.Logger) *notion.Client {
	return notion.New(notion.Config{
		APIKey:     cfg.Notion.APIKey,
		BaseURL:    cfg.Notion.BaseURL,
		Version:    cfg.Notion.Version,
		Timeout:    cfg.Notion.Timeout,
		HTTPClient: opts.HTTPClient,
		Logger:     logger.With("component", "notion"),
	})
}

func newMCPProvider(cfg *config.Config, opts Options, logger *slog.Logger) *mcp.DeferredProvider {
	mcpLogger := logger.With("component", "mcp")
	dial := opts.Dialer
	if dial == nil {
		dialOpts := []mcp.Option{mcp.WithClientInfo(cfg.Agent.Name, version)}
		if cfg.MCP.KeepAlive > 0 {
			dialOpts = append(dialOpts, mcp.WithKeepAlive(cfg.MCP.KeepAlive))
		}
		dial = mcp.ServerConfig{
			Transport:     mcp.Transport(cfg.MCP.Transport),
			Command:       cfg.MCP.Command,
			Args:          cfg.MCP.Args,
			Endpoint:      cfg.MCP.Endpoint,
			Token:         cfg.MCP.Token,
			NotionVersion: cfg.Notion.Version,
			Logger:        mcpLogger,
		}.Dialer(dialOpts...)
	}
	return mcp.NewDeferredProvider(mcp.DeferredConfig{
		Dial:    dial,
		Timeout: cfg.MCP.InitTimeout,
		Logger:  mcpLogger,
	})
}

func newLLM(ctx context.Context, cfg *config.Config, opts Options, logger *slog.Logger) (agent.LLMClient, error) {
	if opts.LLM != nil {
		return opts.LLM, nil
	}
	return gemini.New(ctx, gemini.Config{
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   int32(cfg.LLM.MaxTokens),
		Temperature: float32(cfg.LLM.Temperature),
		Logger:      logger.With("component", "gemini"),
	})
}

func newAgent(cfg *config.Config, logger *slog.Logger, client *notion.Client, tools *mcp.DeferredProvider, llm agent.LLMClient) *agent.Agent {
	agentLogger := logger.With("component", "agent")
	opts := []agent.Option{
		agent.WithName(cfg.Agent.Name),
		agent.WithDescription(cfg.Agent.Description),
		agent.WithInstruction(cfg.Agent.Instruction),
		agent.WithModel(cfg.LLM.Model),
		agent.WithMaxIterations(cfg.Agent.MaxIterations),
		agent.WithProvider(llm),
		agent.WithLogger(agentLogger),
		agent.WithMiddleware(validator.NewInputValidator(validator.NonEmpty(0))),
		agent.WithMiddleware(runlogger.New(agentLogger)),
	}
	if cfg.Agent.DirectTools {
		opts = append(opts, agent.WithToolSource(notion.NewToolProvider(client)))
	}
	if !cfg.MCP.Disabled {
		opts = append(opts,
			agent.WithToolSource(tools),
			agent.WithBeforeRun(agent.DeferredTools(tools)),
		)
	}
	return agent.New(opts...)
}
