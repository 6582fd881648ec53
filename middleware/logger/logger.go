// Package logger records each agent run through slog.
package logger

import (
	"log/slog"
	"time"

	"github.com/sweetpotato0/notion-agent/middleware"
)

// RunLogger logs the start and outcome of each run.
type RunLogger struct {
	logger *slog.Logger
}

// New returns a RunLogger writing to logger.
func New(logger *slog.Logger) *RunLogger {
	return &RunLogger{logger: logger}
}

// Name returns the middleware name
func (m *RunLogger) Name() string {
	return "RunLogger"
}

// Execute logs around next.
func (m *RunLogger) Execute(ctx *middleware.Context, next middleware.Handler) error {
	if m.logger == nil {
		return next(ctx)
	}

	start := time.Now()
	m.logger.Debug("agent run started", "conversation", ctx.ConversationID, "input_len", len(ctx.Input))

	err := next(ctx)

	attrs := []any{
		"conversation", ctx.ConversationID,
		"tool_calls", ctx.ToolCalls,
		"duration", time.Since(start),
	}
	if err != nil {
		m.logger.Error("agent run failed", append(attrs, "error", err)...)
		return err
	}
	if ctx.Response != nil {
		attrs = append(attrs, "response_len", len(ctx.Response.Content))
	}
	m.logger.Info("agent run finished", attrs...)
	return nil
}
