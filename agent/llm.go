package agent

import (
	"context"

	"github.com/sweetpotato0/notion-agent/message"
	"github.com/sweetpotato0/notion-agent/tool"
)

// LLMClient defines the interface for LLM providers
type LLMClient interface {
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
}

// GenerateRequest bundles inputs for one model step.
type GenerateRequest struct {
	// SystemPrompt is the agent instruction; it is not part of Messages.
	SystemPrompt string
	Messages     []*message.Message
	Tools        []*tool.Tool
}

// GenerateResponse carries the model's reply. Tool calls requested by the
// model are in Message.ToolCalls.
type GenerateResponse struct {
	Message *message.Message
}
