// Package gemini implements agent.LLMClient on Google's Gemini API with
// function calling.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/sweetpotato0/notion-agent/agent"
	"github.com/sweetpotato0/notion-agent/config"
	apperrors "github.com/sweetpotato0/notion-agent/errors"
	"github.com/sweetpotato0/notion-agent/message"
	"github.com/sweetpotato0/notion-agent/pkg/logging"
	"github.com/sweetpotato0/notion-agent/tool"
)

// DefaultModel is the model used when Config.Model is empty.
const DefaultModel = "gemini-2.0-flash-001"

// Config holds Gemini provider configuration
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int32
	Temperature float32
	Logger      *slog.Logger
}

// Provider implements agent.LLMClient. A Provider built without an API key
// is disabled and fails every Generate call.
type Provider struct {
	config Config
	client *genai.Client
	logger *slog.Logger
}

// New creates a Gemini provider. opts are passed to the underlying client in
// addition to the API key.
func New(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Provider, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.WithComponent("gemini")
	}

	p := &Provider{config: cfg, logger: logger}
	if cfg.APIKey == "" {
		logger.Warn("GOOGLE_API_KEY not set, model calls are disabled")
		return p, nil
	}
	if err := config.ValidateLLMConfig(cfg.APIKey, cfg.Model, float64(cfg.Temperature), int(cfg.MaxTokens)); err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}

	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(cfg.APIKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	p.client = client
	return p, nil
}

// Model returns the configured model name.
func (p *Provider) Model() string {
	return p.config.Model
}

// Close releases the client connection.
func (p *Provider) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}

// Generate implements agent.LLMClient.
func (p *Provider) Generate(ctx context.Context, req *agent.GenerateRequest) (*agent.GenerateResponse, error) {
	if p.client == nil {
		return nil, fmt.Errorf("%w: gemini API key not configured", apperrors.ErrNotInitialized)
	}
	if req == nil {
		return nil, fmt.Errorf("generate request cannot be nil")
	}

	contents := toContents(req.Messages)
	if len(contents) == 0 {
		return nil, fmt.Errorf("%w: no messages to send", apperrors.ErrInvalidInput)
	}

	model := p.client.GenerativeModel(p.config.Model)
	if p.config.Temperature > 0 {
		model.SetTemperature(p.config.Temperature)
	}
	if p.config.MaxTokens > 0 {
		model.SetMaxOutputTokens(p.config.MaxTokens)
	}
	if req.SystemPrompt != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.SystemPrompt)}}
	}
	if decls := toFunctionDeclarations(req.Tools); len(decls) > 0 {
		model.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	chat := model.StartChat()
	last := contents[len(contents)-1]
	chat.History = contents[:len(contents)-1]

	resp, err := chat.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate content: %w", err)
	}

	msg, err := fromResponse(resp)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("gemini step finished", "model", p.config.Model, "tool_calls", len(msg.ToolCalls))
	return &agent.GenerateResponse{Message: msg}, nil
}

// toContents maps the conversation onto Gemini's user/model turns. Tool
// results become function responses; consecutive results share one turn.
func toContents(msgs []*message.Message) []*genai.Content {
	var contents []*genai.Content
	appendParts := func(role string, parts ...genai.Part) {
		if len(parts) == 0 {
			return
		}
		if n := len(contents); n > 0 && contents[n-1].Role == role {
			contents[n-1].Parts = append(contents[n-1].Parts, parts...)
			return
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}

	for _, msg := range msgs {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case message.RoleUser:
			if msg.Content != "" {
				appendParts("user", genai.Text(msg.Content))
			}
		case message.RoleAssistant:
			var parts []genai.Part
			if msg.Content != "" {
				parts = append(parts, genai.Text(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				parts = append(parts, genai.FunctionCall{Name: call.Name, Args: call.Args})
			}
			appendParts("model", parts...)
		case message.RoleTool:
			appendParts("user", genai.FunctionResponse{
				Name:     msg.ToolName,
				Response: functionResponse(msg.Content),
			})
		}
	}
	return contents
}

// functionResponse passes JSON objects through and wraps anything else.
func functionResponse(content string) map[string]any {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "{") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
			return obj
		}
	}
	return map[string]any{"result": content}
}

func fromResponse(resp *genai.GenerateContentResponse) (*message.Message, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini: no candidates in response")
	}

	var (
		text  []string
		calls []message.ToolCall
	)
	for _, part := range resp.Candidates[0].Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			text = append(text, string(v))
		case genai.FunctionCall:
			args := v.Args
			if args == nil {
				args = map[string]any{}
			}
			calls = append(calls, message.ToolCall{ID: uuid.NewString(), Name: v.Name, Args: args})
		}
	}

	msg := message.NewMessage(message.RoleAssistant, strings.Join(text, ""))
	msg.ToolCalls = calls
	return msg, nil
}

func toFunctionDeclarations(tools []*tool.Tool) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		if t == nil || t.Name == "" {
			continue
		}
		decl := &genai.FunctionDeclaration{Name: t.Name, Description: t.Description}
		if len(t.Parameters) > 0 {
			decl.Parameters = toSchema(t.ParametersSchema())
		}
		decls = append(decls, decl)
	}
	return decls
}

// toSchema converts a JSON schema into Gemini's OpenAPI subset. Unsupported
// keywords are dropped; a missing or unknown type falls back to string, or to
// object/array when properties/items are present.
func toSchema(raw map[string]any) *genai.Schema {
	if raw == nil {
		return nil
	}
	s := &genai.Schema{Description: stringValue(raw["description"])}

	typ, nullable := schemaType(raw["type"])
	s.Nullable = nullable
	switch typ {
	case "object":
		s.Type = genai.TypeObject
	case "array":
		s.Type = genai.TypeArray
	case "integer":
		s.Type = genai.TypeInteger
	case "number":
		s.Type = genai.TypeNumber
	case "boolean":
		s.Type = genai.TypeBoolean
	case "string":
		s.Type = genai.TypeString
	default:
		switch {
		case raw["properties"] != nil:
			s.Type = genai.TypeObject
		case raw["items"] != nil:
			s.Type = genai.TypeArray
		default:
			s.Type = genai.TypeString
		}
	}

	switch s.Type {
	case genai.TypeObject:
		if props, ok := raw["properties"].(map[string]any); ok {
			s.Properties = make(map[string]*genai.Schema, len(props))
			for name, prop := range props {
				if m, ok := prop.(map[string]any); ok {
					s.Properties[name] = toSchema(m)
				}
			}
		}
		s.Required = stringSlice(raw["required"])
	case genai.TypeArray:
		items, _ := raw["items"].(map[string]any)
		if items == nil {
			items = map[string]any{"type": "string"}
		}
		s.Items = toSchema(items)
	case genai.TypeString:
		s.Enum = stringSlice(raw["enum"])
	}
	return s
}

// schemaType reads "type", which may be a string or a list like
// ["string", "null"].
func schemaType(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return strings.ToLower(t), false
	case []any:
		var typ string
		nullable := false
		for _, item := range t {
			s, _ := item.(string)
			if s == "null" {
				nullable = true
			} else if typ == "" {
				typ = strings.ToLower(s)
			}
		}
		return typ, nullable
	case []string:
		items := make([]any, len(t))
		for i, s := range t {
			items[i] = s
		}
		return schemaType(items)
	}
	return "", false
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func stringSlice(v any) []string {
	switch values := v.(type) {
	case []string:
		return append([]string(nil), values...)
	case []any:
		out := make([]string, 0, len(values))
		for _, item := range values {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
