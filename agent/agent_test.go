package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	apperrors "github.com/sweetpotato0/notion-agent/errors"
	"github.com/sweetpotato0/notion-agent/message"
	"github.com/sweetpotato0/notion-agent/middleware"
	"github.com/sweetpotato0/notion-agent/pkg/logging"
	"github.com/sweetpotato0/notion-agent/tool"
	"github.com/sweetpotato0/notion-agent/tool/mcp"
)

// scriptedLLM replays responses in order and records every request.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []*message.Message
	requests  []*GenerateRequest
	err       error
}

func (m *scriptedLLM) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) == 0 {
		return &GenerateResponse{Message: message.NewMessage(message.RoleAssistant, "done")}, nil
	}
	next := m.responses[0]
	m.responses = m.responses[1:]
	return &GenerateResponse{Message: next}, nil
}

// fakeDeferred publishes its tools only after Initialize succeeds.
type fakeDeferred struct {
	mu        sync.Mutex
	published []*tool.Tool
	catalog   []*tool.Tool
	err       error
	calls     int
}

func (f *fakeDeferred) CurrentTools() []*tool.Tool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*tool.Tool{}, f.published...)
}

func (f *fakeDeferred) Initialize(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.published = f.catalog
	return nil
}

func echoTool(name string) *tool.Tool {
	return &tool.Tool{
		Name:        name,
		Description: "echo " + name,
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			return name + " ok", nil
		},
	}
}

func toolNames(tools []*tool.Tool) string {
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
	}
	return strings.Join(names, ",")
}

func TestNewAgent(t *testing.T) {
	agent := New(
		WithName("notion_assistant"),
		WithDescription("Manages a workspace"),
		WithInstruction("Be helpful."),
		WithModel("gemini-2.0-flash-001"),
		WithLogger(logging.Discard()),
	)

	if agent.Name() != "notion_assistant" || agent.Description() != "Manages a workspace" {
		t.Errorf("unexpected metadata %s %s", agent.Name(), agent.Description())
	}
	if agent.Instruction() != "Be helpful." || agent.Model() != "gemini-2.0-flash-001" {
		t.Errorf("unexpected instruction/model %s %s", agent.Instruction(), agent.Model())
	}
	if agent.maxIterations != 10 {
		t.Errorf("Expected max iterations 10, got %d", agent.maxIterations)
	}
	if agent.ConversationID() == "" {
		t.Error("expected conversation id")
	}
}

func TestAgentEmptyToolsUntilHookRuns(t *testing.T) {
	source := &fakeDeferred{catalog: []*tool.Tool{echoTool("API-post-search"), echoTool("API-get-self")}}
	llm := &scriptedLLM{}
	agent := New(
		WithProvider(llm),
		WithToolSource(source),
		WithBeforeRun(DeferredTools(source)),
		WithLogger(logging.Discard()),
	)

	if got := agent.Tools(); len(got) != 0 {
		t.Fatalf("expected no tools at construction, got %s", toolNames(got))
	}
	if source.calls != 0 {
		t.Fatal("construction must not initialize the source")
	}

	if _, err := agent.Run(context.Background(), "hello"); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if got := toolNames(agent.Tools()); got != "API-get-self,API-post-search" {
		t.Fatalf("unexpected tools after hook: %s", got)
	}
	if got := toolNames(llm.requests[0].Tools); got != "API-get-self,API-post-search" {
		t.Fatalf("first model step must see the published tools, got %s", got)
	}
}

func TestBeforeRunFiresOncePerConversation(t *testing.T) {
	source := &fakeDeferred{catalog: []*tool.Tool{echoTool("a")}}
	agent := New(
		WithProvider(&scriptedLLM{}),
		WithBeforeRun(DeferredTools(source)),
		WithLogger(logging.Discard()),
	)

	for i := 0; i < 3; i++ {
		if _, err := agent.Run(context.Background(), "hi"); err != nil {
			t.Fatalf("run %d failed: %v", i, err)
		}
	}
	if source.calls != 1 {
		t.Fatalf("expected hook to fire once, fired %d times", source.calls)
	}

	id := agent.ConversationID()
	agent.Reset()
	if agent.ConversationID() == id || len(agent.Messages()) != 0 {
		t.Fatal("reset must start a new conversation")
	}
	if _, err := agent.Run(context.Background(), "hi again"); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if source.calls != 2 {
		t.Fatalf("expected hook to fire again after reset, fired %d times", source.calls)
	}
}

func TestDeferredToolsFailureDegrades(t *testing.T) {
	source := &fakeDeferred{err: errors.New("npx not found"), catalog: []*tool.Tool{echoTool("remote")}}
	agent := New(
		WithProvider(&scriptedLLM{}),
		WithToolSource(source),
		WithTools(echoTool("list_databases")),
		WithBeforeRun(DeferredTools(source)),
		WithLogger(logging.Discard()),
	)

	out, err := agent.Run(context.Background(), "hi")
	if err != nil {
		t.Fatalf("initializer failure must not fail the run: %v", err)
	}
	if out != "done" {
		t.Fatalf("unexpected output %q", out)
	}
	if got := toolNames(agent.Tools()); got != "list_databases" {
		t.Fatalf("expected only local tools, got %s", got)
	}
}

func TestBeforeRunErrorAbortsAndStaysArmed(t *testing.T) {
	calls := 0
	agent := New(
		WithProvider(&scriptedLLM{}),
		WithBeforeRun(func(ctx context.Context, a *Agent) error {
			calls++
			if calls == 1 {
				return errors.New("not yet")
			}
			return nil
		}),
		WithLogger(logging.Discard()),
	)

	if _, err := agent.Run(context.Background(), "hi"); err == nil {
		t.Fatal("expected callback error")
	}
	if _, err := agent.Run(context.Background(), "hi"); err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected callback to be retried, got %d calls", calls)
	}
}

func TestRunExecutesToolCalls(t *testing.T) {
	var gotArgs map[string]interface{}
	search := &tool.Tool{
		Name: "quick_search_notion",
		Parameters: []tool.Parameter{
			{Name: "query", Type: "string", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			gotArgs = args
			return `{"results":[]}`, nil
		},
	}

	call := message.NewToolCallMessage([]message.ToolCall{
		{ID: "call-1", Name: "quick_search_notion", Args: map[string]any{"query": "roadmap"}},
		{ID: "call-2", Name: "missing_tool", Args: map[string]any{}},
	})
	llm := &scriptedLLM{responses: []*message.Message{
		call,
		message.NewMessage(message.RoleAssistant, "Nothing found."),
	}}

	var seen *middleware.Context
	agent := New(
		WithProvider(llm),
		WithTools(search),
		WithInstruction("You manage Notion."),
		WithMiddleware(middleware.NewFunc("capture", func(ctx *middleware.Context, next middleware.Handler) error {
			seen = ctx
			return next(ctx)
		})),
		WithLogger(logging.Discard()),
	)

	out, err := agent.Run(context.Background(), "find the roadmap")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if out != "Nothing found." {
		t.Fatalf("unexpected output %q", out)
	}
	if gotArgs["query"] != "roadmap" {
		t.Fatalf("tool received %v", gotArgs)
	}
	if seen == nil || seen.ToolCalls != 2 || seen.ConversationID != agent.ConversationID() {
		t.Fatalf("middleware context not populated: %+v", seen)
	}

	if len(llm.requests) != 2 {
		t.Fatalf("expected 2 model steps, got %d", len(llm.requests))
	}
	second := llm.requests[1]
	if second.SystemPrompt != "You manage Notion." {
		t.Errorf("unexpected system prompt %q", second.SystemPrompt)
	}
	// user, tool call, two tool responses
	if len(second.Messages) != 4 {
		t.Fatalf("expected 4 messages in second step, got %d", len(second.Messages))
	}
	resp := second.Messages[2]
	if resp.Role != message.RoleTool || resp.ToolID != "call-1" || resp.ToolName != "quick_search_notion" {
		t.Errorf("unexpected tool response %+v", resp)
	}
	if missing := second.Messages[3].Content; !strings.Contains(missing, "Error executing tool missing_tool") {
		t.Errorf("unexpected error response %q", missing)
	}
}

func TestRunMaxIterations(t *testing.T) {
	loop := func() *message.Message {
		return message.NewToolCallMessage([]message.ToolCall{{ID: "x", Name: "a", Args: map[string]any{}}})
	}
	agent := New(
		WithProvider(&scriptedLLM{responses: []*message.Message{loop(), loop(), loop()}}),
		WithTools(echoTool("a")),
		WithMaxIterations(2),
		WithLogger(logging.Discard()),
	)

	_, err := agent.Run(context.Background(), "spin")
	if err == nil || !strings.Contains(err.Error(), "max iterations (2)") {
		t.Fatalf("expected max iterations error, got %v", err)
	}
}

func TestRunErrors(t *testing.T) {
	t.Run("no provider", func(t *testing.T) {
		_, err := New(WithLogger(logging.Discard())).Run(context.Background(), "hi")
		if !errors.Is(err, apperrors.ErrNotInitialized) {
			t.Fatalf("expected not initialized, got %v", err)
		}
	})

	t.Run("provider failure", func(t *testing.T) {
		boom := errors.New("quota exceeded")
		_, err := New(WithProvider(&scriptedLLM{err: boom}), WithLogger(logging.Discard())).Run(context.Background(), "hi")
		if !errors.Is(err, boom) {
			t.Fatalf("expected wrapped provider error, got %v", err)
		}
	})
}

type pageInput struct {
	PageID string `json:"page_id"`
}

func TestAgentWithDeferredMCPProvider(t *testing.T) {
	server := sdkmcp.NewServer(&sdkmcp.Implementation{Name: "notion-test", Version: "v0.0.1"}, nil)
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "API-retrieve-a-page", Description: "Retrieve a page"},
		func(ctx context.Context, req *sdkmcp.CallToolRequest, in pageInput) (*sdkmcp.CallToolResult, any, error) {
			return &sdkmcp.CallToolResult{Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: "page " + in.PageID}}}, nil, nil
		})

	provider := mcp.NewDeferredProvider(mcp.DeferredConfig{
		Dial: func(ctx context.Context) (*mcp.Client, error) {
			serverTransport, clientTransport := sdkmcp.NewInMemoryTransports()
			if _, err := server.Connect(ctx, serverTransport, nil); err != nil {
				return nil, err
			}
			return mcp.Connect(ctx, clientTransport, mcp.WithLogger(logging.Discard()))
		},
		Logger: logging.Discard(),
	})
	defer provider.Close()

	llm := &scriptedLLM{responses: []*message.Message{
		message.NewToolCallMessage([]message.ToolCall{
			{ID: "c1", Name: "API-retrieve-a-page", Args: map[string]any{"page_id": "p-1"}},
		}),
		message.NewMessage(message.RoleAssistant, "Here is the page."),
	}}
	agent := New(
		WithProvider(llm),
		WithToolSource(provider),
		WithBeforeRun(DeferredTools(provider)),
		WithLogger(logging.Discard()),
	)
	if len(agent.Tools()) != 0 {
		t.Fatal("expected empty tools before the first run")
	}

	if _, err := agent.Run(context.Background(), "show page p-1"); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if got := toolNames(agent.Tools()); got != "API-retrieve-a-page" {
		t.Fatalf("unexpected tools %s", got)
	}
	if result := llm.requests[1].Messages[2].Content; result != "page p-1" {
		t.Fatalf("unexpected tool result %q", result)
	}
}
