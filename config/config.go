package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

const (
	// DefaultNotionVersion is the Notion-Version header sent to the REST API
	// and to the MCP server.
	DefaultNotionVersion = "2022-06-28"
	// DefaultNotionBaseURL is the Notion REST API root.
	DefaultNotionBaseURL = "https://api.notion.com/v1"
	// DefaultModel is the Gemini model the assistant runs on.
	DefaultModel = "gemini-2.0-flash-001"

	TransportCommand    = "command"
	TransportStreamable = "streamable"
)

// DefaultMCPArgs launches the official Notion MCP server through npx.
var DefaultMCPArgs = []string{"-y", "@notionhq/notion-mcp-server"}

// NotionConfig configures the direct REST client.
type NotionConfig struct {
	APIKey  string
	BaseURL string
	Version string
	Timeout time.Duration
}

// MCPConfig configures the Notion tool-serving session.
type MCPConfig struct {
	Token       string
	Transport   string
	Command     string
	Args        []string
	Endpoint    string
	InitTimeout time.Duration
	// KeepAlive is the session ping interval. Zero disables pings.
	KeepAlive time.Duration
	Disabled  bool
}

// LLMConfig configures the model backend.
type LLMConfig struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// AgentConfig configures the assistant persona and loop.
type AgentConfig struct {
	Name          string
	Description   string
	Instruction   string
	MaxIterations int
	// DirectTools registers the REST operations as agent tools next to the
	// MCP catalog.
	DirectTools bool
}

// TelemetryConfig configures tracing.
type TelemetryConfig struct {
	Enabled  bool
	Endpoint string
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string
	Format string
}

// Config is the full process configuration.
type Config struct {
	Notion    NotionConfig
	MCP       MCPConfig
	LLM       LLMConfig
	Agent     AgentConfig
	Telemetry TelemetryConfig
	Log       LogConfig
}

// Default returns the configuration used when no environment overrides exist.
func Default() *Config {
	return &Config{
		Notion: NotionConfig{
			BaseURL: DefaultNotionBaseURL,
			Version: DefaultNotionVersion,
			Timeout: 30 * time.Second,
		},
		MCP: MCPConfig{
			Transport:   TransportCommand,
			Command:     "npx",
			Args:        append([]string(nil), DefaultMCPArgs...),
			InitTimeout: 30 * time.Second,
		},
		LLM: LLMConfig{
			Model:       DefaultModel,
			Temperature: 0.7,
			MaxTokens:   2048,
		},
		Agent: AgentConfig{
			Name:          "notion_assistant",
			Description:   "Assistant that helps manage Notion workspaces",
			Instruction:   "You are an assistant that helps users manage their Notion workspace. Use the tools available to you to interact with Notion databases and pages.",
			MaxIterations: 10,
			DirectTools:   true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads optional dotenv files (".env" when none are given) into the
// process environment without overriding variables that are already set, then
// builds the configuration from the environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", file, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds the configuration using lookup for every variable.
func FromEnv(lookup func(string) string) (*Config, error) {
	cfg := Default()
	v := NewValidator()

	str := func(key string, dst *string) {
		if val := strings.TrimSpace(lookup(key)); val != "" {
			*dst = val
		}
	}
	dur := func(key string, dst *time.Duration) {
		if val := strings.TrimSpace(lookup(key)); val != "" {
			d, err := cast.ToDurationE(val)
			if err != nil {
				v.Addf(key, "invalid duration %q", val)
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if val := strings.TrimSpace(lookup(key)); val != "" {
			b, err := cast.ToBoolE(val)
			if err != nil {
				v.Addf(key, "invalid boolean %q", val)
				return
			}
			*dst = b
		}
	}
	integer := func(key string, dst *int) {
		if val := strings.TrimSpace(lookup(key)); val != "" {
			n, err := cast.ToIntE(val)
			if err != nil {
				v.Addf(key, "invalid integer %q", val)
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if val := strings.TrimSpace(lookup(key)); val != "" {
			f, err := cast.ToFloat64E(val)
			if err != nil {
				v.Addf(key, "invalid number %q", val)
				return
			}
			*dst = f
		}
	}

	str("NOTION_API_KEY", &cfg.Notion.APIKey)
	str("NOTION_API_BASE_URL", &cfg.Notion.BaseURL)
	str("NOTION_VERSION", &cfg.Notion.Version)
	dur("NOTION_API_TIMEOUT", &cfg.Notion.Timeout)

	str("NOTION_TOKEN", &cfg.MCP.Token)
	str("NOTION_MCP_TRANSPORT", &cfg.MCP.Transport)
	str("NOTION_MCP_COMMAND", &cfg.MCP.Command)
	if args := strings.TrimSpace(lookup("NOTION_MCP_ARGS")); args != "" {
		cfg.MCP.Args = strings.Fields(args)
	}
	str("NOTION_MCP_ENDPOINT", &cfg.MCP.Endpoint)
	dur("NOTION_MCP_INIT_TIMEOUT", &cfg.MCP.InitTimeout)
	dur("NOTION_MCP_KEEPALIVE", &cfg.MCP.KeepAlive)
	boolean("NOTION_MCP_DISABLED", &cfg.MCP.Disabled)

	str("GOOGLE_API_KEY", &cfg.LLM.APIKey)
	str("NOTION_AGENT_MODEL", &cfg.LLM.Model)
	float("NOTION_AGENT_TEMPERATURE", &cfg.LLM.Temperature)
	integer("NOTION_AGENT_MAX_TOKENS", &cfg.LLM.MaxTokens)

	str("NOTION_AGENT_NAME", &cfg.Agent.Name)
	str("NOTION_AGENT_INSTRUCTION", &cfg.Agent.Instruction)
	integer("NOTION_AGENT_MAX_ITERATIONS", &cfg.Agent.MaxIterations)
	boolean("NOTION_AGENT_DIRECT_TOOLS", &cfg.Agent.DirectTools)

	boolean("NOTION_AGENT_TELEMETRY", &cfg.Telemetry.Enabled)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.Telemetry.Endpoint)

	str("NOTION_AGENT_LOG_LEVEL", &cfg.Log.Level)
	str("NOTION_AGENT_LOG_FORMAT", &cfg.Log.Format)

	if err := v.Error(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks structural settings. Missing credentials are not errors:
// they disable the matching capability and are reported by Warnings.
func (c *Config) Validate() error {
	v := NewValidator()

	v.RequireNonEmpty("notion.baseURL", c.Notion.BaseURL)
	v.RequireNonEmpty("notion.version", c.Notion.Version)
	v.RequirePositiveDuration("notion.timeout", c.Notion.Timeout)

	if !c.MCP.Disabled {
		v.ValidateOneOf("mcp.transport", c.MCP.Transport, TransportCommand, TransportStreamable)
		switch c.MCP.Transport {
		case TransportCommand:
			v.RequireNonEmpty("mcp.command", c.MCP.Command)
		case TransportStreamable:
			v.RequireNonEmpty("mcp.endpoint", c.MCP.Endpoint)
		}
		v.RequirePositiveDuration("mcp.initTimeout", c.MCP.InitTimeout)
		if c.MCP.KeepAlive < 0 {
			v.Addf("mcp.keepAlive", "must not be negative")
		}
	}

	v.RequireNonEmpty("llm.model", c.LLM.Model)
	v.ValidateFloatRange("llm.temperature", c.LLM.Temperature, 0.0, 2.0)
	v.RequirePositive("llm.maxTokens", c.LLM.MaxTokens)

	v.RequireNonEmpty("agent.name", c.Agent.Name)
	v.RequirePositive("agent.maxIterations", c.Agent.MaxIterations)

	return v.Error()
}

// Warnings lists capabilities that are degraded because a credential is
// missing.
func (c *Config) Warnings() []string {
	var warnings []string
	if c.Notion.APIKey == "" {
		warnings = append(warnings, "NOTION_API_KEY not found. Notion functionalities will not be available.")
	}
	if !c.MCP.Disabled && c.MCP.Transport == TransportCommand && c.MCP.Token == "" {
		warnings = append(warnings, "NOTION_TOKEN not found. The Notion MCP server will start without credentials.")
	}
	if c.LLM.APIKey == "" {
		warnings = append(warnings, "GOOGLE_API_KEY not found. The agent cannot reach the model.")
	}
	return warnings
}
