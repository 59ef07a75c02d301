// Package config loads the process configuration from an optional YAML file
// and the environment. Endpoints and credentials are read exactly once at
// startup; a missing mandatory value fails Validate before the server
// accepts any request.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/sdace9719/mcp-devops/errors"
	"gopkg.in/yaml.v3"
)

// Defaults match the original deployment: the MCP sidecar answers on the
// cluster-internal hostname and the HTTP timeouts mirror its list/call split.
const (
	DefaultListenAddr      = ":8000"
	DefaultMCPURL          = "http://prometheus-mcp:8080/mcp"
	DefaultOpenAIModel     = "gpt-4o-mini"
	DefaultGeminiModel     = "gemini-2.5-flash"
	DefaultAnthropicModel  = "claude-sonnet-4-0"
	DefaultMaxToolTurns    = 10
	DefaultListToolsTimout = 30 * time.Second
	DefaultCallToolTimeout = 60 * time.Second
)

type Config struct {
	ListenAddr string `yaml:"listen_addr"`

	// MCPURL is the full base URL of the remote tool registry,
	// e.g. http://prometheus-mcp:8080/mcp.
	MCPURL string `yaml:"mcp_url"`

	// AllowedTools optionally restricts which registry tools are exposed to
	// the model. Entries are glob patterns matched against tool names
	// (e.g. "execute_*"). Empty means every tool is allowed.
	AllowedTools []string `yaml:"allowed_tools"`

	// MaxToolTurns bounds the number of model/tool round-trips within one
	// chat request.
	MaxToolTurns int `yaml:"max_tool_turns"`

	ListToolsTimeoutSecs int `yaml:"list_tools_timeout_secs"`
	CallToolTimeoutSecs  int `yaml:"call_tool_timeout_secs"`

	OpenAIModel    string `yaml:"openai_model"`
	GeminiModel    string `yaml:"gemini_model"`
	AnthropicModel string `yaml:"anthropic_model"`
	BedrockModel   string `yaml:"bedrock_model"`

	// Credentials come from the environment only, never from the file.
	OpenAIKey    string `yaml:"-"`
	GeminiKey    string `yaml:"-"`
	AnthropicKey string `yaml:"-"`
}

// Defaults returns a configuration carrying only the built-in defaults,
// without consulting the file or the environment.
func Defaults() *Config {
	return &Config{
		ListenAddr:     DefaultListenAddr,
		MCPURL:         DefaultMCPURL,
		MaxToolTurns:   DefaultMaxToolTurns,
		OpenAIModel:    DefaultOpenAIModel,
		GeminiModel:    DefaultGeminiModel,
		AnthropicModel: DefaultAnthropicModel,
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is non-empty) and environment overrides, in that order.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading config file")
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Unmarshal overwrites only the fields present in the YAML, so file
	// values layer over defaults and env values layer over the file.
	return yaml.Unmarshal(data, cfg)
}

func applyEnv(cfg *Config) {
	setString(&cfg.ListenAddr, "LISTEN_ADDR")
	setString(&cfg.MCPURL, "PROMETHEUS_MCP_URL")
	setString(&cfg.OpenAIModel, "OPENAI_MODEL")
	setString(&cfg.GeminiModel, "GEMINI_MODEL")
	setString(&cfg.AnthropicModel, "ANTHROPIC_MODEL")
	setString(&cfg.BedrockModel, "BEDROCK_MODEL")
	setInt(&cfg.MaxToolTurns, "MAX_TOOL_TURNS")

	cfg.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	cfg.GeminiKey = os.Getenv("GEMINI_API_KEY")
	cfg.AnthropicKey = os.Getenv("ANTHROPIC_API_KEY")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Validate checks that the configuration can serve requests at all. It does
// not verify credentials against the providers; a request selecting an
// unconfigured provider is rejected per-request instead.
func (c *Config) Validate() error {
	if c.MCPURL == "" {
		return errors.New("PROMETHEUS_MCP_URL (or mcp_url) must be set")
	}
	if c.OpenAIKey == "" && c.GeminiKey == "" && c.AnthropicKey == "" && c.BedrockModel == "" {
		return errors.New("no model provider configured: set OPENAI_API_KEY, GEMINI_API_KEY, ANTHROPIC_API_KEY or BEDROCK_MODEL")
	}
	if c.MaxToolTurns <= 0 {
		return errors.New("max_tool_turns must be positive, got %d", c.MaxToolTurns)
	}
	return nil
}

// ListToolsTimeout returns the registry list timeout.
func (c *Config) ListToolsTimeout() time.Duration {
	if c.ListToolsTimeoutSecs > 0 {
		return time.Duration(c.ListToolsTimeoutSecs) * time.Second
	}
	return DefaultListToolsTimout
}

// CallToolTimeout returns the per-invocation timeout for remote tool calls.
func (c *Config) CallToolTimeout() time.Duration {
	if c.CallToolTimeoutSecs > 0 {
		return time.Duration(c.CallToolTimeoutSecs) * time.Second
	}
	return DefaultCallToolTimeout
}
