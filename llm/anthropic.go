package llm

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sdace9719/mcp-devops/errors"
	"github.com/sdace9719/mcp-devops/session"
	"github.com/sdace9719/mcp-devops/tools/registry"
)

// AnthropicClient is a client for the Anthropic API. It serves the
// "anthropic" provider selector.
type AnthropicClient struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicClient creates a new AnthropicClient with the given API key
// and model.
func NewAnthropicClient(apiKey, model string) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("Anthropic API key not configured")
	}

	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)

	return &AnthropicClient{
		client: &client,
		model:  model,
	}, nil
}

// Chat sends a chat request to the Anthropic API.
func (a *AnthropicClient) Chat(ctx context.Context, messages []session.Message, snap *registry.Snapshot) (*session.Message, error) {
	anthropicMessages, systemPrompt := convertMessagesToAnthropic(messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 4096,
		Messages:  anthropicMessages,
		Tools: []anthropic.ToolUnionParam{
			{OfTool: anthropicRegistryTool()},
		},
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemPrompt},
		}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to send message to Anthropic")
	}

	return processAnthropicResponse(resp)
}

// convertMessagesToAnthropic converts our internal message format to
// Anthropic's format, separating out the system prompt.
func convertMessagesToAnthropic(messages []session.Message) ([]anthropic.MessageParam, string) {
	var anthropicMessages []anthropic.MessageParam
	var systemPrompt string

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			systemPrompt = msg.Content
		case "user":
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		case "assistant":
			var contentItems []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				contentItems = append(contentItems, anthropic.ContentBlockParamUnion{
					OfText: &anthropic.TextBlockParam{Text: msg.Content},
				})
			}
			for _, tc := range msg.ToolCalls {
				contentItems = append(contentItems, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						Type:  "tool_use",
						ID:    tc.ID,
						Name:  RegistryToolName,
						Input: encodeRegistryArgs(tc),
					},
				})
			}
			if len(contentItems) == 0 {
				continue
			}
			anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: contentItems,
			})
		case "tool":
			if len(msg.ToolCalls) != 1 {
				continue
			}
			anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
				Role: anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{{
					OfToolResult: &anthropic.ToolResultBlockParam{
						ToolUseID: msg.ToolCalls[0].ID,
						Content: []anthropic.ToolResultBlockParamContentUnion{{
							OfText: &anthropic.TextBlockParam{Text: msg.Content},
						}},
					},
				}},
			})
		}
	}

	return anthropicMessages, systemPrompt
}

// anthropicRegistryTool binds the generic registry tool in Anthropic's tool
// format.
func anthropicRegistryTool() *anthropic.ToolParam {
	return &anthropic.ToolParam{
		Name:        RegistryToolName,
		Description: anthropic.String(registryToolDescription),
		InputSchema: anthropic.ToolInputSchemaParam{
			Properties: map[string]interface{}{
				"tool": map[string]interface{}{
					"type":        "string",
					"description": "Name of the registry tool to call.",
				},
				"parameters": map[string]interface{}{
					"type":        "string",
					"description": "Multiline string with one 'name: value' parameter pair per line.",
				},
			},
		},
	}
}

// processAnthropicResponse converts an Anthropic API response into our
// internal session.Message format.
func processAnthropicResponse(resp *anthropic.Message) (*session.Message, error) {
	if len(resp.Content) == 0 {
		return &session.Message{Role: "assistant", Content: ""}, nil
	}

	var responseContent string
	var toolCalls []session.ToolCall

	for _, content := range resp.Content {
		switch c := content.AsAny().(type) {
		case anthropic.TextBlock:
			responseContent += c.Text
		case anthropic.ToolUseBlock:
			tool, params := decodeRegistryArgs(c.Input)
			toolCalls = append(toolCalls, session.ToolCall{
				ID:     c.ID,
				Tool:   tool,
				Params: params,
			})
		}
	}

	return &session.Message{
		Role:      "assistant",
		Content:   responseContent,
		ToolCalls: toolCalls,
	}, nil
}
