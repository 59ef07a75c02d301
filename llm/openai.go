package llm

import (
	"context"
	"os"

	"github.com/sdace9719/mcp-devops/errors"
	"github.com/sdace9719/mcp-devops/session"
	"github.com/sdace9719/mcp-devops/tools/registry"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAIClient is a client for the OpenAI Chat Completion API. It serves the
// "gpt" provider selector.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a new OpenAIClient with the given API key and
// model. OPENAI_BASE_URL is honored for custom API endpoints.
func NewOpenAIClient(apiKey, model string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key not configured")
	}

	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	// The v2 SDK uses functional options for configuration.
	c := openai.NewClient(options...)
	// The &c is required, the SDK returns the client by value.
	return &OpenAIClient{client: &c, model: model}, nil
}

// Chat sends a chat request to OpenAI and converts the response into our
// internal session.Message format.
func (o *OpenAIClient) Chat(ctx context.Context, messages []session.Message, snap *registry.Snapshot) (*session.Message, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: convertMessagesToOpenAI(messages),
		Tools:    openAIRegistryTool(),
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to send message to OpenAI")
	}

	return processOpenAIResponse(resp)
}

// processOpenAIResponse converts an OpenAI API response into our internal
// session.Message format.
func processOpenAIResponse(resp *openai.ChatCompletion) (*session.Message, error) {
	if len(resp.Choices) == 0 {
		return &session.Message{Role: "assistant", Content: ""}, nil
	}

	choice := resp.Choices[0].Message

	if len(choice.ToolCalls) > 0 {
		var toolCalls []session.ToolCall
		for _, tc := range choice.ToolCalls {
			tool, params := decodeRegistryArgs([]byte(tc.Function.Arguments))
			toolCalls = append(toolCalls, session.ToolCall{
				ID:     tc.ID,
				Tool:   tool,
				Params: params,
			})
		}
		return &session.Message{
			Role:      "assistant",
			Content:   choice.Content,
			ToolCalls: toolCalls,
		}, nil
	}

	return &session.Message{Role: "assistant", Content: choice.Content}, nil
}

// convertMessagesToOpenAI converts our internal message format to OpenAI's.
func convertMessagesToOpenAI(messages []session.Message) []openai.ChatCompletionMessageParamUnion {
	var chatMessages []openai.ChatCompletionMessageParamUnion
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			chatMessages = append(chatMessages, openai.SystemMessage(msg.Content))
		case "assistant":
			assistantMessage := openai.ChatCompletionMessage{
				Role:    "assistant",
				Content: msg.Content,
			}
			if len(msg.ToolCalls) > 0 {
				var toolCalls []openai.ChatCompletionMessageToolCallUnion
				for _, tc := range msg.ToolCalls {
					toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallUnion{
						ID:   tc.ID,
						Type: "function",
						Function: openai.ChatCompletionMessageFunctionToolCallFunction{
							Name:      RegistryToolName,
							Arguments: string(encodeRegistryArgs(tc)),
						},
					})
				}
				assistantMessage.ToolCalls = toolCalls
			}
			chatMessages = append(chatMessages, assistantMessage.ToParam())
		case "tool":
			// Tool results need the originating call ID for correlation.
			if len(msg.ToolCalls) != 1 {
				continue
			}
			chatMessages = append(chatMessages, openai.ToolMessage(msg.Content, msg.ToolCalls[0].ID))
		case "user":
			fallthrough
		default:
			chatMessages = append(chatMessages, openai.UserMessage(msg.Content))
		}
	}
	return chatMessages
}

// openAIRegistryTool binds the generic registry tool in the OpenAI format.
func openAIRegistryTool() []openai.ChatCompletionToolUnionParam {
	params := openai.FunctionParameters{
		"type": "object",
		"properties": map[string]any{
			"tool": map[string]any{
				"type":        "string",
				"description": "Name of the registry tool to call.",
			},
			"parameters": map[string]any{
				"type":        "string",
				"description": "Multiline string with one 'name: value' parameter pair per line. Empty when the tool takes no parameters.",
			},
		},
		"required": []string{"tool"},
	}

	return []openai.ChatCompletionToolUnionParam{
		openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        RegistryToolName,
			Description: openai.String(registryToolDescription),
			Parameters:  params,
		}),
	}
}
