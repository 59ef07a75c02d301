package llm

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"github.com/sdace9719/mcp-devops/errors"
	"github.com/sdace9719/mcp-devops/session"
	"github.com/sdace9719/mcp-devops/tools/registry"
	"google.golang.org/api/option"
)

// GeminiClient is a client for the Google Gemini API. It serves the "gemini"
// provider selector.
type GeminiClient struct {
	model *genai.GenerativeModel
}

// NewGeminiClient creates a new GeminiClient with the given API key and
// model name.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("Gemini API key not configured")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create genai client")
	}

	m := client.GenerativeModel(model)
	m.Tools = geminiRegistryTool()

	return &GeminiClient{model: m}, nil
}

// Chat sends a chat request to the Gemini API.
func (g *GeminiClient) Chat(ctx context.Context, messages []session.Message, snap *registry.Snapshot) (*session.Message, error) {
	history, systemPrompt := convertMessagesToGemini(messages)
	if len(history) == 0 {
		return nil, errors.New("no sendable messages in history")
	}
	if systemPrompt != "" {
		g.model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
	}

	// The last entry is the new prompt; everything before it is history.
	last := history[len(history)-1]
	chatSession := g.model.StartChat()
	chatSession.History = history[:len(history)-1]
	resp, err := chatSession.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to send message to Gemini")
	}

	return processGeminiResponse(resp)
}

// convertMessagesToGemini converts our internal message format to Gemini
// contents, pulling the system prompt out for the model's system
// instruction.
func convertMessagesToGemini(messages []session.Message) ([]*genai.Content, string) {
	var contents []*genai.Content
	var systemPrompt string

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			systemPrompt = msg.Content
		case "assistant":
			var parts []genai.Part
			if msg.Content != "" {
				parts = append(parts, genai.Text(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				parts = append(parts, genai.FunctionCall{
					Name: RegistryToolName,
					Args: registryArgsMap(tc),
				})
			}
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, &genai.Content{Role: "model", Parts: parts})
		case "tool":
			// Gemini correlates function responses by function name, not by
			// call ID, so every response goes back under the parent tool.
			contents = append(contents, &genai.Content{
				Role: "function",
				Parts: []genai.Part{genai.FunctionResponse{
					Name:     RegistryToolName,
					Response: map[string]any{"content": msg.Content},
				}},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []genai.Part{genai.Text(msg.Content)},
			})
		}
	}
	return contents, systemPrompt
}

// geminiRegistryTool binds the generic registry tool in Gemini's
// FunctionDeclaration format.
func geminiRegistryTool() []*genai.Tool {
	return []*genai.Tool{{
		FunctionDeclarations: []*genai.FunctionDeclaration{{
			Name:        RegistryToolName,
			Description: registryToolDescription,
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"tool": {
						Type:        genai.TypeString,
						Description: "Name of the registry tool to call.",
					},
					"parameters": {
						Type:        genai.TypeString,
						Description: "Multiline string with one 'name: value' parameter pair per line.",
					},
				},
				Required: []string{"tool"},
			},
		}},
	}}
}

// processGeminiResponse converts a Gemini API response into our internal
// session.Message format.
func processGeminiResponse(resp *genai.GenerateContentResponse) (*session.Message, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("received an empty response from Gemini")
	}

	var responseContent string
	var toolCalls []session.ToolCall

	for i, part := range resp.Candidates[0].Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			responseContent += string(v)
		case genai.FunctionCall:
			// Gemini issues no call IDs; synthesize stable ones so results
			// stay correlated through the history.
			tool, params := mapRegistryArgs(v.Args)
			toolCalls = append(toolCalls, session.ToolCall{
				ID:     fmt.Sprintf("call_%d_%s", i, tool),
				Tool:   tool,
				Params: params,
			})
		default:
			return nil, errors.New("unsupported part type in Gemini response: %T", v)
		}
	}

	return &session.Message{
		Role:      "assistant",
		Content:   responseContent,
		ToolCalls: toolCalls,
	}, nil
}
