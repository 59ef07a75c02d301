package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/sdace9719/mcp-devops/errors"
	"github.com/sdace9719/mcp-devops/session"
	"github.com/sdace9719/mcp-devops/tools/registry"
)

// BedrockClient is a client for Anthropic models hosted on AWS Bedrock. It
// serves the "bedrock" provider selector.
type BedrockClient struct {
	client  *bedrockruntime.Client
	modelID string
}

// NewBedrockClient creates a new BedrockClient for the given model ID. AWS
// credentials and region come from the default configuration chain.
func NewBedrockClient(ctx context.Context, modelID string) (*BedrockClient, error) {
	if modelID == "" {
		return nil, errors.New("Bedrock model ID not configured")
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load AWS config")
	}

	return &BedrockClient{
		client:  bedrockruntime.NewFromConfig(cfg),
		modelID: modelID,
	}, nil
}

// Chat sends a chat request to the Anthropic model via AWS Bedrock.
func (b *BedrockClient) Chat(ctx context.Context, messages []session.Message, snap *registry.Snapshot) (*session.Message, error) {
	bedrockMessages, systemPrompt := convertMessagesToBedrock(messages)

	requestBody, err := createBedrockRequest(bedrockMessages, systemPrompt)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create Bedrock request")
	}

	resp, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Body:        requestBody,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to invoke Bedrock model")
	}

	return processBedrockResponse(resp.Body)
}

// convertMessagesToBedrock converts our internal message format to the
// Anthropic-on-Bedrock wire format.
func convertMessagesToBedrock(messages []session.Message) ([]map[string]interface{}, string) {
	var bedrockMessages []map[string]interface{}
	var systemPrompt string

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			systemPrompt = msg.Content
		case "user":
			bedrockMessages = append(bedrockMessages, map[string]interface{}{
				"role": "user",
				"content": []map[string]interface{}{
					{"type": "text", "text": msg.Content},
				},
			})
		case "assistant":
			var contentItems []map[string]interface{}
			if msg.Content != "" {
				contentItems = append(contentItems, map[string]interface{}{
					"type": "text", "text": msg.Content,
				})
			}
			for _, tc := range msg.ToolCalls {
				contentItems = append(contentItems, map[string]interface{}{
					"type":  "tool_use",
					"id":    tc.ID,
					"name":  RegistryToolName,
					"input": registryArgsMap(tc),
				})
			}
			if len(contentItems) == 0 {
				continue
			}
			bedrockMessages = append(bedrockMessages, map[string]interface{}{
				"role":    "assistant",
				"content": contentItems,
			})
		case "tool":
			if len(msg.ToolCalls) != 1 {
				continue
			}
			bedrockMessages = append(bedrockMessages, map[string]interface{}{
				"role": "user",
				"content": []map[string]interface{}{
					{
						"type":        "tool_result",
						"tool_use_id": msg.ToolCalls[0].ID,
						"content":     msg.Content,
					},
				},
			})
		}
	}

	return bedrockMessages, systemPrompt
}

// createBedrockRequest creates the request body for Anthropic models on
// Bedrock, with the generic registry tool bound.
func createBedrockRequest(messages []map[string]interface{}, systemPrompt string) ([]byte, error) {
	request := map[string]interface{}{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        4096,
		"messages":          messages,
		"tools": []map[string]interface{}{
			{
				"name":        RegistryToolName,
				"description": registryToolDescription,
				"input_schema": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"tool": map[string]interface{}{
							"type":        "string",
							"description": "Name of the registry tool to call.",
						},
						"parameters": map[string]interface{}{
							"type":        "string",
							"description": "Multiline string with one 'name: value' parameter pair per line.",
						},
					},
					"required": []string{"tool"},
				},
			},
		},
	}
	if systemPrompt != "" {
		request["system"] = systemPrompt
	}

	return json.Marshal(request)
}

// processBedrockResponse converts a Bedrock API response into our internal
// session.Message format.
func processBedrockResponse(body []byte) (*session.Message, error) {
	var response map[string]interface{}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal Bedrock response")
	}

	if errMsg, ok := response["error"]; ok {
		return nil, errors.New("Bedrock API error: %v", errMsg)
	}

	content, ok := response["content"]
	if !ok {
		return &session.Message{Role: "assistant", Content: ""}, nil
	}
	contentArray, ok := content.([]interface{})
	if !ok {
		return nil, errors.New("unexpected content format in Bedrock response")
	}

	var responseContent string
	var toolCalls []session.ToolCall

	for i, item := range contentArray {
		itemMap, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		switch itemMap["type"] {
		case "text":
			if text, ok := itemMap["text"].(string); ok {
				responseContent += text
			}
		case "tool_use":
			input, ok := itemMap["input"].(map[string]interface{})
			if !ok {
				continue
			}
			tool, params := mapRegistryArgs(input)
			id, _ := itemMap["id"].(string)
			if id == "" {
				id = fmt.Sprintf("call_%d_%s", i, tool)
			}
			toolCalls = append(toolCalls, session.ToolCall{
				ID:     id,
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
