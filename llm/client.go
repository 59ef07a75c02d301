// Package llm provides clients for the chat-completion backends. Every
// provider exposes the same contract: send the conversation history with the
// generic registry tool bound, and come back with either a final text
// response or one or more tool call requests.
package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sdace9719/mcp-devops/session"
	"github.com/sdace9719/mcp-devops/tools/registry"
)

// Client is the interface for interacting with a chat-completion backend.
type Client interface {
	// Chat sends the message history with the registry tool bound against
	// the given snapshot and returns the assistant's next message.
	Chat(ctx context.Context, messages []session.Message, snap *registry.Snapshot) (*session.Message, error)
}

// RegistryToolName is the single parent tool every provider binds. The model
// calls any registry tool through it, naming the target tool and supplying
// its parameters as text; the full registry listing lives in the system
// context.
const RegistryToolName = "request_mcp"

const registryToolDescription = "Call a tool from the registry by providing the tool name and its parameters. " +
	"parameters is a multiline string with each parameter name and value pair on a new line, for example:\n" +
	"parameter1: value1\n" +
	"parameter2: value2\n" +
	"If the tool requires no parameters, pass an empty string."

// registryToolArgs is the JSON argument shape of the parent tool across all
// providers.
type registryToolArgs struct {
	Tool       string `json:"tool"`
	Parameters string `json:"parameters"`
}

// decodeRegistryArgs unwraps a provider tool call's JSON arguments into the
// target tool name and raw parameter text. Malformed argument JSON is not
// fatal: the call comes back with an empty tool name and the dispatcher
// reports it to the model as an unknown tool.
func decodeRegistryArgs(data []byte) (tool, params string) {
	var args registryToolArgs
	if err := json.Unmarshal(data, &args); err != nil {
		return "", string(data)
	}
	return args.Tool, args.Parameters
}

// mapRegistryArgs is decodeRegistryArgs for providers that deliver arguments
// as an already-decoded map.
func mapRegistryArgs(args map[string]any) (tool, params string) {
	tool, _ = args["tool"].(string)
	params, _ = args["parameters"].(string)
	return tool, params
}

// encodeRegistryArgs rebuilds the parent tool's JSON arguments from a tool
// call, used when replaying assistant turns back to a provider.
func encodeRegistryArgs(call session.ToolCall) []byte {
	data, err := json.Marshal(registryToolArgs{Tool: call.Tool, Parameters: call.Params})
	if err != nil {
		return []byte("{}")
	}
	return data
}

// registryArgsMap is encodeRegistryArgs for map-based provider APIs.
func registryArgsMap(call session.ToolCall) map[string]any {
	return map[string]any{"tool": call.Tool, "parameters": call.Params}
}

// MockClient is a deterministic Client for tests and for running without any
// provider credentials. It parrots the last message and never requests
// tools.
type MockClient struct{}

func (m *MockClient) Chat(ctx context.Context, messages []session.Message, snap *registry.Snapshot) (*session.Message, error) {
	last := ""
	if len(messages) > 0 {
		last = messages[len(messages)-1].Content
	}
	return &session.Message{
		Role:    "assistant",
		Content: fmt.Sprintf("I am a mock model with %d tools available. You said: '%s'", len(snap.Tools), last),
	}, nil
}
