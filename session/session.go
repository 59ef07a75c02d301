// Package session defines the conversation state exchanged between the
// caller, the agent loop and the model providers. A Conversation lives for
// the duration of a single chat request; persisting history across requests
// is the caller's concern.
package session

// ToolCall is a model-issued request to run one tool from the remote
// registry. Params carries the raw multiline "key: value" parameter text
// exactly as the model produced it; decoding happens at dispatch time.
type ToolCall struct {
	ID     string `json:"id"`
	Tool   string `json:"tool"`
	Params string `json:"params"`
}

// Message is a single entry in the conversation history.
//
// For role "assistant", ToolCalls holds the tool executions the model
// requested in that turn. For role "tool", Content is the JSON-serialized
// tool result and ToolCalls contains exactly one entry whose ID correlates
// the result with the originating call.
type Message struct {
	Role      string     `json:"role"` // "system", "user", "assistant" or "tool"
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// NewSystemMessage returns a system message.
func NewSystemMessage(content string) Message {
	return Message{Role: "system", Content: content}
}

// NewUserMessage returns a user message.
func NewUserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// NewToolResult returns a tool message correlated to the given call.
func NewToolResult(call ToolCall, content string) Message {
	return Message{Role: "tool", Content: content, ToolCalls: []ToolCall{call}}
}

// Conversation is the append-only message sequence for one request. It is
// owned by a single agent loop and is not safe for concurrent use.
type Conversation struct {
	Messages []Message
}

// Add appends a message to the history.
func (c *Conversation) Add(msg Message) {
	c.Messages = append(c.Messages, msg)
}

// Last returns the most recent message, or a zero Message if the
// conversation is empty.
func (c *Conversation) Last() Message {
	if len(c.Messages) == 0 {
		return Message{}
	}
	return c.Messages[len(c.Messages)-1]
}
