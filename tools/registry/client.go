// Package registry talks to the remote tool registry: an MCP server that
// advertises callable tools (for this deployment, PromQL query tools backed
// by Prometheus) and executes them on request. The package also provides the
// process-wide snapshot cache the agent loop reads its tool context from.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sdace9719/mcp-devops/errors"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Client is the operations the agent needs from the remote registry.
type Client interface {
	// ListTools returns every tool the registry advertises.
	ListTools(ctx context.Context) ([]Descriptor, error)
	// CallTool executes a single tool with decoded arguments.
	CallTool(ctx context.Context, name string, args map[string]any) (*RawResult, error)
}

// FetchError marks a failed registry list operation. The cache degrades it
// to an empty snapshot; it never fails a turn.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("registry fetch failed: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// RawResult is the heterogeneous shape an MCP tool call can come back in.
// Normalization into a single JSON-compatible value happens in the
// dispatcher via Normalize, with an explicit preference order.
type RawResult struct {
	// Structured is the structured content block, when the server sent one.
	Structured any
	// Text holds the text fragments of the content list, in order.
	Text []string
	// Fallback is a printable representation used when neither structured
	// nor text content is present.
	Fallback string
	// IsError is the server-side error flag for the call.
	IsError bool
}

// Normalize collapses the result into one JSON-serializable value. The
// preference order is structured content, then joined text fragments, then
// the fallback representation.
func (r *RawResult) Normalize() any {
	if r.Structured != nil {
		return r.Structured
	}
	if len(r.Text) > 0 {
		joined := r.Text[0]
		for _, t := range r.Text[1:] {
			joined += "\n" + t
		}
		return map[string]any{"text": joined}
	}
	return map[string]any{"result": r.Fallback}
}

// MCPClient is the production Client. Like the original backend it opens a
// fresh MCP session per operation against a streamable-HTTP endpoint, so a
// wedged remote never poisons later calls.
type MCPClient struct {
	endpoint    string
	listTimeout time.Duration
	callTimeout time.Duration
}

// NewMCPClient creates a client for the MCP server at endpoint (the full
// base, e.g. http://prometheus-mcp:8080/mcp). Zero timeouts fall back to
// 30s for list and 60s for call.
func NewMCPClient(endpoint string, listTimeout, callTimeout time.Duration) *MCPClient {
	if listTimeout <= 0 {
		listTimeout = 30 * time.Second
	}
	if callTimeout <= 0 {
		callTimeout = 60 * time.Second
	}
	return &MCPClient{
		endpoint:    endpoint,
		listTimeout: listTimeout,
		callTimeout: callTimeout,
	}
}

func (c *MCPClient) connect(ctx context.Context) (*mcpsdk.ClientSession, error) {
	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "mcp-devops", Version: "v1.0.0"}, nil)
	conn, err := client.Connect(ctx, mcpsdk.NewStreamableClientTransport(c.endpoint, nil))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to MCP server at %s", c.endpoint)
	}
	return conn, nil
}

// ListTools fetches the full tool list, following pagination cursors.
func (c *MCPClient) ListTools(ctx context.Context) ([]Descriptor, error) {
	ctx, cancel := context.WithTimeout(ctx, c.listTimeout)
	defer cancel()

	conn, err := c.connect(ctx)
	if err != nil {
		return nil, &FetchError{Err: err}
	}
	defer conn.Close()

	var descriptors []Descriptor
	params := &mcpsdk.ListToolsParams{}
	for {
		toolList, err := conn.ListTools(ctx, params)
		if err != nil {
			return nil, &FetchError{Err: errors.Wrapf(err, "failed to list tools")}
		}
		for _, t := range toolList.Tools {
			descriptors = append(descriptors, toolToDescriptor(t))
		}
		if toolList.NextCursor == "" {
			break
		}
		params.Cursor = toolList.NextCursor
	}
	return descriptors, nil
}

// toolToDescriptor flattens an SDK tool into a Descriptor. The schemas go
// through a JSON round trip so the descriptor holds plain maps regardless of
// how the SDK models them.
func toolToDescriptor(t *mcpsdk.Tool) Descriptor {
	d := Descriptor{Name: t.Name, Description: t.Description}

	raw, err := json.Marshal(t)
	if err != nil {
		return d
	}
	var fields struct {
		InputSchema  map[string]any `json:"inputSchema"`
		OutputSchema map[string]any `json:"outputSchema"`
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return d
	}
	d.InputSchema = fields.InputSchema
	d.OutputSchema = fields.OutputSchema
	return d
}

// CallTool executes one tool on the remote registry. Transport and protocol
// failures come back as errors; the caller converts them into error tool
// results rather than failing the turn.
func (c *MCPClient) CallTool(ctx context.Context, name string, args map[string]any) (*RawResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	conn, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	result, err := conn.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to call tool '%s'", name)
	}

	raw := &RawResult{
		Structured: result.StructuredContent,
		IsError:    result.IsError,
		Fallback:   fmt.Sprintf("%+v", result),
	}
	for _, content := range result.Content {
		if text, ok := content.(*mcpsdk.TextContent); ok && text.Text != "" {
			raw.Text = append(raw.Text, text.Text)
		}
	}
	return raw, nil
}
