package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sdace9719/mcp-devops/session"
	"github.com/sdace9719/mcp-devops/tools/registry"
)

// UnknownToolError reports a requested tool name absent from the current
// registry snapshot. The remote registry is never contacted for it.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %s", e.Name)
}

// Dispatcher resolves tool calls against a registry snapshot and executes
// them via the registry client. Every call produces exactly one tool
// message; failures become structured error values in that message so the
// model can reconsider, and one failing call never aborts its siblings.
type Dispatcher struct {
	client registry.Client
}

// NewDispatcher creates a Dispatcher over the given registry client.
func NewDispatcher(client registry.Client) *Dispatcher {
	return &Dispatcher{client: client}
}

// Dispatch executes a single tool call and returns the correlated tool
// message. It never returns an error: decode failures, unknown tools and
// invocation failures all come back as error-valued results.
func (d *Dispatcher) Dispatch(ctx context.Context, snap *registry.Snapshot, call session.ToolCall) session.Message {
	if _, ok := snap.Lookup(call.Tool); !ok {
		err := &UnknownToolError{Name: call.Tool}
		return d.errorResult(call, map[string]any{"error": err.Error()})
	}

	args, err := DecodeParams(call.Params)
	if err != nil {
		return d.errorResult(call, map[string]any{
			"error": "invalid parameter string",
			"args":  call.Params,
		})
	}

	raw, err := d.client.CallTool(ctx, call.Tool, args)
	if err != nil {
		return d.errorResult(call, map[string]any{"error": err.Error()})
	}

	value := raw.Normalize()
	if raw.IsError {
		value = map[string]any{"error": value}
	}
	return session.NewToolResult(call, marshalResult(value))
}

// DispatchAll executes every call of one assistant turn in the order the
// model listed them and returns one tool message per call, in that same
// order.
func (d *Dispatcher) DispatchAll(ctx context.Context, snap *registry.Snapshot, calls []session.ToolCall) []session.Message {
	results := make([]session.Message, 0, len(calls))
	for _, call := range calls {
		results = append(results, d.Dispatch(ctx, snap, call))
	}
	return results
}

func (d *Dispatcher) errorResult(call session.ToolCall, value map[string]any) session.Message {
	return session.NewToolResult(call, marshalResult(value))
}

// marshalResult serializes a normalized result for the message history. The
// normalized value is JSON-compatible by construction; the fallback covers
// a structured payload the remote produced that still fails to marshal.
func marshalResult(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		data, _ = json.Marshal(map[string]any{"result": fmt.Sprintf("%v", value)})
	}
	return string(data)
}
