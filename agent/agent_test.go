package agent

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/sdace9719/mcp-devops/session"
	"github.com/sdace9719/mcp-devops/tools"
	"github.com/sdace9719/mcp-devops/tools/registry"
)

// scriptedClient replays a fixed sequence of assistant responses and records
// the history it saw at each model call.
type scriptedClient struct {
	responses []session.Message
	err       error
	histories [][]session.Message
}

func (c *scriptedClient) Chat(ctx context.Context, messages []session.Message, snap *registry.Snapshot) (*session.Message, error) {
	c.histories = append(c.histories, append([]session.Message(nil), messages...))
	if c.err != nil {
		return nil, c.err
	}
	if len(c.histories) > len(c.responses) {
		return &session.Message{Role: "assistant", Content: "done"}, nil
	}
	resp := c.responses[len(c.histories)-1]
	return &resp, nil
}

// stubRegistry serves a fixed tool list and echoes calls.
type stubRegistry struct {
	tools []registry.Descriptor
	calls []string
}

func (s *stubRegistry) ListTools(ctx context.Context) ([]registry.Descriptor, error) {
	return s.tools, nil
}

func (s *stubRegistry) CallTool(ctx context.Context, name string, args map[string]any) (*registry.RawResult, error) {
	s.calls = append(s.calls, name)
	return &registry.RawResult{Structured: map[string]any{"result": "42"}}, nil
}

func newTestLoop(client *scriptedClient, reg *stubRegistry) *Loop {
	return &Loop{
		Client:       client,
		Cache:        registry.NewCache(reg, nil),
		Dispatcher:   tools.NewDispatcher(reg),
		Model:        "test-model",
		MaxToolTurns: 5,
	}
}

// runLoop drains the emitter and returns every event in order.
func runLoop(t *testing.T, loop *Loop, history []session.Message) []Event {
	t.Helper()
	em := NewEmitter()
	go loop.Run(context.Background(), history, em)

	var events []Event
	for ev := range em.Events() {
		events = append(events, ev)
	}
	return events
}

func terminalEvent(t *testing.T, events []Event) Event {
	t.Helper()
	if len(events) == 0 {
		t.Fatal("No events emitted")
	}
	last := events[len(events)-1]
	if last.Type != "final" && last.Type != "error" {
		t.Fatalf("Stream did not end with a terminal event: %+v", last)
	}
	for _, ev := range events[:len(events)-1] {
		if ev.Type != "stage" {
			t.Fatalf("Non-terminal event of type %s before end of stream: %+v", ev.Type, ev)
		}
	}
	return last
}

func TestLoopDirectAnswer(t *testing.T) {
	client := &scriptedClient{responses: []session.Message{
		{Role: "assistant", Content: "CPU usage is nominal."},
	}}
	reg := &stubRegistry{tools: []registry.Descriptor{{Name: "execute_query"}}}

	events := runLoop(t, newTestLoop(client, reg), []session.Message{session.NewUserMessage("how is the cluster?")})

	if len(client.histories) != 1 {
		t.Errorf("Expected exactly 1 model invocation, got %d", len(client.histories))
	}
	last := terminalEvent(t, events)
	if last.Type != "final" || last.Message != "CPU usage is nominal." {
		t.Errorf("Unexpected terminal event: %+v", last)
	}
	if last.Model != "test-model" {
		t.Errorf("Final event missing model: %+v", last)
	}
}

func TestLoopStageOrder(t *testing.T) {
	client := &scriptedClient{responses: []session.Message{
		{Role: "assistant", Content: "hi"},
	}}
	reg := &stubRegistry{}

	events := runLoop(t, newTestLoop(client, reg), []session.Message{session.NewUserMessage("hello")})

	want := []string{StageModelReady, StageRegistryLoaded, StageHistoryPrepared, StageModelInvoked}
	if len(events) != len(want)+1 {
		t.Fatalf("Expected %d events, got %d: %+v", len(want)+1, len(events), events)
	}
	for i, stage := range want {
		if events[i].Type != "stage" || events[i].Stage != stage {
			t.Errorf("Event %d: expected stage %s, got %+v", i, stage, events[i])
		}
	}
}

func TestLoopToolRoundTrip(t *testing.T) {
	client := &scriptedClient{responses: []session.Message{
		{
			Role: "assistant",
			ToolCalls: []session.ToolCall{
				{ID: "c1", Tool: "execute_query", Params: "query: container_cpu_usage_seconds_total"},
				{ID: "c2", Tool: "execute_query", Params: "query: up"},
			},
		},
		{Role: "assistant", Content: "CPU usage is 42."},
	}}
	reg := &stubRegistry{tools: []registry.Descriptor{{Name: "execute_query"}}}

	events := runLoop(t, newTestLoop(client, reg), []session.Message{session.NewUserMessage("what's CPU usage?")})

	if len(client.histories) != 2 {
		t.Fatalf("Expected 2 model invocations, got %d", len(client.histories))
	}

	// Both tool results must be in the history before the second model call,
	// in request order and correlated by call ID.
	second := client.histories[1]
	var toolMsgs []session.Message
	for _, msg := range second {
		if msg.Role == "tool" {
			toolMsgs = append(toolMsgs, msg)
		}
	}
	if len(toolMsgs) != 2 {
		t.Fatalf("Expected 2 tool results before next model call, got %d", len(toolMsgs))
	}
	if toolMsgs[0].ToolCalls[0].ID != "c1" || toolMsgs[1].ToolCalls[0].ID != "c2" {
		t.Errorf("Tool results out of order or uncorrelated: %+v", toolMsgs)
	}
	if len(reg.calls) != 2 {
		t.Errorf("Expected 2 registry invocations, got %d", len(reg.calls))
	}

	last := terminalEvent(t, events)
	if last.Type != "final" || last.Message != "CPU usage is 42." {
		t.Errorf("Unexpected terminal event: %+v", last)
	}

	var toolStages []string
	for _, ev := range events {
		if ev.Stage == StageToolCallStart || ev.Stage == StageToolCallEnded {
			toolStages = append(toolStages, ev.Stage)
		}
	}
	wantStages := []string{StageToolCallStart, StageToolCallEnded, StageToolCallStart, StageToolCallEnded}
	if strings.Join(toolStages, ",") != strings.Join(wantStages, ",") {
		t.Errorf("Unexpected tool stage sequence: %v", toolStages)
	}
}

func TestLoopContinuesAfterToolFailure(t *testing.T) {
	client := &scriptedClient{responses: []session.Message{
		{
			Role: "assistant",
			ToolCalls: []session.ToolCall{
				{ID: "c1", Tool: "missing_tool"},
			},
		},
		{Role: "assistant", Content: "That tool is unavailable, sorry."},
	}}
	reg := &stubRegistry{tools: []registry.Descriptor{{Name: "execute_query"}}}

	events := runLoop(t, newTestLoop(client, reg), []session.Message{session.NewUserMessage("use the magic tool")})

	// The error result goes back to the model and the turn still completes.
	if len(client.histories) != 2 {
		t.Fatalf("Expected 2 model invocations, got %d", len(client.histories))
	}
	if len(reg.calls) != 0 {
		t.Errorf("Unknown tool reached the registry: %v", reg.calls)
	}
	second := client.histories[1]
	errMsg := second[len(second)-1]
	if errMsg.Role != "tool" || !strings.Contains(errMsg.Content, "unknown tool missing_tool") {
		t.Errorf("Error result not visible to the model: %+v", errMsg)
	}
	if last := terminalEvent(t, events); last.Type != "final" {
		t.Errorf("Turn failed instead of recovering: %+v", last)
	}
}

func TestLoopModelFailureIsTerminal(t *testing.T) {
	client := &scriptedClient{err: fmt.Errorf("401 unauthorized")}
	reg := &stubRegistry{}

	events := runLoop(t, newTestLoop(client, reg), []session.Message{session.NewUserMessage("hello")})

	last := terminalEvent(t, events)
	if last.Type != "error" {
		t.Fatalf("Expected error terminal event, got %+v", last)
	}
	if !strings.Contains(last.Error, "401 unauthorized") {
		t.Errorf("Terminal event lost the cause: %+v", last)
	}
}

func TestLoopToolTurnBound(t *testing.T) {
	// The model asks for tools forever; the loop must stop at the bound.
	toolCall := session.Message{
		Role:      "assistant",
		ToolCalls: []session.ToolCall{{ID: "c", Tool: "execute_query", Params: "query: up"}},
	}
	client := &scriptedClient{responses: []session.Message{
		toolCall, toolCall, toolCall, toolCall, toolCall, toolCall, toolCall,
	}}
	reg := &stubRegistry{tools: []registry.Descriptor{{Name: "execute_query"}}}

	loop := newTestLoop(client, reg)
	loop.MaxToolTurns = 3
	events := runLoop(t, loop, []session.Message{session.NewUserMessage("loop forever")})

	last := terminalEvent(t, events)
	if last.Type != "error" || !strings.Contains(last.Error, "tool turn limit") {
		t.Fatalf("Expected tool turn limit error, got %+v", last)
	}
	// Bound of 3 allows 3 tool turns, so at most 4 model invocations.
	if len(client.histories) != 4 {
		t.Errorf("Expected 4 model invocations, got %d", len(client.histories))
	}
}

func TestLoopSeedsRegistryContext(t *testing.T) {
	client := &scriptedClient{responses: []session.Message{
		{Role: "assistant", Content: "ok"},
	}}
	reg := &stubRegistry{tools: []registry.Descriptor{{Name: "execute_query", Description: "Run a PromQL query"}}}

	runLoop(t, newTestLoop(client, reg), []session.Message{session.NewUserMessage("hi")})

	first := client.histories[0]
	if first[0].Role != "system" {
		t.Fatalf("History does not start with a system message: %+v", first[0].Role)
	}
	if !strings.Contains(first[0].Content, "execute_query") {
		t.Error("Registry context not injected into the system message")
	}
	if first[1].Role != "user" || first[1].Content != "hi" {
		t.Errorf("User history not preserved: %+v", first[1])
	}
}
