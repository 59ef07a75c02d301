package agent

import (
	"context"
	"sync"
)

// Stage names emitted while a turn progresses, in the order the loop reaches
// them. tool stages repeat once per tool call.
const (
	StageModelReady      = "model_ready"
	StageRegistryLoaded  = "registry_loaded"
	StageHistoryPrepared = "history_prepared"
	StageModelInvoked    = "model_invoked"
	StageToolCallStart   = "tool_call_start"
	StageToolCallEnded   = "tool_call_ended"
)

// Event is one progress record of a chat turn. Type is "stage" for
// intermediate transitions, "final" for the answer or "error" for a fatal
// failure; a stream carries exactly one "final" or "error" event, always
// last.
type Event struct {
	Type    string `json:"type"`
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message,omitempty"`
	Model   string `json:"model,omitempty"`
	Error   string `json:"error,omitempty"`
	Tool    string `json:"tool,omitempty"`
}

// Emitter pushes events from the loop to the caller in emission order. Sends
// block until the caller consumes them (or its context ends), so the caller
// can render each transition before the loop moves on; nothing is buffered
// past the channel and nothing is dropped or duplicated. After a terminal
// event every further emit is a no-op.
type Emitter struct {
	ch chan Event

	mu       sync.Mutex
	terminal bool
	closed   bool
}

// NewEmitter creates an Emitter. The producer must end the stream with
// Final or Error and then call Close.
func NewEmitter() *Emitter {
	return &Emitter{ch: make(chan Event, 1)}
}

// Events returns the read-only event stream. It is closed after the
// terminal event.
func (e *Emitter) Events() <-chan Event {
	return e.ch
}

// Stage emits an intermediate stage event.
func (e *Emitter) Stage(ctx context.Context, stage string) {
	e.emit(ctx, Event{Type: "stage", Stage: stage}, false)
}

// ToolStage emits a stage event carrying the tool name being dispatched.
func (e *Emitter) ToolStage(ctx context.Context, stage, tool string) {
	e.emit(ctx, Event{Type: "stage", Stage: stage, Tool: tool}, false)
}

// Final emits the terminal success event with the answer text.
func (e *Emitter) Final(ctx context.Context, answer, model string) {
	e.emit(ctx, Event{Type: "final", Message: answer, Model: model}, true)
}

// Error emits the terminal failure event.
func (e *Emitter) Error(ctx context.Context, err error) {
	e.emit(ctx, Event{Type: "error", Error: err.Error()}, true)
}

func (e *Emitter) emit(ctx context.Context, ev Event, terminal bool) {
	e.mu.Lock()
	if e.terminal || e.closed {
		e.mu.Unlock()
		return
	}
	if terminal {
		e.terminal = true
	}
	e.mu.Unlock()

	select {
	case e.ch <- ev:
	case <-ctx.Done():
		// Caller is gone; the remaining stream has no consumer.
	}
}

// Close ends the stream. Safe to call multiple times.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}
