// Package agent runs the tool-calling loop for one chat turn: it alternates
// between asking the model and executing the tools the model requested,
// streaming a progress event for every transition, until the model answers
// without tool calls or the turn fails.
package agent

import (
	"context"

	"github.com/sdace9719/mcp-devops/errors"
	"github.com/sdace9719/mcp-devops/llm"
	"github.com/sdace9719/mcp-devops/session"
	"github.com/sdace9719/mcp-devops/tools"
	"github.com/sdace9719/mcp-devops/tools/registry"
)

// State is a phase of the turn's finite-state machine.
type State int

const (
	StateInit State = iota
	StateAwaitingModel
	StateExecutingTools
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateAwaitingModel:
		return "awaiting_model"
	case StateExecutingTools:
		return "executing_tools"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Loop drives one conversation turn. The model call and every tool
// invocation run sequentially: the loop never re-invokes the model while any
// tool result for the current turn is outstanding, and every requested call
// yields exactly one correlated tool message before the next model call.
type Loop struct {
	Client     llm.Client
	Cache      *registry.Cache
	Dispatcher *tools.Dispatcher

	// Model is reported in the final event.
	Model string

	// MaxToolTurns bounds the model/tool round-trips. The upstream behavior
	// is unbounded, which turns a misbehaving model into a runaway process;
	// exceeding the bound fails the turn.
	MaxToolTurns int
}

// Run executes the turn over the given user-visible history, emitting
// progress on em. It always produces exactly one terminal event and closes
// the emitter before returning. Cancelling ctx aborts in-flight model and
// tool calls.
func (l *Loop) Run(ctx context.Context, history []session.Message, em *Emitter) {
	defer em.Close()

	maxTurns := l.MaxToolTurns
	if maxTurns <= 0 {
		maxTurns = 10
	}

	var (
		conv      session.Conversation
		snap      *registry.Snapshot
		toolTurns int
		failure   error
		answer    string
	)

	state := StateInit
	for {
		switch state {
		case StateInit:
			em.Stage(ctx, StageModelReady)
			snap = l.Cache.Snapshot(ctx)
			em.Stage(ctx, StageRegistryLoaded)

			conv.Add(session.NewSystemMessage(buildSystemPrompt(snap)))
			for _, msg := range history {
				conv.Add(msg)
			}
			em.Stage(ctx, StageHistoryPrepared)
			state = StateAwaitingModel

		case StateAwaitingModel:
			em.Stage(ctx, StageModelInvoked)
			resp, err := l.Client.Chat(ctx, conv.Messages, snap)
			if err != nil {
				failure = errors.Wrapf(err, "model call failed")
				state = StateFailed
				continue
			}
			conv.Add(*resp)

			if len(resp.ToolCalls) == 0 {
				answer = resp.Content
				state = StateDone
				continue
			}
			if toolTurns >= maxTurns {
				failure = errors.New("tool turn limit of %d exceeded", maxTurns)
				state = StateFailed
				continue
			}
			state = StateExecutingTools

		case StateExecutingTools:
			// Execute in the order the model listed the calls; every call
			// gets a result (success or error) before the next model turn,
			// even when all of them fail.
			calls := conv.Last().ToolCalls
			for _, call := range calls {
				em.ToolStage(ctx, StageToolCallStart, call.Tool)
				result := l.Dispatcher.Dispatch(ctx, snap, call)
				em.ToolStage(ctx, StageToolCallEnded, call.Tool)
				conv.Add(result)
			}
			toolTurns++
			state = StateAwaitingModel

		case StateDone:
			em.Final(ctx, answer, l.Model)
			return

		case StateFailed:
			em.Error(ctx, failure)
			return
		}
	}
}
