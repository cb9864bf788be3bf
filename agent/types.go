// Package agent implements the stateful, turn-based tool-calling loop layered
// on top of the ai package's provider-agnostic streaming core.
package agent

import (
	"context"
	"sync"

	"agentcore/ai"
)

// AgentMessage is the application's message type threaded through a run.
// Callers that don't need a richer envelope use ai.Message directly.
type AgentMessage = ai.Message

// AgentToolResult is what an AgentTool's Execute returns: either a successful
// text/content result or an error surfaced back to the model as a tool
// result with is_error=true.
type AgentToolResult struct {
	Content []ai.ContentBlock
	Text    string
	IsError bool
}

// AgentTool binds an ai.Tool's name/description/schema to an executor. Tools
// are bound via Agent.SetTools and may not change mid-run.
type AgentTool struct {
	ai.Tool
	Label string

	// Execute runs the tool. emitUpdate lets long-running tools report
	// progress via ToolExecutionUpdate events; cancelSignal is the same
	// signal threaded from the agent's Abort down through the loop.
	Execute func(ctx context.Context, callID string, args map[string]any, cancelSignal ai.CancelSignal, emitUpdate func(partial string)) (AgentToolResult, error)
}

// AgentContext holds the conversation mutated only by the agent loop: system
// prompt, accumulated messages, and the bound tool catalog.
type AgentContext struct {
	SystemPrompt string
	Messages     []AgentMessage
	Tools        []AgentTool
}

// AgentState tracks run-in-progress bookkeeping: whether a run is active, the
// cancel signal for the current run, and queues for mid-run steering
// messages and post-run follow-ups. SteerQueue and FollowUpQueue are
// appended to from the caller's goroutine (Agent.Steer/FollowUp) while the
// loop goroutine reads and drains them at each turn/tool-call boundary, so
// every access to either queue goes through queueMu via the methods below
// rather than touching the fields directly.
type AgentState struct {
	Running      bool
	cancel       context.CancelFunc
	CancelSignal ai.CancelSignal

	queueMu       sync.Mutex
	SteerQueue    []AgentMessage
	FollowUpQueue []AgentMessage
}

// PushSteer enqueues a mid-run steering message. Safe to call concurrently
// with a run in progress.
func (s *AgentState) PushSteer(message AgentMessage) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	s.SteerQueue = append(s.SteerQueue, message)
}

// SteerQueued reports whether a steering message is waiting.
func (s *AgentState) SteerQueued() bool {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	return len(s.SteerQueue) > 0
}

// DrainSteerQueue empties and returns the queued steering messages.
func (s *AgentState) DrainSteerQueue() []AgentMessage {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	drained := s.SteerQueue
	s.SteerQueue = nil
	return drained
}

// PushFollowUp enqueues a message to run after the current (or next) turn
// completes. Safe to call concurrently with a run in progress.
func (s *AgentState) PushFollowUp(message AgentMessage) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	s.FollowUpQueue = append(s.FollowUpQueue, message)
}

// PopFollowUp dequeues the next follow-up message, if any.
func (s *AgentState) PopFollowUp() (AgentMessage, bool) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	if len(s.FollowUpQueue) == 0 {
		return nil, false
	}
	next := s.FollowUpQueue[0]
	s.FollowUpQueue = s.FollowUpQueue[1:]
	return next, true
}

// ConvertToLLM adapts the application's AgentMessage sequence into the
// ai.Message sequence a provider adapter understands. The identity function
// suffices when AgentMessage is ai.Message itself (the default).
type ConvertToLLM func(messages []AgentMessage) []ai.Message

// StreamFn is the provider entry point the loop drives; overridable in
// AgentLoopConfig for tests (to inject a scripted stream without a live
// provider).
type StreamFn func(ctx context.Context, model ai.Model, c ai.Context, opts ai.SimpleOptions) *ai.EventStream

// AgentLoopConfig parameterizes a single Run invocation.
type AgentLoopConfig struct {
	Model        ai.Model
	ConvertToLLM ConvertToLLM
	Reasoning    ai.ReasoningLevel
	StreamFn     StreamFn
	CancelSignal ai.CancelSignal
}

func (c AgentLoopConfig) streamFn() StreamFn {
	if c.StreamFn != nil {
		return c.StreamFn
	}
	return ai.StreamSimple
}

// skippedToolResultText is the literal text used for tool calls skipped
// because a steering message arrived mid-turn.
const skippedToolResultText = "Skipped due to queued user message"
