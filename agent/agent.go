package agent

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"agentcore/ai"
)

// Agent is a stateful wrapper holding model, system prompt, tools, thinking
// level, and accumulated messages. Only one run is active per Agent at a
// time; Prompt rejects a new run while running.
type Agent struct {
	mu sync.Mutex

	ctx   AgentContext
	state AgentState
	cfg   AgentLoopConfig

	listeners map[int]Listener
	nextID    int
}

// New constructs an Agent bound to a model and an optional conversion
// function (identity when AgentMessage is ai.Message itself).
func New(model ai.Model, convert ConvertToLLM) *Agent {
	return &Agent{
		cfg:       AgentLoopConfig{Model: model, ConvertToLLM: convert},
		listeners: make(map[int]Listener),
	}
}

func (a *Agent) SetModel(m ai.Model) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg.Model = m
}

func (a *Agent) SetSystemPrompt(prompt string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ctx.SystemPrompt = prompt
}

// SetTools replaces the bound tool catalog. Illegal while a run is active:
// tools may not change mid-run.
func (a *Agent) SetTools(tools []AgentTool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.Running {
		return ErrAgentRunning
	}
	a.ctx.Tools = tools
	return nil
}

func (a *Agent) SetThinkingLevel(level ai.ReasoningLevel) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg.Reasoning = level
}

// Prompt starts a run with a single user prompt. Rejects when already
// running.
func (a *Agent) Prompt(ctx context.Context, message AgentMessage) error {
	return a.run(ctx, []AgentMessage{message})
}

// Continue resumes by processing queued follow-ups without a new user
// prompt.
func (a *Agent) Continue(ctx context.Context) error {
	return a.run(ctx, nil)
}

func (a *Agent) run(ctx context.Context, prompts []AgentMessage) error {
	a.mu.Lock()
	if a.state.Running {
		a.mu.Unlock()
		return ErrAgentRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.state.Running = true
	a.state.cancel = cancel
	a.state.CancelSignal = runCtx
	cfg := a.cfg
	cfg.CancelSignal = runCtx
	actx := &a.ctx
	state := &a.state
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.state.Running = false
		a.state.cancel = nil
		a.state.CancelSignal = nil
		a.mu.Unlock()
	}()

	Run(runCtx, actx, state, cfg, prompts, a.emit)
	return nil
}

// Abort sets the cancel signal for the current run. Safe to call when idle.
func (a *Agent) Abort() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.cancel != nil {
		a.state.cancel()
	}
}

// Steer enqueues a mid-run user message. Remaining tool calls in the current
// turn are skipped once this queue is observed non-empty. Safe to call from
// any goroutine while a run is in progress: AgentState owns its own queue
// lock, independent of Agent.mu, since the loop that drains the queue runs
// as a free function over *AgentState rather than as an Agent method.
func (a *Agent) Steer(message AgentMessage) {
	a.state.PushSteer(message)
}

// FollowUp enqueues a message to be appended and run after the current run
// completes (or immediately via Continue if idle). Safe to call from any
// goroutine; see Steer.
func (a *Agent) FollowUp(message AgentMessage) {
	a.state.PushFollowUp(message)
}

// Subscribe registers an event listener; events are delivered in push order
// for every running invocation. Returns an unsubscribe handle.
func (a *Agent) Subscribe(fn Listener) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = fn
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.listeners, id)
	}
}

// emit fans an event out to every subscriber, isolating panics so a bad
// listener never aborts the run.
func (a *Agent) emit(ev Event) {
	a.mu.Lock()
	listeners := make([]Listener, 0, len(a.listeners))
	for _, fn := range a.listeners {
		listeners = append(listeners, fn)
	}
	a.mu.Unlock()

	for _, fn := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Msg("agent listener panicked")
				}
			}()
			fn(ev)
		}()
	}
}

// ErrAgentRunning is returned by Prompt/SetTools when a run is already in
// progress.
var ErrAgentRunning = agentRunningErr{}

type agentRunningErr struct{}

func (agentRunningErr) Error() string { return "agent: already running" }
