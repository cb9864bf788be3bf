package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentcore/ai"
)

func blockingStreamFn(release <-chan struct{}) StreamFn {
	return func(ctx context.Context, model ai.Model, c ai.Context, opts ai.SimpleOptions) *ai.EventStream {
		s := ai.NewEventStream(ctx)
		go func() {
			<-release
			msg := &ai.AssistantMessage{
				Content:    []ai.ContentBlock{{Type: ai.ContentText, Text: "done"}},
				StopReason: ai.StopReasonStop,
			}
			s.Push(ai.Event{Type: ai.EventStart, Partial: ai.CloneAssistantMessage(msg)})
			s.Push(ai.Event{Type: ai.EventDone, Reason: msg.StopReason, Message: msg, Partial: msg})
			s.End()
			s.Latch(msg, nil)
		}()
		return s
	}
}

func TestAgent_PromptRejectsWhileRunning(t *testing.T) {
	release := make(chan struct{})
	a := New(ai.Model{ID: "test"}, nil)
	a.cfg.StreamFn = blockingStreamFn(release)

	done := make(chan error, 1)
	go func() { done <- a.Prompt(context.Background(), ai.UserMessage{Text: "go"}) }()

	require.Eventually(t, func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.state.Running
	}, time.Second, time.Millisecond)

	err := a.Prompt(context.Background(), ai.UserMessage{Text: "again"})
	assert.ErrorIs(t, err, ErrAgentRunning)

	close(release)
	require.NoError(t, <-done)
}

func TestAgent_AbortCancelsRunningStream(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	a := New(ai.Model{ID: "test"}, nil)
	a.cfg.StreamFn = func(ctx context.Context, model ai.Model, c ai.Context, opts ai.SimpleOptions) *ai.EventStream {
		s := ai.NewEventStream(ctx)
		go func() {
			<-s.Context().Done()
			s.End()
			s.Latch(&ai.AssistantMessage{StopReason: ai.StopReasonAborted}, nil)
		}()
		return s
	}

	done := make(chan error, 1)
	go func() { done <- a.Prompt(context.Background(), ai.UserMessage{Text: "go"}) }()

	require.Eventually(t, func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.state.Running
	}, time.Second, time.Millisecond)

	a.Abort()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Prompt did not return after Abort")
	}
}

func TestAgent_AbortWhenIdleIsSafe(t *testing.T) {
	a := New(ai.Model{ID: "test"}, nil)
	assert.NotPanics(t, func() { a.Abort() })
}

func TestAgent_SetToolsRejectedWhileRunning(t *testing.T) {
	release := make(chan struct{})
	a := New(ai.Model{ID: "test"}, nil)
	a.cfg.StreamFn = blockingStreamFn(release)

	go a.Prompt(context.Background(), ai.UserMessage{Text: "go"})

	require.Eventually(t, func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.state.Running
	}, time.Second, time.Millisecond)

	err := a.SetTools([]AgentTool{{Tool: ai.Tool{Name: "x"}}})
	assert.ErrorIs(t, err, ErrAgentRunning)

	close(release)
}

func TestAgent_SubscribePanicIsolation(t *testing.T) {
	a := New(ai.Model{ID: "test"}, nil)
	a.cfg.StreamFn = stepScript(&ai.AssistantMessage{
		Content:    []ai.ContentBlock{{Type: ai.ContentText, Text: "hi"}},
		StopReason: ai.StopReasonStop,
	})

	var mu sync.Mutex
	var goodListenerCalls int
	a.Subscribe(func(Event) { panic("boom") })
	a.Subscribe(func(Event) {
		mu.Lock()
		defer mu.Unlock()
		goodListenerCalls++
	})

	err := a.Prompt(context.Background(), ai.UserMessage{Text: "go"})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Greater(t, goodListenerCalls, 0)
}

func TestAgent_SubscribeUnsubscribeStopsDelivery(t *testing.T) {
	a := New(ai.Model{ID: "test"}, nil)
	a.cfg.StreamFn = stepScript(&ai.AssistantMessage{
		Content:    []ai.ContentBlock{{Type: ai.ContentText, Text: "hi"}},
		StopReason: ai.StopReasonStop,
	})

	var mu sync.Mutex
	var calls int
	unsubscribe := a.Subscribe(func(Event) {
		mu.Lock()
		defer mu.Unlock()
		calls++
	})
	unsubscribe()

	require.NoError(t, a.Prompt(context.Background(), ai.UserMessage{Text: "go"}))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, calls)
}

func TestAgent_FollowUpQueuedAndConsumedByContinue(t *testing.T) {
	a := New(ai.Model{ID: "test"}, nil)
	a.cfg.StreamFn = stepScript(&ai.AssistantMessage{
		Content:    []ai.ContentBlock{{Type: ai.ContentText, Text: "hi"}},
		StopReason: ai.StopReasonStop,
	})

	a.FollowUp(ai.UserMessage{Text: "later"})
	require.NoError(t, a.Continue(context.Background()))

	assert.Empty(t, a.state.FollowUpQueue)
}
