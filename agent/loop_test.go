package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentcore/ai"
)

// scriptedStream turns a fully-built AssistantMessage into a stand-in
// ai.EventStream, bypassing any real provider for deterministic loop tests.
func scriptedStream(msg *ai.AssistantMessage) *ai.EventStream {
	s := ai.NewEventStream(context.Background())
	s.Push(ai.Event{Type: ai.EventStart, Partial: ai.CloneAssistantMessage(msg)})
	s.Push(ai.Event{Type: ai.EventDone, Reason: msg.StopReason, Message: ai.CloneAssistantMessage(msg), Partial: ai.CloneAssistantMessage(msg)})
	s.End()
	s.Latch(msg, nil)
	return s
}

func stepScript(steps ...*ai.AssistantMessage) StreamFn {
	i := 0
	return func(ctx context.Context, model ai.Model, c ai.Context, opts ai.SimpleOptions) *ai.EventStream {
		msg := steps[i]
		if i < len(steps)-1 {
			i++
		}
		return scriptedStream(msg)
	}
}

func TestRun_SingleTurnNoToolCalls(t *testing.T) {
	final := &ai.AssistantMessage{
		Content:    []ai.ContentBlock{{Type: ai.ContentText, Text: "hello"}},
		StopReason: ai.StopReasonStop,
	}
	cfg := AgentLoopConfig{StreamFn: stepScript(final)}
	actx := &AgentContext{}
	state := &AgentState{}

	var events []Event
	produced := Run(context.Background(), actx, state, cfg, []AgentMessage{ai.UserMessage{Text: "hi"}}, func(e Event) {
		events = append(events, e)
	})

	require.Len(t, produced, 2) // the prompt + the assistant reply
	assert.Equal(t, EventAgentStart, events[0].Type)
	assert.Equal(t, EventAgentEnd, events[len(events)-1].Type)
}

func TestRun_ToolCallThenFinalAnswer(t *testing.T) {
	toolTurn := &ai.AssistantMessage{
		Content: []ai.ContentBlock{
			{Type: ai.ContentToolCall, ToolCall: &ai.ToolCallData{ID: "call_1", Name: "echo", Arguments: map[string]any{"text": "hi"}}},
		},
		StopReason: ai.StopReasonToolUse,
	}
	finalTurn := &ai.AssistantMessage{
		Content:    []ai.ContentBlock{{Type: ai.ContentText, Text: "done"}},
		StopReason: ai.StopReasonStop,
	}

	var executed bool
	tool := AgentTool{
		Tool: ai.Tool{Name: "echo"},
		Execute: func(ctx context.Context, callID string, args map[string]any, cancel ai.CancelSignal, emitUpdate func(string)) (AgentToolResult, error) {
			executed = true
			return AgentToolResult{Text: "ok"}, nil
		},
	}

	cfg := AgentLoopConfig{StreamFn: stepScript(toolTurn, finalTurn)}
	actx := &AgentContext{Tools: []AgentTool{tool}}
	state := &AgentState{}

	produced := Run(context.Background(), actx, state, cfg, []AgentMessage{ai.UserMessage{Text: "go"}}, func(Event) {})

	assert.True(t, executed)
	// prompt, tool-call message, tool result, final answer
	require.Len(t, produced, 4)
	assert.Equal(t, ai.RoleTool, produced[2].GetRole())
	toolResult := produced[2].(ai.ToolResultMessage)
	assert.Equal(t, "ok", toolResult.Text)
	assert.False(t, toolResult.IsError)
}

func TestRun_UnknownToolProducesErrorResult(t *testing.T) {
	toolTurn := &ai.AssistantMessage{
		Content: []ai.ContentBlock{
			{Type: ai.ContentToolCall, ToolCall: &ai.ToolCallData{ID: "call_1", Name: "missing"}},
		},
		StopReason: ai.StopReasonToolUse,
	}
	finalTurn := &ai.AssistantMessage{
		Content:    []ai.ContentBlock{{Type: ai.ContentText, Text: "done"}},
		StopReason: ai.StopReasonStop,
	}

	cfg := AgentLoopConfig{StreamFn: stepScript(toolTurn, finalTurn)}
	actx := &AgentContext{}
	state := &AgentState{}

	produced := Run(context.Background(), actx, state, cfg, []AgentMessage{ai.UserMessage{Text: "go"}}, func(Event) {})

	toolResult := produced[2].(ai.ToolResultMessage)
	assert.True(t, toolResult.IsError)
}

func TestRun_InvalidToolArgumentsSkipExecute(t *testing.T) {
	toolTurn := &ai.AssistantMessage{
		Content: []ai.ContentBlock{
			{Type: ai.ContentToolCall, ToolCall: &ai.ToolCallData{ID: "call_1", Name: "search", Arguments: map[string]any{}}},
		},
		StopReason: ai.StopReasonToolUse,
	}
	finalTurn := &ai.AssistantMessage{
		Content:    []ai.ContentBlock{{Type: ai.ContentText, Text: "done"}},
		StopReason: ai.StopReasonStop,
	}

	executed := false
	tool := AgentTool{
		Tool: ai.Tool{
			Name: "search",
			Parameters: map[string]any{
				"type":     "object",
				"required": []any{"query"},
				"properties": map[string]any{
					"query": map[string]any{"type": "string"},
				},
			},
		},
		Execute: func(ctx context.Context, callID string, args map[string]any, cancel ai.CancelSignal, emitUpdate func(string)) (AgentToolResult, error) {
			executed = true
			return AgentToolResult{}, nil
		},
	}

	cfg := AgentLoopConfig{StreamFn: stepScript(toolTurn, finalTurn)}
	actx := &AgentContext{Tools: []AgentTool{tool}}
	state := &AgentState{}

	produced := Run(context.Background(), actx, state, cfg, []AgentMessage{ai.UserMessage{Text: "go"}}, func(Event) {})

	assert.False(t, executed)
	toolResult := produced[2].(ai.ToolResultMessage)
	assert.True(t, toolResult.IsError)
}

func TestRun_SteeringSkipsRemainingToolCallsWithLiteralText(t *testing.T) {
	toolTurn := &ai.AssistantMessage{
		Content: []ai.ContentBlock{
			{Type: ai.ContentToolCall, ToolCall: &ai.ToolCallData{ID: "call_1", Name: "a"}},
			{Type: ai.ContentToolCall, ToolCall: &ai.ToolCallData{ID: "call_2", Name: "b"}},
		},
		StopReason: ai.StopReasonToolUse,
	}
	finalTurn := &ai.AssistantMessage{
		Content:    []ai.ContentBlock{{Type: ai.ContentText, Text: "done"}},
		StopReason: ai.StopReasonStop,
	}

	var callOrder []string
	makeTool := func(name string) AgentTool {
		return AgentTool{
			Tool: ai.Tool{Name: name},
			Execute: func(ctx context.Context, callID string, args map[string]any, cancel ai.CancelSignal, emitUpdate func(string)) (AgentToolResult, error) {
				callOrder = append(callOrder, name)
				return AgentToolResult{Text: "ok"}, nil
			},
		}
	}

	cfg := AgentLoopConfig{StreamFn: stepScript(toolTurn, finalTurn)}
	actx := &AgentContext{Tools: []AgentTool{makeTool("a"), makeTool("b")}}
	state := &AgentState{SteerQueue: []AgentMessage{ai.UserMessage{Text: "wait, stop"}}}

	produced := Run(context.Background(), actx, state, cfg, []AgentMessage{ai.UserMessage{Text: "go"}}, func(Event) {})

	assert.Empty(t, callOrder, "no tool should execute once steering is observed")

	var resultTexts []string
	for _, m := range produced {
		if tr, ok := m.(ai.ToolResultMessage); ok {
			resultTexts = append(resultTexts, tr.Text)
		}
	}
	require.Len(t, resultTexts, 2)
	assert.Equal(t, "Skipped due to queued user message", resultTexts[0])
	assert.Equal(t, "Skipped due to queued user message", resultTexts[1])
	assert.Empty(t, state.SteerQueue, "steer queue is drained into the conversation")
}

func TestRun_CancellationStopsWithoutFurtherResults(t *testing.T) {
	toolTurn := &ai.AssistantMessage{
		Content: []ai.ContentBlock{
			{Type: ai.ContentToolCall, ToolCall: &ai.ToolCallData{ID: "call_1", Name: "a"}},
		},
		StopReason: ai.StopReasonToolUse,
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := AgentLoopConfig{StreamFn: stepScript(toolTurn), CancelSignal: ctx}
	actx := &AgentContext{Tools: []AgentTool{{Tool: ai.Tool{Name: "a"}, Execute: func(context.Context, string, map[string]any, ai.CancelSignal, func(string)) (AgentToolResult, error) {
		return AgentToolResult{}, nil
	}}}}
	state := &AgentState{}

	var sawEnd bool
	produced := Run(context.Background(), actx, state, cfg, []AgentMessage{ai.UserMessage{Text: "go"}}, func(e Event) {
		if e.Type == EventAgentEnd {
			sawEnd = true
		}
	})

	assert.True(t, sawEnd)
	for _, m := range produced {
		_, isToolResult := m.(ai.ToolResultMessage)
		assert.False(t, isToolResult, "cancellation must not produce any tool result messages")
	}
}

func TestRun_FollowUpQueueDrivesContinuation(t *testing.T) {
	final := &ai.AssistantMessage{
		Content:    []ai.ContentBlock{{Type: ai.ContentText, Text: "first answer"}},
		StopReason: ai.StopReasonStop,
	}
	cfg := AgentLoopConfig{StreamFn: stepScript(final)}
	actx := &AgentContext{}
	state := &AgentState{FollowUpQueue: []AgentMessage{ai.UserMessage{Text: "one more thing"}}}

	produced := Run(context.Background(), actx, state, cfg, nil, func(Event) {})

	// the queued follow-up is appended and re-run, each turn yielding the
	// same scripted final answer
	require.Len(t, produced, 3)
	assert.Empty(t, state.FollowUpQueue)
}
