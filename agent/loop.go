package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/segmentio/ksuid"

	"agentcore/ai"
)

// Run drives one agent invocation: appends prompts, streams turns, executes
// tool calls sequentially in content order, honors steering/follow-up
// queues, and emits the agent event vocabulary via emit. Returns the
// messages appended during this run (prompts included).
func Run(ctx context.Context, actx *AgentContext, state *AgentState, cfg AgentLoopConfig, prompts []AgentMessage, emit func(Event)) []AgentMessage {
	var produced []AgentMessage

	for _, p := range prompts {
		actx.Messages = append(actx.Messages, p)
		produced = append(produced, p)
	}
	emit(Event{Type: EventAgentStart})

	for {
		emit(Event{Type: EventTurnStart})

		turnMsg, toolResults, steered, stop := runTurn(ctx, actx, state, cfg, emit)
		if turnMsg != nil {
			actx.Messages = append(actx.Messages, *turnMsg)
			produced = append(produced, *turnMsg)
		}
		for _, tr := range toolResults {
			actx.Messages = append(actx.Messages, tr)
			produced = append(produced, tr)
		}

		emit(Event{Type: EventTurnEnd, TurnMessage: turnMsg, TurnToolResults: toolResults})

		if stop {
			emit(Event{Type: EventAgentEnd, Messages: produced})
			return produced
		}

		if steered {
			for _, m := range state.DrainSteerQueue() {
				actx.Messages = append(actx.Messages, m)
				produced = append(produced, m)
			}
		}

		hadToolCall := len(toolResults) > 0
		stopReasonToolUse := turnMsg != nil && turnMsg.StopReason == ai.StopReasonToolUse
		if hadToolCall || steered || stopReasonToolUse {
			continue
		}

		if next, ok := state.PopFollowUp(); ok {
			actx.Messages = append(actx.Messages, next)
			produced = append(produced, next)
			continue
		}

		break
	}

	emit(Event{Type: EventAgentEnd, Messages: produced})
	return produced
}

// runTurn streams one assistant turn and executes any resulting tool calls.
// Returns the assistant message (possibly partial on error/abort), the tool
// result messages produced, whether a steering message was consumed this
// turn, and whether the run must stop: the stream ended in error/abort, or
// the cancel signal fired during tool execution.
func runTurn(ctx context.Context, actx *AgentContext, state *AgentState, cfg AgentLoopConfig, emit func(Event)) (*ai.AssistantMessage, []ai.ToolResultMessage, bool, bool) {
	convert := cfg.ConvertToLLM
	if convert == nil {
		convert = func(messages []AgentMessage) []ai.Message { return messages }
	}

	tools := make([]ai.Tool, len(actx.Tools))
	toolByName := make(map[string]AgentTool, len(actx.Tools))
	for i, t := range actx.Tools {
		tools[i] = t.Tool
		toolByName[t.Name] = t
	}

	streamCtx := cfg.CancelSignal
	if streamCtx == nil {
		streamCtx = ctx
	}

	s := cfg.streamFn()(streamCtx, cfg.Model, ai.Context{
		SystemPrompt: actx.SystemPrompt,
		Messages:     convert(actx.Messages),
		Tools:        tools,
	}, ai.SimpleOptions{Reasoning: cfg.Reasoning, CancelSignal: cfg.CancelSignal})

	var started bool
	for ev := range s.Events() {
		if ev.Type == ai.EventStart {
			started = true
			emit(Event{Type: EventMessageStart, Message: ev.Partial})
		}
		emit(Event{Type: EventMessageUpdate, MessageEvent: ev})
		if ev.Type == ai.EventDone || ev.Type == ai.EventError {
			if started {
				emit(Event{Type: EventMessageEnd, Message: ev.Partial})
			}
		}
	}

	msg, err := s.Result(streamCtx)
	if err != nil || msg == nil {
		return msg, nil, false, true
	}
	if msg.StopReason == ai.StopReasonError || msg.StopReason == ai.StopReasonAborted {
		return msg, nil, false, true
	}

	var calls []ai.ContentBlock
	for _, b := range msg.Content {
		if b.Type == ai.ContentToolCall {
			calls = append(calls, b)
		}
	}
	if len(calls) == 0 {
		return msg, nil, false, false
	}

	results, steered, aborted := executeToolCalls(ctx, state, cfg, toolByName, calls, emit)
	return msg, results, steered, aborted
}

// executeToolCalls runs tool calls sequentially in content order. Before
// each call it checks the cancel signal and the steering queue. A cancelled
// signal stops the run outright (no further results produced, matching the
// cancellation contract); a queued steering message instead skips every
// remaining call with the literal "Skipped due to queued user message"
// result so the run continues into the next turn.
func executeToolCalls(ctx context.Context, state *AgentState, cfg AgentLoopConfig, toolByName map[string]AgentTool, calls []ai.ContentBlock, emit func(Event)) ([]ai.ToolResultMessage, bool, bool) {
	var results []ai.ToolResultMessage
	steered := false

	for _, block := range calls {
		call := block.ToolCall

		if cfg.CancelSignal != nil && cfg.CancelSignal.Err() != nil {
			return results, false, true
		}

		if !steered && state.SteerQueued() {
			steered = true
		}

		if steered {
			results = append(results, ai.ToolResultMessage{
				ToolCallID: call.ID,
				ToolName:   call.Name,
				Text:       skippedToolResultText,
				IsError:    true,
			})
			continue
		}

		tool, ok := toolByName[call.Name]
		if !ok {
			results = append(results, ai.ToolResultMessage{
				ToolCallID: call.ID,
				ToolName:   call.Name,
				Text:       fmt.Sprintf("unknown tool %q", call.Name),
				IsError:    true,
			})
			continue
		}

		if verr := validateToolArgs(tool, call.Arguments); verr != nil {
			results = append(results, ai.ToolResultMessage{
				ToolCallID: call.ID,
				ToolName:   call.Name,
				Text:       verr.Error(),
				IsError:    true,
			})
			continue
		}

		emit(Event{Type: EventToolExecutionStart, ToolCallID: call.ID, ToolName: call.Name, ToolArgs: call.Arguments})

		emitUpdate := func(partial string) {
			emit(Event{Type: EventToolExecutionUpdate, ToolCallID: call.ID, ToolName: call.Name, ToolPartial: partial})
		}

		res, err := tool.Execute(ctx, call.ID, call.Arguments, cfg.CancelSignal, emitUpdate)
		if err != nil {
			res = AgentToolResult{Text: err.Error(), IsError: true}
		}

		emit(Event{Type: EventToolExecutionEnd, ToolCallID: call.ID, ToolName: call.Name, ToolResult: res})

		results = append(results, ai.ToolResultMessage{
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Content:    res.Content,
			Text:       res.Text,
			IsError:    res.IsError,
		})
	}

	return results, steered, false
}

// validateToolArgs checks call arguments against the tool's JSON Schema,
// producing a human-readable error on failure rather than invoking Execute.
func validateToolArgs(tool AgentTool, args map[string]any) error {
	if tool.Parameters == nil {
		return nil
	}
	schemaBytes, err := json.Marshal(tool.Parameters)
	if err != nil {
		return fmt.Errorf("internal error marshaling schema for %q: %w", tool.Name, err)
	}
	var schemaDoc any
	if err := json.Unmarshal(schemaBytes, &schemaDoc); err != nil {
		return fmt.Errorf("internal error decoding schema for %q: %w", tool.Name, err)
	}

	c := jsonschema.NewCompiler()
	resource := "tool:" + tool.Name + ":" + ksuid.New().String()
	if err := c.AddResource(resource, schemaDoc); err != nil {
		return fmt.Errorf("internal error compiling schema for %q: %w", tool.Name, err)
	}
	schema, err := c.Compile(resource)
	if err != nil {
		return fmt.Errorf("internal error compiling schema for %q: %w", tool.Name, err)
	}

	var argsAny any = args
	if args == nil {
		argsAny = map[string]any{}
	}
	if err := schema.Validate(argsAny); err != nil {
		return fmt.Errorf("invalid arguments for %q: %w", tool.Name, err)
	}
	return nil
}
