package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
	"github.com/aws/smithy-go/document"
)

// BedrockProvider implements ApiProvider against AWS Bedrock's Converse
// streaming API, authenticated through the standard AWS credential chain
// (SigV4: env vars, shared config/credentials files, EC2/ECS role) rather
// than a caller-suppliable api_key, per the auth resolution table.
type BedrockProvider struct{}

func init() {
	RegisterApiProvider(BedrockProvider{})
}

func (BedrockProvider) API() API { return APIBedrock }

func (p BedrockProvider) StreamSimple(ctx context.Context, model Model, c Context, opts SimpleOptions) *EventStream {
	return p.Stream(ctx, model, c, opts.toOptions())
}

func (p BedrockProvider) Stream(ctx context.Context, model Model, c Context, opts Options) *EventStream {
	s := NewEventStream(ctx)
	go p.run(s, model, c, opts)
	return s
}

func (p BedrockProvider) run(s *EventStream, model Model, c Context, opts Options) {
	cfg, err := awsconfig.LoadDefaultConfig(s.Context())
	if err != nil {
		failStream(s, model, APIBedrock, fmt.Errorf("failed to load AWS config: %w", err), StopReasonError)
		return
	}
	client := bedrockruntime.NewFromConfig(cfg)

	messages, system, err := bedrockFromMessages(NormalizeMessages(c.Messages, false), c.SystemPrompt)
	if err != nil {
		failStream(s, model, APIBedrock, err, StopReasonError)
		return
	}

	input := &bedrockruntime.ConverseStreamInput{
		ModelId:  &model.ID,
		Messages: messages,
	}
	if len(system) > 0 {
		input.System = system
	}
	if len(c.Tools) > 0 {
		input.ToolConfig = bedrockToolConfig(c.Tools, c.ToolChoice)
	}
	inferCfg := &brtypes.InferenceConfiguration{}
	hasInferCfg := false
	if opts.MaxTokens > 0 {
		tokens := int32(opts.MaxTokens)
		inferCfg.MaxTokens = &tokens
		hasInferCfg = true
	} else if model.MaxOutputTokens > 0 {
		tokens := int32(model.MaxOutputTokens)
		inferCfg.MaxTokens = &tokens
		hasInferCfg = true
	}
	if opts.Temperature != nil {
		inferCfg.Temperature = opts.Temperature
		hasInferCfg = true
	}
	if hasInferCfg {
		input.InferenceConfig = inferCfg
	}

	if enabled, budget := AnthropicBudgetTokens(opts.Reasoning, model); enabled && model.Reasoning {
		fields := map[string]any{"thinking": map[string]any{"type": "enabled", "budget_tokens": budget}}
		input.AdditionalModelRequestFields = document.NewLazyDocument(fields)
	}

	out, err := client.ConverseStream(s.Context(), input)
	if err != nil {
		failStream(s, model, APIBedrock, bedrockWrapErr(err), StopReasonError)
		return
	}
	stream := out.GetStream()
	if stream == nil {
		failStream(s, model, APIBedrock, fmt.Errorf("bedrock: stream output missing event stream"), StopReasonError)
		return
	}
	defer stream.Close()

	msg := &AssistantMessage{API: APIBedrock, Model: model.ID, Provider: model.Provider, Timestamp: time.Now()}
	s.Push(Event{Type: EventStart, Partial: CloneAssistantMessage(msg)})

	indexByBlock := make(map[int32]int)
	argBuilders := make(map[int32]*ArgBuilder)
	var stopReason StopReason = StopReasonStop

	for event := range stream.Events() {
		switch ev := event.(type) {
		case *brtypes.ConverseStreamOutputMemberContentBlockStart:
			idx := ev.Value.ContentBlockIndex
			if idx == nil {
				continue
			}
			if start, ok := ev.Value.Start.(*brtypes.ContentBlockStartMemberToolUse); ok {
				contentIdx := len(msg.Content)
				indexByBlock[*idx] = contentIdx
				toolID := ""
				if start.Value.ToolUseId != nil {
					toolID = *start.Value.ToolUseId
				}
				toolName := ""
				if start.Value.Name != nil {
					toolName = *start.Value.Name
				}
				msg.Content = append(msg.Content, ContentBlock{ContentIndex: contentIdx, Type: ContentToolCall, ToolCall: &ToolCallData{ID: toolID, Name: toolName}})
				argBuilders[*idx] = NewArgBuilder()
				s.Push(Event{Type: EventToolCallStart, ContentIndex: contentIdx, Partial: CloneAssistantMessage(msg)})
			}

		case *brtypes.ConverseStreamOutputMemberContentBlockDelta:
			idx := ev.Value.ContentBlockIndex
			if idx == nil {
				continue
			}
			switch delta := ev.Value.Delta.(type) {
			case *brtypes.ContentBlockDeltaMemberText:
				contentIdx, ok := indexByBlock[*idx]
				if !ok {
					contentIdx = len(msg.Content)
					indexByBlock[*idx] = contentIdx
					msg.Content = append(msg.Content, ContentBlock{ContentIndex: contentIdx, Type: ContentText})
					s.Push(Event{Type: EventTextStart, ContentIndex: contentIdx, Partial: CloneAssistantMessage(msg)})
				}
				msg.Content[contentIdx].Text += delta.Value
				s.Push(Event{Type: EventTextDelta, ContentIndex: contentIdx, Delta: delta.Value, Partial: CloneAssistantMessage(msg)})

			case *brtypes.ContentBlockDeltaMemberReasoningContent:
				contentIdx, ok := indexByBlock[*idx]
				if !ok {
					contentIdx = len(msg.Content)
					indexByBlock[*idx] = contentIdx
					msg.Content = append(msg.Content, ContentBlock{ContentIndex: contentIdx, Type: ContentThinking})
					s.Push(Event{Type: EventThinkingStart, ContentIndex: contentIdx, Partial: CloneAssistantMessage(msg)})
				}
				switch v := delta.Value.(type) {
				case *brtypes.ReasoningContentBlockDeltaMemberText:
					msg.Content[contentIdx].Thinking += v.Value
					s.Push(Event{Type: EventThinkingDelta, ContentIndex: contentIdx, Delta: v.Value, Partial: CloneAssistantMessage(msg)})
				case *brtypes.ReasoningContentBlockDeltaMemberSignature:
					msg.Content[contentIdx].Signature = v.Value
				}

			case *brtypes.ContentBlockDeltaMemberToolUse:
				if delta.Value.Input == nil {
					continue
				}
				contentIdx, ok := indexByBlock[*idx]
				if !ok {
					continue
				}
				argBuilders[*idx].Append(*delta.Value.Input)
				msg.Content[contentIdx].ToolCall.RawArgs = argBuilders[*idx].Raw()
				s.Push(Event{Type: EventToolCallDelta, ContentIndex: contentIdx, Delta: *delta.Value.Input, Partial: CloneAssistantMessage(msg)})
			}

		case *brtypes.ConverseStreamOutputMemberContentBlockStop:
			idx := ev.Value.ContentBlockIndex
			if idx == nil {
				continue
			}
			contentIdx, ok := indexByBlock[*idx]
			if !ok {
				continue
			}
			block := &msg.Content[contentIdx]
			switch block.Type {
			case ContentText:
				s.Push(Event{Type: EventTextEnd, ContentIndex: contentIdx, Delta: block.Text, Partial: CloneAssistantMessage(msg)})
			case ContentThinking:
				s.Push(Event{Type: EventThinkingEnd, ContentIndex: contentIdx, Delta: block.Thinking, Partial: CloneAssistantMessage(msg)})
			case ContentToolCall:
				args, perr := argBuilders[*idx].Final()
				if perr != nil {
					args = argBuilders[*idx].Snapshot()
				}
				block.ToolCall.Arguments = args
				s.Push(Event{Type: EventToolCallEnd, ContentIndex: contentIdx, ToolCall: block.ToolCall, Partial: CloneAssistantMessage(msg)})
			}

		case *brtypes.ConverseStreamOutputMemberMessageStop:
			stopReason = bedrockStopReason(ev.Value.StopReason)

		case *brtypes.ConverseStreamOutputMemberMetadata:
			if ev.Value.Usage == nil {
				continue
			}
			u := ev.Value.Usage
			if u.InputTokens != nil {
				msg.Usage.InputTokens = int(*u.InputTokens)
			}
			if u.OutputTokens != nil {
				msg.Usage.OutputTokens = int(*u.OutputTokens)
			}
			if u.CacheReadInputTokens != nil {
				msg.Usage.CacheReadTokens = int(*u.CacheReadInputTokens)
			}
			if u.CacheWriteInputTokens != nil {
				msg.Usage.CacheWriteTokens = int(*u.CacheWriteInputTokens)
			}
		}
	}

	if err := stream.Err(); err != nil {
		reason := StopReasonError
		if s.Context().Err() == context.Canceled {
			reason = StopReasonAborted
		}
		failStream(s, model, APIBedrock, bedrockWrapErr(err), reason)
		return
	}

	FinalizeUsage(&msg.Usage, model)
	msg.StopReason = stopReason

	s.Push(Event{Type: EventDone, Reason: msg.StopReason, Message: CloneAssistantMessage(msg), Partial: CloneAssistantMessage(msg)})
	s.End()
	s.Latch(msg, nil)
}

func bedrockStopReason(r brtypes.StopReason) StopReason {
	switch r {
	case brtypes.StopReasonEndTurn, brtypes.StopReasonStopSequence:
		return StopReasonStop
	case brtypes.StopReasonMaxTokens:
		return StopReasonLength
	case brtypes.StopReasonToolUse:
		return StopReasonToolUse
	default:
		return StopReasonStop
	}
}

func bedrockWrapErr(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("bedrock: %s: %w", apiErr.ErrorCode(), err)
	}
	return fmt.Errorf("bedrock: %w", err)
}

func bedrockFromMessages(messages []Message, systemPrompt string) ([]brtypes.Message, []brtypes.SystemContentBlock, error) {
	var system []brtypes.SystemContentBlock
	if systemPrompt != "" {
		system = append(system, &brtypes.SystemContentBlockMemberText{Value: systemPrompt})
	}

	var out []brtypes.Message
	for _, m := range messages {
		switch v := m.(type) {
		case UserMessage:
			blocks := []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: v.ContentString()}}
			out = append(out, brtypes.Message{Role: brtypes.ConversationRoleUser, Content: blocks})

		case AssistantMessage:
			var blocks []brtypes.ContentBlock
			for _, block := range v.Content {
				switch block.Type {
				case ContentText:
					blocks = append(blocks, &brtypes.ContentBlockMemberText{Value: block.Text})
				case ContentThinking:
					reasoning := &brtypes.ReasoningContentBlockMemberReasoningText{
						Value: brtypes.ReasoningTextBlock{Text: &block.Thinking},
					}
					if block.Signature != "" {
						reasoning.Value.Signature = &block.Signature
					}
					blocks = append(blocks, &brtypes.ContentBlockMemberReasoningContent{Value: reasoning})
				case ContentToolCall:
					if block.ToolCall == nil {
						continue
					}
					input, err := bedrockArgsDocument(block.ToolCall)
					if err != nil {
						return nil, nil, err
					}
					toolID := block.ToolCall.ID
					toolName := block.ToolCall.Name
					blocks = append(blocks, &brtypes.ContentBlockMemberToolUse{
						Value: brtypes.ToolUseBlock{ToolUseId: &toolID, Name: &toolName, Input: input},
					})
				}
			}
			out = append(out, brtypes.Message{Role: brtypes.ConversationRoleAssistant, Content: blocks})

		case ToolResultMessage:
			status := brtypes.ToolResultStatusSuccess
			if v.IsError {
				status = brtypes.ToolResultStatusError
			}
			toolCallID := v.ToolCallID
			resultBlock := &brtypes.ContentBlockMemberToolResult{
				Value: brtypes.ToolResultBlock{
					ToolUseId: &toolCallID,
					Status:    status,
					Content:   []brtypes.ToolResultContentBlock{&brtypes.ToolResultContentBlockMemberText{Value: v.Text}},
				},
			}
			out = append(out, brtypes.Message{Role: brtypes.ConversationRoleUser, Content: []brtypes.ContentBlock{resultBlock}})
		}
	}
	return out, system, nil
}

func bedrockArgsDocument(tc *ToolCallData) (document.Interface, error) {
	raw := tc.RawArgs
	if raw == "" {
		b, err := json.Marshal(tc.Arguments)
		if err != nil {
			return nil, err
		}
		raw = string(b)
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("bedrock: invalid tool arguments JSON: %w", err)
	}
	return document.NewLazyDocument(v), nil
}

func bedrockToolConfig(tools []Tool, choice *ToolChoice) *brtypes.ToolConfiguration {
	specs := make([]brtypes.Tool, 0, len(tools))
	for _, t := range tools {
		name := t.Name
		desc := t.Description
		paramsJSON, err := json.Marshal(t.Parameters)
		if err != nil {
			continue
		}
		var schema any
		_ = json.Unmarshal(paramsJSON, &schema)
		specs = append(specs, &brtypes.ToolMemberToolSpec{
			Value: brtypes.ToolSpecification{
				Name:        &name,
				Description: &desc,
				InputSchema: &brtypes.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
			},
		})
	}

	cfg := &brtypes.ToolConfiguration{Tools: specs}
	if choice != nil {
		switch choice.Type {
		case ToolChoiceRequired:
			cfg.ToolChoice = &brtypes.ToolChoiceMemberAny{}
		case ToolChoiceSpecific:
			name := choice.Name
			cfg.ToolChoice = &brtypes.ToolChoiceMemberTool{Value: brtypes.SpecificToolChoice{Name: &name}}
		default:
			cfg.ToolChoice = &brtypes.ToolChoiceMemberAuto{}
		}
	}
	return cfg
}
