package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"

	"agentcore/secret_manager"
)

// responsesProvider implements ApiProvider against OpenAI's Responses API.
// OpenAI Responses, Azure Responses and Codex Responses share this wire
// protocol and differ only in how the client is authenticated and addressed,
// so a single adapter backs all three, parameterized by api/clientFor.
type responsesProvider struct {
	api       API
	clientFor func(model Model, opts Options) (openai.Client, error)
}

func (p responsesProvider) API() API { return p.api }

func (p responsesProvider) StreamSimple(ctx context.Context, model Model, c Context, opts SimpleOptions) *EventStream {
	return p.Stream(ctx, model, c, opts.toOptions())
}

func (p responsesProvider) Stream(ctx context.Context, model Model, c Context, opts Options) *EventStream {
	s := NewEventStream(ctx)
	go p.run(s, model, c, opts)
	return s
}

func (p responsesProvider) run(s *EventStream, model Model, c Context, opts Options) {
	client, err := p.clientFor(model, opts)
	if err != nil {
		failStream(s, model, p.api, err, StopReasonError)
		return
	}

	inputItems, err := messagesToResponsesInput(c.SystemPrompt, NormalizeMessages(c.Messages, false))
	if err != nil {
		failStream(s, model, p.api, fmt.Errorf("failed to build input: %w", err), StopReasonError)
		return
	}

	params := responses.ResponseNewParams{
		Input: responses.ResponseNewParamsInputUnion{OfInputItemList: inputItems},
		Model: openai.ChatModel(model.ID),
		Store: openai.Bool(false),
	}
	if opts.Temperature != nil {
		params.Temperature = openai.Float(float64(*opts.Temperature))
	}
	if len(c.Tools) > 0 {
		tools, terr := responsesFromTools(c.Tools)
		if terr != nil {
			failStream(s, model, p.api, terr, StopReasonError)
			return
		}
		params.Tools = tools
		if c.ToolChoice != nil {
			if tc := responsesFromToolChoice(*c.ToolChoice); tc != nil {
				params.ToolChoice = *tc
			}
		}
	}
	if model.Reasoning {
		params.Include = []responses.ResponseIncludable{responses.ResponseIncludableReasoningEncryptedContent}
		if effort := OpenAIReasoningEffort(opts.Reasoning, model); effort != "" {
			params.Reasoning.Effort = shared.ReasoningEffort(effort)
			params.Reasoning.Summary = shared.ReasoningSummaryAuto
		}
	}

	stream := client.Responses.NewStreaming(s.Context(), params)

	msg := &AssistantMessage{API: p.api, Model: model.ID, Provider: model.Provider, Timestamp: time.Now()}
	s.Push(Event{Type: EventStart, Partial: CloneAssistantMessage(msg)})

	textIndexByOutput := make(map[int64]int)
	toolIndexByOutput := make(map[int64]int)
	thinkingIndexByOutput := make(map[int64]int)
	argBuilders := make(map[int]*ArgBuilder)
	var stopReason StopReason = StopReasonStop

	for stream.Next() {
		data := stream.Current()

		switch data.AsAny().(type) {
		case responses.ResponseContentPartAddedEvent:
			ev := data.AsResponseContentPartAdded()
			switch ev.Part.AsAny().(type) {
			case responses.ResponseOutputText:
				idx := len(msg.Content)
				textIndexByOutput[ev.OutputIndex] = idx
				msg.Content = append(msg.Content, ContentBlock{ContentIndex: idx, Type: ContentText})
				s.Push(Event{Type: EventTextStart, ContentIndex: idx, Partial: CloneAssistantMessage(msg)})
			case responses.ResponseContentPartAddedEventPartReasoningText:
				idx := len(msg.Content)
				thinkingIndexByOutput[ev.OutputIndex] = idx
				msg.Content = append(msg.Content, ContentBlock{ContentIndex: idx, Type: ContentThinking})
				s.Push(Event{Type: EventThinkingStart, ContentIndex: idx, Partial: CloneAssistantMessage(msg)})
			}

		case responses.ResponseOutputItemAddedEvent:
			ev := data.AsResponseOutputItemAdded()
			switch ev.Item.AsAny().(type) {
			case responses.ResponseFunctionToolCall:
				item := ev.Item.AsFunctionCall()
				idx := len(msg.Content)
				toolIndexByOutput[ev.OutputIndex] = idx
				msg.Content = append(msg.Content, ContentBlock{ContentIndex: idx, Type: ContentToolCall, ToolCall: &ToolCallData{ID: item.CallID, Name: item.Name}})
				argBuilders[idx] = NewArgBuilder()
				if item.Arguments != "" {
					argBuilders[idx].Seed(item.Arguments)
				}
				s.Push(Event{Type: EventToolCallStart, ContentIndex: idx, Partial: CloneAssistantMessage(msg)})
			case responses.ResponseReasoningItem:
				item := ev.Item.AsReasoning()
				idx := len(msg.Content)
				thinkingIndexByOutput[ev.OutputIndex] = idx
				msg.Content = append(msg.Content, ContentBlock{ContentIndex: idx, Type: ContentThinking, Thinking: reasoningTextFromResponses(item.Content)})
				s.Push(Event{Type: EventThinkingStart, ContentIndex: idx, Partial: CloneAssistantMessage(msg)})
			}

		case responses.ResponseFunctionCallArgumentsDeltaEvent:
			ev := data.AsResponseFunctionCallArgumentsDelta()
			if idx, ok := toolIndexByOutput[ev.OutputIndex]; ok {
				argBuilders[idx].Append(ev.Delta)
				msg.Content[idx].ToolCall.RawArgs = argBuilders[idx].Raw()
				s.Push(Event{Type: EventToolCallDelta, ContentIndex: idx, Delta: ev.Delta, Partial: CloneAssistantMessage(msg)})
			}

		case responses.ResponseTextDeltaEvent:
			ev := data.AsResponseOutputTextDelta()
			if idx, ok := textIndexByOutput[ev.OutputIndex]; ok {
				msg.Content[idx].Text += ev.Delta
				s.Push(Event{Type: EventTextDelta, ContentIndex: idx, Delta: ev.Delta, Partial: CloneAssistantMessage(msg)})
			}

		case responses.ResponseReasoningTextDeltaEvent:
			ev := data.AsResponseReasoningTextDelta()
			if idx, ok := thinkingIndexByOutput[ev.OutputIndex]; ok {
				msg.Content[idx].Thinking += ev.Delta
				s.Push(Event{Type: EventThinkingDelta, ContentIndex: idx, Delta: ev.Delta, Partial: CloneAssistantMessage(msg)})
			}

		case responses.ResponseCompletedEvent:
			response := data.Response
			if response.IncompleteDetails.Reason != "" {
				stopReason = StopReasonLength
			} else {
				switch response.Status {
				case responses.ResponseStatusCompleted:
					stopReason = StopReasonStop
				case responses.ResponseStatusFailed:
					stopReason = StopReasonError
				case responses.ResponseStatusCancelled:
					stopReason = StopReasonAborted
				default:
					stopReason = StopReasonStop
				}
			}
			if len(toolIndexByOutput) > 0 {
				stopReason = StopReasonToolUse
			}
			msg.Usage = Usage{
				InputTokens:  int(response.Usage.InputTokens),
				OutputTokens: int(response.Usage.OutputTokens),
			}
		}
	}

	if err := stream.Err(); err != nil {
		reason := StopReasonError
		if s.Context().Err() == context.Canceled {
			reason = StopReasonAborted
		}
		failStream(s, model, p.api, err, reason)
		return
	}

	for outIdx, idx := range textIndexByOutput {
		_ = outIdx
		s.Push(Event{Type: EventTextEnd, ContentIndex: idx, Delta: msg.Content[idx].Text, Partial: CloneAssistantMessage(msg)})
	}
	for outIdx, idx := range thinkingIndexByOutput {
		_ = outIdx
		s.Push(Event{Type: EventThinkingEnd, ContentIndex: idx, Delta: msg.Content[idx].Thinking, Partial: CloneAssistantMessage(msg)})
	}
	for outIdx, idx := range toolIndexByOutput {
		_ = outIdx
		args, perr := argBuilders[idx].Final()
		if perr != nil {
			args = argBuilders[idx].Snapshot()
		}
		msg.Content[idx].ToolCall.Arguments = args
		s.Push(Event{Type: EventToolCallEnd, ContentIndex: idx, ToolCall: msg.Content[idx].ToolCall, Partial: CloneAssistantMessage(msg)})
	}

	FinalizeUsage(&msg.Usage, model)
	msg.StopReason = stopReason

	s.Push(Event{Type: EventDone, Reason: msg.StopReason, Message: CloneAssistantMessage(msg), Partial: CloneAssistantMessage(msg)})
	s.End()
	s.Latch(msg, nil)
}

func reasoningTextFromResponses(content []responses.ResponseReasoningItemContent) string {
	var text string
	for _, c := range content {
		text += c.Text
	}
	return text
}

func messagesToResponsesInput(systemPrompt string, messages []Message) ([]responses.ResponseInputItemUnionParam, error) {
	var items []responses.ResponseInputItemUnionParam
	if systemPrompt != "" {
		items = append(items, responses.ResponseInputItemParamOfMessage(systemPrompt, responses.EasyInputMessageRoleSystem))
	}

	for _, m := range messages {
		switch v := m.(type) {
		case UserMessage:
			items = append(items, responses.ResponseInputItemParamOfMessage(v.ContentString(), responses.EasyInputMessageRoleUser))

		case AssistantMessage:
			for _, block := range v.Content {
				switch block.Type {
				case ContentText:
					content := []responses.ResponseOutputMessageContentUnionParam{
						{OfOutputText: &responses.ResponseOutputTextParam{Text: block.Text}},
					}
					items = append(items, responses.ResponseInputItemParamOfOutputMessage(content, "", responses.ResponseOutputMessageStatusCompleted))

				case ContentToolCall:
					if block.ToolCall == nil {
						return nil, fmt.Errorf("tool_call block missing data")
					}
					raw := block.ToolCall.RawArgs
					if raw == "" {
						raw = "{}"
					}
					items = append(items, responses.ResponseInputItemParamOfFunctionCall(raw, block.ToolCall.ID, block.ToolCall.Name))

				case ContentThinking:
					reasoning := responses.ResponseReasoningItemParam{}
					if block.Thinking != "" {
						reasoning.Content = append(reasoning.Content, responses.ResponseReasoningItemContentParam{Text: block.Thinking})
					}
					if block.Signature != "" {
						reasoning.EncryptedContent = param.NewOpt(block.Signature)
					}
					items = append(items, responses.ResponseInputItemUnionParam{OfReasoning: &reasoning})
				}
			}

		case ToolResultMessage:
			items = append(items, responses.ResponseInputItemParamOfFunctionCallOutput(v.ToolCallID, v.Text))
		}
	}

	return items, nil
}

func responsesFromTools(tools []Tool) ([]responses.ToolUnionParam, error) {
	out := make([]responses.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		fn := responses.FunctionToolParam{
			Name:        t.Name,
			Description: param.NewOpt(t.Description),
			Parameters:  t.Parameters,
		}
		out = append(out, responses.ToolUnionParam{OfFunction: &fn})
	}
	return out, nil
}

func responsesFromToolChoice(choice ToolChoice) *responses.ResponseNewParamsToolChoiceUnion {
	var mode responses.ToolChoiceOptions
	switch choice.Type {
	case ToolChoiceRequired, ToolChoiceSpecific:
		mode = responses.ToolChoiceOptionsRequired
	case ToolChoiceNone:
		return nil
	default:
		mode = responses.ToolChoiceOptionsAuto
	}
	return &responses.ResponseNewParamsToolChoiceUnion{OfToolChoiceMode: param.NewOpt(mode)}
}

func resolveAPIKey(opts Options, provider string) (string, error) {
	if opts.APIKey != "" {
		return opts.APIKey, nil
	}
	env := secret_manager.EnvSecretManager{}
	return env.GetSecret(secret_manager.ProviderEnvVar(provider))
}

func init() {
	RegisterApiProvider(responsesProvider{
		api: APIOpenAIResponses,
		clientFor: func(model Model, opts Options) (openai.Client, error) {
			key, err := resolveAPIKey(opts, "openai")
			if err != nil {
				return openai.Client{}, err
			}
			return openai.NewClient(option.WithAPIKey(key)), nil
		},
	})

	RegisterApiProvider(responsesProvider{
		api: APIAzureResponses,
		clientFor: func(model Model, opts Options) (openai.Client, error) {
			key, err := resolveAPIKey(opts, "azure")
			if err != nil {
				return openai.Client{}, err
			}
			optsList := []option.RequestOption{option.WithAPIKey(key), option.WithHeader("api-key", key)}
			if model.BaseURL != "" {
				optsList = append(optsList, option.WithBaseURL(model.BaseURL))
			}
			return openai.NewClient(optsList...), nil
		},
	})

	RegisterApiProvider(responsesProvider{
		api: APICodexResponses,
		clientFor: func(model Model, opts Options) (openai.Client, error) {
			key, err := resolveAPIKey(opts, "openai-codex")
			if err != nil {
				return openai.Client{}, err
			}
			optsList := []option.RequestOption{option.WithAPIKey(key)}
			if model.BaseURL != "" {
				optsList = append(optsList, option.WithBaseURL(model.BaseURL))
			}
			return openai.NewClient(optsList...), nil
		},
	})
}
