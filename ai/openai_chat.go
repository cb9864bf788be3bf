package ai

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"agentcore/secret_manager"
)

// OpenAIChatProvider implements ApiProvider against the OpenAI-compatible
// Chat Completions streaming API. BaseURL lets it double as the adapter for
// any OpenAI-compatible endpoint (groq, xai, mistral, local proxies).
type OpenAIChatProvider struct {
	BaseURL string
}

func init() {
	RegisterApiProvider(OpenAIChatProvider{})
}

func (OpenAIChatProvider) API() API { return APIOpenAIChat }

func (p OpenAIChatProvider) StreamSimple(ctx context.Context, model Model, c Context, opts SimpleOptions) *EventStream {
	return p.Stream(ctx, model, c, opts.toOptions())
}

func (p OpenAIChatProvider) Stream(ctx context.Context, model Model, c Context, opts Options) *EventStream {
	s := NewEventStream(ctx)
	go p.run(s, model, c, opts)
	return s
}

func (p OpenAIChatProvider) run(s *EventStream, model Model, c Context, opts Options) {
	key := opts.APIKey
	if key == "" {
		env := secret_manager.EnvSecretManager{}
		v, err := env.GetSecret(secret_manager.ProviderEnvVar(model.Provider))
		if err != nil {
			failStream(s, model, APIOpenAIChat, err, StopReasonError)
			return
		}
		key = v
	}

	baseURL := p.BaseURL
	if baseURL == "" {
		baseURL = model.BaseURL
	}
	config := openai.DefaultConfig(key)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	client := openai.NewClientWithConfig(config)

	var temperature float32
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}

	// OpenAI-compatible third-party endpoints often require alternating
	// user/assistant roles; first-party gpt-*/o1-*/o3-* models do not.
	shouldMerge := baseURL != "" && !strings.HasPrefix(model.ID, "gpt") && !strings.HasPrefix(model.ID, "o1-") && !strings.HasPrefix(model.ID, "o3-")

	messages := NormalizeMessages(c.Messages, true)
	if shouldMerge {
		messages = mergeEquivalentRoles(messages)
	}

	req := openai.ChatCompletionRequest{
		Model:         model.ID,
		Messages:      openaiFromMessages(c.SystemPrompt, messages),
		Tools:         openaiFromTools(c.Tools),
		Stream:        true,
		Temperature:   temperature,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	}
	if c.ToolChoice != nil && len(c.Tools) > 0 {
		req.ToolChoice = openaiFromToolChoice(*c.ToolChoice)
		req.ParallelToolCalls = !c.ToolChoice.DisableParallelToolUse
	}
	if effort := OpenAIReasoningEffort(opts.Reasoning, model); effort != "" {
		req.ReasoningEffort = effort
	}

	stream, err := client.CreateChatCompletionStream(s.Context(), req)
	if err != nil {
		failStream(s, model, APIOpenAIChat, err, StopReasonError)
		return
	}
	defer stream.Close()

	msg := &AssistantMessage{API: APIOpenAIChat, Model: model.ID, Provider: model.Provider, Timestamp: time.Now()}
	s.Push(Event{Type: EventStart, Partial: CloneAssistantMessage(msg)})

	textIndex := -1
	toolIndexByOpenAI := make(map[int]int)
	argBuilders := make(map[int]*ArgBuilder)
	var usage *openai.Usage
	var finishReason openai.FinishReason

	for {
		res, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			reason := StopReasonError
			if s.Context().Err() == context.Canceled {
				reason = StopReasonAborted
			}
			failStream(s, model, APIOpenAIChat, err, reason)
			return
		}
		if len(res.Choices) == 0 {
			usage = res.Usage
			continue
		}
		choice := res.Choices[0]
		if choice.FinishReason != "" {
			finishReason = choice.FinishReason
		}

		if choice.Delta.Content != "" {
			if textIndex == -1 {
				textIndex = len(msg.Content)
				msg.Content = append(msg.Content, ContentBlock{ContentIndex: textIndex, Type: ContentText})
				s.Push(Event{Type: EventTextStart, ContentIndex: textIndex, Partial: CloneAssistantMessage(msg)})
			}
			msg.Content[textIndex].Text += choice.Delta.Content
			s.Push(Event{Type: EventTextDelta, ContentIndex: textIndex, Delta: choice.Delta.Content, Partial: CloneAssistantMessage(msg)})
		}

		for _, tcd := range choice.Delta.ToolCalls {
			oaIdx := 0
			if tcd.Index != nil {
				oaIdx = *tcd.Index
			}
			idx, ok := toolIndexByOpenAI[oaIdx]
			name := cleanToolName(tcd.Function.Name)
			if !ok {
				idx = len(msg.Content)
				toolIndexByOpenAI[oaIdx] = idx
				msg.Content = append(msg.Content, ContentBlock{ContentIndex: idx, Type: ContentToolCall, ToolCall: &ToolCallData{ID: tcd.ID, Name: name}})
				argBuilders[idx] = NewArgBuilder()
				s.Push(Event{Type: EventToolCallStart, ContentIndex: idx, Partial: CloneAssistantMessage(msg)})
			} else if name != "" {
				msg.Content[idx].ToolCall.Name += name
			}
			if tcd.Function.Arguments != "" {
				argBuilders[idx].Append(tcd.Function.Arguments)
				msg.Content[idx].ToolCall.RawArgs = argBuilders[idx].Raw()
				s.Push(Event{Type: EventToolCallDelta, ContentIndex: idx, Delta: tcd.Function.Arguments, Partial: CloneAssistantMessage(msg)})
			}
		}
	}

	if textIndex != -1 {
		s.Push(Event{Type: EventTextEnd, ContentIndex: textIndex, Delta: msg.Content[textIndex].Text, Partial: CloneAssistantMessage(msg)})
	}
	for oaIdx, idx := range toolIndexByOpenAI {
		_ = oaIdx
		args, perr := argBuilders[idx].Final()
		if perr != nil {
			args = argBuilders[idx].Snapshot()
		}
		msg.Content[idx].ToolCall.Arguments = args
		s.Push(Event{Type: EventToolCallEnd, ContentIndex: idx, ToolCall: msg.Content[idx].ToolCall, Partial: CloneAssistantMessage(msg)})
	}

	if usage != nil {
		msg.Usage = Usage{InputTokens: usage.PromptTokens, OutputTokens: usage.CompletionTokens}
	}
	FinalizeUsage(&msg.Usage, model)
	msg.StopReason = openaiStopReason(finishReason)

	s.Push(Event{Type: EventDone, Reason: msg.StopReason, Message: CloneAssistantMessage(msg), Partial: CloneAssistantMessage(msg)})
	s.End()
	s.Latch(msg, nil)
}

func failStream(s *EventStream, model Model, api API, err error, reason StopReason) {
	msg := &AssistantMessage{API: api, Model: model.ID, Provider: model.Provider, StopReason: reason, ErrorMessage: err.Error()}
	s.Push(Event{Type: EventError, Reason: reason, Error: msg, Partial: CloneAssistantMessage(msg)})
	s.End()
	s.Latch(msg, err)
}

func openaiStopReason(r openai.FinishReason) StopReason {
	switch r {
	case openai.FinishReasonStop:
		return StopReasonStop
	case openai.FinishReasonLength:
		return StopReasonLength
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		return StopReasonToolUse
	default:
		return StopReasonStop
	}
}

func cleanToolName(name string) string {
	for _, prefix := range []string{"tools.", "tool.", "functions.", "function."} {
		name = strings.TrimPrefix(name, prefix)
	}
	return name
}

func openaiFromMessages(systemPrompt string, messages []Message) []openai.ChatCompletionMessage {
	var out []openai.ChatCompletionMessage
	if systemPrompt != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	for _, m := range messages {
		switch v := m.(type) {
		case UserMessage:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: v.ContentString()})
		case AssistantMessage:
			cm := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant}
			for _, b := range v.Content {
				switch b.Type {
				case ContentText:
					cm.Content += b.Text
				case ContentToolCall:
					raw := b.ToolCall.RawArgs
					if raw == "" {
						raw = "{}"
					}
					cm.ToolCalls = append(cm.ToolCalls, openai.ToolCall{
						ID:   b.ToolCall.ID,
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      b.ToolCall.Name,
							Arguments: raw,
						},
					})
				}
			}
			out = append(out, cm)
		case ToolResultMessage:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleTool, Content: v.Text, ToolCallID: v.ToolCallID})
		}
	}
	return out
}

func openaiFromTools(tools []Tool) []openai.Tool {
	out := make([]openai.Tool, len(tools))
	for i, t := range tools {
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return out
}

func openaiFromToolChoice(choice ToolChoice) any {
	switch choice.Type {
	case ToolChoiceRequired:
		return "required"
	case ToolChoiceNone:
		return "none"
	case ToolChoiceSpecific:
		return openai.ToolChoice{Type: openai.ToolTypeFunction, Function: openai.ToolFunction{Name: choice.Name}}
	default:
		return "auto"
	}
}

func mergeEquivalentRoles(messages []Message) []Message {
	isUserLike := func(m Message) bool {
		r := m.GetRole()
		return r == RoleUser || r == RoleTool
	}
	var out []Message
	for _, m := range messages {
		if len(out) > 0 && isUserLike(out[len(out)-1]) && isUserLike(m) {
			prevUM, prevOK := out[len(out)-1].(UserMessage)
			if curUM, ok := m.(UserMessage); ok && prevOK {
				prevUM.Text += "\n\n" + curUM.Text
				out[len(out)-1] = prevUM
				continue
			}
		}
		out = append(out, m)
	}
	return out
}
