package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"github.com/rs/zerolog/log"

	"agentcore/secret_manager"
)

const anthropicDefaultMaxTokens = 16000

// AnthropicProvider implements ApiProvider against the Messages streaming
// API (api.anthropic.com), with an OAuth-first, API-key-fallback auth chain.
type AnthropicProvider struct{}

func init() {
	RegisterApiProvider(AnthropicProvider{})
}

func (AnthropicProvider) API() API { return APIAnthropic }

func (p AnthropicProvider) StreamSimple(ctx context.Context, model Model, c Context, opts SimpleOptions) *EventStream {
	return p.Stream(ctx, model, c, opts.toOptions())
}

func (p AnthropicProvider) Stream(ctx context.Context, model Model, c Context, opts Options) *EventStream {
	s := NewEventStream(ctx)
	go p.run(s, model, c, opts)
	return s
}

func (p AnthropicProvider) run(s *EventStream, model Model, c Context, opts Options) {
	client, err := anthropicClient(opts)
	if err != nil {
		p.fail(s, model, err, StopReasonError)
		return
	}

	effectiveMaxTokens := anthropicDefaultMaxTokens
	if opts.MaxTokens > 0 {
		effectiveMaxTokens = opts.MaxTokens
	}
	if model.MaxOutputTokens > 0 && (effectiveMaxTokens == 0 || effectiveMaxTokens > model.MaxOutputTokens) {
		effectiveMaxTokens = model.MaxOutputTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model.ID),
		MaxTokens: int64(effectiveMaxTokens),
	}
	if opts.Temperature != nil {
		params.Temperature = anthropic.Opt(float64(*opts.Temperature))
	}
	if c.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: c.SystemPrompt}}
	}

	msgs, err := messagesToAnthropicParams(NormalizeMessages(c.Messages, false))
	if err != nil {
		p.fail(s, model, err, StopReasonError)
		return
	}
	params.Messages = msgs

	if len(c.Tools) > 0 {
		params.Tools = toolsToAnthropicParams(c.Tools)
		if c.ToolChoice != nil {
			params.ToolChoice = toolChoiceToAnthropicParam(*c.ToolChoice)
		}
	}

	if enabled, budget := AnthropicBudgetTokens(opts.Reasoning, model); enabled {
		if int64(effectiveMaxTokens) <= int64(budget) {
			effectiveMaxTokens = budget + 1000
			params.MaxTokens = int64(effectiveMaxTokens)
		}
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(int64(budget))
	}

	stream := client.Messages.NewStreaming(s.Context(), params)

	msg := &AssistantMessage{API: APIAnthropic, Model: model.ID, Provider: model.Provider, Timestamp: time.Now()}
	s.Push(Event{Type: EventStart, Partial: CloneAssistantMessage(msg)})

	blockIndexMap := make(map[int64]int)
	argBuilders := make(map[int]*ArgBuilder)
	signatures := make(map[int]string)
	started, stopped := 0, 0

	var finalMessage anthropic.Message
	for stream.Next() {
		event := stream.Current()
		if err := finalMessage.Accumulate(event); err != nil {
			p.fail(s, model, fmt.Errorf("failed to accumulate message: %w", err), StopReasonError)
			return
		}

		switch evt := event.AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			idx := len(msg.Content)
			blockIndexMap[evt.Index] = idx

			switch evt.ContentBlock.Type {
			case "text":
				msg.Content = append(msg.Content, ContentBlock{ContentIndex: idx, Type: ContentText})
				s.Push(Event{Type: EventTextStart, ContentIndex: idx, Partial: CloneAssistantMessage(msg)})
			case "tool_use":
				msg.Content = append(msg.Content, ContentBlock{ContentIndex: idx, Type: ContentToolCall, ToolCall: &ToolCallData{ID: evt.ContentBlock.ID, Name: evt.ContentBlock.Name}})
				argBuilders[idx] = NewArgBuilder()
				s.Push(Event{Type: EventToolCallStart, ContentIndex: idx, Partial: CloneAssistantMessage(msg)})
			case "thinking":
				msg.Content = append(msg.Content, ContentBlock{ContentIndex: idx, Type: ContentThinking})
				s.Push(Event{Type: EventThinkingStart, ContentIndex: idx, Partial: CloneAssistantMessage(msg)})
			default:
				log.Debug().Str("type", string(evt.ContentBlock.Type)).Msg("anthropic: dropping unknown content block type")
				delete(blockIndexMap, evt.Index)
				continue
			}
			started++

		case anthropic.ContentBlockDeltaEvent:
			idx, ok := blockIndexMap[evt.Index]
			if !ok {
				continue
			}
			block := &msg.Content[idx]

			switch delta := evt.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				block.Text += delta.Text
				s.Push(Event{Type: EventTextDelta, ContentIndex: idx, Delta: delta.Text, Partial: CloneAssistantMessage(msg)})
			case anthropic.InputJSONDelta:
				argBuilders[idx].Append(delta.PartialJSON)
				block.ToolCall.RawArgs = argBuilders[idx].Raw()
				s.Push(Event{Type: EventToolCallDelta, ContentIndex: idx, Delta: delta.PartialJSON, Partial: CloneAssistantMessage(msg)})
			case anthropic.ThinkingDelta:
				block.Thinking += delta.Thinking
				s.Push(Event{Type: EventThinkingDelta, ContentIndex: idx, Delta: delta.Thinking, Partial: CloneAssistantMessage(msg)})
			case anthropic.SignatureDelta:
				signatures[idx] += delta.Signature
			}

		case anthropic.ContentBlockStopEvent:
			idx, ok := blockIndexMap[evt.Index]
			if !ok {
				continue
			}
			block := &msg.Content[idx]
			switch block.Type {
			case ContentText:
				s.Push(Event{Type: EventTextEnd, ContentIndex: idx, Delta: block.Text, Partial: CloneAssistantMessage(msg)})
			case ContentThinking:
				block.Signature = signatures[idx]
				s.Push(Event{Type: EventThinkingEnd, ContentIndex: idx, Signature: block.Signature, Partial: CloneAssistantMessage(msg)})
			case ContentToolCall:
				args, perr := argBuilders[idx].Final()
				if perr != nil {
					log.Warn().Err(perr).Str("tool", block.ToolCall.Name).Msg("anthropic: tool call arguments failed strict parse, using best-effort snapshot")
					args = argBuilders[idx].Snapshot()
				}
				block.ToolCall.Arguments = args
				s.Push(Event{Type: EventToolCallEnd, ContentIndex: idx, ToolCall: block.ToolCall, Partial: CloneAssistantMessage(msg)})
			}
			stopped++
		}
	}

	if stream.Err() != nil {
		reason := StopReasonError
		if s.Context().Err() == context.Canceled {
			reason = StopReasonAborted
		}
		p.fail(s, model, stream.Err(), reason)
		return
	}
	if started != stopped {
		p.fail(s, model, fmt.Errorf("stream truncated: started %d blocks but stopped %d", started, stopped), StopReasonError)
		return
	}

	msg.Usage = Usage{
		InputTokens:      int(finalMessage.Usage.InputTokens),
		OutputTokens:     int(finalMessage.Usage.OutputTokens),
		CacheReadTokens:  int(finalMessage.Usage.CacheReadInputTokens),
		CacheWriteTokens: int(finalMessage.Usage.CacheCreationInputTokens),
	}
	FinalizeUsage(&msg.Usage, model)
	msg.StopReason = anthropicStopReason(string(finalMessage.StopReason))

	s.Push(Event{Type: EventDone, Reason: msg.StopReason, Message: CloneAssistantMessage(msg), Partial: CloneAssistantMessage(msg)})
	s.End()
	s.Latch(msg, nil)
}

func (p AnthropicProvider) fail(s *EventStream, model Model, err error, reason StopReason) {
	msg := &AssistantMessage{API: APIAnthropic, Model: model.ID, Provider: model.Provider, StopReason: reason, ErrorMessage: err.Error()}
	s.Push(Event{Type: EventError, Reason: reason, Error: msg, Partial: CloneAssistantMessage(msg)})
	s.End()
	s.Latch(msg, err)
}

func anthropicStopReason(r string) StopReason {
	switch r {
	case "end_turn", "stop_sequence":
		return StopReasonStop
	case "max_tokens":
		return StopReasonLength
	case "tool_use":
		return StopReasonToolUse
	default:
		return StopReasonStop
	}
}

func anthropicClient(opts Options) (*anthropic.Client, error) {
	httpClient := &http.Client{Timeout: 45 * time.Minute}

	oauthCreds, useOAuth, err := GetAnthropicOAuthCredentials(secret_manager.KeyringSecretManager{})
	if err != nil {
		return nil, fmt.Errorf("failed to get Anthropic OAuth credentials: %w", err)
	}
	if useOAuth {
		client := anthropic.NewClient(
			option.WithHTTPClient(httpClient),
			option.WithHeader("Authorization", "Bearer "+oauthCreds.AccessToken),
			option.WithHeader("anthropic-beta", AnthropicOAuthBetaHeaders),
		)
		return &client, nil
	}

	key := opts.APIKey
	if key == "" {
		env := secret_manager.EnvSecretManager{}
		if v, err := env.GetSecret(secret_manager.ProviderEnvVar("anthropic")); err == nil {
			key = v
		} else if v, err := env.GetSecret(secret_manager.AnthropicFallbackEnvVar); err == nil {
			key = v
		} else {
			return nil, fmt.Errorf("no Anthropic credentials: %w", err)
		}
	}
	client := anthropic.NewClient(option.WithHTTPClient(httpClient), option.WithAPIKey(key))
	return &client, nil
}

func messagesToAnthropicParams(messages []Message) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	var currentRole anthropic.MessageParamRole
	var currentBlocks []anthropic.ContentBlockParamUnion
	haveCurrent := false

	flush := func() {
		if len(currentBlocks) > 0 {
			if currentRole == anthropic.MessageParamRoleUser {
				result = append(result, anthropic.NewUserMessage(currentBlocks...))
			} else {
				result = append(result, anthropic.NewAssistantMessage(currentBlocks...))
			}
			currentBlocks = nil
		}
	}

	for _, m := range messages {
		role := anthropic.MessageParamRoleUser
		if m.GetRole() == RoleAssistant {
			role = anthropic.MessageParamRoleAssistant
		}
		if haveCurrent && role != currentRole {
			flush()
		}
		currentRole = role
		haveCurrent = true

		blocks, err := messageToAnthropicBlocks(m)
		if err != nil {
			return nil, err
		}
		currentBlocks = append(currentBlocks, blocks...)
	}
	flush()
	return result, nil
}

func messageToAnthropicBlocks(m Message) ([]anthropic.ContentBlockParamUnion, error) {
	switch v := m.(type) {
	case UserMessage:
		if len(v.Content) == 0 {
			return []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(v.Text)}, nil
		}
		var out []anthropic.ContentBlockParamUnion
		for _, b := range v.Content {
			blk, err := contentBlockToAnthropicParam(b)
			if err != nil {
				return nil, err
			}
			out = append(out, blk)
		}
		return out, nil
	case AssistantMessage:
		var out []anthropic.ContentBlockParamUnion
		for _, b := range v.Content {
			blk, err := contentBlockToAnthropicParam(b)
			if err != nil {
				return nil, err
			}
			out = append(out, blk)
		}
		return out, nil
	case ToolResultMessage:
		var parts []anthropic.ToolResultBlockParamContentUnion
		if len(v.Content) == 0 {
			parts = append(parts, anthropic.ToolResultBlockParamContentUnion{OfText: &anthropic.TextBlockParam{Text: v.Text}})
		}
		for _, b := range v.Content {
			switch b.Type {
			case ContentText:
				parts = append(parts, anthropic.ToolResultBlockParamContentUnion{OfText: &anthropic.TextBlockParam{Text: b.Text}})
			case ContentImage:
				img, err := toolResultImageToAnthropicParam(b.Image)
				if err != nil {
					return nil, err
				}
				parts = append(parts, anthropic.ToolResultBlockParamContentUnion{OfImage: img})
			}
		}
		return []anthropic.ContentBlockParamUnion{{
			OfToolResult: &anthropic.ToolResultBlockParam{
				ToolUseID: v.ToolCallID,
				Content:   parts,
				IsError:   anthropic.Bool(v.IsError),
			},
		}}, nil
	default:
		return nil, fmt.Errorf("unsupported message type %T", m)
	}
}

func toolResultImageToAnthropicParam(img *ImageBlockData) (*anthropic.ImageBlockParam, error) {
	if img == nil {
		return nil, fmt.Errorf("tool_result image block missing image data")
	}
	if img.URL != "" && (strings.HasPrefix(img.URL, "http://") || strings.HasPrefix(img.URL, "https://")) {
		return &anthropic.ImageBlockParam{Source: anthropic.ImageBlockParamSourceUnion{OfURL: &anthropic.URLImageSourceParam{URL: img.URL, Type: "url"}}}, nil
	}

	const anthropicMaxBytes = 30 * 1024 * 1024
	const anthropicMaxLongEdgePx = 1568
	mime, data, err := PrepareImageForLimits(img.MimeType, img.Data, anthropicMaxBytes, anthropicMaxLongEdgePx)
	if err != nil {
		return nil, fmt.Errorf("preparing image for Anthropic tool_result: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(data)
	return &anthropic.ImageBlockParam{Source: anthropic.ImageBlockParamSourceUnion{OfBase64: &anthropic.Base64ImageSourceParam{MediaType: anthropic.Base64ImageSourceMediaType(mime), Data: encoded, Type: "base64"}}}, nil
}

func contentBlockToAnthropicParam(block ContentBlock) (anthropic.ContentBlockParamUnion, error) {
	switch block.Type {
	case ContentText:
		return anthropic.NewTextBlock(block.Text), nil
	case ContentThinking:
		// Replayed thinking blocks are sent back as plain text; Anthropic
		// requires the exact signature to replay as a real thinking block,
		// which call sites that need strict continuity should preserve via
		// block.Signature and extend this branch to emit a ThinkingBlockParam.
		return anthropic.NewTextBlock(block.Thinking), nil
	case ContentToolCall:
		if block.ToolCall == nil {
			return anthropic.ContentBlockParamUnion{}, fmt.Errorf("tool_call block missing ToolCall data")
		}
		args := block.ToolCall.Arguments
		if args == nil {
			args = map[string]any{}
		}
		return anthropic.ContentBlockParamUnion{OfToolUse: &anthropic.ToolUseBlockParam{
			ID: block.ToolCall.ID, Name: block.ToolCall.Name, Input: args,
		}}, nil
	case ContentImage:
		if block.Image == nil {
			return anthropic.ContentBlockParamUnion{}, fmt.Errorf("image block missing ImageBlockData")
		}
		if block.Image.URL != "" && (strings.HasPrefix(block.Image.URL, "http://") || strings.HasPrefix(block.Image.URL, "https://")) {
			return anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: block.Image.URL, Type: "url"}), nil
		}
		const anthropicMaxBytes = 30 * 1024 * 1024
		const anthropicMaxLongEdgePx = 1568
		mime, data, err := PrepareImageForLimits(block.Image.MimeType, block.Image.Data, anthropicMaxBytes, anthropicMaxLongEdgePx)
		if err != nil {
			return anthropic.ContentBlockParamUnion{}, fmt.Errorf("preparing image for Anthropic: %w", err)
		}
		return anthropic.NewImageBlockBase64(mime, base64.StdEncoding.EncodeToString(data)), nil
	default:
		return anthropic.ContentBlockParamUnion{}, fmt.Errorf("unsupported content block type: %s", block.Type)
	}
}

func toolsToAnthropicParams(tools []Tool) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, len(tools))
	for i, tool := range tools {
		props, _ := tool.Parameters["properties"].(map[string]any)
		var required []string
		if r, ok := tool.Parameters["required"].([]string); ok {
			required = r
		} else if r, ok := tool.Parameters["required"].([]any); ok {
			for _, x := range r {
				if s, ok := x.(string); ok {
					required = append(required, s)
				}
			}
		}
		result[i] = anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        tool.Name,
			Description: anthropic.Opt(tool.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: props,
				Required:   required,
				Type:       constant.Object("object"),
			},
		}}
	}
	return result
}

func toolChoiceToAnthropicParam(choice ToolChoice) anthropic.ToolChoiceUnionParam {
	disableParallel := choice.DisableParallelToolUse
	switch choice.Type {
	case ToolChoiceRequired:
		return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{DisableParallelToolUse: anthropic.Opt(disableParallel)}}
	case ToolChoiceSpecific:
		return anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: choice.Name, DisableParallelToolUse: anthropic.Opt(disableParallel)}}
	default:
		return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{DisableParallelToolUse: anthropic.Opt(disableParallel)}}
	}
}
