package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"agentcore/secret_manager"
)

const googleLegacyModelMarker = "2.5"

var googleLegacyThinkingBudget = map[ReasoningLevel]int32{
	ReasoningMinimal: 1024,
	ReasoningLow:     1024,
	ReasoningMedium:  8192,
	ReasoningHigh:    24576,
}

// googleProvider implements ApiProvider against google.golang.org/genai,
// backing the GenAI (API-key), Vertex (ADC) and Gemini CLI (OAuth)
// variants, which differ only in how the client is authenticated.
type googleProvider struct {
	api       API
	clientFor func(ctx context.Context, model Model, opts Options) (*genai.Client, error)
}

func (p googleProvider) API() API { return p.api }

func (p googleProvider) StreamSimple(ctx context.Context, model Model, c Context, opts SimpleOptions) *EventStream {
	return p.Stream(ctx, model, c, opts.toOptions())
}

func (p googleProvider) Stream(ctx context.Context, model Model, c Context, opts Options) *EventStream {
	s := NewEventStream(ctx)
	go p.run(s, model, c, opts)
	return s
}

func (p googleProvider) run(s *EventStream, model Model, c Context, opts Options) {
	client, err := p.clientFor(s.Context(), model, opts)
	if err != nil {
		failStream(s, model, p.api, err, StopReasonError)
		return
	}

	contents := googleFromMessages(NormalizeMessages(c.Messages, false), c.SystemPrompt, model.Reasoning)

	config := &genai.GenerateContentConfig{}
	if len(c.Tools) > 0 {
		toolConfig, terr := googleFromToolChoice(c.ToolChoice)
		if terr != nil {
			failStream(s, model, p.api, terr, StopReasonError)
			return
		}
		config.ToolConfig = toolConfig
		config.Tools = googleFromTools(c.Tools)
	}

	if model.Reasoning {
		config.ThinkingConfig = &genai.ThinkingConfig{IncludeThoughts: true}
		if opts.Reasoning != "" && opts.Reasoning != ReasoningOff {
			if strings.Contains(model.ID, googleLegacyModelMarker) {
				if enabled, budget := GoogleThinkingBudget(opts.Reasoning, model); enabled {
					b := int32(budget)
					config.ThinkingConfig.ThinkingBudget = &b
				}
			} else {
				config.ThinkingConfig.ThinkingLevel = genai.ThinkingLevel(strings.ToUpper(GoogleReasoningLevel(opts.Reasoning, model)))
			}
		}
	}
	if opts.Temperature != nil {
		t := float32(*opts.Temperature)
		config.Temperature = &t
	}
	if opts.MaxTokens > 0 {
		config.MaxOutputTokens = int32(opts.MaxTokens)
	}

	stream := client.Models.GenerateContentStream(s.Context(), model.ID, contents, config)

	msg := &AssistantMessage{API: p.api, Model: model.ID, Provider: model.Provider, Timestamp: time.Now()}
	s.Push(Event{Type: EventStart, Partial: CloneAssistantMessage(msg)})

	state := &googleStreamState{blockIdx: -1}
	var lastResult *genai.GenerateContentResponse

	for result, rerr := range stream {
		if rerr != nil {
			reason := StopReasonError
			if s.Context().Err() == context.Canceled {
				reason = StopReasonAborted
			}
			failStream(s, model, p.api, rerr, reason)
			return
		}
		lastResult = result
		googleApplyResult(s, msg, state, result)
	}

	googleCloseOpenBlock(s, msg, state)

	var stopReason StopReason = StopReasonStop
	usage := Usage{}
	if lastResult != nil {
		if lastResult.UsageMetadata != nil {
			usage.InputTokens = int(lastResult.UsageMetadata.PromptTokenCount)
			usage.OutputTokens = int(lastResult.UsageMetadata.CandidatesTokenCount) + int(lastResult.UsageMetadata.ThoughtsTokenCount)
			usage.CacheReadTokens = int(lastResult.UsageMetadata.CachedContentTokenCount)
		}
		if len(lastResult.Candidates) > 0 {
			switch string(lastResult.Candidates[0].FinishReason) {
			case "MAX_TOKENS":
				stopReason = StopReasonLength
			case "STOP", "":
				if state.sawToolCall {
					stopReason = StopReasonToolUse
				} else {
					stopReason = StopReasonStop
				}
			default:
				if state.sawToolCall {
					stopReason = StopReasonToolUse
				}
			}
		}
	}
	msg.Usage = usage
	FinalizeUsage(&msg.Usage, model)
	msg.StopReason = stopReason

	s.Push(Event{Type: EventDone, Reason: msg.StopReason, Message: CloneAssistantMessage(msg), Partial: CloneAssistantMessage(msg)})
	s.End()
	s.Latch(msg, nil)
}

// googleStreamState coalesces consecutive text/thinking parts from Google's
// chunked GenerateContentResponse stream into single content blocks, since
// Google has no explicit block-start/stop event of its own.
type googleStreamState struct {
	blockIdx    int
	blockType   ContentBlockType
	open        bool
	hasSig      bool
	sawToolCall bool
}

func googleApplyResult(s *EventStream, msg *AssistantMessage, state *googleStreamState, result *genai.GenerateContentResponse) {
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return
	}
	for _, part := range result.Candidates[0].Content.Parts {
		if part.FunctionCall != nil {
			googleCloseOpenBlock(s, msg, state)
			state.sawToolCall = true

			argsBytes, err := json.Marshal(part.FunctionCall.Args)
			if err != nil {
				log.Warn().Err(err).Msg("failed to marshal google function call args")
				argsBytes = []byte("{}")
			}
			idx := len(msg.Content)
			block := ContentBlock{
				ContentIndex: idx,
				Type:         ContentToolCall,
				ToolCall: &ToolCallData{
					ID:       part.FunctionCall.ID,
					Name:     part.FunctionCall.Name,
					RawArgs:  string(argsBytes),
					Arguments: part.FunctionCall.Args,
				},
				Signature: string(part.ThoughtSignature),
			}
			msg.Content = append(msg.Content, block)
			s.Push(Event{Type: EventToolCallStart, ContentIndex: idx, Partial: CloneAssistantMessage(msg)})
			s.Push(Event{Type: EventToolCallDelta, ContentIndex: idx, Delta: string(argsBytes), Partial: CloneAssistantMessage(msg)})
			s.Push(Event{Type: EventToolCallEnd, ContentIndex: idx, ToolCall: msg.Content[idx].ToolCall, Partial: CloneAssistantMessage(msg)})
			continue
		}

		if part.Text == "" && len(part.ThoughtSignature) == 0 {
			continue
		}
		if part.Text == "" {
			continue
		}

		blockType := ContentText
		if part.Thought {
			blockType = ContentThinking
		}
		hasSig := len(part.ThoughtSignature) > 0

		needNew := !state.open || state.blockType != blockType || state.hasSig || hasSig
		if needNew {
			googleCloseOpenBlock(s, msg, state)
			idx := len(msg.Content)
			state.blockIdx = idx
			state.blockType = blockType
			state.open = true
			state.hasSig = hasSig

			block := ContentBlock{ContentIndex: idx, Type: blockType}
			msg.Content = append(msg.Content, block)
			if blockType == ContentThinking {
				s.Push(Event{Type: EventThinkingStart, ContentIndex: idx, Partial: CloneAssistantMessage(msg)})
			} else {
				s.Push(Event{Type: EventTextStart, ContentIndex: idx, Partial: CloneAssistantMessage(msg)})
			}
		}

		if blockType == ContentThinking {
			msg.Content[state.blockIdx].Thinking += part.Text
			msg.Content[state.blockIdx].Signature = string(part.ThoughtSignature)
			s.Push(Event{Type: EventThinkingDelta, ContentIndex: state.blockIdx, Delta: part.Text, Partial: CloneAssistantMessage(msg)})
		} else {
			msg.Content[state.blockIdx].Text += part.Text
			msg.Content[state.blockIdx].Signature = string(part.ThoughtSignature)
			s.Push(Event{Type: EventTextDelta, ContentIndex: state.blockIdx, Delta: part.Text, Partial: CloneAssistantMessage(msg)})
		}
	}
}

func googleCloseOpenBlock(s *EventStream, msg *AssistantMessage, state *googleStreamState) {
	if !state.open {
		return
	}
	block := msg.Content[state.blockIdx]
	if block.Type == ContentThinking {
		s.Push(Event{Type: EventThinkingEnd, ContentIndex: state.blockIdx, Delta: block.Thinking, Partial: CloneAssistantMessage(msg)})
	} else {
		s.Push(Event{Type: EventTextEnd, ContentIndex: state.blockIdx, Delta: block.Text, Partial: CloneAssistantMessage(msg)})
	}
	state.open = false
}

func googleFromToolChoice(choice *ToolChoice) (*genai.ToolConfig, error) {
	mode := genai.FunctionCallingConfigModeAuto
	var allowed []string
	if choice != nil {
		switch choice.Type {
		case ToolChoiceRequired:
			mode = genai.FunctionCallingConfigModeAny
		case ToolChoiceSpecific:
			mode = genai.FunctionCallingConfigModeAny
			allowed = append(allowed, choice.Name)
		case ToolChoiceNone:
			mode = genai.FunctionCallingConfigModeNone
		}
	}
	return &genai.ToolConfig{
		FunctionCallingConfig: &genai.FunctionCallingConfig{
			Mode:                 mode,
			AllowedFunctionNames: allowed,
		},
	}, nil
}

func googleFromTools(tools []Tool) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, len(tools))
	for i, t := range tools {
		decls[i] = &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  googleSchemaFromParameters(t.Parameters),
		}
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func googleSchemaFromParameters(params map[string]any) *genai.Schema {
	if params == nil {
		return nil
	}
	schema := &genai.Schema{}
	if t, ok := params["type"].(string); ok {
		schema.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := params["description"].(string); ok {
		schema.Description = desc
	}
	if req, ok := params["required"].([]string); ok {
		schema.Required = req
	} else if reqAny, ok := params["required"].([]any); ok {
		for _, r := range reqAny {
			if rs, ok := r.(string); ok {
				schema.Required = append(schema.Required, rs)
			}
		}
	}
	if props, ok := params["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if propMap, ok := raw.(map[string]any); ok {
				schema.Properties[name] = googleSchemaFromParameters(propMap)
			}
		}
	}
	return schema
}

func googleFromMessages(messages []Message, systemPrompt string, isReasoningModel bool) []*genai.Content {
	var contents []*genai.Content
	var currentRole string
	var currentParts []*genai.Part

	flush := func() {
		if len(currentParts) > 0 {
			contents = append(contents, &genai.Content{Parts: currentParts, Role: currentRole})
		}
	}

	if systemPrompt != "" {
		currentRole = "user"
		currentParts = append(currentParts, &genai.Part{Text: systemPrompt})
	}

	for _, m := range messages {
		var role string
		switch m.GetRole() {
		case RoleAssistant:
			role = "model"
		default:
			role = "user"
		}

		if role != currentRole && currentRole != "" {
			flush()
			currentParts = nil
		}
		currentRole = role

		switch v := m.(type) {
		case UserMessage:
			if v.Text != "" {
				currentParts = append(currentParts, &genai.Part{Text: v.Text})
			}
		case AssistantMessage:
			for _, block := range v.Content {
				switch block.Type {
				case ContentText:
					if block.Text != "" {
						currentParts = append(currentParts, &genai.Part{Text: block.Text, ThoughtSignature: []byte(block.Signature)})
					}
				case ContentThinking:
					if block.Thinking != "" {
						currentParts = append(currentParts, &genai.Part{Text: block.Thinking, Thought: true, ThoughtSignature: []byte(block.Signature)})
					}
				case ContentToolCall:
					if block.ToolCall != nil {
						sig := []byte(block.Signature)
						if isReasoningModel && len(sig) == 0 {
							sig = []byte("skip_thought_signature_validator")
						}
						currentParts = append(currentParts, &genai.Part{
							FunctionCall:     &genai.FunctionCall{ID: block.ToolCall.ID, Name: block.ToolCall.Name, Args: block.ToolCall.Arguments},
							ThoughtSignature: sig,
						})
					}
				}
			}
		case ToolResultMessage:
			if currentRole != "user" {
				flush()
				currentParts = nil
				currentRole = "user"
			}
			resp := genai.FunctionResponse{ID: v.ToolCallID, Name: v.ToolName}
			if v.IsError {
				resp.Response = map[string]any{"error": v.Text}
			} else {
				resp.Response = map[string]any{"output": v.Text}
			}
			currentParts = append(currentParts, &genai.Part{FunctionResponse: &resp})
		}
	}

	flush()
	return contents
}

func googleAPIKeyClient(ctx context.Context, provider string) (*genai.Client, error) {
	env := secret_manager.EnvSecretManager{}
	apiKey, err := env.GetSecret(secret_manager.ProviderEnvVar("google"))
	if err != nil {
		apiKey, err = env.GetSecret("GEMINI_API_KEY")
		if err != nil {
			return nil, fmt.Errorf("failed to get %s API key: %w", provider, err)
		}
	}
	return genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: 10 * time.Minute},
	})
}

func init() {
	RegisterApiProvider(googleProvider{
		api: APIGoogleGenAI,
		clientFor: func(ctx context.Context, model Model, opts Options) (*genai.Client, error) {
			if opts.APIKey != "" {
				return genai.NewClient(ctx, &genai.ClientConfig{
					APIKey:     opts.APIKey,
					Backend:    genai.BackendGeminiAPI,
					HTTPClient: &http.Client{Timeout: 10 * time.Minute},
				})
			}
			return googleAPIKeyClient(ctx, "google")
		},
	})

	RegisterApiProvider(googleProvider{
		api: APIGoogleVertex,
		clientFor: func(ctx context.Context, model Model, opts Options) (*genai.Client, error) {
			// Application Default Credentials: no caller-suppliable API key,
			// per the auth resolution table.
			return genai.NewClient(ctx, &genai.ClientConfig{
				Backend:    genai.BackendVertexAI,
				HTTPClient: &http.Client{Timeout: 10 * time.Minute},
			})
		},
	})

	RegisterApiProvider(googleProvider{
		api: APIGoogleGeminiCLI,
		clientFor: func(ctx context.Context, model Model, opts Options) (*genai.Client, error) {
			creds, ok, err := GetGoogleCLIOAuthCredentials()
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, fmt.Errorf("no Gemini CLI OAuth credentials available")
			}
			return genai.NewClient(ctx, &genai.ClientConfig{
				Backend:    genai.BackendGeminiAPI,
				HTTPClient: googleOAuthHTTPClient(creds.AccessToken),
			})
		},
	})
}
