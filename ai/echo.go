package ai

import (
	"context"
	"time"
)

// EchoProvider is an in-process ApiProvider with no network calls, for tests
// and local smoke runs: it returns the last user message's text prefixed by
// "Echo: ".
type EchoProvider struct{}

func init() {
	RegisterApiProvider(EchoProvider{})
}

func (EchoProvider) API() API { return APIEcho }

func (p EchoProvider) Stream(ctx context.Context, model Model, c Context, opts Options) *EventStream {
	s := NewEventStream(ctx)
	go p.run(s, model, c)
	return s
}

func (p EchoProvider) StreamSimple(ctx context.Context, model Model, c Context, opts SimpleOptions) *EventStream {
	return p.Stream(ctx, model, c, opts.toOptions())
}

func (p EchoProvider) run(s *EventStream, model Model, c Context) {
	var lastUser string
	for _, m := range c.Messages {
		if um, ok := m.(UserMessage); ok {
			lastUser = um.ContentString()
		}
	}
	text := "Echo: " + lastUser

	msg := &AssistantMessage{API: APIEcho, Model: model.ID, Provider: "echo", Timestamp: time.Now()}
	s.Push(Event{Type: EventStart, Partial: CloneAssistantMessage(msg)})

	msg.Content = append(msg.Content, ContentBlock{ContentIndex: 0, Type: ContentText})
	s.Push(Event{Type: EventTextStart, ContentIndex: 0, Partial: CloneAssistantMessage(msg)})

	msg.Content[0].Text = text
	s.Push(Event{Type: EventTextDelta, ContentIndex: 0, Delta: text, Partial: CloneAssistantMessage(msg)})

	s.Push(Event{Type: EventTextEnd, ContentIndex: 0, Partial: CloneAssistantMessage(msg)})

	msg.Usage = Usage{InputTokens: len(lastUser)/4 + 1, OutputTokens: len(text)/4 + 1}
	FinalizeUsage(&msg.Usage, model)
	msg.StopReason = StopReasonStop

	s.Push(Event{Type: EventDone, Reason: StopReasonStop, Message: CloneAssistantMessage(msg), Partial: CloneAssistantMessage(msg)})
	s.End()
	s.Latch(msg, nil)
}
