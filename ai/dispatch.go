package ai

import "context"

// Stream looks up the ApiProvider by model.API and delegates to its full
// Stream. Fails synchronously (returns a stream already latched with an
// error) if the API is unregistered.
func Stream(ctx context.Context, model Model, c Context, opts Options) *EventStream {
	provider, err := GetApiProvider(model.API)
	if err != nil {
		return failedStream(ctx, model, err)
	}
	return provider.Stream(ctx, model, c, opts)
}

// StreamSimple delegates to the provider's StreamSimple, which maps the
// reasoning level to provider-specific options per the shared table in
// reasoning.go.
func StreamSimple(ctx context.Context, model Model, c Context, opts SimpleOptions) *EventStream {
	provider, err := GetApiProvider(model.API)
	if err != nil {
		return failedStream(ctx, model, err)
	}
	return provider.StreamSimple(ctx, model, c, opts)
}

// Complete drains Stream and returns the final AssistantMessage.
func Complete(ctx context.Context, model Model, c Context, opts Options) (*AssistantMessage, error) {
	s := Stream(ctx, model, c, opts)
	for range s.Events() {
	}
	return s.Result(ctx)
}

// CompleteSimple drains StreamSimple and returns the final AssistantMessage.
func CompleteSimple(ctx context.Context, model Model, c Context, opts SimpleOptions) (*AssistantMessage, error) {
	s := StreamSimple(ctx, model, c, opts)
	for range s.Events() {
	}
	return s.Result(ctx)
}

func failedStream(ctx context.Context, model Model, err error) *EventStream {
	s := NewEventStream(ctx)
	msg := &AssistantMessage{API: model.API, Model: model.ID, StopReason: StopReasonError, ErrorMessage: err.Error()}
	s.Push(Event{Type: EventError, Reason: StopReasonError, Error: msg, Partial: msg})
	s.End()
	s.Latch(msg, err)
	return s
}
