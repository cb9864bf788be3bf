package ai

// EventType enumerates the normalized wire-level event vocabulary emitted by
// every provider adapter.
type EventType string

const (
	EventStart EventType = "start"

	EventTextStart EventType = "text_start"
	EventTextDelta EventType = "text_delta"
	EventTextEnd   EventType = "text_end"

	EventThinkingStart EventType = "thinking_start"
	EventThinkingDelta EventType = "thinking_delta"
	EventThinkingEnd   EventType = "thinking_end"

	EventToolCallStart EventType = "tool_call_start"
	EventToolCallDelta EventType = "tool_call_delta"
	EventToolCallEnd   EventType = "tool_call_end"

	EventDone  EventType = "done"
	EventError EventType = "error"
)

// Event is a single normalized item pushed onto an EventStream. Which fields
// are populated depends on Type; see the doc comments on each field.
type Event struct {
	Type EventType

	// ContentIndex targets the content block this event applies to. Present
	// on all Text/Thinking/ToolCall events.
	ContentIndex int

	// Delta is the incremental fragment for *_delta events: plain text for
	// Text/Thinking, raw JSON-string fragment for ToolCall.
	Delta string

	// Signature is set on ThinkingEnd when the provider attaches a
	// cryptographic signature/encrypted-content continuation token.
	Signature string

	// ToolCall is set on ToolCallEnd with fully parsed Arguments.
	ToolCall *ToolCallData

	// Partial references the in-progress AssistantMessage reflecting all
	// deltas applied so far. Present on every event between Start and
	// Done/Error. Never hold onto Partial across events without cloning
	// it first (see CloneAssistantMessage) -- it is mutated in place.
	Partial *AssistantMessage

	// Reason is set on Done/Error.
	Reason StopReason

	// Message is the final AssistantMessage, set on Done.
	Message *AssistantMessage

	// Error is the (partial) AssistantMessage describing a failed stream,
	// set on Error alongside Reason (error|aborted).
	Error *AssistantMessage
}
