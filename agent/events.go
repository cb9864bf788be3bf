package agent

import "agentcore/ai"

// EventType enumerates the higher-level agent event vocabulary emitted by
// Run, layered on top of ai's normalized stream events.
type EventType string

const (
	EventAgentStart EventType = "agent_start"

	EventTurnStart EventType = "turn_start"
	EventTurnEnd   EventType = "turn_end"

	EventMessageStart  EventType = "message_start"
	EventMessageUpdate EventType = "message_update"
	EventMessageEnd    EventType = "message_end"

	EventToolExecutionStart  EventType = "tool_execution_start"
	EventToolExecutionUpdate EventType = "tool_execution_update"
	EventToolExecutionEnd    EventType = "tool_execution_end"

	EventAgentEnd EventType = "agent_end"
)

// Event is a single item in the agent event vocabulary. Which fields are
// populated depends on Type.
type Event struct {
	Type EventType

	// Message* fields, set on MessageStart/MessageEnd.
	Message *ai.AssistantMessage

	// MessageEvent forwards the underlying ai.Event verbatim on
	// MessageUpdate.
	MessageEvent ai.Event

	// Tool* fields, set on ToolExecution{Start,Update,End}.
	ToolCallID  string
	ToolName    string
	ToolArgs    map[string]any
	ToolPartial string
	ToolResult  AgentToolResult

	// TurnEnd fields.
	TurnMessage     *ai.AssistantMessage
	TurnToolResults []ai.ToolResultMessage

	// AgentEnd field: every AgentMessage produced during this run.
	Messages []AgentMessage
}

// Listener receives agent events in push order. A panicking listener is
// isolated by the caller (see Agent.emit) so it never aborts a run.
type Listener func(Event)
