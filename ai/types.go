// Package ai provides a provider-agnostic streaming abstraction over chat
// completion backends (Anthropic, OpenAI, Google, Bedrock, ...). The
// stateful agent loop built on top of it lives in package agent.
package ai

import "time"

// Role identifies who authored a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// API identifies which provider adapter a Model is dispatched through.
type API string

const (
	APIAnthropic        API = "anthropic"
	APIOpenAIChat        API = "openai-chat"
	APIOpenAIResponses   API = "openai-responses"
	APIAzureResponses    API = "azure-responses"
	APICodexResponses    API = "codex-responses"
	APIGoogleGenAI       API = "google-genai"
	APIGoogleVertex      API = "google-vertex"
	APIGoogleGeminiCLI   API = "google-gemini-cli"
	APIBedrock           API = "bedrock"
	APIEcho              API = "echo"
)

// Cost holds per-million-token rates (when on a Model) or computed dollar
// amounts (when on a Usage).
type Cost struct {
	Input      float64 `json:"input"`
	Output     float64 `json:"output"`
	CacheRead  float64 `json:"cacheRead,omitempty"`
	CacheWrite float64 `json:"cacheWrite,omitempty"`
	Total      float64 `json:"total,omitempty"`
}

// Model is an immutable descriptor registered at init by builtins or by the
// caller. It is looked up by (provider-family, model id) via the registry.
type Model struct {
	ID              string
	Name            string
	API             API
	Provider        string
	BaseURL         string
	Reasoning       bool
	Modalities      []string
	Cost            Cost
	ContextWindow   int
	MaxOutputTokens int
	Headers         map[string]string
	Compat          map[string]bool
}

func (m Model) SupportsImages() bool {
	for _, mod := range m.Modalities {
		if mod == "image" {
			return true
		}
	}
	return false
}

// Tool is an immutable function description, unique by name within a Context.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema object
}

// ToolChoice constrains which tool(s) the model may call.
type ToolChoiceType string

const (
	ToolChoiceAuto     ToolChoiceType = "auto"
	ToolChoiceNone     ToolChoiceType = "none"
	ToolChoiceRequired ToolChoiceType = "required"
	ToolChoiceSpecific ToolChoiceType = "specific"
)

type ToolChoice struct {
	Type                    ToolChoiceType
	Name                    string
	DisableParallelToolUse  bool
}

// ContentBlockType enumerates tagged ContentBlock variants.
type ContentBlockType string

const (
	ContentText       ContentBlockType = "text"
	ContentThinking   ContentBlockType = "thinking"
	ContentToolCall   ContentBlockType = "tool_call"
	ContentImage      ContentBlockType = "image"
	ContentToolResult ContentBlockType = "tool_result"
)

// ToolCallData is the payload of a ContentToolCall block. Arguments holds the
// fully parsed JSON object once ToolCallEndEvent has fired; until then it is
// nil and the raw string accumulates separately in the adapter.
type ToolCallData struct {
	ID        string
	Name      string
	Arguments map[string]any
	RawArgs   string // accumulated raw JSON string; mid-stream it is a prefix that may not parse
}

// ImageBlockData is the payload of a ContentImage block.
type ImageBlockData struct {
	MimeType string
	Data     []byte // raw bytes; adapters base64-encode as needed on the wire
	URL      string // alternative to Data for providers/inputs that take URLs
}

// ToolResultBlockData is nested tool-result content (e.g. an image returned
// by a tool), distinct from the top-level ToolResultMessage.
type ToolResultBlockData struct {
	ToolCallID string
	Text       string
}

// ContentBlock is a single tagged span within a message's content, identified
// by its ContentIndex within the owning AssistantMessage. Once its End event
// has fired a block is never mutated again.
type ContentBlock struct {
	ContentIndex int
	Type         ContentBlockType

	Text      string // ContentText
	Thinking  string // ContentThinking
	Signature string // ContentThinking, optional

	ToolCall *ToolCallData   // ContentToolCall
	Image    *ImageBlockData // ContentImage
}

// Attachment is caller-supplied input media attached to a UserMessage.
type Attachment struct {
	MimeType string
	Data     []byte
	URL      string
}

// Message is the tagged union of conversation turns. Concrete
// implementations are UserMessage, AssistantMessage, ToolResultMessage.
type Message interface {
	GetRole() Role
}

// UserMessage is caller input: plain text or an ordered sequence of content
// blocks, with optional attachments.
type UserMessage struct {
	Text        string
	Content     []ContentBlock
	Attachments []Attachment
	Timestamp   time.Time
}

func (UserMessage) GetRole() Role { return RoleUser }

func (m UserMessage) ContentString() string {
	if m.Text != "" {
		return m.Text
	}
	var out string
	for _, b := range m.Content {
		if b.Type == ContentText {
			out += b.Text
		}
	}
	return out
}

// StopReason is the normalized reason a stream ended.
type StopReason string

const (
	StopReasonStop     StopReason = "stop"
	StopReasonLength   StopReason = "length"
	StopReasonToolUse  StopReason = "tool_use"
	StopReasonAborted  StopReason = "aborted"
	StopReasonError    StopReason = "error"
)

// Usage accumulates token counts during a stream; Cost is derived from
// Model.Cost and must be set before DoneEvent is pushed.
type Usage struct {
	InputTokens      int
	OutputTokens     int
	CacheReadTokens  int
	CacheWriteTokens int
	Cost             Cost
}

// AssistantMessage is the model's response: an ordered, append-only sequence
// of content blocks plus stream-level metadata. It is mutated in place while
// a stream is in progress and frozen once Done/Error fires; callers must
// clone it (see CloneAssistantMessage) before holding onto a reference taken
// mid-stream.
type AssistantMessage struct {
	Content      []ContentBlock
	Usage        Usage
	StopReason   StopReason
	API          API
	Provider     string
	Model        string
	Timestamp    time.Time
	ErrorMessage string
}

func (AssistantMessage) GetRole() Role { return RoleAssistant }

// CloneAssistantMessage deep-copies the content slice so that holding a
// reference to a partial message from an earlier event never observes later
// mutations.
func CloneAssistantMessage(m *AssistantMessage) *AssistantMessage {
	if m == nil {
		return nil
	}
	clone := *m
	clone.Content = make([]ContentBlock, len(m.Content))
	copy(clone.Content, m.Content)
	return &clone
}

// ToolResultMessage carries the result of executing a tool call back into
// the conversation.
type ToolResultMessage struct {
	ToolCallID string
	ToolName   string
	Content    []ContentBlock
	Text       string
	IsError    bool
	Timestamp  time.Time
}

func (ToolResultMessage) GetRole() Role { return RoleTool }

// Context is the immutable (to the provider) request payload: optional
// system prompt, ordered messages, optional tool catalog.
type Context struct {
	SystemPrompt string
	Messages     []Message
	Tools        []Tool
	ToolChoice   *ToolChoice
}

// ReasoningLevel is the provider-agnostic thinking-effort dial.
type ReasoningLevel string

const (
	ReasoningOff     ReasoningLevel = "off"
	ReasoningMinimal ReasoningLevel = "minimal"
	ReasoningLow     ReasoningLevel = "low"
	ReasoningMedium  ReasoningLevel = "medium"
	ReasoningHigh    ReasoningLevel = "high"
	ReasoningXHigh   ReasoningLevel = "xhigh"
)

// Options carries full per-request parameters understood by stream().
type Options struct {
	APIKey      string
	Reasoning   ReasoningLevel
	Temperature *float32
	MaxTokens   int
	CancelSignal CancelSignal
	ExtraHeaders map[string]string
}

// SimpleOptions is the reduced parameter set accepted by stream_simple.
type SimpleOptions struct {
	Reasoning    ReasoningLevel
	APIKey       string
	Temperature  *float32
	MaxTokens    int
	CancelSignal CancelSignal
}

func (s SimpleOptions) toOptions() Options {
	return Options{
		APIKey:       s.APIKey,
		Reasoning:    s.Reasoning,
		Temperature:  s.Temperature,
		MaxTokens:    s.MaxTokens,
		CancelSignal: s.CancelSignal,
	}
}
