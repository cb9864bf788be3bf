package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeMessages_ElidesLeadingToolResults(t *testing.T) {
	messages := []Message{
		ToolResultMessage{ToolCallID: "orphan", Text: "nothing to respond to"},
		UserMessage{Text: "hi"},
	}
	out := NormalizeMessages(messages, false)

	require.Len(t, out, 1)
	assert.Equal(t, RoleUser, out[0].GetRole())
}

func TestNormalizeMessages_KeepsToolResultsAfterToolCall(t *testing.T) {
	messages := []Message{
		UserMessage{Text: "run it"},
		AssistantMessage{Content: []ContentBlock{{Type: ContentToolCall, ToolCall: &ToolCallData{ID: "1", Name: "run"}}}},
		ToolResultMessage{ToolCallID: "1", Text: "ok"},
	}
	out := NormalizeMessages(messages, false)

	require.Len(t, out, 3)
	assert.Equal(t, RoleTool, out[2].GetRole())
}

func TestNormalizeMessages_MergesAdjacentUserMessages(t *testing.T) {
	messages := []Message{
		UserMessage{Text: "part one. "},
		UserMessage{Text: "part two."},
	}
	out := NormalizeMessages(messages, false)

	require.Len(t, out, 1)
	um := out[0].(UserMessage)
	assert.Equal(t, "part one. part two.", um.Text)
}

func TestNormalizeMessages_DoesNotMergeAcrossOtherRoles(t *testing.T) {
	messages := []Message{
		UserMessage{Text: "a"},
		AssistantMessage{Content: []ContentBlock{{Type: ContentText, Text: "reply"}}},
		UserMessage{Text: "b"},
	}
	out := NormalizeMessages(messages, false)

	require.Len(t, out, 3)
	assert.Equal(t, "a", out[0].(UserMessage).Text)
	assert.Equal(t, "b", out[2].(UserMessage).Text)
}

func TestNormalizeMessages_StripsOrphanThinkingWhenRequested(t *testing.T) {
	messages := []Message{
		AssistantMessage{Content: []ContentBlock{
			{Type: ContentThinking, Thinking: "reasoning..."},
			{Type: ContentText, Text: "answer"},
		}},
	}
	out := NormalizeMessages(messages, true)

	am := out[0].(AssistantMessage)
	require.Len(t, am.Content, 1)
	assert.Equal(t, ContentText, am.Content[0].Type)
}

func TestNormalizeMessages_KeepsThinkingAlongsideToolCallEvenWhenStripping(t *testing.T) {
	messages := []Message{
		AssistantMessage{Content: []ContentBlock{
			{Type: ContentThinking, Thinking: "reasoning..."},
			{Type: ContentToolCall, ToolCall: &ToolCallData{ID: "1", Name: "search"}},
		}},
	}
	out := NormalizeMessages(messages, true)

	am := out[0].(AssistantMessage)
	require.Len(t, am.Content, 2)
	assert.Equal(t, ContentThinking, am.Content[0].Type)
}
