package ai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEchoProvider_StreamEchoesLastUserMessage(t *testing.T) {
	provider := EchoProvider{}
	model := Model{ID: "echo-1", Provider: "echo", Cost: Cost{}}

	ctx := Context{
		Messages: []Message{
			UserMessage{Text: "first"},
			AssistantMessage{Content: []ContentBlock{{Type: ContentText, Text: "reply"}}},
			UserMessage{Text: "second"},
		},
	}

	stream := provider.Stream(context.Background(), model, ctx, Options{})

	var types []EventType
	for ev := range stream.Events() {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []EventType{EventStart, EventTextStart, EventTextDelta, EventTextEnd, EventDone}, types)

	msg, err := stream.Result(context.Background())
	require.NoError(t, err)
	require.Len(t, msg.Content, 1)
	assert.Equal(t, "Echo: second", msg.Content[0].Text)
	assert.Equal(t, StopReasonStop, msg.StopReason)
}

func TestEchoProvider_RegisteredInApiRegistry(t *testing.T) {
	provider, err := GetApiProvider(APIEcho)
	require.NoError(t, err)
	assert.Equal(t, APIEcho, provider.API())
}
