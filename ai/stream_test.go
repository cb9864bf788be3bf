package ai

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventStream_PushEventsEnd(t *testing.T) {
	s := NewEventStream(context.Background())

	go func() {
		s.Push(Event{Type: EventStart})
		s.Push(Event{Type: EventTextDelta, Delta: "hi"})
		s.End()
	}()

	var got []EventType
	for ev := range s.Events() {
		got = append(got, ev.Type)
	}
	assert.Equal(t, []EventType{EventStart, EventTextDelta}, got)
}

func TestEventStream_EndIsIdempotent(t *testing.T) {
	s := NewEventStream(context.Background())
	s.End()
	s.End()

	_, open := <-s.Events()
	assert.False(t, open)
}

func TestEventStream_LatchOnlyFirstWins(t *testing.T) {
	s := NewEventStream(context.Background())
	first := &AssistantMessage{Model: "first"}
	second := &AssistantMessage{Model: "second"}

	s.Latch(first, nil)
	s.Latch(second, assert.AnError)

	msg, err := s.Result(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", msg.Model)
}

func TestEventStream_ResultUnblocksOnContextCancel(t *testing.T) {
	s := NewEventStream(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := s.Result(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEventStream_CancelPropagatesToContext(t *testing.T) {
	s := NewEventStream(context.Background())
	s.Cancel()

	select {
	case <-s.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("stream context was not cancelled")
	}
}
