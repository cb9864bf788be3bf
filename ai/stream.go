package ai

import (
	"context"
	"sync"
)

// CancelSignal is the single cancel signal threaded top-down from agent to
// loop to stream to in-flight HTTP request to tool execute. A plain
// context.Context satisfies it; callers cancel by cancelling the context
// they handed to NewEventStream or set as AgentLoopConfig.CancelSignal.
type CancelSignal = context.Context

// EventStream is a one-producer, one-consumer queue of normalized Events
// terminated by End, with a latched final result. Push never blocks the
// producer: events are buffered on an internal slice guarded by a condition
// variable and forwarded to the consumer channel by a dedicated pump
// goroutine, so a slow or absent consumer cannot stall adapter code mid wire
// -parse.
type EventStream struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	cond  *sync.Cond
	queue []Event
	ended bool
	out   chan Event

	resultOnce sync.Once
	resultDone chan struct{}
	resultMsg  *AssistantMessage
	resultErr  error
}

// NewEventStream creates a stream whose producer lifetime is bound to ctx:
// cancelling ctx (directly, or via the returned stream's Cancel) must cause
// the adapter's background task to observe cancellation at its next
// suspension point.
func NewEventStream(ctx context.Context) *EventStream {
	cctx, cancel := context.WithCancel(ctx)
	s := &EventStream{
		ctx:        cctx,
		cancel:     cancel,
		out:        make(chan Event, 32),
		resultDone: make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	go s.pump()
	return s
}

func (s *EventStream) pump() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.ended {
			s.cond.Wait()
		}
		if len(s.queue) == 0 && s.ended {
			s.mu.Unlock()
			close(s.out)
			return
		}
		e := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		s.out <- e
	}
}

// Push enqueues an event. Safe to call from the producer goroutine only.
func (s *EventStream) Push(e Event) {
	s.mu.Lock()
	s.queue = append(s.queue, e)
	s.mu.Unlock()
	s.cond.Signal()
}

// End marks the stream closed. Idempotent.
func (s *EventStream) End() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.mu.Unlock()
	s.cond.Signal()
}

// Events yields pushed events in order until End, then closes.
func (s *EventStream) Events() <-chan Event {
	return s.out
}

// Latch records the terminal result. Only the first call takes effect: a
// stream that emits multiple Done/Error signals has the first treated as
// authoritative.
func (s *EventStream) Latch(msg *AssistantMessage, err error) {
	s.resultOnce.Do(func() {
		s.resultMsg = msg
		s.resultErr = err
		close(s.resultDone)
	})
}

// Result blocks until the stream has latched a terminal result or ctx is
// done, whichever comes first.
func (s *EventStream) Result(ctx context.Context) (*AssistantMessage, error) {
	select {
	case <-s.resultDone:
		return s.resultMsg, s.resultErr
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel cancels the stream's context, signalling the producer to stop.
func (s *EventStream) Cancel() {
	s.cancel()
}

// Context returns the stream's (derived) context, for adapters to select on.
func (s *EventStream) Context() context.Context {
	return s.ctx
}
