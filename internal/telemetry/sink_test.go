package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubTransport records sends; an optional gate blocks Send until released.
type stubTransport struct {
	mu     sync.Mutex
	sent   []Event
	err    error
	gate   chan struct{}
	closed bool
}

func (s *stubTransport) Send(ctx context.Context, e Event) error {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, e)
	return s.err
}

func (s *stubTransport) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubTransport) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func testEvent(eventType string) Event {
	return &StationStatus{Envelope: NewEnvelope("prep_1", EquipmentPrep, eventType)}
}

func TestAsyncSink_DeliversInOrder(t *testing.T) {
	tr := &stubTransport{}
	s := NewAsyncSink(tr, 8)

	s.Publish(testEvent("first"))
	s.Publish(testEvent("second"))
	require.NoError(t, s.Close())

	require.Len(t, tr.sent, 2)
	assert.Equal(t, "first", tr.sent[0].EventEnvelope().EventType)
	assert.Equal(t, "second", tr.sent[1].EventEnvelope().EventType)
	assert.True(t, tr.closed)
}

func TestAsyncSink_PublishNeverBlocks(t *testing.T) {
	// GIVEN a transport that is wedged on its first send
	tr := &stubTransport{gate: make(chan struct{})}
	s := NewAsyncSink(tr, 2)

	// WHEN far more events arrive than the buffer holds
	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			s.Publish(testEvent("status_update"))
		}
		close(done)
	}()

	// THEN the publisher finishes immediately, overflow is dropped and counted
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a stuck transport")
	}
	assert.Greater(t, s.Dropped(), int64(0))

	close(tr.gate)
	require.NoError(t, s.Close())
}

func TestAsyncSink_SendFailureIsSwallowed(t *testing.T) {
	tr := &stubTransport{err: errors.New("broker unavailable")}
	s := NewAsyncSink(tr, 8)

	s.Publish(testEvent("status_update"))
	require.NoError(t, s.Close(), "transport errors must not surface to the simulation")
	assert.Equal(t, 1, tr.sentCount())
}

func TestAsyncSink_PublishAfterCloseIsIgnored(t *testing.T) {
	tr := &stubTransport{}
	s := NewAsyncSink(tr, 8)
	require.NoError(t, s.Close())

	s.Publish(testEvent("late"))

	assert.Equal(t, 0, tr.sentCount())
	assert.NoError(t, s.Close(), "double close is a no-op")
}

func TestNopSink_Discards(t *testing.T) {
	var s NopSink
	s.Publish(testEvent("ignored"))
}
