package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Sink accepts events from the simulation. Publish must return immediately;
// delivery is best-effort.
type Sink interface {
	Publish(e Event)
}

// Transport delivers a single event to a broker. Send may block on network
// I/O, so it only ever runs on the async sink's worker goroutine.
type Transport interface {
	Send(ctx context.Context, e Event) error
	Close() error
}

// NopSink discards everything. Used when telemetry is disabled.
type NopSink struct{}

func (NopSink) Publish(Event) {}

const defaultBuffer = 256

// AsyncSink decouples the simulation loops from the transport with a bounded
// buffer. When the buffer is full the newest event is dropped and counted;
// a lifecycle transition is never delayed by a slow broker.
type AsyncSink struct {
	transport Transport
	events    chan Event
	log       *logrus.Entry

	mu      sync.Mutex
	dropped int64
	closed  bool
	done    chan struct{}
}

func NewAsyncSink(transport Transport, buffer int) *AsyncSink {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	s := &AsyncSink{
		transport: transport,
		events:    make(chan Event, buffer),
		log:       logrus.WithField("component", "telemetry"),
		done:      make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *AsyncSink) Publish(e Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	select {
	case s.events <- e:
	default:
		s.mu.Lock()
		s.dropped++
		n := s.dropped
		s.mu.Unlock()
		if n%100 == 1 {
			s.log.WithFields(logrus.Fields{
				"event_type": e.EventEnvelope().EventType,
				"dropped":    n,
			}).Warn("telemetry buffer full, dropping event")
		}
	}
}

// Dropped reports how many events were discarded because the buffer was full.
func (s *AsyncSink) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for e := range s.events {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := s.transport.Send(ctx, e)
		cancel()
		if err != nil {
			// Best-effort delivery: log and move on.
			s.log.WithFields(logrus.Fields{
				"event_type": e.EventEnvelope().EventType,
				"equipment":  e.EventEnvelope().EquipmentID,
			}).WithError(err).Error("event publish failed")
		}
	}
}

// Close drains buffered events, then closes the transport.
func (s *AsyncSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.events)
	<-s.done
	return s.transport.Close()
}
