package pizzeria

import (
	"sync"

	"pizzeria-system/internal/telemetry"
)

// captureSink records published events for assertions.
type captureSink struct {
	mu     sync.Mutex
	events []telemetry.Event
}

func (c *captureSink) Publish(e telemetry.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureSink) byType(eventType string) []telemetry.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []telemetry.Event
	for _, e := range c.events {
		if e.EventEnvelope().EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// stubStation is a scripted admission target for manager tests.
type stubStation struct {
	mu      sync.Mutex
	id      string
	accepts int // admissions to accept before refusing; -1 = always accept
	err     error
	admits  []string
}

func (s *stubStation) ID() string { return s.id }

func (s *stubStation) Admit(orderID string, pt PizzaType, size Size) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	if s.accepts == 0 {
		return false, nil
	}
	if s.accepts > 0 {
		s.accepts--
	}
	s.admits = append(s.admits, orderID)
	return true, nil
}

func (s *stubStation) admitted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.admits...)
}
