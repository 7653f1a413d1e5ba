package sinks

import (
	"context"
	"sync"

	"github.com/the-cubic-cat/sfera/logging"
)

// Memory keeps events in arrival order. It works both as a router sink and
// as a logging.Publisher handed straight to a component under test.
type Memory struct {
	mu     sync.Mutex
	events []logging.Event
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Write(event logging.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func (m *Memory) Publish(_ context.Context, event logging.Event) {
	_ = m.Write(event)
}

func (m *Memory) Events() []logging.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]logging.Event(nil), m.events...)
}

// OfType returns the recorded events of one type.
func (m *Memory) OfType(eventType logging.EventType) []logging.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []logging.Event
	for _, event := range m.events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

func (m *Memory) Close(context.Context) error {
	return nil
}
