package live

import (
	"sync"
)

// fakeSink collects delivered events in memory. A positive capacity makes
// Deliver start failing once full, mimicking a slow consumer. onClose runs
// once, outside the sink's lock, the way a real transport tears itself down.
type fakeSink struct {
	mu       sync.Mutex
	capacity int
	events   []Event
	closed   bool
	reason   string
	onClose  func(reason string)
}

func newFakeSink() *fakeSink { return &fakeSink{} }

func newBoundedSink(capacity int) *fakeSink { return &fakeSink{capacity: capacity} }

func (s *fakeSink) Deliver(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if s.capacity > 0 && len(s.events) >= s.capacity {
		return false
	}
	s.events = append(s.events, ev)
	return true
}

func (s *fakeSink) Close(reason string) {
	s.mu.Lock()
	already := s.closed
	s.closed = true
	s.reason = reason
	onClose := s.onClose
	s.mu.Unlock()
	if !already && onClose != nil {
		onClose(reason)
	}
}

func (s *fakeSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSink) closeReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// byName returns every delivered event with the given wire name.
func (s *fakeSink) byName(name string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, ev := range s.events {
		if ev.EventName() == name {
			out = append(out, ev)
		}
	}
	return out
}

// lastByName returns the most recent event with the given wire name.
func (s *fakeSink) lastByName(name string) Event {
	evs := s.byName(name)
	if len(evs) == 0 {
		return nil
	}
	return evs[len(evs)-1]
}

func (s *fakeSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.EventName())
	}
	return out
}
