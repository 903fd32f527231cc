package reactor

import "sync"

// EventKind names what an Event reports. Observers re-query the core for values.
type EventKind string

const (
	EventChanged       EventKind = "changed"
	EventMeltedDown    EventKind = "melted_down"
	EventPipesRuptured EventKind = "pipes_ruptured"
	EventExploded      EventKind = "exploded"
	EventTornDown      EventKind = "torn_down"
)

// Event is a state-change notification emitted by a core.
type Event struct {
	ReactorID ReactorID `json:"reactor_id"`
	Tick      int64     `json:"tick"`
	Kind      EventKind `json:"kind"`
}

// Observer receives core events. It is called after the core lock is released.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

type observerSet struct {
	mu   sync.RWMutex
	next int
	subs map[int]Observer
}

func (s *observerSet) add(o Observer) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs == nil {
		s.subs = make(map[int]Observer)
	}
	id := s.next
	s.next++
	s.subs[id] = o
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *observerSet) publish(events []Event) {
	if len(events) == 0 {
		return
	}
	s.mu.RLock()
	subs := make([]Observer, 0, len(s.subs))
	for _, o := range s.subs {
		subs = append(subs, o)
	}
	s.mu.RUnlock()
	for _, e := range events {
		for _, o := range subs {
			o.Observe(e)
		}
	}
}
