package acconnect

import (
	"encoding/json"
	"sync"
)

// CommandEvent is emitted when the service confirms a device-state change.
type CommandEvent struct {
	MAC     string
	Payload json.RawMessage
}

// TemperatureEvent is emitted for each room-temperature sample.
type TemperatureEvent struct {
	MAC   string
	Raw   json.RawMessage
	Value float64
}

type subscribers[T any] struct {
	mu     sync.Mutex
	subs   map[int]func(T)
	nextID int
}

func (s *subscribers[T]) add(cb func(T)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs == nil {
		s.subs = make(map[int]func(T))
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = cb
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *subscribers[T]) emit(value T) {
	s.mu.Lock()
	callbacks := make([]func(T), 0, len(s.subs))
	for _, cb := range s.subs {
		callbacks = append(callbacks, cb)
	}
	s.mu.Unlock()
	for _, cb := range callbacks {
		cb(value)
	}
}

func (s *subscribers[T]) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
