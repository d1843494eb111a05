package transport

import (
	"slices"
	"sync"
)

// subscriptions tracks push handlers by event name.
type subscriptions struct {
	mu     sync.RWMutex
	nextID uint64
	byName map[string]map[uint64]Handler
}

func newSubscriptions() *subscriptions {
	return &subscriptions{byName: make(map[string]map[uint64]Handler)}
}

// add registers h and reports whether it is the first handler for name.
func (s *subscriptions) add(name string, h Handler) (id uint64, first bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	handlers, ok := s.byName[name]
	if !ok {
		handlers = make(map[uint64]Handler)
		s.byName[name] = handlers
	}
	handlers[s.nextID] = h
	return s.nextID, !ok
}

// remove drops one handler and reports whether it was the last for name.
// Unknown ids are ignored.
func (s *subscriptions) remove(name string, id uint64) (removed, last bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	handlers, ok := s.byName[name]
	if !ok {
		return false, false
	}
	if _, ok := handlers[id]; !ok {
		return false, false
	}
	delete(handlers, id)
	if len(handlers) == 0 {
		delete(s.byName, name)
		return true, true
	}
	return true, false
}

// handlers returns the handlers for name in registration order.
func (s *subscriptions) handlers(name string) []Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := s.byName[name]
	if len(set) == 0 {
		return nil
	}
	ids := make([]uint64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]Handler, len(ids))
	for i, id := range ids {
		out[i] = set[id]
	}
	return out
}

// has reports whether anything is subscribed to name.
func (s *subscriptions) has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byName[name]) > 0
}

// count returns the number of registered handlers across all names.
func (s *subscriptions) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, set := range s.byName {
		n += len(set)
	}
	return n
}

// names returns every subscribed event name.
func (s *subscriptions) names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.byName))
	for name := range s.byName {
		out = append(out, name)
	}
	return out
}

// clear removes every handler.
func (s *subscriptions) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byName = make(map[string]map[uint64]Handler)
}

// subscribe registers h and returns an idempotent unsubscribe.
// onFirst and onLast, when non-nil, run when name gains its first
// handler or loses its last one.
func (s *subscriptions) subscribe(name string, h Handler, onFirst, onLast func(name string)) func() {
	id, first := s.add(name, h)
	if first && onFirst != nil {
		onFirst(name)
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			removed, last := s.remove(name, id)
			if removed && last && onLast != nil {
				onLast(name)
			}
		})
	}
}
