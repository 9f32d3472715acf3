package execution

import (
	"sync"

	"github.com/zerotoship/flow/internal/clock"
)

// Session is the shared context store for one run: a lock-protected
// key-value map plus an append-only event history. It is the only mutable
// resource shared between parallel branches; every mutation is a single
// lock-held operation of bounded duration, so readers calling Snapshot
// concurrently with a Merge observe the state fully before or fully after
// the merge, never a mix.
type Session struct {
	ID string

	mu      sync.RWMutex
	data    map[string]interface{}
	history []HistoryEvent
}

// NewSession creates a session scoped to a single run.
func NewSession(id string) *Session {
	return &Session{
		ID:   id,
		data: make(map[string]interface{}),
	}
}

// Get retrieves a value, falling back to defaultValue when the key is absent.
func (s *Session) Get(key string, defaultValue interface{}) interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if value, ok := s.data[key]; ok {
		return value
	}
	return defaultValue
}

// Lookup retrieves a value and reports whether the key was present.
func (s *Session) Lookup(key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.data[key]
	return value, ok
}

// Set adds or updates a single key.
func (s *Session) Set(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

// Merge applies all entries as one atomic operation. This is the operation
// parallel branches use to publish results; no reader ever observes a
// partially applied merge. Colliding keys are last-write-wins.
func (s *Session) Merge(updates map[string]interface{}) {
	if len(updates) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range updates {
		s.data[k] = v
	}
}

// Snapshot returns a copy of the current contents. The copy is taken under
// the lock and then released, so executors never hold the lock during
// potentially slow calls, and later mutations never change a snapshot
// already handed out.
func (s *Session) Snapshot() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := make(map[string]interface{}, len(s.data))
	for k, v := range s.data {
		snapshot[k] = v
	}
	return snapshot
}

// Record appends a timestamped entry to the history log.
func (s *Session) Record(event string, payload map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, HistoryEvent{
		Name:    event,
		Payload: payload,
		Time:    clock.Now(),
	})
}

// History returns a copy of the recorded events in insertion order.
func (s *Session) History() []HistoryEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := make([]HistoryEvent, len(s.history))
	copy(history, s.history)
	return history
}

// Clear removes all context data. History is preserved.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]interface{})
}

// Size returns the number of keys in the context.
func (s *Session) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
