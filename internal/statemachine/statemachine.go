// Package statemachine provides the small named-state primitive shared by
// Job and PlanWorker: an append-only history plus a change-notification
// channel that a waiter can block on.
package statemachine

import (
	"sync"
	"time"
)

// State is a named value; two states are equal iff their names match.
type State struct {
	Name string
}

func (s State) String() string { return s.Name }

// Is reports whether s and other share a name.
func (s State) Is(other State) bool { return s.Name == other.Name }

// HistoryEntry records when a state was entered.
type HistoryEntry struct {
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	State     string    `json:"state" yaml:"state"`
}

// Machine guards a current state plus its history, and lets goroutines
// wait for the next change. The zero value is not usable; use New.
type Machine struct {
	mu      sync.Mutex
	current State
	history []HistoryEntry
	changed chan struct{}
	now     func() time.Time
}

// New creates a Machine already in initial.
func New(initial State) *Machine {
	m := &Machine{
		changed: make(chan struct{}),
		now:     time.Now,
	}
	m.set(initial)
	return m
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// History returns a copy of the append-only state history.
func (m *Machine) History() []HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]HistoryEntry, len(m.history))
	copy(out, m.history)
	return out
}

// Set transitions to next, appends to history and wakes any waiter.
func (m *Machine) Set(next State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set(next)
}

func (m *Machine) set(next State) {
	m.current = next
	m.history = append(m.history, HistoryEntry{CreatedAt: m.now(), State: next.Name})
	close(m.changed)
	m.changed = make(chan struct{})
}

// changedChan returns the channel that closes on the next Set call. It
// must be read under the lock to avoid missing a signal that fires
// between the check and the wait.
func (m *Machine) changedChan() chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.changed
}

// WaitFor blocks until the state satisfies pred, or ctx-like done fires.
// Pred is evaluated each time Set is called, never polled.
func (m *Machine) WaitFor(done <-chan struct{}, pred func(State) bool) bool {
	for {
		m.mu.Lock()
		if pred(m.current) {
			m.mu.Unlock()
			return true
		}
		ch := m.changed
		m.mu.Unlock()

		select {
		case <-ch:
		case <-done:
			return false
		}
	}
}
