package domain

import "sync/atomic"

// Status is the running/idle lifecycle flag of a runnable scope.
// There is exactly one Status per Flow and one per Group. Safe for concurrent use.
type Status struct {
	running atomic.Bool
}

// NewStatus returns an idle Status.
func NewStatus() *Status {
	return &Status{}
}

// Start marks the scope as running.
func (s *Status) Start() {
	s.running.Store(true)
}

// TryStart marks the scope as running unless it already is.
// It reports whether the transition happened.
func (s *Status) TryStart() bool {
	return s.running.CompareAndSwap(false, true)
}

// Stop marks the scope as idle.
func (s *Status) Stop() {
	s.running.Store(false)
}

// IsRunning reports whether the scope is currently executing.
func (s *Status) IsRunning() bool {
	return s.running.Load()
}
